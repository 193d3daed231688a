package wire

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/starknet-p2p/p2p-sync/pkg/p2psync/types"
)

// FrameData encodes a Data item and wraps it with a protobuf length-delimited
// prefix, as required of every response frame: unlike queries, responses are
// length-delimited so a single stream can carry a sequence of frames without
// ambiguity about where one message ends.
func FrameData(d types.Data, dt types.DataType) ([]byte, error) {
	msg, err := EncodeData(d, dt)
	if err != nil {
		return nil, err
	}
	return protowire.AppendBytes(nil, msg), nil
}

// UnframeData strips the length-delimited prefix and decodes the inner Data
// message. Returns the number of bytes consumed from b so callers can walk
// multiple concatenated frames if the swarm ever coalesces them.
func UnframeData(b []byte, dt types.DataType) (types.Data, int, error) {
	msg, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return types.Data{}, 0, fmt.Errorf("%w: bad frame length prefix", types.ErrDecode)
	}
	d, err := DecodeData(msg, dt)
	if err != nil {
		return types.Data{}, 0, err
	}
	return d, n, nil
}
