package definition

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/starknet-p2p/p2p-sync/pkg/p2psync/types"
)

// Config carries every tunable the network manager, peer manager and
// state-diff engine need.
type Config struct {
	// ProtocolVersion is carried in the configuration only: the wire codec
	// does not encode it into queries and no peer is rejected on version.
	ProtocolVersion uint32

	// HeaderBufferSize is the bounded-channel capacity for each subscriber
	// response receiver.
	HeaderBufferSize int

	// DBSinkBufferSize is the bounded-channel capacity between the DB
	// executor and the inbound-session frame pump, propagating backpressure
	// to storage reads.
	DBSinkBufferSize int

	// HeaderQueryLength is the number of headers requested per header
	// window.
	HeaderQueryLength uint64

	// StateDiffQueryLength is the number of blocks' worth of state diff
	// requested per state-diff query. Must be <= HeaderQueryLength.
	StateDiffQueryLength uint64

	// TargetNumForPeers is the desired steady-state peer count; the peer
	// manager's MorePeersNeeded reports true below this.
	TargetNumForPeers int

	// BlacklistTimeout is how long a reported-bad peer stays blocked.
	BlacklistTimeout time.Duration

	// Logger is the injectable public logging surface.
	Logger types.Logger

	// StructuredLog is the internal structured logger used on the manager's
	// and peer manager's hot paths (peer_id/session_id/query_id fields),
	// independent from Logger.
	StructuredLog *logrus.Logger
}

// DefaultConfig returns sane defaults for running a single node.
func DefaultConfig() *Config {
	return &Config{
		ProtocolVersion:      1,
		HeaderBufferSize:     1000,
		DBSinkBufferSize:     64,
		HeaderQueryLength:    100,
		StateDiffQueryLength: 32,
		TargetNumForPeers:    10,
		BlacklistTimeout:     5 * time.Minute,
		Logger:               NewDefaultLogger(),
		StructuredLog:        logrus.StandardLogger(),
	}
}
