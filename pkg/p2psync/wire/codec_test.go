package wire

import (
	"reflect"
	"testing"

	"github.com/starknet-p2p/p2p-sync/pkg/p2psync/types"
)

func TestEncodeDecodeQueryByNumber(t *testing.T) {
	q := types.InternalQuery{
		Start:     types.StartBlockNumber(42),
		Direction: types.Forward,
		Limit:     10,
		Step:      2,
	}
	got, err := DecodeQuery(EncodeQuery(q))
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	if !reflect.DeepEqual(got, q) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, q)
	}
}

func TestEncodeDecodeQueryByHash(t *testing.T) {
	q := types.InternalQuery{
		Start:     types.StartBlockHash([]byte{0xde, 0xad, 0xbe, 0xef}),
		Direction: types.Backward,
		Limit:     5,
		Step:      1,
	}
	got, err := DecodeQuery(EncodeQuery(q))
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	if got.Direction != q.Direction || got.Limit != q.Limit || got.Step != q.Step {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, q)
	}
	if !got.Start.ByHash || !reflect.DeepEqual(got.Start.Hash, q.Start.Hash) {
		t.Fatalf("expected hash-addressed start block, got %+v", got.Start)
	}
}

func TestDecodeQueryMissingStartFails(t *testing.T) {
	var b []byte
	if _, err := DecodeQuery(b); err == nil {
		t.Fatalf("expected an error decoding a query with no start block")
	}
}

func TestFrameAndUnframeHeaderData(t *testing.T) {
	item := types.Data{Header: &types.BlockHeaderAndSignature{
		Header:     types.BlockHeader{Number: 7, Hash: []byte("h"), ParentHash: []byte("p"), StateDiffLength: 3},
		Signatures: [][]byte{[]byte("sig-a"), []byte("sig-b")},
	}}

	frame, err := FrameData(item, types.SignedBlockHeader)
	if err != nil {
		t.Fatalf("unexpected frame error: %v", err)
	}

	got, n, err := UnframeData(frame, types.SignedBlockHeader)
	if err != nil {
		t.Fatalf("unexpected unframe error: %v", err)
	}
	if n != len(frame) {
		t.Fatalf("expected to consume the whole frame (%d bytes), consumed %d", len(frame), n)
	}
	if got.Header == nil || got.Header.Header.Number != 7 || got.Header.Header.StateDiffLength != 3 {
		t.Fatalf("unexpected decoded header: %+v", got)
	}
	if len(got.Header.Signatures) != 2 {
		t.Fatalf("expected 2 signatures, got %d", len(got.Header.Signatures))
	}
}

func TestFrameAndUnframeFin(t *testing.T) {
	item := types.Data{Fin: &types.Fin{DataType: types.SignedBlockHeader}}
	frame, err := FrameData(item, types.SignedBlockHeader)
	if err != nil {
		t.Fatalf("unexpected frame error: %v", err)
	}
	got, _, err := UnframeData(frame, types.SignedBlockHeader)
	if err != nil {
		t.Fatalf("unexpected unframe error: %v", err)
	}
	if !got.IsFin() || got.Fin.DataType != types.SignedBlockHeader {
		t.Fatalf("expected Fin(SignedBlockHeader), got %+v", got)
	}
}

func TestFrameAndUnframeStateDiffData(t *testing.T) {
	item := types.Data{Diff: &types.StateDiffChunk{Part: types.ThinStateDiff{
		DeployedContracts: []types.DeployedContract{{Address: "0x1", ClassHash: "0xc1"}},
		StorageDiffs: types.StorageDiff{
			"0x1": {"0xkey": []byte{0x01, 0x02}},
		},
		DeclaredClasses:           []types.DeclaredClass{{ClassHash: "0xc2", CompiledClassHash: "0xcc2"}},
		DeprecatedDeclaredClasses: []string{"0xc3"},
		Nonces:                    map[string]string{"0x1": "0x5"},
		ReplacedClasses:           []types.ReplacedClass{{Address: "0x2", ClassHash: "0xc4"}},
	}}}

	frame, err := FrameData(item, types.StateDiff)
	if err != nil {
		t.Fatalf("unexpected frame error: %v", err)
	}
	got, _, err := UnframeData(frame, types.StateDiff)
	if err != nil {
		t.Fatalf("unexpected unframe error: %v", err)
	}
	if got.Diff == nil {
		t.Fatalf("expected a diff chunk, got %+v", got)
	}
	if got.Diff.Part.Len() != item.Diff.Part.Len() {
		t.Fatalf("expected length %d, got %d", item.Diff.Part.Len(), got.Diff.Part.Len())
	}
	if !reflect.DeepEqual(got.Diff.Part.StorageDiffs["0x1"]["0xkey"], []byte{0x01, 0x02}) {
		t.Fatalf("storage diff entry did not round trip: %+v", got.Diff.Part.StorageDiffs)
	}
	if got.Diff.Part.Nonces["0x1"] != "0x5" {
		t.Fatalf("nonce entry did not round trip: %+v", got.Diff.Part.Nonces)
	}
}

func TestUnframeDataRejectsUnknownDataType(t *testing.T) {
	item := types.Data{Fin: &types.Fin{DataType: types.StateDiff}}
	frame, err := FrameData(item, types.StateDiff)
	if err != nil {
		t.Fatalf("unexpected frame error: %v", err)
	}
	if _, _, err := UnframeData(frame, types.DataType(99)); err == nil {
		t.Fatalf("expected an error decoding with an unknown data type")
	}
}
