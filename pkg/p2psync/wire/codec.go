// Package wire implements the on-the-wire protobuf shapes for query and
// response payloads, hand-coded against protowire's low-level tag/varint/
// length-delimited primitives instead of protoc-generated bindings.
package wire

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/starknet-p2p/p2p-sync/pkg/p2psync/types"
)

// Field numbers for the Iteration message embedded in every query.
const (
	fieldIterStartNumber protowire.Number = 1
	fieldIterStartHash   protowire.Number = 2
	fieldIterDirection   protowire.Number = 3
	fieldIterLimit       protowire.Number = 4
	fieldIterStep        protowire.Number = 5
)

// EncodeQuery encodes an InternalQuery as the Iteration message. Queries are
// sent non-length-delimited: this is the full payload handed to
// Swarm.SendQuery, with no outer length prefix.
func EncodeQuery(q types.InternalQuery) []byte {
	var b []byte
	if q.Start.ByHash {
		b = protowire.AppendTag(b, fieldIterStartHash, protowire.BytesType)
		b = protowire.AppendBytes(b, q.Start.Hash)
	} else {
		b = protowire.AppendTag(b, fieldIterStartNumber, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(q.Start.Number))
	}
	b = protowire.AppendTag(b, fieldIterDirection, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(q.Direction))
	b = protowire.AppendTag(b, fieldIterLimit, protowire.VarintType)
	b = protowire.AppendVarint(b, q.Limit)
	b = protowire.AppendTag(b, fieldIterStep, protowire.VarintType)
	b = protowire.AppendVarint(b, q.Step)
	return b
}

// DecodeQuery parses a non-length-delimited Iteration message back into an
// InternalQuery.
func DecodeQuery(b []byte) (types.InternalQuery, error) {
	var q types.InternalQuery
	var sawStart bool
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return q, fmt.Errorf("%w: bad tag", types.ErrDecode)
		}
		b = b[n:]
		switch num {
		case fieldIterStartNumber:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return q, fmt.Errorf("%w: bad start number", types.ErrDecode)
			}
			q.Start = types.StartBlockNumber(types.BlockNumber(v))
			b = b[n:]
			sawStart = true
		case fieldIterStartHash:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return q, fmt.Errorf("%w: bad start hash", types.ErrDecode)
			}
			q.Start = types.StartBlockHash(append([]byte(nil), v...))
			b = b[n:]
			sawStart = true
		case fieldIterDirection:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return q, fmt.Errorf("%w: bad direction", types.ErrDecode)
			}
			q.Direction = types.Direction(v)
			b = b[n:]
		case fieldIterLimit:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return q, fmt.Errorf("%w: bad limit", types.ErrDecode)
			}
			q.Limit = v
			b = b[n:]
		case fieldIterStep:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return q, fmt.Errorf("%w: bad step", types.ErrDecode)
			}
			q.Step = v
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return q, fmt.Errorf("%w: unknown field", types.ErrDecode)
			}
			b = b[n:]
		}
	}
	if !sawStart {
		return q, fmt.Errorf("%w: missing start block", types.ErrDecode)
	}
	return q, nil
}

// Field numbers for BlockHeader.
const (
	fieldHeaderNumber          protowire.Number = 1
	fieldHeaderHash            protowire.Number = 2
	fieldHeaderParentHash      protowire.Number = 3
	fieldHeaderStateDiffLength protowire.Number = 4
)

func encodeBlockHeader(h types.BlockHeader) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldHeaderNumber, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(h.Number))
	if len(h.Hash) > 0 {
		b = protowire.AppendTag(b, fieldHeaderHash, protowire.BytesType)
		b = protowire.AppendBytes(b, h.Hash)
	}
	if len(h.ParentHash) > 0 {
		b = protowire.AppendTag(b, fieldHeaderParentHash, protowire.BytesType)
		b = protowire.AppendBytes(b, h.ParentHash)
	}
	b = protowire.AppendTag(b, fieldHeaderStateDiffLength, protowire.VarintType)
	b = protowire.AppendVarint(b, h.StateDiffLength)
	return b
}

func decodeBlockHeader(b []byte) (types.BlockHeader, error) {
	var h types.BlockHeader
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return h, fmt.Errorf("%w: bad header tag", types.ErrDecode)
		}
		b = b[n:]
		switch num {
		case fieldHeaderNumber:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return h, fmt.Errorf("%w: bad header number", types.ErrDecode)
			}
			h.Number = types.BlockNumber(v)
			b = b[n:]
		case fieldHeaderHash:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return h, fmt.Errorf("%w: bad header hash", types.ErrDecode)
			}
			h.Hash = append([]byte(nil), v...)
			b = b[n:]
		case fieldHeaderParentHash:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return h, fmt.Errorf("%w: bad parent hash", types.ErrDecode)
			}
			h.ParentHash = append([]byte(nil), v...)
			b = b[n:]
		case fieldHeaderStateDiffLength:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return h, fmt.Errorf("%w: bad state diff length", types.ErrDecode)
			}
			h.StateDiffLength = v
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return h, fmt.Errorf("%w: unknown header field", types.ErrDecode)
			}
			b = b[n:]
		}
	}
	return h, nil
}

// Field numbers for the headers-protocol Data union.
const (
	fieldDataHeader protowire.Number = 1
	fieldDataFin    protowire.Number = 2
)

// Field numbers within BlockHeaderAndSignature.
const (
	fieldHASHeader     protowire.Number = 1
	fieldHASSignatures protowire.Number = 2
)

// Field numbers within Fin.
const fieldFinDataType protowire.Number = 1

func encodeFin(f types.Fin) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldFinDataType, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(f.DataType))
	return b
}

func decodeFin(b []byte) (types.Fin, error) {
	var f types.Fin
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return f, fmt.Errorf("%w: bad fin tag", types.ErrDecode)
		}
		b = b[n:]
		if num == fieldFinDataType {
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return f, fmt.Errorf("%w: bad fin data type", types.ErrDecode)
			}
			f.DataType = types.DataType(v)
			b = b[n:]
			continue
		}
		n = protowire.ConsumeFieldValue(num, typ, b)
		if n < 0 {
			return f, fmt.Errorf("%w: unknown fin field", types.ErrDecode)
		}
		b = b[n:]
	}
	return f, nil
}

// EncodeHeaderData encodes a Data item from the signed-header protocol.
func EncodeHeaderData(d types.Data) ([]byte, error) {
	var b []byte
	switch {
	case d.Header != nil:
		var inner []byte
		inner = protowire.AppendTag(inner, fieldHASHeader, protowire.BytesType)
		inner = protowire.AppendBytes(inner, encodeBlockHeader(d.Header.Header))
		for _, sig := range d.Header.Signatures {
			inner = protowire.AppendTag(inner, fieldHASSignatures, protowire.BytesType)
			inner = protowire.AppendBytes(inner, sig)
		}
		b = protowire.AppendTag(b, fieldDataHeader, protowire.BytesType)
		b = protowire.AppendBytes(b, inner)
	case d.Fin != nil:
		b = protowire.AppendTag(b, fieldDataFin, protowire.BytesType)
		b = protowire.AppendBytes(b, encodeFin(*d.Fin))
	default:
		return nil, fmt.Errorf("%w: empty header data item", types.ErrDecode)
	}
	return b, nil
}

// DecodeHeaderData parses a Data item from the signed-header protocol.
func DecodeHeaderData(b []byte) (types.Data, error) {
	var d types.Data
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return d, fmt.Errorf("%w: bad data tag", types.ErrDecode)
		}
		b = b[n:]
		switch num {
		case fieldDataHeader:
			inner, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return d, fmt.Errorf("%w: bad header entry", types.ErrDecode)
			}
			b = b[n:]
			has, err := decodeHeaderAndSignature(inner)
			if err != nil {
				return d, err
			}
			d.Header = &has
		case fieldDataFin:
			inner, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return d, fmt.Errorf("%w: bad fin entry", types.ErrDecode)
			}
			b = b[n:]
			f, err := decodeFin(inner)
			if err != nil {
				return d, err
			}
			d.Fin = &f
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return d, fmt.Errorf("%w: unknown data field", types.ErrDecode)
			}
			b = b[n:]
		}
	}
	return d, nil
}

func decodeHeaderAndSignature(b []byte) (types.BlockHeaderAndSignature, error) {
	var out types.BlockHeaderAndSignature
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return out, fmt.Errorf("%w: bad header-and-sig tag", types.ErrDecode)
		}
		b = b[n:]
		switch num {
		case fieldHASHeader:
			inner, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return out, fmt.Errorf("%w: bad embedded header", types.ErrDecode)
			}
			b = b[n:]
			h, err := decodeBlockHeader(inner)
			if err != nil {
				return out, err
			}
			out.Header = h
		case fieldHASSignatures:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return out, fmt.Errorf("%w: bad signature", types.ErrDecode)
			}
			out.Signatures = append(out.Signatures, append([]byte(nil), v...))
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return out, fmt.Errorf("%w: unknown field", types.ErrDecode)
			}
			b = b[n:]
		}
	}
	return out, nil
}
