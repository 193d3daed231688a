package wire

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/starknet-p2p/p2p-sync/pkg/p2psync/types"
)

// Field numbers for ThinStateDiff and its nested messages.
const (
	fieldDiffDeployedContracts         protowire.Number = 1
	fieldDiffStorageDiffs              protowire.Number = 2
	fieldDiffDeclaredClasses           protowire.Number = 3
	fieldDiffDeprecatedDeclaredClasses protowire.Number = 4
	fieldDiffNonces                    protowire.Number = 5
	fieldDiffReplacedClasses           protowire.Number = 6

	fieldDeployedAddress   protowire.Number = 1
	fieldDeployedClassHash protowire.Number = 2

	fieldDeclaredClassHash         protowire.Number = 1
	fieldDeclaredCompiledClassHash protowire.Number = 2

	fieldReplacedAddress   protowire.Number = 1
	fieldReplacedClassHash protowire.Number = 2

	fieldStorageDiffAddress protowire.Number = 1
	fieldStorageDiffEntry   protowire.Number = 2
	fieldStorageEntryKey    protowire.Number = 1
	fieldStorageEntryValue  protowire.Number = 2

	fieldNonceAddress protowire.Number = 1
	fieldNonceValue   protowire.Number = 2
)

func encodeThinStateDiff(d types.ThinStateDiff) []byte {
	var b []byte
	for _, dc := range d.DeployedContracts {
		var inner []byte
		inner = protowire.AppendTag(inner, fieldDeployedAddress, protowire.BytesType)
		inner = protowire.AppendBytes(inner, []byte(dc.Address))
		inner = protowire.AppendTag(inner, fieldDeployedClassHash, protowire.BytesType)
		inner = protowire.AppendBytes(inner, []byte(dc.ClassHash))
		b = protowire.AppendTag(b, fieldDiffDeployedContracts, protowire.BytesType)
		b = protowire.AppendBytes(b, inner)
	}
	for contract, entries := range d.StorageDiffs {
		var inner []byte
		inner = protowire.AppendTag(inner, fieldStorageDiffAddress, protowire.BytesType)
		inner = protowire.AppendBytes(inner, []byte(contract))
		for key, value := range entries {
			var e []byte
			e = protowire.AppendTag(e, fieldStorageEntryKey, protowire.BytesType)
			e = protowire.AppendBytes(e, []byte(key))
			e = protowire.AppendTag(e, fieldStorageEntryValue, protowire.BytesType)
			e = protowire.AppendBytes(e, value)
			inner = protowire.AppendTag(inner, fieldStorageDiffEntry, protowire.BytesType)
			inner = protowire.AppendBytes(inner, e)
		}
		b = protowire.AppendTag(b, fieldDiffStorageDiffs, protowire.BytesType)
		b = protowire.AppendBytes(b, inner)
	}
	for _, dc := range d.DeclaredClasses {
		var inner []byte
		inner = protowire.AppendTag(inner, fieldDeclaredClassHash, protowire.BytesType)
		inner = protowire.AppendBytes(inner, []byte(dc.ClassHash))
		inner = protowire.AppendTag(inner, fieldDeclaredCompiledClassHash, protowire.BytesType)
		inner = protowire.AppendBytes(inner, []byte(dc.CompiledClassHash))
		b = protowire.AppendTag(b, fieldDiffDeclaredClasses, protowire.BytesType)
		b = protowire.AppendBytes(b, inner)
	}
	for _, classHash := range d.DeprecatedDeclaredClasses {
		b = protowire.AppendTag(b, fieldDiffDeprecatedDeclaredClasses, protowire.BytesType)
		b = protowire.AppendBytes(b, []byte(classHash))
	}
	for address, nonce := range d.Nonces {
		var inner []byte
		inner = protowire.AppendTag(inner, fieldNonceAddress, protowire.BytesType)
		inner = protowire.AppendBytes(inner, []byte(address))
		inner = protowire.AppendTag(inner, fieldNonceValue, protowire.BytesType)
		inner = protowire.AppendBytes(inner, []byte(nonce))
		b = protowire.AppendTag(b, fieldDiffNonces, protowire.BytesType)
		b = protowire.AppendBytes(b, inner)
	}
	for _, rc := range d.ReplacedClasses {
		var inner []byte
		inner = protowire.AppendTag(inner, fieldReplacedAddress, protowire.BytesType)
		inner = protowire.AppendBytes(inner, []byte(rc.Address))
		inner = protowire.AppendTag(inner, fieldReplacedClassHash, protowire.BytesType)
		inner = protowire.AppendBytes(inner, []byte(rc.ClassHash))
		b = protowire.AppendTag(b, fieldDiffReplacedClasses, protowire.BytesType)
		b = protowire.AppendBytes(b, inner)
	}
	return b
}

func decodeThinStateDiff(b []byte) (types.ThinStateDiff, error) {
	var d types.ThinStateDiff
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return d, fmt.Errorf("%w: bad diff tag", types.ErrDecode)
		}
		b = b[n:]
		switch num {
		case fieldDiffDeployedContracts:
			inner, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return d, fmt.Errorf("%w: bad deployed contract", types.ErrDecode)
			}
			b = b[n:]
			dc, err := decodeDeployedContract(inner)
			if err != nil {
				return d, err
			}
			d.DeployedContracts = append(d.DeployedContracts, dc)
		case fieldDiffStorageDiffs:
			inner, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return d, fmt.Errorf("%w: bad storage diff", types.ErrDecode)
			}
			b = b[n:]
			addr, entries, err := decodeStorageDiffEntry(inner)
			if err != nil {
				return d, err
			}
			if d.StorageDiffs == nil {
				d.StorageDiffs = make(types.StorageDiff)
			}
			existing, ok := d.StorageDiffs[addr]
			if !ok {
				existing = make(map[string][]byte)
			}
			for k, v := range entries {
				existing[k] = v
			}
			d.StorageDiffs[addr] = existing
		case fieldDiffDeclaredClasses:
			inner, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return d, fmt.Errorf("%w: bad declared class", types.ErrDecode)
			}
			b = b[n:]
			dc, err := decodeDeclaredClass(inner)
			if err != nil {
				return d, err
			}
			d.DeclaredClasses = append(d.DeclaredClasses, dc)
		case fieldDiffDeprecatedDeclaredClasses:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return d, fmt.Errorf("%w: bad deprecated declared class", types.ErrDecode)
			}
			b = b[n:]
			d.DeprecatedDeclaredClasses = append(d.DeprecatedDeclaredClasses, string(v))
		case fieldDiffNonces:
			inner, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return d, fmt.Errorf("%w: bad nonce entry", types.ErrDecode)
			}
			b = b[n:]
			addr, nonce, err := decodeNonceEntry(inner)
			if err != nil {
				return d, err
			}
			if d.Nonces == nil {
				d.Nonces = make(map[string]string)
			}
			d.Nonces[addr] = nonce
		case fieldDiffReplacedClasses:
			inner, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return d, fmt.Errorf("%w: bad replaced class", types.ErrDecode)
			}
			b = b[n:]
			rc, err := decodeReplacedClass(inner)
			if err != nil {
				return d, err
			}
			d.ReplacedClasses = append(d.ReplacedClasses, rc)
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return d, fmt.Errorf("%w: unknown diff field", types.ErrDecode)
			}
			b = b[n:]
		}
	}
	return d, nil
}

func decodeDeployedContract(b []byte) (types.DeployedContract, error) {
	var out types.DeployedContract
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return out, fmt.Errorf("%w: bad deployed contract tag", types.ErrDecode)
		}
		b = b[n:]
		switch num {
		case fieldDeployedAddress:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return out, fmt.Errorf("%w: bad address", types.ErrDecode)
			}
			out.Address = string(v)
			b = b[n:]
		case fieldDeployedClassHash:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return out, fmt.Errorf("%w: bad class hash", types.ErrDecode)
			}
			out.ClassHash = string(v)
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

func decodeDeclaredClass(b []byte) (types.DeclaredClass, error) {
	var out types.DeclaredClass
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return out, fmt.Errorf("%w: bad declared class tag", types.ErrDecode)
		}
		b = b[n:]
		switch num {
		case fieldDeclaredClassHash:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return out, fmt.Errorf("%w: bad class hash", types.ErrDecode)
			}
			out.ClassHash = string(v)
			b = b[n:]
		case fieldDeclaredCompiledClassHash:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return out, fmt.Errorf("%w: bad compiled class hash", types.ErrDecode)
			}
			out.CompiledClassHash = string(v)
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

func decodeReplacedClass(b []byte) (types.ReplacedClass, error) {
	var out types.ReplacedClass
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return out, fmt.Errorf("%w: bad replaced class tag", types.ErrDecode)
		}
		b = b[n:]
		switch num {
		case fieldReplacedAddress:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return out, fmt.Errorf("%w: bad address", types.ErrDecode)
			}
			out.Address = string(v)
			b = b[n:]
		case fieldReplacedClassHash:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return out, fmt.Errorf("%w: bad class hash", types.ErrDecode)
			}
			out.ClassHash = string(v)
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

func decodeStorageDiffEntry(b []byte) (string, map[string][]byte, error) {
	var address string
	entries := make(map[string][]byte)
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return "", nil, fmt.Errorf("%w: bad storage diff tag", types.ErrDecode)
		}
		b = b[n:]
		switch num {
		case fieldStorageDiffAddress:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return "", nil, fmt.Errorf("%w: bad storage diff address", types.ErrDecode)
			}
			address = string(v)
			b = b[n:]
		case fieldStorageDiffEntry:
			inner, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return "", nil, fmt.Errorf("%w: bad storage entry", types.ErrDecode)
			}
			b = b[n:]
			key, value, err := decodeStorageEntry(inner)
			if err != nil {
				return "", nil, err
			}
			entries[key] = value
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return "", nil, fmt.Errorf("%w: unknown field", types.ErrDecode)
			}
			b = b[n:]
		}
	}
	return address, entries, nil
}

func decodeStorageEntry(b []byte) (string, []byte, error) {
	var key string
	var value []byte
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return "", nil, fmt.Errorf("%w: bad storage entry tag", types.ErrDecode)
		}
		b = b[n:]
		switch num {
		case fieldStorageEntryKey:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return "", nil, fmt.Errorf("%w: bad storage entry key", types.ErrDecode)
			}
			key = string(v)
			b = b[n:]
		case fieldStorageEntryValue:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return "", nil, fmt.Errorf("%w: bad storage entry value", types.ErrDecode)
			}
			value = append([]byte(nil), v...)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return "", nil, fmt.Errorf("%w: unknown field", types.ErrDecode)
			}
			b = b[n:]
		}
	}
	return key, value, nil
}

func decodeNonceEntry(b []byte) (string, string, error) {
	var address, nonce string
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return "", "", fmt.Errorf("%w: bad nonce entry tag", types.ErrDecode)
		}
		b = b[n:]
		switch num {
		case fieldNonceAddress:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return "", "", fmt.Errorf("%w: bad nonce address", types.ErrDecode)
			}
			address = string(v)
			b = b[n:]
		case fieldNonceValue:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return "", "", fmt.Errorf("%w: bad nonce value", types.ErrDecode)
			}
			nonce = string(v)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return "", "", fmt.Errorf("%w: unknown field", types.ErrDecode)
			}
			b = b[n:]
		}
	}
	return address, nonce, nil
}

// Field numbers for the state-diff-protocol Data union.
const (
	fieldDataChunk protowire.Number = 1
	fieldDataFin2  protowire.Number = 2

	fieldChunkPart protowire.Number = 1
)

// EncodeStateDiffData encodes a Data item from the state-diff protocol.
func EncodeStateDiffData(d types.Data) ([]byte, error) {
	var b []byte
	switch {
	case d.Diff != nil:
		var inner []byte
		inner = protowire.AppendTag(inner, fieldChunkPart, protowire.BytesType)
		inner = protowire.AppendBytes(inner, encodeThinStateDiff(d.Diff.Part))
		b = protowire.AppendTag(b, fieldDataChunk, protowire.BytesType)
		b = protowire.AppendBytes(b, inner)
	case d.Fin != nil:
		b = protowire.AppendTag(b, fieldDataFin2, protowire.BytesType)
		b = protowire.AppendBytes(b, encodeFin(*d.Fin))
	default:
		return nil, fmt.Errorf("%w: empty state diff data item", types.ErrDecode)
	}
	return b, nil
}

// DecodeStateDiffData parses a Data item from the state-diff protocol.
func DecodeStateDiffData(b []byte) (types.Data, error) {
	var d types.Data
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return d, fmt.Errorf("%w: bad data tag", types.ErrDecode)
		}
		b = b[n:]
		switch num {
		case fieldDataChunk:
			inner, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return d, fmt.Errorf("%w: bad chunk entry", types.ErrDecode)
			}
			b = b[n:]
			part, err := decodeChunk(inner)
			if err != nil {
				return d, err
			}
			d.Diff = &types.StateDiffChunk{Part: part}
		case fieldDataFin2:
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

func decodeChunk(b []byte) (types.ThinStateDiff, error) {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return types.ThinStateDiff{}, fmt.Errorf("%w: bad chunk tag", types.ErrDecode)
		}
		b = b[n:]
		if num == fieldChunkPart {
			inner, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return types.ThinStateDiff{}, fmt.Errorf("%w: bad embedded part", types.ErrDecode)
			}
			b = b[n:]
			return decodeThinStateDiff(inner)
		}
		n = protowire.ConsumeFieldValue(num, typ, b)
		if n < 0 {
			return types.ThinStateDiff{}, fmt.Errorf("%w: unknown field", types.ErrDecode)
		}
		b = b[n:]
	}
	return types.ThinStateDiff{}, nil
}

// EncodeData dispatches to the right protocol's Data encoder.
func EncodeData(d types.Data, dt types.DataType) ([]byte, error) {
	switch dt {
	case types.SignedBlockHeader:
		return EncodeHeaderData(d)
	case types.StateDiff:
		return EncodeStateDiffData(d)
	default:
		return nil, fmt.Errorf("%w: unknown data type %v", types.ErrDecode, dt)
	}
}

// DecodeData dispatches to the right protocol's Data decoder.
func DecodeData(b []byte, dt types.DataType) (types.Data, error) {
	switch dt {
	case types.SignedBlockHeader:
		return DecodeHeaderData(b)
	case types.StateDiff:
		return DecodeStateDiffData(b)
	default:
		return types.Data{}, fmt.Errorf("%w: unknown data type %v", types.ErrDecode, dt)
	}
}
