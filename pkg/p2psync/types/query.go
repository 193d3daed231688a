package types

// Direction a header/state-diff window walks in.
type Direction uint8

const (
	Forward Direction = iota
	Backward
)

func (d Direction) String() string {
	if d == Backward {
		return "backward"
	}
	return "forward"
}

// DataType labels the kind of data a query/session carries. Extensible:
// new data types get a new Protocol and a new branch in the wire codec.
type DataType uint8

const (
	SignedBlockHeader DataType = iota
	StateDiff
)

func (d DataType) String() string {
	switch d {
	case SignedBlockHeader:
		return "signed_block_header"
	case StateDiff:
		return "state_diff"
	default:
		return "unknown_data_type"
	}
}

// Protocol is one-to-one with DataType; it labels the wire channel a query
// travels over.
type Protocol string

// ProtocolFor returns the canonical protocol label for a data type.
func ProtocolFor(dt DataType) Protocol {
	switch dt {
	case SignedBlockHeader:
		return "/starknet/headers/1"
	case StateDiff:
		return "/starknet/state_diffs/1"
	default:
		return ""
	}
}

// DataTypeForProtocol is the inverse of ProtocolFor.
func DataTypeForProtocol(p Protocol) (DataType, bool) {
	switch p {
	case ProtocolFor(SignedBlockHeader):
		return SignedBlockHeader, true
	case ProtocolFor(StateDiff):
		return StateDiff, true
	default:
		return 0, false
	}
}

// StartBlock is either a block hash or a block number, never both.
type StartBlock struct {
	Number BlockNumber
	Hash   []byte
	ByHash bool
}

// StartBlockNumber builds a StartBlock addressed by number.
func StartBlockNumber(n BlockNumber) StartBlock {
	return StartBlock{Number: n}
}

// StartBlockHash builds a StartBlock addressed by hash.
func StartBlockHash(hash []byte) StartBlock {
	return StartBlock{Hash: hash, ByHash: true}
}

// InternalQuery is the normalized request the network manager issues to the
// swarm, regardless of which public Query shape produced it.
type InternalQuery struct {
	Start     StartBlock
	Direction Direction
	Limit     uint64
	Step      uint64
}

// Query is the subscriber-facing request shape accepted on a QuerySender.
type Query struct {
	StartBlock StartBlock
	Direction  Direction
	Limit      uint64
	Step       uint64
	DataType   DataType
}

// ToInternalQuery normalizes a subscriber Query into the wire-level shape.
func (q Query) ToInternalQuery() InternalQuery {
	return InternalQuery{
		Start:     q.StartBlock,
		Direction: q.Direction,
		Limit:     q.Limit,
		Step:      q.Step,
	}
}
