package types

import "sync/atomic"

// BlockNumber is a monotonic 64-bit block index.
type BlockNumber uint64

// InboundSessionID, OutboundSessionID and QueryID are opaque, monotonically
// increasing counters, unique within a process lifetime. Each kind has its
// own generator so the three spaces never collide.
type InboundSessionID uint64
type OutboundSessionID uint64
type QueryID uint64

type idGenerator struct {
	counter uint64
}

func (g *idGenerator) next() uint64 {
	return atomic.AddUint64(&g.counter, 1)
}

var (
	inboundSessionGen  idGenerator
	outboundSessionGen idGenerator
	queryGen           idGenerator
)

// NewInboundSessionID returns the next unique inbound session identifier.
func NewInboundSessionID() InboundSessionID {
	return InboundSessionID(inboundSessionGen.next())
}

// NewOutboundSessionID returns the next unique outbound session identifier.
func NewOutboundSessionID() OutboundSessionID {
	return OutboundSessionID(outboundSessionGen.next())
}

// NewQueryID returns the next unique query identifier.
func NewQueryID() QueryID {
	return QueryID(queryGen.next())
}
