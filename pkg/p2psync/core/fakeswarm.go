package core

import (
	"sync"

	"github.com/multiformats/go-multiaddr"

	"github.com/starknet-p2p/p2p-sync/pkg/p2psync/types"
)

// SentQuery records a single SendQuery call observed by FakeSwarm.
type SentQuery struct {
	SessionID types.OutboundSessionID
	Payload   []byte
	Peer      types.PeerID
	Protocol  types.Protocol
}

// SentFrame records a single SendFrame call observed by FakeSwarm.
type SentFrame struct {
	Session types.InboundSessionID
	Payload []byte
}

// FakeSwarm is an in-memory Swarm test double: no real network I/O, every
// command is recorded and every event is injected directly by the test via
// Emit.
type FakeSwarm struct {
	mu sync.Mutex

	events chan Event
	closed bool

	connected map[types.PeerID]bool
	dialed    []multiaddr.Multiaddr

	sentQueries   []SentQuery
	sentFrames    []SentFrame
	closedInbound []types.InboundSessionID
}

// NewFakeSwarm returns an empty FakeSwarm with no connected peers.
func NewFakeSwarm() *FakeSwarm {
	return &FakeSwarm{
		events:    make(chan Event, 4096),
		connected: make(map[types.PeerID]bool),
	}
}

// Connect marks peer as already connected, as if a prior Dial succeeded.
func (f *FakeSwarm) Connect(peer types.PeerID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected[peer] = true
}

func (f *FakeSwarm) Dial(addr multiaddr.Multiaddr) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dialed = append(f.dialed, addr)
	return nil
}

func (f *FakeSwarm) SendQuery(payload []byte, peer types.PeerID, protocol types.Protocol) (types.OutboundSessionID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected[peer] {
		return 0, types.ErrPeerNotConnected
	}
	id := types.NewOutboundSessionID()
	f.sentQueries = append(f.sentQueries, SentQuery{SessionID: id, Payload: payload, Peer: peer, Protocol: protocol})
	return id, nil
}

func (f *FakeSwarm) SendFrame(session types.InboundSessionID, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sentFrames = append(f.sentFrames, SentFrame{Session: session, Payload: payload})
	return nil
}

func (f *FakeSwarm) CloseInbound(session types.InboundSessionID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closedInbound = append(f.closedInbound, session)
	return nil
}

func (f *FakeSwarm) Events() <-chan Event {
	return f.events
}

func (f *FakeSwarm) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.events)
	}
}

// Emit injects a swarm event as if it had arrived from the real transport.
// No-op once Close has been called.
func (f *FakeSwarm) Emit(e Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.events <- e
}

// SentQueries returns a snapshot of every SendQuery call observed so far.
func (f *FakeSwarm) SentQueries() []SentQuery {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]SentQuery, len(f.sentQueries))
	copy(out, f.sentQueries)
	return out
}

// SentFrames returns a snapshot of every SendFrame call observed so far.
func (f *FakeSwarm) SentFrames() []SentFrame {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]SentFrame, len(f.sentFrames))
	copy(out, f.sentFrames)
	return out
}

// ClosedInbound returns a snapshot of every CloseInbound call observed so
// far.
func (f *FakeSwarm) ClosedInbound() []types.InboundSessionID {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]types.InboundSessionID, len(f.closedInbound))
	copy(out, f.closedInbound)
	return out
}

// Dialed returns a snapshot of every address Dial was called with.
func (f *FakeSwarm) Dialed() []multiaddr.Multiaddr {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]multiaddr.Multiaddr, len(f.dialed))
	copy(out, f.dialed)
	return out
}
