// Package core holds the network manager's swarm contract, peer manager and
// session bookkeeping -- the pieces the event loop in pkg/p2psync composes.
package core

import (
	"github.com/multiformats/go-multiaddr"

	"github.com/starknet-p2p/p2p-sync/pkg/p2psync/types"
)

// EventKind enumerates the swarm events the network manager's loop selects
// over. An explicit enum is used instead of per-event interface dispatch, so
// the loop can switch on a plain tag rather than pay for virtual dispatch.
type EventKind int

const (
	ConnectionEstablished EventKind = iota
	NewInboundSession
	ReceivedData
	SessionClosed
)

// Event is the single concrete type carrying any of the four swarm events.
// Only the fields relevant to Kind are populated.
type Event struct {
	Kind EventKind

	// ConnectionEstablished
	PeerID       types.PeerID
	ConnectionID types.ConnectionID

	// NewInboundSession
	InboundSessionID types.InboundSessionID
	QueryBytes       []byte
	Protocol         types.Protocol

	// ReceivedData carries OutboundSessionID. SessionClosed may refer to
	// either an outbound or an inbound session: the closed session's id is
	// set in OutboundSessionID or in InboundSessionID, and the manager drops
	// whichever mapping that id names.
	OutboundSessionID types.OutboundSessionID
	Data              []byte
}

// Swarm is the libp2p-shaped transport contract: it emits Events and accepts
// the four commands below, split to mirror the distinct outbound-query vs
// inbound-response directions a sync protocol needs.
type Swarm interface {
	// Dial asks the swarm to establish a connection to addr. Asynchronous:
	// success surfaces later as a ConnectionEstablished event.
	Dial(addr multiaddr.Multiaddr) error

	// SendQuery opens a new outbound session carrying payload to peer over
	// protocol, returning the session id responses will arrive tagged with.
	// Returns types.ErrPeerNotConnected if the swarm has no connection to
	// peer yet.
	SendQuery(payload []byte, peer types.PeerID, protocol types.Protocol) (types.OutboundSessionID, error)

	// SendFrame writes payload on an existing inbound session.
	// Returns types.ErrSessionIdNotFound if the session is unknown.
	SendFrame(session types.InboundSessionID, payload []byte) error

	// CloseInbound tells the swarm to close an inbound session.
	// Returns types.ErrSessionIdNotFound if the session is unknown.
	CloseInbound(session types.InboundSessionID) error

	// Events is the single FIFO stream of swarm events the manager's loop
	// selects on.
	Events() <-chan Event

	// Close tears down the swarm; Events() closes once draining finishes.
	Close()
}
