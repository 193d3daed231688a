package types

import (
	"github.com/libp2p/go-libp2p/core/peer"
)

// PeerID identifies a remote peer. Reused directly from libp2p's own
// identity type rather than re-wrapping it in an opaque string.
type PeerID = peer.ID

// ConnectionID identifies a live swarm connection to a peer. Empty iff the
// swarm currently has no open connection to that peer.
type ConnectionID string

// ReputationReason is a semantic tag passed to ReportPeer/ReportQuery; the
// peer manager doesn't interpret it: every report blocks the peer for the
// blacklist timeout whatever the reason, and the reason is only logged.
type ReputationReason string

const (
	ReasonMalformedResponse ReputationReason = "malformed_response"
	ReasonTimeout           ReputationReason = "timeout"
	ReasonProtocolViolation ReputationReason = "protocol_violation"
)
