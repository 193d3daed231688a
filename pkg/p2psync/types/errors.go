package types

import (
	"errors"
	"fmt"
)

// Peer management errors.
var (
	ErrNoSuchPeer    = errors.New("no such peer")
	ErrNoSuchQuery   = errors.New("no such query")
	ErrPeerIsBlocked = errors.New("peer is blocked")
)

// Swarm contract-violation errors.
var (
	ErrPeerNotConnected  = errors.New("peer not connected")
	ErrSessionIdNotFound = errors.New("session id not found")
)

// Wire decoding errors.
var (
	ErrDecode = errors.New("failed decoding wire bytes")
)

// State-diff engine protocol-violation errors.
var (
	ErrEmptyStateDiffPart        = errors.New("empty state diff part")
	ErrConflictingStateDiffParts = errors.New("conflicting state diff parts")
)

// SendError reports that a DB sink closed before the DB finished writing.
type SendError struct {
	QueryID   QueryID
	SendError error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send error for query %d: %v", e.QueryID, e.SendError)
}

func (e *SendError) Unwrap() error {
	return e.SendError
}

// WrongStateDiffLength reports that the sum of received part lengths never
// matched (or overshot) the header's declared length for a block.
type WrongStateDiffLength struct {
	Expected        uint64
	PossibleLengths []uint64
}

func (e *WrongStateDiffLength) Error() string {
	return fmt.Sprintf("wrong state diff length: expected %d, reached %v", e.Expected, e.PossibleLengths)
}

// P2PSyncError wraps any engine-level failure surfaced from Engine.Run.
type P2PSyncError struct {
	Block BlockNumber
	Cause error
}

func (e *P2PSyncError) Error() string {
	return fmt.Sprintf("p2p sync failed at block %d: %v", e.Block, e.Cause)
}

func (e *P2PSyncError) Unwrap() error {
	return e.Cause
}
