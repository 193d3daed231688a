package core

import (
	"sync"

	"github.com/starknet-p2p/p2p-sync/pkg/p2psync/types"
)

// OutboundSession tracks which protocol an outbound session is carrying and
// where decoded responses are forwarded. Destroyed on Fin or session-closed.
type OutboundSession struct {
	Protocol types.Protocol
	DataType types.DataType
	Sink     chan<- types.Data
}

// InboundSession tracks which DB query an inbound session is streaming
// results from. Destroyed once the DB stream terminates, Fin is flushed and
// the session is closed.
type InboundSession struct {
	QueryID  types.QueryID
	DataType types.DataType
}

// Sessions is the network manager's session bookkeeping, guarded by a
// mutex because it is touched both by the manager's loop goroutine and by
// each inbound session's frame-pump goroutine, which drops its own inbound
// entry when it finishes. Grounded on core/peer.go's
// `observers map[types.UID]observer` idiom: an id keyed onto the pending
// continuation for that in-flight exchange.
type Sessions struct {
	mutex    sync.Mutex
	outbound map[types.OutboundSessionID]OutboundSession
	inbound  map[types.InboundSessionID]InboundSession
}

// NewSessions returns empty session tables.
func NewSessions() *Sessions {
	return &Sessions{
		outbound: make(map[types.OutboundSessionID]OutboundSession),
		inbound:  make(map[types.InboundSessionID]InboundSession),
	}
}

func (s *Sessions) PutOutbound(id types.OutboundSessionID, session OutboundSession) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.outbound[id] = session
}

func (s *Sessions) GetOutbound(id types.OutboundSessionID) (OutboundSession, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	session, ok := s.outbound[id]
	return session, ok
}

func (s *Sessions) DeleteOutbound(id types.OutboundSessionID) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	delete(s.outbound, id)
}

func (s *Sessions) PutInbound(id types.InboundSessionID, session InboundSession) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.inbound[id] = session
}

func (s *Sessions) GetInbound(id types.InboundSessionID) (InboundSession, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	session, ok := s.inbound[id]
	return session, ok
}

func (s *Sessions) DeleteInbound(id types.InboundSessionID) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	delete(s.inbound, id)
}

// SessionSnapshot is a point-in-time copy of both session tables, used by
// shutdown to enumerate every session without holding the lock while
// notifying the swarm or closing sinks.
type SessionSnapshot struct {
	Inbound  map[types.InboundSessionID]InboundSession
	Outbound map[types.OutboundSessionID]OutboundSession
}

// Snapshot returns a copy of both session tables.
func (s *Sessions) Snapshot() SessionSnapshot {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	inbound := make(map[types.InboundSessionID]InboundSession, len(s.inbound))
	for k, v := range s.inbound {
		inbound[k] = v
	}
	outbound := make(map[types.OutboundSessionID]OutboundSession, len(s.outbound))
	for k, v := range s.outbound {
		outbound[k] = v
	}
	return SessionSnapshot{Inbound: inbound, Outbound: outbound}
}
