package core

import (
	"sync"
	"time"

	"github.com/multiformats/go-multiaddr"
	"github.com/sirupsen/logrus"

	"github.com/starknet-p2p/p2p-sync/pkg/p2psync/types"
)

// PeerRecord is everything the peer manager knows about one remote peer.
// ConnectionID is non-empty iff the swarm has an open connection;
// BlockedUntil is in the future iff the peer is currently blocked.
type PeerRecord struct {
	PeerID       types.PeerID
	Multiaddr    multiaddr.Multiaddr
	ConnectionID types.ConnectionID
	BlockedUntil time.Time
}

func (p *PeerRecord) blocked(now time.Time) bool {
	return p.BlockedUntil.After(now)
}

// Assignment notifies the network manager that queryID has been handed to
// peerID and is ready to be sent (either immediately, if already connected,
// or once the pending dial completes).
type Assignment struct {
	QueryID types.QueryID
	PeerID  types.PeerID
}

// PeerManager tracks peers and their connectivity, assigns queries to peers
// fairly and applies reputation updates: a mutex-guarded map plus a small
// bookkeeping side-table (the pending-dial queue keyed by peer, and the
// query-to-peer assignment map).
type PeerManager struct {
	mutex sync.Mutex

	order []types.PeerID
	peers map[types.PeerID]*PeerRecord

	lastPeerIndex int

	queryAssignments map[types.QueryID]types.PeerID
	pendingDial      map[types.PeerID][]Assignment

	blacklistTimeout  time.Duration
	targetNumForPeers int

	swarm       Swarm
	log         types.Logger
	structured  *logrus.Logger
	assignments chan Assignment
}

// NewPeerManager constructs a PeerManager that issues Dial commands on swarm
// and delivers QueryAssigned notifications on Assignments(). structuredLog
// carries peer_id/query_id fields on the assignment and reputation hot
// paths, independent of the plain-text log.
func NewPeerManager(swarm Swarm, blacklistTimeout time.Duration, targetNumForPeers int, log types.Logger, structuredLog *logrus.Logger) *PeerManager {
	return &PeerManager{
		order:             nil,
		peers:             make(map[types.PeerID]*PeerRecord),
		lastPeerIndex:     -1,
		queryAssignments:  make(map[types.QueryID]types.PeerID),
		pendingDial:       make(map[types.PeerID][]Assignment),
		blacklistTimeout:  blacklistTimeout,
		targetNumForPeers: targetNumForPeers,
		swarm:             swarm,
		log:               log,
		structured:        structuredLog,
		assignments:       make(chan Assignment, 256),
	}
}

// Assignments is the channel of QueryAssigned notifications the network
// manager drains to actually issue SendQuery.
func (m *PeerManager) Assignments() <-chan Assignment {
	return m.assignments
}

// AddPeer inserts or overwrites peer's record. The record holds no timeout
// of its own: ReportPeer blocks every peer for the manager-wide configured
// blacklist timeout.
func (m *PeerManager) AddPeer(peer types.PeerID, addr multiaddr.Multiaddr) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if _, exists := m.peers[peer]; !exists {
		m.order = append(m.order, peer)
	}
	m.peers[peer] = &PeerRecord{PeerID: peer, Multiaddr: addr}
}

// AssignPeer selects a peer for queryID by round robin: the rotation starts
// scanning at last_peer_index+1 (wrapping once) for the first non-blocked
// peer, but last_peer_index itself only ever advances by one per non-empty
// call -- independent of where, or whether, a non-blocked peer was found.
// Returns false only when the peer set is empty, or when every peer is
// currently blocked.
func (m *PeerManager) AssignPeer(queryID types.QueryID) (types.PeerID, bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	n := len(m.order)
	if n == 0 {
		var zero types.PeerID
		return zero, false
	}

	now := time.Now()
	start := (m.lastPeerIndex + 1) % n
	m.lastPeerIndex = (m.lastPeerIndex + 1) % n

	var chosen *PeerRecord
	for i := 0; i < n; i++ {
		idx := (start + i) % n
		candidate := m.peers[m.order[idx]]
		if !candidate.blocked(now) {
			chosen = candidate
			break
		}
	}

	if chosen == nil {
		var zero types.PeerID
		return zero, false
	}

	m.queryAssignments[queryID] = chosen.PeerID
	assignment := Assignment{QueryID: queryID, PeerID: chosen.PeerID}

	m.structured.WithFields(logrus.Fields{
		"peer_id":  chosen.PeerID,
		"query_id": queryID,
	}).Debug("peer assigned to query")

	if chosen.ConnectionID == "" {
		m.pendingDial[chosen.PeerID] = append(m.pendingDial[chosen.PeerID], assignment)
		if err := m.swarm.Dial(chosen.Multiaddr); err != nil {
			m.log.Warnf("dial failed for peer %s: %v", chosen.PeerID, err)
		}
	} else {
		m.assignments <- assignment
	}

	return chosen.PeerID, true
}

// OnConnectionEstablished records the new connection id and drains any
// QueryAssigned notifications queued while the peer was being dialed.
func (m *PeerManager) OnConnectionEstablished(peer types.PeerID, connID types.ConnectionID) {
	m.mutex.Lock()
	record, ok := m.peers[peer]
	if !ok {
		m.mutex.Unlock()
		return
	}
	record.ConnectionID = connID
	pending := m.pendingDial[peer]
	delete(m.pendingDial, peer)
	m.mutex.Unlock()

	for _, a := range pending {
		m.assignments <- a
	}
}

// Requeue puts assignment back under peer's pending-dial list. Used when
// SendQuery unexpectedly reports types.ErrPeerNotConnected for a peer the
// manager believed was connected (e.g. the connection dropped between
// assignment and send); reissued once a fresh connection-established event
// arrives for that peer.
func (m *PeerManager) Requeue(peer types.PeerID, assignment Assignment) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if record, ok := m.peers[peer]; ok {
		record.ConnectionID = ""
	}
	m.pendingDial[peer] = append(m.pendingDial[peer], assignment)
}

// ReportPeer blocks peer for the configured blacklist timeout.
func (m *PeerManager) ReportPeer(peer types.PeerID, reason types.ReputationReason) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	record, ok := m.peers[peer]
	if !ok {
		return types.ErrNoSuchPeer
	}
	record.BlockedUntil = time.Now().Add(m.blacklistTimeout)
	m.log.Warnf("peer %s blocked until %s: %s", peer, record.BlockedUntil, reason)
	m.structured.WithFields(logrus.Fields{
		"peer_id": peer,
		"reason":  reason,
	}).Warn("peer blocked")
	return nil
}

// ReportQuery resolves queryID to the peer it was assigned to and reports it.
func (m *PeerManager) ReportQuery(queryID types.QueryID, reason types.ReputationReason) error {
	m.mutex.Lock()
	peer, ok := m.queryAssignments[queryID]
	m.mutex.Unlock()
	if !ok {
		return types.ErrNoSuchQuery
	}
	return m.ReportPeer(peer, reason)
}

// MorePeersNeeded reports whether the peer count is below the configured
// target.
func (m *PeerManager) MorePeersNeeded() bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return len(m.order) < m.targetNumForPeers
}

// PeerCount returns the current number of known peers.
func (m *PeerManager) PeerCount() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return len(m.order)
}
