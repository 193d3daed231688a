// Package p2psync implements the network manager: the per-node event loop
// that multiplexes a swarm with a local DB executor, routing outbound
// queries from subscribers to remote peers and serving inbound queries from
// local storage.
package p2psync

import (
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/starknet-p2p/p2p-sync/pkg/p2psync/core"
	"github.com/starknet-p2p/p2p-sync/pkg/p2psync/db"
	"github.com/starknet-p2p/p2p-sync/pkg/p2psync/definition"
	"github.com/starknet-p2p/p2p-sync/pkg/p2psync/types"
	"github.com/starknet-p2p/p2p-sync/pkg/p2psync/wire"
)

// poweroff is a once-closeable shutdown channel guarded against concurrent
// double-close.
type poweroff struct {
	mutex    sync.Mutex
	shutdown bool
	ch       chan struct{}
}

func newPoweroff() poweroff {
	return poweroff{ch: make(chan struct{})}
}

func (p *poweroff) trigger() bool {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if p.shutdown {
		return false
	}
	p.shutdown = true
	close(p.ch)
	return true
}

// NetworkManager owns the event loop composing the swarm, DB executor, peer
// manager and subscriber channels, and the lifecycle of every session.
// Generalized from protocol.go's Unity.
type NetworkManager struct {
	config   *definition.Config
	swarm    core.Swarm
	executor db.Executor
	peers    *core.PeerManager
	sessions *core.Sessions

	subscriberQueries chan subscriberQuery
	pendingAssignment map[types.QueryID]pendingQuery
	pendingNoPeer     []subscriberQuery

	// dbResults is executor.Results(), or nil when no executor is wired (an
	// outbound-only manager). A nil channel in Run's select simply never
	// fires, so the loop needs no extra branching for that case.
	dbResults <-chan db.Result

	off poweroff
}

// NewNetworkManager wires a swarm, DB executor and peer manager into a
// network manager ready to accept subscribers and then Run().
func NewNetworkManager(swarm core.Swarm, executor db.Executor, peers *core.PeerManager, config *definition.Config) *NetworkManager {
	if config == nil {
		config = definition.DefaultConfig()
	}
	var dbResults <-chan db.Result
	if executor != nil {
		dbResults = executor.Results()
	}
	return &NetworkManager{
		config:            config,
		swarm:             swarm,
		executor:          executor,
		peers:             peers,
		sessions:          core.NewSessions(),
		subscriberQueries: make(chan subscriberQuery, 256),
		pendingAssignment: make(map[types.QueryID]pendingQuery),
		dbResults:         dbResults,
		off:               newPoweroff(),
	}
}

// RegisterSubscriber returns a query sender and one bounded response
// receiver per requested protocol. The sender accepts one Query per
// subscriber request; a small forwarding goroutine funnels it, tagged with
// this subscriber's sinks, onto the manager's single internal queue so the
// event loop stays single-threaded for all decision-making.
func (m *NetworkManager) RegisterSubscriber(protocols []types.DataType) (chan<- types.Query, ResponseReceivers) {
	sender := make(chan types.Query)
	sinks := make(map[types.DataType]chan types.Data, len(protocols))
	receivers := make(map[types.DataType]<-chan types.Data, len(protocols))
	for _, dt := range protocols {
		ch := make(chan types.Data, m.config.HeaderBufferSize)
		sinks[dt] = ch
		receivers[dt] = ch
	}

	core.InvokerInstance().Spawn(func() {
		for {
			select {
			case q, ok := <-sender:
				if !ok {
					return
				}
				select {
				case m.subscriberQueries <- subscriberQuery{query: q, sinks: sinks}:
				case <-m.off.ch:
					return
				}
			case <-m.off.ch:
				return
			}
		}
	})

	return sender, ResponseReceivers{receivers: receivers}
}

// Run drives the event loop until the swarm terminates or the manager is
// shut down. Consumes self: a NetworkManager is only ever Run once.
func (m *NetworkManager) Run() {
	defer m.config.Logger.Infof("network manager shutting down")
	for {
		select {
		case <-m.off.ch:
			m.closeAllSessions()
			return

		case sq, ok := <-m.subscriberQueries:
			if !ok {
				continue
			}
			m.handleSubscriberQuery(sq)

		case a, ok := <-m.peers.Assignments():
			if !ok {
				continue
			}
			m.handleAssignment(a)

		case ev, ok := <-m.swarm.Events():
			if !ok {
				m.closeAllSessions()
				return
			}
			m.handleSwarmEvent(ev)

		case result, ok := <-m.dbResults:
			if !ok {
				continue
			}
			m.handleDBResult(result)
		}
	}
}

// Shutdown stops the loop, dropping all session state and instructing the
// swarm to close every inbound session. Mirrors protocol.go's Unity.Shutdown
// idempotence guard.
func (m *NetworkManager) Shutdown() {
	m.off.trigger()
}

func (m *NetworkManager) closeAllSessions() {
	for id := range m.sessions.Snapshot().Inbound {
		_ = m.swarm.CloseInbound(id)
	}
	for _, session := range m.sessions.Snapshot().Outbound {
		safeCloseDataSink(session.Sink)
	}
}

// handleSubscriberQuery computes an InternalQuery, assigns a peer via the
// round-robin peer manager, and buffers the query under its QueryID until
// the peer manager reports the peer is reachable.
func (m *NetworkManager) handleSubscriberQuery(sq subscriberQuery) {
	sink, ok := sq.sinks[sq.query.DataType]
	if !ok {
		m.config.Logger.Warnf("subscriber query for unregistered data type %v", sq.query.DataType)
		return
	}

	queryID := types.NewQueryID()
	m.pendingAssignment[queryID] = pendingQuery{
		internal: sq.query.ToInternalQuery(),
		dataType: sq.query.DataType,
		sink:     sink,
	}

	if _, assigned := m.peers.AssignPeer(queryID); !assigned {
		m.config.Logger.Warnf("no peer available for query %d, buffering", queryID)
		m.pendingNoPeer = append(m.pendingNoPeer, sq)
		delete(m.pendingAssignment, queryID)
	}
}

// handleAssignment performs the actual Swarm.SendQuery once the peer
// manager has confirmed (or just connected) a peer for a pending query.
func (m *NetworkManager) handleAssignment(a core.Assignment) {
	pending, ok := m.pendingAssignment[a.QueryID]
	if !ok {
		return
	}

	payload := wire.EncodeQuery(pending.internal)
	protocol := types.ProtocolFor(pending.dataType)
	outboundID, err := m.swarm.SendQuery(payload, a.PeerID, protocol)
	if err != nil {
		m.config.Logger.Warnf("send-query to %s failed: %v, requeueing", a.PeerID, err)
		m.peers.Requeue(a.PeerID, a)
		return
	}

	delete(m.pendingAssignment, a.QueryID)
	m.sessions.PutOutbound(outboundID, core.OutboundSession{
		Protocol: protocol,
		DataType: pending.dataType,
		Sink:     pending.sink,
	})

	m.config.StructuredLog.WithFields(logrus.Fields{
		"peer_id":    a.PeerID,
		"query_id":   a.QueryID,
		"session_id": outboundID,
	}).Debug("query sent to peer")
}

func (m *NetworkManager) handleSwarmEvent(ev core.Event) {
	switch ev.Kind {
	case core.ConnectionEstablished:
		m.peers.OnConnectionEstablished(ev.PeerID, ev.ConnectionID)
		m.retryPendingNoPeer()

	case core.NewInboundSession:
		m.handleNewInboundSession(ev)

	case core.ReceivedData:
		m.handleReceivedData(ev)

	case core.SessionClosed:
		m.handleSessionClosed(ev)
	}
}

func (m *NetworkManager) retryPendingNoPeer() {
	if len(m.pendingNoPeer) == 0 {
		return
	}
	remaining := m.pendingNoPeer[:0]
	for _, sq := range m.pendingNoPeer {
		queryID := types.NewQueryID()
		sink := sq.sinks[sq.query.DataType]
		if _, assigned := m.peers.AssignPeer(queryID); assigned {
			m.pendingAssignment[queryID] = pendingQuery{
				internal: sq.query.ToInternalQuery(),
				dataType: sq.query.DataType,
				sink:     sink,
			}
		} else {
			remaining = append(remaining, sq)
		}
	}
	m.pendingNoPeer = remaining
}

// handleNewInboundSession decodes the remote's query, registers it with the
// DB executor, and spawns a frame pump that streams the executor's output
// back to the swarm in order, terminated by Fin then CloseInbound.
func (m *NetworkManager) handleNewInboundSession(ev core.Event) {
	iq, err := wire.DecodeQuery(ev.QueryBytes)
	if err != nil {
		m.config.Logger.Warnf("malformed inbound query on session %d: %v", ev.InboundSessionID, err)
		_ = m.swarm.CloseInbound(ev.InboundSessionID)
		return
	}

	dt, ok := types.DataTypeForProtocol(ev.Protocol)
	if !ok {
		m.config.Logger.Warnf("unknown protocol %q on session %d", ev.Protocol, ev.InboundSessionID)
		_ = m.swarm.CloseInbound(ev.InboundSessionID)
		return
	}

	sink := make(db.Sink, m.config.DBSinkBufferSize)
	queryID, err := m.executor.RegisterQuery(iq, dt, sink)
	if err != nil {
		m.config.Logger.Errorf("failed registering query for session %d: %v", ev.InboundSessionID, err)
		_ = m.swarm.CloseInbound(ev.InboundSessionID)
		return
	}

	m.sessions.PutInbound(ev.InboundSessionID, core.InboundSession{QueryID: queryID, DataType: dt})
	m.config.StructuredLog.WithFields(logrus.Fields{
		"session_id": ev.InboundSessionID,
		"query_id":   queryID,
	}).Debug("inbound query registered with executor")

	core.InvokerInstance().Spawn(func() {
		m.pumpInboundSession(ev.InboundSessionID, dt, sink)
	})
}

// pumpInboundSession drains the DB executor's sink, framing and sending
// every item to the swarm in order, then Fin, then closes the session. The
// loop never pulls the next DB item until the previous frame was accepted
// by the swarm, propagating backpressure from the swarm all the way back to
// storage reads.
func (m *NetworkManager) pumpInboundSession(session types.InboundSessionID, dt types.DataType, sink db.Sink) {
	defer m.sessions.DeleteInbound(session)

	for item := range sink {
		frame, err := wire.FrameData(item, dt)
		if err != nil {
			m.config.Logger.Errorf("failed framing data for session %d: %v", session, err)
			continue
		}
		if err := m.swarm.SendFrame(session, frame); err != nil {
			m.config.Logger.Warnf("session %d vanished mid-stream: %v, abandoning DB stream", session, err)
			return
		}
	}

	finFrame, err := wire.FrameData(types.Data{Fin: &types.Fin{DataType: dt}}, dt)
	if err != nil {
		m.config.Logger.Errorf("failed framing fin for session %d: %v", session, err)
		return
	}
	if err := m.swarm.SendFrame(session, finFrame); err != nil {
		m.config.Logger.Warnf("session %d vanished before fin: %v", session, err)
		return
	}
	if err := m.swarm.CloseInbound(session); err != nil {
		m.config.Logger.Warnf("close-inbound failed for session %d: %v", session, err)
	}
}

func (m *NetworkManager) handleReceivedData(ev core.Event) {
	session, ok := m.sessions.GetOutbound(ev.OutboundSessionID)
	if !ok {
		m.config.Logger.Warnf("received data for unknown outbound session %d", ev.OutboundSessionID)
		return
	}

	data, _, err := wire.UnframeData(ev.Data, session.DataType)
	if err != nil {
		m.config.Logger.Warnf("decode failure on session %d: %v, dropping item", ev.OutboundSessionID, err)
		return
	}

	select {
	case session.Sink <- data:
	case <-m.off.ch:
		return
	}

	if data.IsFin() {
		m.config.StructuredLog.WithFields(logrus.Fields{
			"session_id": ev.OutboundSessionID,
			"data_type":  session.DataType,
		}).Debug("outbound session finished")
		// The session (one query's response stream) ended; the subscriber's
		// response receiver itself stays open for whatever query it sends
		// next, so only the session mapping is dropped here.
		m.sessions.DeleteOutbound(ev.OutboundSessionID)
	}
}

// handleSessionClosed propagates an unexpected swarm-side close as a
// synthetic Fin to the affected outbound session's subscriber, then drops
// the session mapping. The subscriber's response receiver itself is left
// open: it is shared across every query that subscriber sends, and it is
// closed only when the loop ends (Shutdown, or the swarm's event channel
// closing).
func (m *NetworkManager) handleSessionClosed(ev core.Event) {
	if session, ok := m.sessions.GetOutbound(ev.OutboundSessionID); ok {
		select {
		case session.Sink <- types.Data{Fin: &types.Fin{DataType: session.DataType}}:
		case <-m.off.ch:
		}
		m.sessions.DeleteOutbound(ev.OutboundSessionID)
	}
	m.sessions.DeleteInbound(ev.InboundSessionID)
}

// handleDBResult reports a finished DB query. A SendError is the executor's
// report that its sink closed before the DB was done writing into it; any
// other Err is a DB-side failure serving the query. The frame pump does not
// close the sink when it abandons a vanished session, so such an
// abandonment does not surface here as a SendError.
func (m *NetworkManager) handleDBResult(result db.Result) {
	if result.Err == nil {
		m.config.StructuredLog.WithField("query_id", result.QueryID).Debug("db query completed")
		return
	}

	var sendErr *types.SendError
	if errors.As(result.Err, &sendErr) {
		m.config.StructuredLog.WithField("query_id", result.QueryID).Warn("db sink closed before query finished: ", sendErr)
		m.config.Logger.Warnf("db sink closed before query %d finished: %v", result.QueryID, sendErr)
		return
	}

	m.config.StructuredLog.WithField("query_id", result.QueryID).Error("db query failed: ", result.Err)
	m.config.Logger.Errorf("db query %d failed: %v", result.QueryID, result.Err)
}

func safeCloseDataSink(sink chan<- types.Data) {
	defer func() { recover() }()
	close(sink)
}
