package p2psync

import (
	"github.com/starknet-p2p/p2p-sync/pkg/p2psync/types"
)

// ResponseReceivers is a record holding one bounded channel per protocol a
// subscriber declared interest in, each delivering decoded Data items. When
// the remote sends Fin, the Fin item itself is forwarded as the end-of-stream
// marker of that query; the channel is not closed on Fin, since it carries
// the responses of every query the subscriber sends. The manager closes it
// only when its loop ends, and only if it still backs an open outbound
// session at that moment.
type ResponseReceivers struct {
	receivers map[types.DataType]<-chan types.Data
}

// For returns the response receiver for a given data type, if the
// subscriber registered interest in it.
func (r ResponseReceivers) For(dt types.DataType) (<-chan types.Data, bool) {
	ch, ok := r.receivers[dt]
	return ch, ok
}

// SignedHeaders returns the signed-block-header receiver, or nil if the
// subscriber didn't register for it.
func (r ResponseReceivers) SignedHeaders() <-chan types.Data {
	ch, _ := r.For(types.SignedBlockHeader)
	return ch
}

// StateDiffs returns the state-diff receiver, or nil if the subscriber
// didn't register for it.
func (r ResponseReceivers) StateDiffs() <-chan types.Data {
	ch, _ := r.For(types.StateDiff)
	return ch
}

// subscriberQuery pairs one subscriber's query with the sinks its own
// responses should be delivered to. Produced by the per-subscriber
// forwarding goroutine started in RegisterSubscriber, consumed by the
// manager's single event loop.
type subscriberQuery struct {
	query types.Query
	sinks map[types.DataType]chan types.Data
}

// pendingQuery is a subscriberQuery that has been assigned a QueryID and a
// peer, waiting for the peer manager to confirm the peer is reachable
// before the manager actually calls Swarm.SendQuery.
type pendingQuery struct {
	internal types.InternalQuery
	dataType types.DataType
	sink     chan types.Data
}
