package core

import (
	"testing"
	"time"

	"github.com/multiformats/go-multiaddr"

	"github.com/starknet-p2p/p2p-sync/pkg/p2psync/definition"
	"github.com/starknet-p2p/p2p-sync/pkg/p2psync/types"
)

func testAddr(t *testing.T) multiaddr.Multiaddr {
	t.Helper()
	addr, err := multiaddr.NewMultiaddr("/ip4/127.0.0.1/tcp/4001")
	if err != nil {
		t.Fatalf("failed building test multiaddr: %v", err)
	}
	return addr
}

// TestAssignPeerRoundRobinFairness: for a stable non-empty peer set with
// zero blocked peers, every peer is chosen at least once within peer_count
// consecutive AssignPeer calls.
func TestAssignPeerRoundRobinFairness(t *testing.T) {
	config := definition.DefaultConfig()
	swarm := NewFakeSwarm()
	manager := NewPeerManager(swarm, config.BlacklistTimeout, config.TargetNumForPeers, config.Logger, config.StructuredLog)

	peerCount := 5
	addr := testAddr(t)
	for i := 0; i < peerCount; i++ {
		peer := types.PeerID(string(rune('a' + i)))
		manager.AddPeer(peer, addr)
		swarm.Connect(peer)
	}

	seen := make(map[types.PeerID]bool)
	for i := 0; i < peerCount; i++ {
		peer, ok := manager.AssignPeer(types.NewQueryID())
		if !ok {
			t.Fatalf("expected a peer to be assigned on call %d", i)
		}
		seen[peer] = true
	}

	if len(seen) != peerCount {
		t.Fatalf("expected all %d peers chosen within %d calls, saw %d", peerCount, peerCount, len(seen))
	}
}

// TestAssignPeerAdvancesIndexEvenWhenBlocked: last_peer_index advances by
// one on every non-empty call, even when every peer is currently blocked
// and no assignment happens.
func TestAssignPeerAdvancesIndexEvenWhenBlocked(t *testing.T) {
	config := definition.DefaultConfig()
	swarm := NewFakeSwarm()
	manager := NewPeerManager(swarm, config.BlacklistTimeout, config.TargetNumForPeers, config.Logger, config.StructuredLog)

	addr := testAddr(t)
	peerA := types.PeerID("peer-a")
	peerB := types.PeerID("peer-b")
	manager.AddPeer(peerA, addr)
	manager.AddPeer(peerB, addr)
	swarm.Connect(peerA)
	swarm.Connect(peerB)

	if err := manager.ReportPeer(peerA, types.ReasonTimeout); err != nil {
		t.Fatalf("unexpected error blocking peer a: %v", err)
	}
	if err := manager.ReportPeer(peerB, types.ReasonTimeout); err != nil {
		t.Fatalf("unexpected error blocking peer b: %v", err)
	}

	if _, ok := manager.AssignPeer(types.NewQueryID()); ok {
		t.Fatalf("expected no peer assigned while all peers are blocked")
	}
	indexAfterFirst := manager.lastPeerIndex

	if _, ok := manager.AssignPeer(types.NewQueryID()); ok {
		t.Fatalf("expected no peer assigned while all peers are blocked")
	}
	indexAfterSecond := manager.lastPeerIndex

	if indexAfterSecond == indexAfterFirst {
		t.Fatalf("expected lastPeerIndex to advance even on an empty assignment: %d == %d", indexAfterFirst, indexAfterSecond)
	}
}

// TestAssignPeerQueuesUntilDialCompletes covers the pending-dial path: a peer
// with no open connection gets queued rather than delivered immediately, and
// is flushed once OnConnectionEstablished fires.
func TestAssignPeerQueuesUntilDialCompletes(t *testing.T) {
	config := definition.DefaultConfig()
	swarm := NewFakeSwarm()
	manager := NewPeerManager(swarm, config.BlacklistTimeout, config.TargetNumForPeers, config.Logger, config.StructuredLog)

	peer := types.PeerID("peer-a")
	manager.AddPeer(peer, testAddr(t))

	queryID := types.NewQueryID()
	assigned, ok := manager.AssignPeer(queryID)
	if !ok || assigned != peer {
		t.Fatalf("expected peer-a assigned, got %v, %v", assigned, ok)
	}

	select {
	case <-manager.Assignments():
		t.Fatalf("expected no assignment notification before the peer connects")
	case <-time.After(10 * time.Millisecond):
	}

	manager.OnConnectionEstablished(peer, types.ConnectionID("conn-1"))

	select {
	case a := <-manager.Assignments():
		if a.QueryID != queryID || a.PeerID != peer {
			t.Fatalf("unexpected assignment: %+v", a)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for queued assignment to flush")
	}
}
