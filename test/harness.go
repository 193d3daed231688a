// Package test holds integration-level scenario tests exercising the
// network manager and state-diff engine together through in-memory fakes.
package test

import (
	"sync"
	"testing"
	"time"

	"github.com/multiformats/go-multiaddr"

	"github.com/starknet-p2p/p2p-sync/pkg/p2psync"
	"github.com/starknet-p2p/p2p-sync/pkg/p2psync/core"
	"github.com/starknet-p2p/p2p-sync/pkg/p2psync/db"
	"github.com/starknet-p2p/p2p-sync/pkg/p2psync/definition"
	"github.com/starknet-p2p/p2p-sync/pkg/p2psync/types"
)

// TestInvoker tracks every spawned goroutine so a test can wait for them
// all to finish before asserting no leaks: a sync.WaitGroup wrapped around
// core.Invoker.Spawn.
type TestInvoker struct {
	group sync.WaitGroup
}

func (t *TestInvoker) Spawn(f func()) {
	t.group.Add(1)
	go func() {
		defer t.group.Done()
		f()
	}()
}

func (t *TestInvoker) Wait() {
	t.group.Wait()
}

// NewTestManager wires a FakeSwarm, the supplied db.Executor and a
// PeerManager into a NetworkManager, returning the pieces a scenario test
// needs to drive and inspect it. Pass a *db.FakeExecutor (or nil, for tests
// that only exercise the outbound path) as executor.
func NewTestManager(t *testing.T, executor db.Executor) (*p2psync.NetworkManager, *core.FakeSwarm, *core.PeerManager, *TestInvoker, *definition.Config) {
	t.Helper()

	invoker := &TestInvoker{}
	core.SetInvoker(invoker)

	config := definition.DefaultConfig()
	config.Logger.ToggleDebug(false)

	swarm := core.NewFakeSwarm()
	peers := core.NewPeerManager(swarm, config.BlacklistTimeout, config.TargetNumForPeers, config.Logger, config.StructuredLog)

	manager := p2psync.NewNetworkManager(swarm, executor, peers, config)
	return manager, swarm, peers, invoker, config
}

// TestMultiaddr returns a deterministic loopback multiaddr for test peers.
func TestMultiaddr(t *testing.T) multiaddr.Multiaddr {
	t.Helper()
	addr, err := multiaddr.NewMultiaddr("/ip4/127.0.0.1/tcp/4001")
	if err != nil {
		t.Fatalf("failed building test multiaddr: %v", err)
	}
	return addr
}

// TestPeer is a stable PeerID for scenario tests; libp2p peer.ID is a plain
// string type, so any non-empty string is a valid (if not base58-checked)
// identity for a fake swarm.
func TestPeer(name string) types.PeerID {
	return types.PeerID(name)
}

// WaitFor polls cond every 5ms until it reports true or timeout elapses, as
// a guard against indefinitely blocking a test on concurrent state that
// settles asynchronously.
func WaitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}
