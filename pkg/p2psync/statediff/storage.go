// Package statediff implements the state-diff pipeline: it drives signed
// block headers through a fixed-size state-diff window against the network
// manager's query channel, assembles the multi-part responses, and commits
// each reconstructed diff to storage atomically with the state marker.
package statediff

import (
	"sync"

	"github.com/starknet-p2p/p2p-sync/pkg/p2psync/types"
)

// BlockStore is the storage engine port: a reader giving a monotonic
// state_marker and a writer appending per-block state diffs atomically with
// the marker advance. A small external-collaborator port; a real
// implementation is left to the embedding application.
type BlockStore interface {
	// StateMarker is the next unwritten block number.
	StateMarker() types.BlockNumber

	// CommitStateDiff appends diff for block, atomically advancing the
	// marker from block to block+1. Returns an error if block != the
	// current marker (out-of-order commit).
	CommitStateDiff(block types.BlockNumber, diff types.ThinStateDiff) error

	// GetStateDiff returns the diff committed for block, if any.
	GetStateDiff(block types.BlockNumber) (types.ThinStateDiff, bool)
}

// InMemoryBlockStore is a BlockStore test double: a mutex-guarded map plus a
// marker counter.
type InMemoryBlockStore struct {
	mutex  sync.Mutex
	marker types.BlockNumber
	diffs  map[types.BlockNumber]types.ThinStateDiff
}

// NewInMemoryBlockStore returns a store whose marker starts at start.
func NewInMemoryBlockStore(start types.BlockNumber) *InMemoryBlockStore {
	return &InMemoryBlockStore{
		marker: start,
		diffs:  make(map[types.BlockNumber]types.ThinStateDiff),
	}
}

func (s *InMemoryBlockStore) StateMarker() types.BlockNumber {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.marker
}

func (s *InMemoryBlockStore) CommitStateDiff(block types.BlockNumber, diff types.ThinStateDiff) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if block != s.marker {
		return errOutOfOrderCommit
	}
	s.diffs[block] = diff
	s.marker = block + 1
	return nil
}

func (s *InMemoryBlockStore) GetStateDiff(block types.BlockNumber) (types.ThinStateDiff, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	d, ok := s.diffs[block]
	return d, ok
}
