package db

import (
	"sync"

	"github.com/starknet-p2p/p2p-sync/pkg/p2psync/types"
)

// HeaderStore is the minimal read surface the FakeExecutor needs over a
// header table: given a window, yield the headers it covers in order.
type HeaderStore interface {
	HeadersInRange(start types.BlockNumber, limit, step uint64, dir types.Direction) []types.BlockHeaderAndSignature
}

// InMemoryHeaderStore is a HeaderStore test double: a mutex-guarded
// in-memory map standing in for the real storage engine.
type InMemoryHeaderStore struct {
	mutex   sync.Mutex
	headers map[types.BlockNumber]types.BlockHeaderAndSignature
}

// NewInMemoryHeaderStore returns an empty header store.
func NewInMemoryHeaderStore() *InMemoryHeaderStore {
	return &InMemoryHeaderStore{headers: make(map[types.BlockNumber]types.BlockHeaderAndSignature)}
}

// Put inserts or overwrites a header at its block number.
func (s *InMemoryHeaderStore) Put(h types.BlockHeaderAndSignature) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.headers[h.Header.Number] = h
}

func (s *InMemoryHeaderStore) HeadersInRange(start types.BlockNumber, limit, step uint64, dir types.Direction) []types.BlockHeaderAndSignature {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	var out []types.BlockHeaderAndSignature
	n := start
	for uint64(len(out)) < limit {
		h, ok := s.headers[n]
		if !ok {
			break
		}
		out = append(out, h)
		if dir == types.Backward {
			if n < types.BlockNumber(step) {
				break
			}
			n -= types.BlockNumber(step)
		} else {
			n += types.BlockNumber(step)
		}
	}
	return out
}

// FakeExecutor is an Executor test double that only serves
// types.SignedBlockHeader queries from an in-memory HeaderStore, each query
// on its own goroutine, enough to drive the network manager's inbound-query
// and DB-output path in tests.
type FakeExecutor struct {
	headers HeaderStore
	results chan Result
}

// NewFakeExecutor wraps a HeaderStore as an Executor.
func NewFakeExecutor(headers HeaderStore) *FakeExecutor {
	return &FakeExecutor{
		headers: headers,
		results: make(chan Result, 16),
	}
}

func (e *FakeExecutor) RegisterQuery(query types.InternalQuery, dt types.DataType, sink Sink) (types.QueryID, error) {
	id := types.NewQueryID()
	go e.serve(id, query, dt, sink)
	return id, nil
}

func (e *FakeExecutor) Results() <-chan Result {
	return e.results
}

func (e *FakeExecutor) serve(id types.QueryID, query types.InternalQuery, dt types.DataType, sink Sink) {
	defer close(sink)

	if dt != types.SignedBlockHeader {
		e.results <- Result{QueryID: id}
		return
	}

	var start types.BlockNumber
	if query.Start.ByHash {
		// The fake header store is keyed by number only; hash lookups are
		// out of scope for this double.
		e.results <- Result{QueryID: id, Err: types.ErrDecode}
		return
	}
	start = query.Start.Number

	headers := e.headers.HeadersInRange(start, query.Limit, query.Step, query.Direction)
	for i := range headers {
		h := headers[i]
		item := types.Data{Header: &h}
		sink <- item
	}
	e.results <- Result{QueryID: id}
}
