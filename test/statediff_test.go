package test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/starknet-p2p/p2p-sync/pkg/p2psync/definition"
	"github.com/starknet-p2p/p2p-sync/pkg/p2psync/statediff"
	"github.com/starknet-p2p/p2p-sync/pkg/p2psync/types"
)

func headerItem(number types.BlockNumber, length uint64) types.Data {
	return types.Data{Header: &types.BlockHeaderAndSignature{
		Header: types.BlockHeader{Number: number, StateDiffLength: length},
	}}
}

func diffItem(contract, classHash string) types.Data {
	return types.Data{Diff: &types.StateDiffChunk{Part: types.ThinStateDiff{
		DeployedContracts: []types.DeployedContract{{Address: contract, ClassHash: classHash}},
	}}}
}

func finItem() types.Data {
	return types.Data{Fin: &types.Fin{DataType: types.StateDiff}}
}

func runEngine(t *testing.T, store statediff.BlockStore, config statediff.EngineConfig) (
	headers chan types.Data, queries chan types.Query, diffs chan types.Data, done chan error,
) {
	t.Helper()
	logger := definition.DefaultConfig().Logger
	logger.ToggleDebug(false)
	engine := statediff.NewEngine(store, logger, config)

	headers = make(chan types.Data, 16)
	queries = make(chan types.Query, 16)
	diffs = make(chan types.Data, 16)
	done = make(chan error, 1)

	go func() {
		done <- engine.Run(context.Background(), headers, queries, diffs)
	}()
	return
}

// TestStateDiffBasicFlow: with a state-diff query length of 3 smaller than
// a header query length of 5, five headers produce two state-diff queries
// (limit 3, then limit 2); each block's diff commits in order and the
// stored diff matches what was merged.
func TestStateDiffBasicFlow(t *testing.T) {
	store := statediff.NewInMemoryBlockStore(0)
	headers, queries, diffs, done := runEngine(t, store, statediff.EngineConfig{
		HeaderQueryLength:    5,
		StateDiffQueryLength: 3,
	})

	for i := types.BlockNumber(0); i < 5; i++ {
		headers <- headerItem(i, 1)
	}
	close(headers)

	var q1, q2 types.Query
	select {
	case q1 = <-queries:
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for first state-diff query")
	}
	if q1.StartBlock.Number != 0 || q1.Limit != 3 {
		t.Fatalf("expected query{start=0,limit=3}, got %+v", q1)
	}

	select {
	case q2 = <-queries:
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for second state-diff query")
	}
	if q2.StartBlock.Number != 3 || q2.Limit != 2 {
		t.Fatalf("expected query{start=3,limit=2}, got %+v", q2)
	}

	for i := types.BlockNumber(0); i < 3; i++ {
		diffs <- diffItem(contractFor(i), classFor(i))
	}
	diffs <- finItem()
	for i := types.BlockNumber(3); i < 5; i++ {
		diffs <- diffItem(contractFor(i), classFor(i))
	}
	diffs <- finItem()
	close(diffs)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean completion, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for engine to finish")
	}

	if store.StateMarker() != 5 {
		t.Fatalf("expected state marker 5, got %d", store.StateMarker())
	}
	for i := types.BlockNumber(0); i < 5; i++ {
		diff, ok := store.GetStateDiff(i)
		if !ok {
			t.Fatalf("expected diff committed for block %d", i)
		}
		if len(diff.DeployedContracts) != 1 || diff.DeployedContracts[0].Address != contractFor(i) {
			t.Fatalf("unexpected diff for block %d: %+v", i, diff)
		}
	}
}

func contractFor(i types.BlockNumber) string { return "contract-" + string(rune('a'+i)) }
func classFor(i types.BlockNumber) string    { return "class-" + string(rune('a'+i)) }

// TestStateDiffEmptyStateDiff: a part that carries no entries fails with
// EmptyStateDiffPart.
func TestStateDiffEmptyStateDiff(t *testing.T) {
	store := statediff.NewInMemoryBlockStore(0)
	headers, queries, diffs, done := runEngine(t, store, statediff.EngineConfig{
		HeaderQueryLength:    1,
		StateDiffQueryLength: 1,
	})

	headers <- headerItem(0, 1)
	close(headers)

	select {
	case <-queries:
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for state-diff query")
	}

	diffs <- types.Data{Diff: &types.StateDiffChunk{Part: types.ThinStateDiff{}}}

	select {
	case err := <-done:
		var syncErr *types.P2PSyncError
		if !errors.As(err, &syncErr) {
			t.Fatalf("expected *types.P2PSyncError, got %v", err)
		}
		if !errors.Is(syncErr.Cause, types.ErrEmptyStateDiffPart) {
			t.Fatalf("expected ErrEmptyStateDiffPart, got %v", syncErr.Cause)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for engine to fail")
	}
}

// TestStateDiffStoppedInMiddle: a block declaring length 2 that only ever
// receives a part summing to length 1 before Fin fails with
// WrongStateDiffLength{expected=2, possible_lengths=[1]}.
func TestStateDiffStoppedInMiddle(t *testing.T) {
	store := statediff.NewInMemoryBlockStore(0)
	headers, queries, diffs, done := runEngine(t, store, statediff.EngineConfig{
		HeaderQueryLength:    1,
		StateDiffQueryLength: 1,
	})

	headers <- headerItem(0, 2)
	close(headers)

	select {
	case <-queries:
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for state-diff query")
	}

	diffs <- diffItem("contract-a", "class-a")
	diffs <- finItem()

	select {
	case err := <-done:
		var syncErr *types.P2PSyncError
		if !errors.As(err, &syncErr) {
			t.Fatalf("expected *types.P2PSyncError, got %v", err)
		}
		var lenErr *types.WrongStateDiffLength
		if !errors.As(syncErr.Cause, &lenErr) {
			t.Fatalf("expected *types.WrongStateDiffLength, got %v", syncErr.Cause)
		}
		if lenErr.Expected != 2 || len(lenErr.PossibleLengths) != 1 || lenErr.PossibleLengths[0] != 1 {
			t.Fatalf("expected {expected=2, possible=[1]}, got %+v", lenErr)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for engine to fail")
	}
}

// TestStateDiffNotSplittedCorrectly: parts of lengths 1 then 2 (running 1,
// then 3) against a declared length of 2 overshoots and fails with
// WrongStateDiffLength{expected=2, possible_lengths=[1,3]}.
func TestStateDiffNotSplittedCorrectly(t *testing.T) {
	store := statediff.NewInMemoryBlockStore(0)
	headers, queries, diffs, done := runEngine(t, store, statediff.EngineConfig{
		HeaderQueryLength:    1,
		StateDiffQueryLength: 1,
	})

	headers <- headerItem(0, 2)
	close(headers)

	select {
	case <-queries:
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for state-diff query")
	}

	diffs <- diffItem("contract-a", "class-a")
	diffs <- types.Data{Diff: &types.StateDiffChunk{Part: types.ThinStateDiff{
		DeployedContracts: []types.DeployedContract{
			{Address: "contract-b", ClassHash: "class-b"},
			{Address: "contract-c", ClassHash: "class-c"},
		},
	}}}

	select {
	case err := <-done:
		var syncErr *types.P2PSyncError
		if !errors.As(err, &syncErr) {
			t.Fatalf("expected *types.P2PSyncError, got %v", err)
		}
		var lenErr *types.WrongStateDiffLength
		if !errors.As(syncErr.Cause, &lenErr) {
			t.Fatalf("expected *types.WrongStateDiffLength, got %v", syncErr.Cause)
		}
		if lenErr.Expected != 2 || len(lenErr.PossibleLengths) != 2 ||
			lenErr.PossibleLengths[0] != 1 || lenErr.PossibleLengths[1] != 3 {
			t.Fatalf("expected {expected=2, possible=[1,3]}, got %+v", lenErr)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for engine to fail")
	}
}

// TestStateDiffConflicting: two parts both naming the same deployed-contract
// address fail with ConflictingStateDiffParts regardless of whether the
// class hashes agree.
func TestStateDiffConflicting(t *testing.T) {
	store := statediff.NewInMemoryBlockStore(0)
	headers, queries, diffs, done := runEngine(t, store, statediff.EngineConfig{
		HeaderQueryLength:    1,
		StateDiffQueryLength: 1,
	})

	headers <- headerItem(0, 2)
	close(headers)

	select {
	case <-queries:
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for state-diff query")
	}

	diffs <- diffItem("contract-a", "class-a")
	diffs <- diffItem("contract-a", "class-b")

	select {
	case err := <-done:
		var syncErr *types.P2PSyncError
		if !errors.As(err, &syncErr) {
			t.Fatalf("expected *types.P2PSyncError, got %v", err)
		}
		if !errors.Is(syncErr.Cause, types.ErrConflictingStateDiffParts) {
			t.Fatalf("expected ErrConflictingStateDiffParts, got %v", syncErr.Cause)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for engine to fail")
	}
}
