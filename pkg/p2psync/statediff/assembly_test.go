package statediff

import (
	"errors"
	"testing"

	"github.com/starknet-p2p/p2p-sync/pkg/p2psync/types"
)

func TestAssemblerMergeAccumulatesLength(t *testing.T) {
	a := newAssembler()

	if err := a.merge(types.ThinStateDiff{
		DeployedContracts: []types.DeployedContract{{Address: "0x1", ClassHash: "0xc1"}},
	}); err != nil {
		t.Fatalf("unexpected error on first merge: %v", err)
	}
	if a.runningLength != 1 {
		t.Fatalf("expected running length 1, got %d", a.runningLength)
	}

	if err := a.merge(types.ThinStateDiff{
		Nonces: map[string]string{"0x1": "0x5"},
	}); err != nil {
		t.Fatalf("unexpected error on second merge: %v", err)
	}
	if a.runningLength != 2 {
		t.Fatalf("expected running length 2, got %d", a.runningLength)
	}
	if len(a.possibleLengths) != 2 || a.possibleLengths[0] != 1 || a.possibleLengths[1] != 2 {
		t.Fatalf("expected possible lengths [1 2], got %v", a.possibleLengths)
	}
}

func TestAssemblerMergeRejectsEmptyPart(t *testing.T) {
	a := newAssembler()
	err := a.merge(types.ThinStateDiff{})
	if !errors.Is(err, types.ErrEmptyStateDiffPart) {
		t.Fatalf("expected ErrEmptyStateDiffPart, got %v", err)
	}
}

func TestAssemblerMergeRejectsEmptyStorageInnerMap(t *testing.T) {
	a := newAssembler()
	err := a.merge(types.ThinStateDiff{
		StorageDiffs: types.StorageDiff{"0x1": {}},
	})
	if !errors.Is(err, types.ErrEmptyStateDiffPart) {
		t.Fatalf("expected ErrEmptyStateDiffPart for a contract key with an empty inner map, got %v", err)
	}
}

func TestAssemblerMergeRejectsConflictingDeployedContract(t *testing.T) {
	a := newAssembler()
	if err := a.merge(types.ThinStateDiff{
		DeployedContracts: []types.DeployedContract{{Address: "0x1", ClassHash: "0xc1"}},
	}); err != nil {
		t.Fatalf("unexpected error on first merge: %v", err)
	}

	err := a.merge(types.ThinStateDiff{
		DeployedContracts: []types.DeployedContract{{Address: "0x1", ClassHash: "0xc1"}},
	})
	if !errors.Is(err, types.ErrConflictingStateDiffParts) {
		t.Fatalf("expected ErrConflictingStateDiffParts for a repeated address (even with an identical value), got %v", err)
	}
}

func TestAssemblerMergeRejectsConflictingStorageKey(t *testing.T) {
	a := newAssembler()
	if err := a.merge(types.ThinStateDiff{
		StorageDiffs: types.StorageDiff{"0x1": {"0xkey": []byte{1}}},
	}); err != nil {
		t.Fatalf("unexpected error on first merge: %v", err)
	}

	err := a.merge(types.ThinStateDiff{
		StorageDiffs: types.StorageDiff{"0x1": {"0xkey": []byte{2}}},
	})
	if !errors.Is(err, types.ErrConflictingStateDiffParts) {
		t.Fatalf("expected ErrConflictingStateDiffParts for a repeated storage key, got %v", err)
	}
}

func TestAssemblerMergeRejectsPartialConflictLeavesStateUnchanged(t *testing.T) {
	a := newAssembler()
	if err := a.merge(types.ThinStateDiff{
		DeployedContracts: []types.DeployedContract{{Address: "0x1", ClassHash: "0xc1"}},
	}); err != nil {
		t.Fatalf("unexpected error on first merge: %v", err)
	}

	err := a.merge(types.ThinStateDiff{
		DeployedContracts: []types.DeployedContract{{Address: "0x1", ClassHash: "0xc1"}},
		Nonces:            map[string]string{"0x2": "0x9"},
	})
	if err == nil {
		t.Fatalf("expected an error; the part conflicts on deployed contract 0x1")
	}
	if a.runningLength != 1 {
		t.Fatalf("expected the rejected part to leave running length unchanged at 1, got %d", a.runningLength)
	}
	if len(a.diff.DeployedContracts) != 1 {
		t.Fatalf("expected no new deployed contracts applied from the rejected part, got %+v", a.diff.DeployedContracts)
	}
}
