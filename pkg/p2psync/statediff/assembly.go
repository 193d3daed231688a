package statediff

import (
	"errors"

	"github.com/starknet-p2p/p2p-sync/pkg/p2psync/types"
)

var errOutOfOrderCommit = errors.New("commit block does not match current state marker")

// assembler accumulates ThinStateDiff parts for a single block, enforcing
// strict no-overlap merging across all six fields and tracking the running
// length reached at every merge boundary. The engine keeps one assembler for
// the block at the front of its queue and resets it in place after each
// commit.
type assembler struct {
	diff types.ThinStateDiff

	seenContracts   map[string]bool
	seenStorageKeys map[string]map[string]bool
	seenClasses     map[string]bool
	seenDeprecated  map[string]bool
	seenNonces      map[string]bool
	seenReplaced    map[string]bool

	runningLength   uint64
	possibleLengths []uint64
}

func newAssembler() *assembler {
	return &assembler{
		seenContracts:   make(map[string]bool),
		seenStorageKeys: make(map[string]map[string]bool),
		seenClasses:     make(map[string]bool),
		seenDeprecated:  make(map[string]bool),
		seenNonces:      make(map[string]bool),
		seenReplaced:    make(map[string]bool),
	}
}

// merge folds part into the running diff. Returns types.ErrEmptyStateDiffPart
// if part carries no entries, or types.ErrConflictingStateDiffParts if any
// entry in part collides with one already accumulated.
func (a *assembler) merge(part types.ThinStateDiff) error {
	if part.IsEmpty() {
		return types.ErrEmptyStateDiffPart
	}

	for _, dc := range part.DeployedContracts {
		if a.seenContracts[dc.Address] {
			return types.ErrConflictingStateDiffParts
		}
	}
	for contract, entries := range part.StorageDiffs {
		existing := a.seenStorageKeys[contract]
		for key := range entries {
			if existing[key] {
				return types.ErrConflictingStateDiffParts
			}
		}
	}
	for _, dc := range part.DeclaredClasses {
		if a.seenClasses[dc.ClassHash] {
			return types.ErrConflictingStateDiffParts
		}
	}
	for _, classHash := range part.DeprecatedDeclaredClasses {
		if a.seenDeprecated[classHash] {
			return types.ErrConflictingStateDiffParts
		}
	}
	for address := range part.Nonces {
		if a.seenNonces[address] {
			return types.ErrConflictingStateDiffParts
		}
	}
	for _, rc := range part.ReplacedClasses {
		if a.seenReplaced[rc.Address] {
			return types.ErrConflictingStateDiffParts
		}
	}

	for _, dc := range part.DeployedContracts {
		a.seenContracts[dc.Address] = true
		a.diff.DeployedContracts = append(a.diff.DeployedContracts, dc)
	}
	for contract, entries := range part.StorageDiffs {
		if a.seenStorageKeys[contract] == nil {
			a.seenStorageKeys[contract] = make(map[string]bool)
		}
		if a.diff.StorageDiffs == nil {
			a.diff.StorageDiffs = make(types.StorageDiff)
		}
		merged := a.diff.StorageDiffs[contract]
		if merged == nil {
			merged = make(map[string][]byte)
		}
		for key, value := range entries {
			a.seenStorageKeys[contract][key] = true
			merged[key] = value
		}
		a.diff.StorageDiffs[contract] = merged
	}
	for _, dc := range part.DeclaredClasses {
		a.seenClasses[dc.ClassHash] = true
		a.diff.DeclaredClasses = append(a.diff.DeclaredClasses, dc)
	}
	for _, classHash := range part.DeprecatedDeclaredClasses {
		a.seenDeprecated[classHash] = true
		a.diff.DeprecatedDeclaredClasses = append(a.diff.DeprecatedDeclaredClasses, classHash)
	}
	for address, nonce := range part.Nonces {
		a.seenNonces[address] = true
		if a.diff.Nonces == nil {
			a.diff.Nonces = make(map[string]string)
		}
		a.diff.Nonces[address] = nonce
	}
	for _, rc := range part.ReplacedClasses {
		a.seenReplaced[rc.Address] = true
		a.diff.ReplacedClasses = append(a.diff.ReplacedClasses, rc)
	}

	a.runningLength = a.diff.Len()
	a.possibleLengths = append(a.possibleLengths, a.runningLength)
	return nil
}
