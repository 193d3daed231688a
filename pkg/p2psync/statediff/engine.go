package statediff

import (
	"context"

	"github.com/starknet-p2p/p2p-sync/pkg/p2psync/types"
)

// pendingBlock is one not-yet-committed block's expected state-diff length,
// queued in the order its header arrived.
type pendingBlock struct {
	number types.BlockNumber
	length uint64
}

// Engine drives the header-window -> state-diff-window protocol: it
// consumes signed headers from an external header pipeline, issues
// StateDiff queries against the network manager's subscriber channel in
// fixed-size windows, assembles the multi-part responses per block, and
// commits each reconstructed diff to storage atomically with the marker. A
// single cooperative task consuming the header and state-diff channels and
// producing committed state.
type Engine struct {
	store BlockStore
	log   types.Logger

	headerQueryLength    uint64
	stateDiffQueryLength uint64

	headerQueue []pendingBlock
	issuedUpTo  int

	// queryBoundaries holds, per issued state-diff query in issue order, the
	// cumulative block count that query's responses should bring
	// totalCommitted up to. A Fin arriving before totalCommitted reaches the
	// oldest outstanding boundary means that query's last block never
	// finished assembling.
	queryBoundaries []uint64
	totalCommitted  uint64
}

// EngineConfig names the two window-size constants the engine needs out of
// the shared definition.Config, keeping this package free of a dependency on
// the network manager's full configuration surface.
type EngineConfig struct {
	HeaderQueryLength    uint64
	StateDiffQueryLength uint64
}

// NewEngine constructs an Engine committing to store.
func NewEngine(store BlockStore, log types.Logger, config EngineConfig) *Engine {
	return &Engine{
		store:                store,
		log:                  log,
		headerQueryLength:    config.HeaderQueryLength,
		stateDiffQueryLength: config.StateDiffQueryLength,
	}
}

// Run consumes headers and state-diff chunks until both input channels have
// closed, committing each fully-assembled block as it completes and issuing
// new StateDiff queries on querySender as header windows accumulate.
// Returns the first protocol violation encountered, wrapped as
// P2PSyncError; returns nil if both channels close cleanly with no block
// left in a partially-assembled state.
func (e *Engine) Run(ctx context.Context, headers <-chan types.Data, querySender chan<- types.Query, stateDiffs <-chan types.Data) error {
	asm := newAssembler()
	headersOpen := true
	diffsOpen := true

	for headersOpen || diffsOpen || len(e.headerQueue) > 0 {
		select {
		case <-ctx.Done():
			return nil

		case hd, ok := <-headers:
			if !ok {
				headersOpen = false
				headers = nil
				e.flushPartialWindow(ctx, querySender)
				continue
			}
			if hd.IsFin() {
				headersOpen = false
				headers = nil
				e.flushPartialWindow(ctx, querySender)
				continue
			}
			if hd.Header == nil {
				continue
			}
			e.headerQueue = append(e.headerQueue, pendingBlock{
				number: hd.Header.Header.Number,
				length: hd.Header.Header.StateDiffLength,
			})
			e.issueFullWindows(ctx, querySender)
			// Every received header is either committed or still queued, so
			// this count tells when a header window of headerQueryLength is
			// complete; its last, possibly short, state-diff query goes out then.
			if received := e.totalCommitted + uint64(len(e.headerQueue)); e.headerQueryLength > 0 && received%e.headerQueryLength == 0 {
				e.flushPartialWindow(ctx, querySender)
			}

		case sd, ok := <-stateDiffs:
			if !ok {
				diffsOpen = false
				stateDiffs = nil
				if block, ok := e.currentBlock(); ok {
					return &types.P2PSyncError{
						Block: block.number,
						Cause: &types.WrongStateDiffLength{
							Expected:        block.length,
							PossibleLengths: nonZero(asm.possibleLengths),
						},
					}
				}
				continue
			}
			if err := e.handleStateDiffItem(asm, sd); err != nil {
				block, _ := e.currentBlock()
				return &types.P2PSyncError{Block: block.number, Cause: err}
			}
		}
	}

	return nil
}

func (e *Engine) currentBlock() (pendingBlock, bool) {
	if len(e.headerQueue) == 0 {
		return pendingBlock{}, false
	}
	return e.headerQueue[0], true
}

// handleStateDiffItem merges one response item into asm against the block
// at the front of the queue, committing or failing as the running length
// dictates.
func (e *Engine) handleStateDiffItem(asm *assembler, item types.Data) error {
	if item.IsFin() {
		// Fin marks the end of one state-diff query's response stream, not
		// the end of the subscriber's receiver: the engine keeps listening
		// for whatever query it issues next. Only flag a violation if the
		// query that just ended was itself responsible for a block still
		// left incomplete.
		if len(e.queryBoundaries) == 0 {
			return nil
		}
		boundary := e.queryBoundaries[0]
		e.queryBoundaries = e.queryBoundaries[1:]
		if e.totalCommitted < boundary {
			if block, ok := e.currentBlock(); ok {
				return &types.WrongStateDiffLength{Expected: block.length, PossibleLengths: nonZero(asm.possibleLengths)}
			}
		}
		return nil
	}
	if item.Diff == nil {
		return nil
	}

	block, ok := e.currentBlock()
	if !ok {
		panic("p2psync: state diff chunk received with no pending header")
	}

	if err := asm.merge(item.Diff.Part); err != nil {
		return err
	}

	switch {
	case asm.runningLength == block.length:
		if err := e.store.CommitStateDiff(block.number, asm.diff); err != nil {
			return err
		}
		e.headerQueue = e.headerQueue[1:]
		if e.issuedUpTo > 0 {
			e.issuedUpTo--
		}
		e.totalCommitted++
		asm.diff = types.ThinStateDiff{}
		asm.runningLength = 0
		asm.possibleLengths = nil
		asm.seenContracts = make(map[string]bool)
		asm.seenStorageKeys = make(map[string]map[string]bool)
		asm.seenClasses = make(map[string]bool)
		asm.seenDeprecated = make(map[string]bool)
		asm.seenNonces = make(map[string]bool)
		asm.seenReplaced = make(map[string]bool)

	case asm.runningLength < block.length:
		// accept, wait for more parts

	default:
		return &types.WrongStateDiffLength{Expected: block.length, PossibleLengths: nonZero(asm.possibleLengths)}
	}

	return nil
}

// issueFullWindows sends one StateDiff query per complete
// stateDiffQueryLength-sized chunk of not-yet-issued headers.
func (e *Engine) issueFullWindows(ctx context.Context, querySender chan<- types.Query) {
	for uint64(len(e.headerQueue)-e.issuedUpTo) >= e.stateDiffQueryLength {
		e.issueWindow(ctx, querySender, e.stateDiffQueryLength)
	}
}

// flushPartialWindow issues one final, possibly short, query for whatever
// headers arrived but weren't enough to fill a full window, once the header
// stream has ended.
func (e *Engine) flushPartialWindow(ctx context.Context, querySender chan<- types.Query) {
	remaining := uint64(len(e.headerQueue) - e.issuedUpTo)
	if remaining == 0 {
		return
	}
	e.issueWindow(ctx, querySender, remaining)
}

func (e *Engine) issueWindow(ctx context.Context, querySender chan<- types.Query, limit uint64) {
	start := e.headerQueue[e.issuedUpTo].number
	query := types.Query{
		StartBlock: types.StartBlockNumber(start),
		Direction:  types.Forward,
		Limit:      limit,
		Step:       1,
		DataType:   types.StateDiff,
	}
	select {
	case querySender <- query:
		e.issuedUpTo += int(limit)
		last := uint64(0)
		if n := len(e.queryBoundaries); n > 0 {
			last = e.queryBoundaries[n-1]
		} else {
			last = e.totalCommitted
		}
		e.queryBoundaries = append(e.queryBoundaries, last+limit)
	case <-ctx.Done():
	}
}

// nonZero filters zero entries out of a possible-lengths accumulator, per
// spec: a merge boundary at length zero never happens since empty parts are
// rejected before the running length is recorded, but defends against it
// anyway for a query whose first state-diff part was never received.
func nonZero(lengths []uint64) []uint64 {
	out := make([]uint64, 0, len(lengths))
	for _, l := range lengths {
		if l != 0 {
			out = append(out, l)
		}
	}
	return out
}
