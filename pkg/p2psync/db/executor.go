// Package db defines the DB executor port: the network manager's contract
// with the on-disk storage engine for serving inbound queries. The storage
// engine itself (reader/writer over an actual database) is an external
// collaborator out of scope for this module; only the port and an
// in-memory test double live here.
package db

import (
	"github.com/starknet-p2p/p2p-sync/pkg/p2psync/types"
)

// Sink is the lazy-sequence channel a registered query's results are driven
// into. The executor closes it once the query is exhausted.
type Sink chan types.Data

// Result reports that a registered query finished, successfully or not.
type Result struct {
	QueryID types.QueryID
	Err     error
}

// Executor accepts query registrations and drives their results into the
// caller-supplied sink, reporting completion/error asynchronously through
// Results().
type Executor interface {
	// RegisterQuery starts serving internal_query of the given data type,
	// pushing Data items into sink until exhausted, then closing it.
	RegisterQuery(query types.InternalQuery, dt types.DataType, sink Sink) (types.QueryID, error)

	// Results yields one Result per query as it completes (successfully or
	// with a DbError, e.g. a SendError if the sink closed early).
	Results() <-chan Result
}
