// Package store abstracts the distributed wide-column backing store. Rows
// hold named columns; every write carries an explicit timestamp and the
// store resolves conflicting writes per cell by last-write-wins, with
// tombstones winning timestamp ties. Implementations provide their own
// durability and replication; this package only fixes the contract the
// write path depends on.
package store

import (
	"context"
	"time"
)

// ConsistencyLevel selects how many replicas must acknowledge an operation.
// Implementations without replication may ignore it.
type ConsistencyLevel int

const (
	// One requires a single replica.
	One ConsistencyLevel = iota
	// Quorum requires a majority of replicas.
	Quorum
	// All requires every replica.
	All
)

// String returns the level's name.
func (cl ConsistencyLevel) String() string {
	switch cl {
	case One:
		return "ONE"
	case Quorum:
		return "QUORUM"
	case All:
		return "ALL"
	default:
		return "UNKNOWN"
	}
}

// Mutation is a single timestamped cell write. Tombstone mutations delete
// the cell for readers whose write timestamp is not newer than Timestamp.
type Mutation struct {
	Row       string
	Column    string
	Value     []byte
	Timestamp int64 // microseconds since epoch
	Tombstone bool
}

// Put builds an insert/update mutation for one cell.
func Put(row, column string, value []byte, ts time.Time) Mutation {
	return Mutation{Row: row, Column: column, Value: value, Timestamp: ts.UnixMicro()}
}

// Delete builds a tombstone mutation for one cell.
func Delete(row, column string, ts time.Time) Mutation {
	return Mutation{Row: row, Column: column, Timestamp: ts.UnixMicro(), Tombstone: true}
}

// Store is a row-oriented wide-column store with timestamp-ordered writes.
//
// Reads never return tombstoned cells. Apply submits a batch of independent
// cell writes: the batch is coordinated, not atomic, and each write is
// idempotent: replaying a mutation with the same timestamp is a no-op for
// conflict resolution purposes. A mutation older than the live cell's
// timestamp loses silently.
type Store interface {
	// Read returns the live values of the requested columns. Missing or
	// tombstoned columns are absent from the result; reading a missing row
	// is not an error.
	Read(ctx context.Context, row string, columns []string, cl ConsistencyLevel) (map[string][]byte, error)

	// ReadRow returns all live columns of a row.
	ReadRow(ctx context.Context, row string, cl ConsistencyLevel) (map[string][]byte, error)

	// Apply submits a batch of mutations.
	Apply(ctx context.Context, cl ConsistencyLevel, muts ...Mutation) error

	// CompareAndSet atomically sets the cell to value iff its current live
	// value equals expect (expect == nil means the cell must be absent).
	// It reports whether the swap was applied. The written cell is stamped
	// with the store's current time.
	CompareAndSet(ctx context.Context, row, column string, expect, value []byte) (bool, error)
}
