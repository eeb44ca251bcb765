// Package journal persists per-stage records of pipeline runs, so a run
// can be audited or replayed after the fact.
package journal

import (
	"errors"
	"time"
)

// Record is one journal entry: a single stage of a pipeline run. The
// result is stored as JSON so any store can hold it.
type Record struct {
	// RunID identifies the pipeline run.
	RunID string
	// Seq is the stage's position in the run, assigned by the store
	// starting at 1.
	Seq int
	// Verb is the stage's verb name.
	Verb string
	// Expr is the rendered deferred call.
	Expr string
	// Result is the stage's output encoded as JSON. Nil when the stage
	// failed.
	Result []byte
	// Err is the stage's error text, empty on success.
	Err string
	// Timestamp is when the record was appended, in UTC.
	Timestamp time.Time
}

// Store persists journal records.
// Implementations must be safe for concurrent use.
type Store interface {
	// Append stores a record, assigning its sequence number and
	// timestamp. The passed record's Seq and Timestamp are ignored.
	Append(rec Record) error

	// List returns all records for a run in sequence order. A run with
	// no records yields an empty slice, not an error.
	List(runID string) ([]Record, error)

	// Last returns the most recent record for a run.
	// Returns ErrNotFound when the run has no records.
	Last(runID string) (Record, error)

	// DeleteRun removes all records for a run. Removing an absent run
	// is a no-op.
	DeleteRun(runID string) error

	// Close releases any resources (connections, files).
	Close() error
}

// Sentinel errors for journal operations.
var (
	// ErrNotFound indicates a requested record doesn't exist.
	ErrNotFound = errors.New("journal record not found")

	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("journal store closed")
)
