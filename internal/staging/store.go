package staging

import (
	"context"
	"time"
)

// Store defines the interface for staged-record persistence.
//
// The domain package defines this interface to specify what it needs for
// record storage, without depending on concrete implementations. The
// PostgreSQL implementation lives in internal/storage.
//
// Implementations must support:
//   - Atomic batch staging: Stage inserts all rows or none; a partial insert
//     is never left unaccounted
//   - Conditional mutations: status updates apply only to rows still pending,
//     so pushed/failed rows are never overwritten
//   - Conflict-window retry: mutations issued against rows still inside the
//     backend's write-visibility window are retried with a bounded policy
//     before escalating to the caller
type Store interface {
	// EnsureSchema idempotently creates the staging table if absent.
	// Safe to call on every pipeline invocation.
	EnsureSchema(ctx context.Context) error

	// Stage assigns a stage ID to every record, inserts all rows with status
	// pending as one batch, and returns the assigned entries in input order.
	// Any row-level error fails the whole batch.
	Stage(ctx context.Context, records []VehicleRecord, sourceFilename string) ([]StagedEntry, error)

	// MarkPushed transitions a single pending row to pushed.
	MarkPushed(ctx context.Context, stageID string) error

	// RecordError transitions a single pending row to failed with a message.
	RecordError(ctx context.Context, stageID string, message string) error

	// MarkFailedByFile bulk-fails every row still pending for the given source
	// filename. Rows already pushed, or already failed with their own message,
	// are never touched. Returns the number of rows transitioned.
	MarkFailedByFile(ctx context.Context, sourceFilename string, message string) (int64, error)

	// FetchPending returns all pending rows older than minAge.
	// A zero minAge applies no age filter.
	FetchPending(ctx context.Context, minAge time.Duration) ([]StagedEntry, error)

	// FetchPendingByFile returns all pending rows staged from the given
	// source filename, regardless of age.
	FetchPendingByFile(ctx context.Context, sourceFilename string) ([]StagedEntry, error)
}
