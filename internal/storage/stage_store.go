package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/vinsync-io/vinsync/internal/config"
	"github.com/vinsync-io/vinsync/internal/retry"
	"github.com/vinsync-io/vinsync/internal/staging"
	"github.com/vinsync-io/vinsync/migrations"
)

// Sentinel errors for staged-record storage operations.
var (
	// ErrStagingFailed is returned when a batch insert fails. The batch is
	// rolled back as a whole; callers must treat this as "staging failed",
	// never as "zero records processed".
	ErrStagingFailed = errors.New("staging batch insert failed")

	// ErrNoPendingRow is returned when a conditional mutation matched no row:
	// the stage ID is unknown, or the row already reached a terminal status.
	ErrNoPendingRow = errors.New("no pending row matched the mutation")

	// Compile-time interface assertion: StageStore implements staging.Store.
	_ staging.Store = (*StageStore)(nil)
)

// PostgreSQL error codes treated as the store's conflict window: a point-
// mutation racing a not-yet-settled write fails with one of these and is
// retried with the bounded policy rather than surfaced.
const (
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
	pqLockNotAvailable     = "55P03"
)

// StageStore implements staging.Store with a PostgreSQL backend.
//
// Mutation discipline:
//   - every status change is one conditional UPDATE keyed by stage ID (or by
//     source filename for bulk failure) and constrained to status='pending',
//     so terminal rows are never overwritten
//   - every mutation runs under the conflict-retry policy: bounded attempts
//     with a fixed delay while the backend reports a conflict, escalating only
//     after the budget is spent
//   - a mutation that affected zero rows is reported as ErrNoPendingRow, never
//     silently treated as success
type StageStore struct {
	conn          *Connection
	logger        *slog.Logger
	conflictRetry retry.Policy
	timeout       time.Duration
}

// NewStageStore creates a PostgreSQL staged-record store using the connection's
// pool and retry configuration.
func NewStageStore(conn *Connection) (*StageStore, error) {
	if conn == nil {
		return nil, ErrNoDatabaseConnection
	}

	return &StageStore{
		conn: conn,
		logger: slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: config.GetEnvLogLevel("LOG_LEVEL", slog.LevelInfo),
		})),
		conflictRetry: retry.Policy{
			MaxAttempts: conn.config.ConflictRetryAttempts,
			Delay:       conn.config.ConflictRetryDelay,
			Retryable:   isConflictWindowError,
		},
		timeout: conn.config.MutationTimeout,
	}, nil
}

// EnsureSchema idempotently applies the embedded schema migrations.
// Safe to call on every pipeline invocation: golang-migrate serializes
// concurrent runs with an advisory lock and reports no-change as success.
func (s *StageStore) EnsureSchema(ctx context.Context) error {
	if err := migrations.Validate(); err != nil {
		return fmt.Errorf("embedded migration validation failed: %w", err)
	}

	driver, err := migratepg.WithInstance(s.conn.DB, &migratepg.Config{})
	if err != nil {
		return fmt.Errorf("failed to create postgres migration driver: %w", err)
	}

	sourceDriver, err := iofs.New(migrations.FS(), ".")
	if err != nil {
		return fmt.Errorf("failed to create embedded migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("schema migration failed: %w", err)
	}

	s.logger.DebugContext(ctx, "staging schema ensured")

	return nil
}

// Stage inserts all records as pending rows in a single transaction and
// returns the assigned entries in input order. Any row error rolls the whole
// batch back and surfaces ErrStagingFailed.
func (s *StageStore) Stage(
	ctx context.Context,
	records []staging.VehicleRecord,
	sourceFilename string,
) ([]staging.StagedEntry, error) {
	if len(records) == 0 {
		return nil, nil
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: begin: %w", ErrStagingFailed, err)
	}

	defer func() {
		_ = tx.Rollback() // No-op after commit.
	}()

	const insertQuery = `
		INSERT INTO staged_records
			(id, vin, vehicle_make, vehicle_model, dereg_date, reg_plate, status, source_filename)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	stmt, err := tx.PrepareContext(ctx, insertQuery)
	if err != nil {
		return nil, fmt.Errorf("%w: prepare: %w", ErrStagingFailed, err)
	}

	defer func() {
		_ = stmt.Close()
	}()

	entries := make([]staging.StagedEntry, 0, len(records))

	for _, record := range records {
		stageID := uuid.NewString()

		if _, err := stmt.ExecContext(ctx,
			stageID,
			record.VIN,
			record.Make,
			record.Model,
			deregDateParam(record.DeregDate),
			record.RegPlate,
			staging.StatusPending.String(),
			sourceFilename,
		); err != nil {
			return nil, fmt.Errorf("%w: vin %s: %w", ErrStagingFailed, record.VIN, err)
		}

		entries = append(entries, staging.StagedEntry{
			StageID:        stageID,
			Record:         record,
			SourceFilename: sourceFilename,
		})
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit: %w", ErrStagingFailed, err)
	}

	s.logger.InfoContext(ctx, "staged records",
		slog.Int("count", len(entries)),
		slog.String("source_filename", sourceFilename),
	)

	return entries, nil
}

// MarkPushed transitions a single pending row to pushed.
func (s *StageStore) MarkPushed(ctx context.Context, stageID string) error {
	if err := staging.ValidateStatusTransition(staging.StatusPending, staging.StatusPushed); err != nil {
		return err
	}

	const query = `
		UPDATE staged_records
		SET status = $1, error_message = NULL, modified_at = now()
		WHERE id = $2 AND status = $3
	`

	return s.mutateOne(ctx, query, staging.StatusPushed.String(), stageID, staging.StatusPending.String())
}

// RecordError transitions a single pending row to failed with a message.
func (s *StageStore) RecordError(ctx context.Context, stageID string, message string) error {
	if err := staging.ValidateStatusTransition(staging.StatusPending, staging.StatusFailed); err != nil {
		return err
	}

	const query = `
		UPDATE staged_records
		SET status = $1, error_message = $2, modified_at = now()
		WHERE id = $3 AND status = $4
	`

	return s.mutateOne(ctx, query,
		staging.StatusFailed.String(), message, stageID, staging.StatusPending.String())
}

// MarkFailedByFile bulk-fails every row still pending for the given source
// filename. Rows already pushed, or failed with their own message, are never
// touched. Zero matched rows is a valid outcome (nothing was pending).
func (s *StageStore) MarkFailedByFile(
	ctx context.Context,
	sourceFilename string,
	message string,
) (int64, error) {
	const query = `
		UPDATE staged_records
		SET status = $1, error_message = $2, modified_at = now()
		WHERE source_filename = $3 AND status = $4
	`

	var affected int64

	err := s.conflictRetry.Do(ctx, func(ctx context.Context) error {
		mctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		result, err := s.conn.ExecContext(mctx, query,
			staging.StatusFailed.String(), message, sourceFilename, staging.StatusPending.String())
		if err != nil {
			return err
		}

		affected, err = result.RowsAffected()

		return err
	})
	if err != nil {
		return 0, fmt.Errorf("bulk failure for %s: %w", sourceFilename, err)
	}

	s.logger.InfoContext(ctx, "bulk-failed pending records",
		slog.String("source_filename", sourceFilename),
		slog.Int64("rows", affected),
	)

	return affected, nil
}

// FetchPending returns all pending rows older than minAge, oldest first.
// A zero minAge applies no age filter.
func (s *StageStore) FetchPending(ctx context.Context, minAge time.Duration) ([]staging.StagedEntry, error) {
	const query = `
		SELECT id, vin, vehicle_make, vehicle_model,
		       COALESCE(to_char(dereg_date, 'YYYY-MM-DD'), ''),
		       reg_plate, source_filename
		FROM staged_records
		WHERE status = $1
		  AND ($2::float8 <= 0 OR created_at < now() - make_interval(secs => $2))
		ORDER BY created_at
	`

	return s.queryEntries(ctx, query, staging.StatusPending.String(), minAge.Seconds())
}

// FetchPendingByFile returns all pending rows staged from the given source
// filename, oldest first. Used by combined-mode reconciliation immediately
// after staging.
func (s *StageStore) FetchPendingByFile(ctx context.Context, sourceFilename string) ([]staging.StagedEntry, error) {
	const query = `
		SELECT id, vin, vehicle_make, vehicle_model,
		       COALESCE(to_char(dereg_date, 'YYYY-MM-DD'), ''),
		       reg_plate, source_filename
		FROM staged_records
		WHERE status = $1
		  AND source_filename = $2
		ORDER BY created_at
	`

	return s.queryEntries(ctx, query, staging.StatusPending.String(), sourceFilename)
}

func (s *StageStore) queryEntries(ctx context.Context, query string, args ...any) ([]staging.StagedEntry, error) {
	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending records: %w", err)
	}

	defer func() {
		_ = rows.Close()
	}()

	var entries []staging.StagedEntry

	for rows.Next() {
		var entry staging.StagedEntry

		if err := rows.Scan(
			&entry.StageID,
			&entry.Record.VIN,
			&entry.Record.Make,
			&entry.Record.Model,
			&entry.Record.DeregDate,
			&entry.Record.RegPlate,
			&entry.SourceFilename,
		); err != nil {
			return nil, fmt.Errorf("failed to scan pending record: %w", err)
		}

		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pending records: %w", err)
	}

	return entries, nil
}

// mutateOne executes a conditional single-row mutation under the conflict-
// retry policy. A mutation matching zero rows returns ErrNoPendingRow.
func (s *StageStore) mutateOne(ctx context.Context, query string, args ...any) error {
	return s.conflictRetry.Do(ctx, func(ctx context.Context) error {
		mctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		result, err := s.conn.ExecContext(mctx, query, args...)
		if err != nil {
			if isConflictWindowError(err) {
				s.logger.WarnContext(ctx, "mutation blocked by conflict window; retrying",
					slog.String("error", err.Error()),
				)
			}

			return err
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}

		if affected == 0 {
			return ErrNoPendingRow
		}

		return nil
	})
}

// isConflictWindowError reports whether err is a transient write conflict
// worth retrying. ErrNoPendingRow is deliberately not retryable: the row is
// visible and terminal, not settling.
func isConflictWindowError(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case pqSerializationFailure, pqDeadlockDetected, pqLockNotAvailable:
			return true
		}
	}

	return false
}

// deregDateParam maps an empty decoder date to SQL NULL.
func deregDateParam(date string) sql.NullString {
	if date == "" {
		return sql.NullString{}
	}

	return sql.NullString{String: date, Valid: true}
}
