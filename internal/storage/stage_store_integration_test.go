package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	pgcontainer "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/vinsync-io/vinsync/internal/staging"
)

// setupStageStore creates a PostgreSQL testcontainer, connects and runs the
// embedded migrations through EnsureSchema (the production schema path).
func setupStageStore(ctx context.Context, t *testing.T) *StageStore {
	t.Helper()

	postgresContainer, err := pgcontainer.Run(ctx,
		"postgres:16-alpine",
		pgcontainer.WithDatabase("vinsync_test"),
		pgcontainer.WithUsername("test"),
		pgcontainer.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(120*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")

	connStr, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "failed to get connection string")

	cfg := &Config{
		databaseURL:           connStr,
		MaxOpenConns:          defaultMaxOpenConns,
		MaxIdleConns:          defaultMaxIdleConns,
		ConnMaxLifetime:       defaultConnMaxLifetime,
		ConnMaxIdleTime:       defaultConnMaxIdleTime,
		ConflictRetryAttempts: 3,
		ConflictRetryDelay:    10 * time.Millisecond,
		MutationTimeout:       defaultMutationTimeout,
	}

	conn, err := NewConnection(cfg)
	require.NoError(t, err, "failed to connect to test database")

	store, err := NewStageStore(conn)
	require.NoError(t, err)

	require.NoError(t, store.EnsureSchema(ctx), "EnsureSchema failed")

	t.Cleanup(func() {
		_ = conn.Close()
		_ = testcontainers.TerminateContainer(postgresContainer)
	})

	return store
}

// rowStatus reads a row's status and error message directly, bypassing the store.
func rowStatus(ctx context.Context, t *testing.T, store *StageStore, stageID string) (string, string) {
	t.Helper()

	var status string

	var message *string

	err := store.conn.QueryRowContext(ctx,
		`SELECT status, error_message FROM staged_records WHERE id = $1`, stageID,
	).Scan(&status, &message)
	require.NoError(t, err)

	if message == nil {
		return status, ""
	}

	return status, *message
}

func testRecords() []staging.VehicleRecord {
	return []staging.VehicleRecord{
		{Make: "HYUNDAI", Model: "Kona", VIN: "KMHK3815GLU123456", DeregDate: "2024-06-30", RegPlate: "ABC123"},
		{Make: "ISUZU", Model: "D-Max", VIN: "MPATFS85JHT654321", DeregDate: "", RegPlate: "DEF456"},
		{Make: "RENAULT", Model: "Koleos", VIN: "VF1HZG00968111222", DeregDate: "2024-01-15", RegPlate: "GHI789"},
	}
}

func TestEnsureSchema_Idempotent(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	store := setupStageStore(ctx, t)

	// Second run must neither error nor duplicate the table.
	require.NoError(t, store.EnsureSchema(ctx))
	require.NoError(t, store.EnsureSchema(ctx))

	var count int
	err := store.conn.QueryRowContext(ctx,
		`SELECT count(*) FROM information_schema.tables WHERE table_name = 'staged_records'`,
	).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestStage_AssignsIDsAndInsertsPending(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	store := setupStageStore(ctx, t)

	entries, err := store.Stage(ctx, testRecords(), "dereg_20240701.csv")
	require.NoError(t, err)
	require.Len(t, entries, 3)

	seen := make(map[string]bool)

	for i, entry := range entries {
		assert.NotEmpty(t, entry.StageID)
		assert.False(t, seen[entry.StageID], "stage IDs must be unique")
		seen[entry.StageID] = true

		assert.Equal(t, testRecords()[i].VIN, entry.Record.VIN)
		assert.Equal(t, "dereg_20240701.csv", entry.SourceFilename)

		status, _ := rowStatus(ctx, t, store, entry.StageID)
		assert.Equal(t, "pending", status)
	}
}

func TestStage_EmptyBatchIsNoop(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	store := setupStageStore(ctx, t)

	entries, err := store.Stage(ctx, nil, "empty.csv")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestMarkPushed_ThenNoRowRemainsPending(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	store := setupStageStore(ctx, t)

	entries, err := store.Stage(ctx, testRecords(), "dereg_20240701.csv")
	require.NoError(t, err)

	// A completed reconciliation pass transitions every row.
	require.NoError(t, store.MarkPushed(ctx, entries[0].StageID))
	require.NoError(t, store.RecordError(ctx, entries[1].StageID, "vehicle not found in CRM"))
	require.NoError(t, store.MarkPushed(ctx, entries[2].StageID))

	pending, err := store.FetchPending(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, pending, "no row may remain pending after a completed pass")

	status, message := rowStatus(ctx, t, store, entries[1].StageID)
	assert.Equal(t, "failed", status)
	assert.Equal(t, "vehicle not found in CRM", message)
}

func TestMarkPushed_TerminalRowRejected(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	store := setupStageStore(ctx, t)

	entries, err := store.Stage(ctx, testRecords()[:1], "dereg_20240701.csv")
	require.NoError(t, err)

	require.NoError(t, store.MarkPushed(ctx, entries[0].StageID))

	// The conditional UPDATE matches zero rows the second time.
	err = store.MarkPushed(ctx, entries[0].StageID)
	assert.ErrorIs(t, err, ErrNoPendingRow)

	// And a failed row can never be revived through RecordError either.
	err = store.RecordError(ctx, entries[0].StageID, "late failure")
	assert.ErrorIs(t, err, ErrNoPendingRow)

	status, message := rowStatus(ctx, t, store, entries[0].StageID)
	assert.Equal(t, "pushed", status)
	assert.Empty(t, message)
}

func TestMarkFailedByFile_OnlyPendingRowsTouched(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	store := setupStageStore(ctx, t)

	entries, err := store.Stage(ctx, testRecords(), "dereg_20240701.csv")
	require.NoError(t, err)

	otherFile, err := store.Stage(ctx, testRecords()[:1], "dereg_20240702.csv")
	require.NoError(t, err)

	require.NoError(t, store.MarkPushed(ctx, entries[0].StageID))

	affected, err := store.MarkFailedByFile(ctx, "dereg_20240701.csv", "failed to relocate dereg_20240701.csv")
	require.NoError(t, err)
	assert.Equal(t, int64(2), affected)

	// Pushed row keeps its status; pending rows of the file are failed.
	status, _ := rowStatus(ctx, t, store, entries[0].StageID)
	assert.Equal(t, "pushed", status)

	for _, entry := range entries[1:] {
		status, message := rowStatus(ctx, t, store, entry.StageID)
		assert.Equal(t, "failed", status)
		assert.Contains(t, message, "dereg_20240701.csv")
	}

	// Rows of other files are untouched.
	status, _ = rowStatus(ctx, t, store, otherFile[0].StageID)
	assert.Equal(t, "pending", status)
}

func TestRestageSameVIN_ProducesIndependentRows(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	store := setupStageStore(ctx, t)

	record := testRecords()[:1]

	first, err := store.Stage(ctx, record, "dereg_20240701.csv")
	require.NoError(t, err)

	second, err := store.Stage(ctx, record, "dereg_20240708.csv")
	require.NoError(t, err)

	require.NotEqual(t, first[0].StageID, second[0].StageID)

	// Both rows reconcile independently.
	require.NoError(t, store.MarkPushed(ctx, first[0].StageID))
	require.NoError(t, store.RecordError(ctx, second[0].StageID, "transport error"))

	status, _ := rowStatus(ctx, t, store, first[0].StageID)
	assert.Equal(t, "pushed", status)

	status, _ = rowStatus(ctx, t, store, second[0].StageID)
	assert.Equal(t, "failed", status)
}

func TestFetchPending_MinAgeFilter(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	store := setupStageStore(ctx, t)

	_, err := store.Stage(ctx, testRecords(), "dereg_20240701.csv")
	require.NoError(t, err)

	// Freshly staged rows are younger than any positive minimum age.
	pending, err := store.FetchPending(ctx, time.Hour)
	require.NoError(t, err)
	assert.Empty(t, pending)

	pending, err = store.FetchPending(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, pending, 3)

	// Empty dereg dates round-trip as empty strings.
	assert.Equal(t, "", pending[1].Record.DeregDate)
	assert.Equal(t, "2024-06-30", pending[0].Record.DeregDate)
}

func TestMarkPushed_UnknownStageID(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	store := setupStageStore(ctx, t)

	err := store.MarkPushed(ctx, "00000000-0000-0000-0000-000000000000")
	assert.True(t, errors.Is(err, ErrNoPendingRow), "unknown stage ID must report ErrNoPendingRow, got %v", err)
}

func TestFetchPendingByFile_ScopedToFilename(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	store := setupStageStore(ctx, t)

	first, err := store.Stage(ctx, testRecords(), "dereg_20240701.csv")
	require.NoError(t, err)
	_, err = store.Stage(ctx, testRecords(), "dereg_20240708.csv")
	require.NoError(t, err)

	require.NoError(t, store.MarkPushed(ctx, first[0].StageID))

	pending, err := store.FetchPendingByFile(ctx, "dereg_20240701.csv")
	require.NoError(t, err)
	assert.Len(t, pending, 2, "pushed row excluded, other file's rows excluded")

	for _, entry := range pending {
		assert.Equal(t, "dereg_20240701.csv", entry.SourceFilename)
	}
}
