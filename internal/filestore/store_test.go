package filestore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_UploadRaw(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	store := NewMemoryStore()
	manager := NewManager(store, "dereg-files")

	file, err := manager.UploadRaw(context.Background(), "batch_20240115.csv", []byte("data"))

	require.NoError(t, err)
	assert.Equal(t, "raw/batch_20240115.csv", file.Key)
	assert.Equal(t, "batch_20240115.csv", file.OriginalName)
	assert.Equal(t, "s3://dereg-files/raw/batch_20240115.csv", file.URI())

	data, err := store.Get(context.Background(), file.Key)
	require.NoError(t, err)
	assert.Equal(t, []byte("data"), data)
}

func TestManager_UploadRaw_StripsRemotePath(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	manager := NewManager(NewMemoryStore(), "dereg-files")

	file, err := manager.UploadRaw(context.Background(), "/outbound/dereg/batch.csv", []byte("data"))

	require.NoError(t, err)
	assert.Equal(t, "raw/batch.csv", file.Key)
	assert.Equal(t, "batch.csv", file.OriginalName)
}

func TestManager_UploadRaw_EmptyName(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	manager := NewManager(NewMemoryStore(), "dereg-files")

	_, err := manager.UploadRaw(context.Background(), "  ", []byte("data"))
	assert.ErrorIs(t, err, ErrEmptyObjectKey)
}

func TestManager_Relocation(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	tests := []struct {
		name    string
		move    func(*Manager, context.Context, StoredFile) (StoredFile, error)
		wantKey string
	}{
		{
			name: "to processed",
			move: func(m *Manager, ctx context.Context, f StoredFile) (StoredFile, error) {
				return m.MoveToProcessed(ctx, f)
			},
			wantKey: "processed/batch.csv",
		},
		{
			name: "to error",
			move: func(m *Manager, ctx context.Context, f StoredFile) (StoredFile, error) {
				return m.MoveToError(ctx, f)
			},
			wantKey: "error/batch.csv",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewMemoryStore()
			manager := NewManager(store, "dereg-files")

			file, err := manager.UploadRaw(context.Background(), "batch.csv", []byte("data"))
			require.NoError(t, err)

			moved, err := tt.move(manager, context.Background(), file)
			require.NoError(t, err)

			assert.Equal(t, tt.wantKey, moved.Key)
			assert.Equal(t, "batch.csv", moved.OriginalName)
			assert.ElementsMatch(t, []string{tt.wantKey}, store.Keys(), "raw copy removed")
		})
	}
}

func TestManager_RelocateMissingFileFails(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	manager := NewManager(NewMemoryStore(), "dereg-files")

	_, err := manager.MoveToProcessed(context.Background(),
		StoredFile{Bucket: "dereg-files", Key: "raw/ghost.csv", OriginalName: "ghost.csv"})

	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestMemoryStore_RemoveMissingIsNoop(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	store := NewMemoryStore()

	assert.NoError(t, store.Remove(context.Background(), "raw/ghost.csv"))
}

func TestConfig_Validate(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	valid := func() *Config {
		return &Config{
			Endpoint:  "minio.internal:9000",
			AccessKey: "key",
			SecretKey: "secret",
			Bucket:    "dereg-files",
		}
	}

	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, valid().Validate())
	})

	t.Run("missing endpoint", func(t *testing.T) {
		cfg := valid()
		cfg.Endpoint = ""
		assert.ErrorIs(t, cfg.Validate(), ErrMissingEndpoint)
	})

	t.Run("missing credentials", func(t *testing.T) {
		cfg := valid()
		cfg.SecretKey = ""
		assert.ErrorIs(t, cfg.Validate(), ErrMissingCredentials)
	})

	t.Run("missing bucket", func(t *testing.T) {
		cfg := valid()
		cfg.Bucket = ""
		assert.ErrorIs(t, cfg.Validate(), ErrMissingBucket)
	})
}
