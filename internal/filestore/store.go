// Package filestore owns the archival bucket where deregistration batch
// files live through their lifecycle: uploaded under raw/, then relocated to
// processed/ or error/ when staging finishes. The raw copy is the durable
// record that allows the remote source copy to be deleted immediately.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
)

// Lifecycle prefixes within the archival bucket.
const (
	RawPrefix       = "raw/"
	ProcessedPrefix = "processed/"
	ErrorPrefix     = "error/"
)

// Store errors.
var (
	// ErrObjectNotFound indicates the requested object does not exist.
	ErrObjectNotFound = errors.New("object not found")

	// ErrEmptyObjectKey indicates an operation was attempted with no key.
	ErrEmptyObjectKey = errors.New("object key must not be empty")
)

type (
	// ObjectStore is the minimal object storage surface the pipeline needs.
	// Implemented by the MinIO-backed store and by an in-memory double for
	// tests.
	ObjectStore interface {
		// Put writes an object, overwriting any existing object at key.
		Put(ctx context.Context, key string, data []byte) error

		// Get reads an object's full contents.
		Get(ctx context.Context, key string) ([]byte, error)

		// Move atomically-enough relocates an object (copy then delete; object
		// stores have no rename). The source must exist.
		Move(ctx context.Context, fromKey, toKey string) error

		// Remove deletes an object. Removing a missing object is not an error.
		Remove(ctx context.Context, key string) error
	}

	// StoredFile locates one archived batch file and remembers the name it
	// arrived under, which is the key staged rows are tied to.
	StoredFile struct {
		Bucket       string
		Key          string
		OriginalName string
	}

	// Manager drives a batch file through the raw -> processed | error
	// lifecycle on top of an ObjectStore.
	Manager struct {
		store  ObjectStore
		bucket string
	}
)

// URI returns the file's s3-style address for logs and notifications.
func (f StoredFile) URI() string {
	return "s3://" + f.Bucket + "/" + f.Key
}

// NewManager creates a lifecycle manager writing into the given bucket.
func NewManager(store ObjectStore, bucket string) *Manager {
	return &Manager{store: store, bucket: bucket}
}

// UploadRaw archives a freshly fetched batch file under raw/. Once this
// returns, the remote source copy is redundant and safe to delete.
func (m *Manager) UploadRaw(ctx context.Context, filename string, data []byte) (StoredFile, error) {
	name := path.Base(strings.TrimSpace(filename))
	if name == "" || name == "." || name == "/" {
		return StoredFile{}, fmt.Errorf("%w: %q", ErrEmptyObjectKey, filename)
	}

	key := RawPrefix + name
	if err := m.store.Put(ctx, key, data); err != nil {
		return StoredFile{}, fmt.Errorf("failed to archive %s: %w", name, err)
	}

	return StoredFile{Bucket: m.bucket, Key: key, OriginalName: name}, nil
}

// MoveToProcessed relocates a raw file to processed/, marking the whole file
// as staged. Record-level reconciliation failures do not demote this.
func (m *Manager) MoveToProcessed(ctx context.Context, file StoredFile) (StoredFile, error) {
	return m.relocate(ctx, file, ProcessedPrefix)
}

// MoveToError relocates a raw file to error/ after a file-level failure such
// as header validation or staging errors.
func (m *Manager) MoveToError(ctx context.Context, file StoredFile) (StoredFile, error) {
	return m.relocate(ctx, file, ErrorPrefix)
}

func (m *Manager) relocate(ctx context.Context, file StoredFile, prefix string) (StoredFile, error) {
	toKey := prefix + file.OriginalName

	if err := m.store.Move(ctx, file.Key, toKey); err != nil {
		return StoredFile{}, fmt.Errorf("failed to relocate %s to %s: %w",
			file.Key, toKey, err)
	}

	return StoredFile{Bucket: file.Bucket, Key: toKey, OriginalName: file.OriginalName}, nil
}
