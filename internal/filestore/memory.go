package filestore

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is an in-memory ObjectStore used by unit tests and local runs
// without an object store endpoint.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// Compile-time interface check.
var _ ObjectStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory object store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte)}
}

// Put writes an object, overwriting any existing object at key.
func (s *MemoryStore) Put(_ context.Context, key string, data []byte) error {
	if key == "" {
		return ErrEmptyObjectKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := make([]byte, len(data))
	copy(stored, data)
	s.objects[key] = stored

	return nil
}

// Get reads an object's full contents.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, ErrEmptyObjectKey
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
	}

	out := make([]byte, len(data))
	copy(out, data)

	return out, nil
}

// Move relocates an object. The source must exist.
func (s *MemoryStore) Move(_ context.Context, fromKey, toKey string) error {
	if fromKey == "" || toKey == "" {
		return ErrEmptyObjectKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.objects[fromKey]
	if !ok {
		return fmt.Errorf("%w: %s", ErrObjectNotFound, fromKey)
	}

	s.objects[toKey] = data
	delete(s.objects, fromKey)

	return nil
}

// Remove deletes an object; removing a missing object is not an error.
func (s *MemoryStore) Remove(_ context.Context, key string) error {
	if key == "" {
		return ErrEmptyObjectKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.objects, key)

	return nil
}

// Keys returns the stored object keys. For test assertions.
func (s *MemoryStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.objects))
	for key := range s.objects {
		keys = append(keys, key)
	}

	return keys
}
