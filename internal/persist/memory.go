package persist

import (
	"context"
	"sync"
)

// MemoryStore keeps the snapshot in process memory. Nothing survives a restart.
type MemoryStore struct {
	mu    sync.RWMutex
	data  []byte
	saved bool
}

// NewMemoryStore creates an empty memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Name returns the backend name
func (s *MemoryStore) Name() string { return "memory" }

// Load returns a copy of the last saved blob.
func (s *MemoryStore) Load(ctx context.Context) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.saved {
		return nil, ErrNoSnapshot
	}
	return append([]byte(nil), s.data...), nil
}

// Save stores a copy of data.
func (s *MemoryStore) Save(ctx context.Context, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = append([]byte(nil), data...)
	s.saved = true
	return nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }
