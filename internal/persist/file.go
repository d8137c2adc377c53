package persist

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// FileStore keeps the snapshot in a single JSON file. The file is the key
// namespace, so the configured key is not used.
type FileStore struct {
	path string
}

// NewFileStore creates a store writing to path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Name returns the backend name
func (s *FileStore) Name() string { return "file" }

// Path returns the snapshot file path.
func (s *FileStore) Path() string { return s.path }

// Load reads the snapshot file.
func (s *FileStore) Load(ctx context.Context) ([]byte, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, newStoreError("file", "load", err)
	}
	return data, nil
}

// Save writes the snapshot atomically: a temp file in the same directory is
// renamed over the target.
func (s *FileStore) Save(ctx context.Context, data []byte) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return newStoreError("file", "save", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*")
	if err != nil {
		return newStoreError("file", "save", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return newStoreError("file", "save", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return newStoreError("file", "save", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return newStoreError("file", "save", fmt.Errorf("rename: %w", err))
	}
	return nil
}

// CorruptPath is where SetAside copies a snapshot the editor rejected.
func (s *FileStore) CorruptPath() string { return s.path + ".corrupt" }

// SetAside copies data to CorruptPath, replacing any earlier copy, and
// returns that path.
func (s *FileStore) SetAside(ctx context.Context, data []byte) (string, error) {
	dst := s.CorruptPath()
	if err := os.WriteFile(dst, data, 0644); err != nil {
		return "", newStoreError("file", "set aside", err)
	}
	return dst, nil
}

// Close is a no-op for files.
func (s *FileStore) Close() error { return nil }
