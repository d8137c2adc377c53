// Package persist stores the editor snapshot. A store keeps one opaque blob
// under a fixed key; the editor decides what the blob means.
package persist

import (
	"context"
	"errors"
	"fmt"

	"github.com/livetemplate/pagebuilder/internal/config"
)

// ErrNoSnapshot is returned by Load when nothing has been saved yet.
var ErrNoSnapshot = errors.New("no snapshot stored")

// Store is the interface for snapshot backends.
type Store interface {
	// Name returns the backend name, e.g. "sqlite".
	Name() string

	// Load returns the stored blob, or ErrNoSnapshot.
	Load(ctx context.Context) ([]byte, error)

	// Save replaces the stored blob.
	Save(ctx context.Context, data []byte) error

	// Close releases any resources held by the store
	Close() error
}

// Open creates the store selected by cfg.
func Open(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	switch cfg.Backend {
	case config.BackendFile, "":
		return NewFileStore(cfg.GetPath()), nil
	case config.BackendSQLite:
		return NewSQLiteStore(ctx, cfg.GetPath(), cfg.GetKey())
	case config.BackendPostgres:
		return NewPostgresStore(ctx, cfg.GetDSN(), cfg.GetKey())
	case config.BackendRedis:
		return NewRedisStore(ctx, cfg.GetRedisURL(), cfg.GetKey())
	case config.BackendMemory:
		return NewMemoryStore(), nil
	}
	return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
}
