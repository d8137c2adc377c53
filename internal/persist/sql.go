package persist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"  // PostgreSQL driver
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// SQLStore keeps snapshots in a key/value table, one row per key.
type SQLStore struct {
	backend string
	db      *sql.DB
	key     string

	loadQuery string
	saveQuery string
}

const createTable = `CREATE TABLE IF NOT EXISTS editor_snapshots (
	snapshot_key TEXT PRIMARY KEY,
	data TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL
)`

// NewSQLiteStore opens (and creates if needed) the SQLite database at path.
func NewSQLiteStore(ctx context.Context, path, key string) (*SQLStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: failed to open database: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	return newSQLStore(ctx, "sqlite", db, key,
		`SELECT data FROM editor_snapshots WHERE snapshot_key = ?`,
		`INSERT INTO editor_snapshots (snapshot_key, data, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (snapshot_key) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
	)
}

// NewPostgresStore connects to the PostgreSQL database at dsn.
func NewPostgresStore(ctx context.Context, dsn, key string) (*SQLStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres store: dsn is required")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	return newSQLStore(ctx, "postgres", db, key,
		`SELECT data FROM editor_snapshots WHERE snapshot_key = $1`,
		`INSERT INTO editor_snapshots (snapshot_key, data, updated_at) VALUES ($1, $2, $3)
		ON CONFLICT (snapshot_key) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`,
	)
}

func newSQLStore(ctx context.Context, backend string, db *sql.DB, key, loadQuery, saveQuery string) (*SQLStore, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, newStoreError(backend, "connect", err)
	}
	if _, err := db.ExecContext(ctx, createTable); err != nil {
		db.Close()
		return nil, newStoreError(backend, "connect", fmt.Errorf("create table: %w", err))
	}

	return &SQLStore{
		backend:   backend,
		db:        db,
		key:       key,
		loadQuery: loadQuery,
		saveQuery: saveQuery,
	}, nil
}

// Name returns the backend name
func (s *SQLStore) Name() string { return s.backend }

// Load returns the blob stored under the store's key.
func (s *SQLStore) Load(ctx context.Context) ([]byte, error) {
	var data string
	err := s.db.QueryRowContext(ctx, s.loadQuery, s.key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, newStoreError(s.backend, "load", err)
	}
	return []byte(data), nil
}

// Save upserts the blob under the store's key.
func (s *SQLStore) Save(ctx context.Context, data []byte) error {
	if _, err := s.db.ExecContext(ctx, s.saveQuery, s.key, string(data), time.Now().UTC()); err != nil {
		return newStoreError(s.backend, "save", err)
	}
	return nil
}

// Close releases the database connection
func (s *SQLStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
