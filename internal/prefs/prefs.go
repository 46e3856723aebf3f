// Package prefs stores small per-viewer settings that live with the client rather than
// in the backend.
package prefs

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

// KeyFocusDuration is the preference holding the configured focus length in minutes.
const KeyFocusDuration = "focus.duration_min"

// ErrNotFound is returned when a key has no stored value.
var ErrNotFound = errors.New("preference not set")

// Store reads and writes string preferences scoped to a viewer key.
type Store interface {
	Get(ctx context.Context, viewer, key string) (string, error)
	Set(ctx context.Context, viewer, key, value string) error
}

// Int reads key as an integer. Missing or unparsable values yield fallback.
func Int(ctx context.Context, store Store, viewer, key string, fallback int) int {
	raw, err := store.Get(ctx, viewer, key)
	if err != nil {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

// SetInt stores an integer preference.
func SetInt(ctx context.Context, store Store, viewer, key string, value int) error {
	return store.Set(ctx, viewer, key, strconv.Itoa(value))
}

// SQLiteStore keeps preferences in a local sqlite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the preference database at dsn.
func OpenSQLite(ctx context.Context, dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	// sqlite serialises writers; one connection avoids SQLITE_BUSY churn.
	db.SetMaxOpenConns(1)

	const schema = `CREATE TABLE IF NOT EXISTS preferences (
        viewer TEXT NOT NULL,
        key TEXT NOT NULL,
        value TEXT NOT NULL,
        updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        PRIMARY KEY (viewer, key)
    )`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, viewer, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM preferences WHERE viewer = ? AND key = ?`, viewer, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return value, err
}

// Set implements Store.
func (s *SQLiteStore) Set(ctx context.Context, viewer, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO preferences (viewer, key, value, updated_at) VALUES (?, ?, ?, CURRENT_TIMESTAMP)
         ON CONFLICT(viewer, key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		viewer, key, value)
	return err
}

// Close releases the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

// Get implements Store.
func (m *MemoryStore) Get(_ context.Context, viewer, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.values[viewer+"\x00"+key]
	if !ok {
		return "", ErrNotFound
	}
	return value, nil
}

// Set implements Store.
func (m *MemoryStore) Set(_ context.Context, viewer, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[viewer+"\x00"+key] = value
	return nil
}
