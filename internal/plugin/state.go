package plugin

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
)

// StateStore records which plugin files are active.
type StateStore interface {
	IsActive(ctx context.Context, file string) (bool, error)
	SetActive(ctx context.Context, file string, active bool) error
}

// MemoryState is an in-process StateStore.
type MemoryState struct {
	mu     sync.Mutex
	active map[string]bool
}

// NewMemoryState returns a store with the given files marked active.
func NewMemoryState(active ...string) *MemoryState {
	s := &MemoryState{active: make(map[string]bool, len(active))}
	for _, file := range active {
		s.active[file] = true
	}
	return s
}

// IsActive implements StateStore.
func (s *MemoryState) IsActive(_ context.Context, file string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active[file], nil
}

// SetActive implements StateStore.
func (s *MemoryState) SetActive(_ context.Context, file string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if active {
		s.active[file] = true
	} else {
		delete(s.active, file)
	}
	return nil
}

const stateSchema = `
CREATE TABLE IF NOT EXISTS plugin_state (
	file   TEXT PRIMARY KEY,
	active INTEGER NOT NULL DEFAULT 0
)`

// SQLiteState keeps plugin state in a table of an already-open database,
// normally the one backing the transient cache.
type SQLiteState struct {
	db *sql.DB
}

// OpenSQLiteState creates the plugin_state table in db if needed. The caller
// keeps ownership of db.
func OpenSQLiteState(ctx context.Context, db *sql.DB) (*SQLiteState, error) {
	if db == nil {
		return nil, fmt.Errorf("open plugin state: nil database")
	}
	if _, err := db.ExecContext(ctx, stateSchema); err != nil {
		return nil, fmt.Errorf("create plugin_state table: %w", err)
	}
	return &SQLiteState{db: db}, nil
}

// IsActive implements StateStore. Unknown files are inactive.
func (s *SQLiteState) IsActive(ctx context.Context, file string) (bool, error) {
	var active int
	err := s.db.QueryRowContext(ctx, `SELECT active FROM plugin_state WHERE file = ?`, file).Scan(&active)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read plugin state %s: %w", file, err)
	}
	return active != 0, nil
}

// SetActive implements StateStore.
func (s *SQLiteState) SetActive(ctx context.Context, file string, active bool) error {
	v := 0
	if active {
		v = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO plugin_state (file, active) VALUES (?, ?)
		ON CONFLICT(file) DO UPDATE SET active = excluded.active
	`, file, v)
	if err != nil {
		return fmt.Errorf("write plugin state %s: %w", file, err)
	}
	return nil
}

var (
	_ StateStore = (*MemoryState)(nil)
	_ StateStore = (*SQLiteState)(nil)
)
