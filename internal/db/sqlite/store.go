// Package sqlite provides SQLite database operations for dwell.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // CGO-free SQLite driver
)

// StoreConfig holds database configuration.
type StoreConfig struct {
	Path     string // Path to the SQLite database file
	MaxConns int    // Maximum number of open connections (default: 4)
	WALMode  bool   // Enable WAL journal mode for concurrent reads
}

// Store wraps the SQLite connection. Migrations run automatically at open.
type Store struct {
	db *sql.DB
}

// NewStore opens (creating if needed) the database at cfg.Path and applies
// pending migrations.
func NewStore(cfg StoreConfig) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	dsn := "file:" + cfg.Path + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)"
	if cfg.WALMode {
		dsn += "&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	maxConns := cfg.MaxConns
	if maxConns <= 0 {
		maxConns = 4
	}
	db.SetMaxOpenConns(maxConns)

	s := &Store{db: db}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return s, nil
}

// ExecContext executes a statement against the underlying database.
func (s *Store) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, query, args...)
}

// QueryContext runs a query against the underlying database.
func (s *Store) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, query, args...)
}

// QueryRowContext runs a single-row query against the underlying database.
func (s *Store) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, query, args...)
}

// BeginTx starts a transaction.
func (s *Store) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return s.db.BeginTx(ctx, nil)
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
