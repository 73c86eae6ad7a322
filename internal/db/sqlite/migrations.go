package sqlite

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
)

// migration is one schema change, applied in version order exactly once.
type migration struct {
	version int
	name    string
	stmts   []string
}

var migrations = []migration{
	{
		version: 1,
		name:    "create day_stats",
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS day_stats (
				bucket_key       TEXT    NOT NULL,
				domain           TEXT    NOT NULL,
				time_ms          INTEGER NOT NULL DEFAULT 0,
				visits           INTEGER NOT NULL DEFAULT 0,
				last_visit_epoch INTEGER NOT NULL DEFAULT 0,
				icon             TEXT    NOT NULL DEFAULT '',
				PRIMARY KEY (bucket_key, domain)
			)`,
		},
	},
	{
		version: 2,
		name:    "create history_events",
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS history_events (
				id               INTEGER PRIMARY KEY AUTOINCREMENT,
				url              TEXT    NOT NULL,
				title            TEXT    NOT NULL DEFAULT '',
				visited_at_epoch INTEGER NOT NULL,
				UNIQUE (url, visited_at_epoch)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_history_visited
				ON history_events (visited_at_epoch)`,
		},
	},
}

// migrate applies all pending migrations inside a transaction per version.
func (s *Store) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			name       TEXT NOT NULL,
			applied_at TEXT NOT NULL DEFAULT (datetime('now'))
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	var current int
	err = s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.version, err)
		}

		for _, stmt := range m.stmts {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("migration %d (%s): %w", m.version, m.name, err)
			}
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO schema_migrations (version, name) VALUES (?, ?)`,
			m.version, m.name,
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.version, err)
		}
		log.Debug().Int("version", m.version).Str("name", m.name).Msg("Applied migration")
	}

	return nil
}
