package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/thebtf/dwell/pkg/models"
)

// HistoryStore mirrors the browser's navigation history. The daemon cannot
// reach the browser's own history database, so the extension pushes event
// batches here and reports read from the mirror.
type HistoryStore struct {
	store *Store
}

// NewHistoryStore creates a new history mirror store.
func NewHistoryStore(store *Store) *HistoryStore {
	return &HistoryStore{store: store}
}

// InsertBatch stores navigation events, deduplicating on (url, timestamp) so
// the extension can safely re-push overlapping batches. Returns how many
// events were newly inserted.
func (h *HistoryStore) InsertBatch(ctx context.Context, events []models.NavigationEvent) (int64, error) {
	if len(events) == 0 {
		return 0, nil
	}

	tx, err := h.store.BeginTx(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin history batch: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const query = `
		INSERT OR IGNORE INTO history_events (url, title, visited_at_epoch)
		VALUES (?, ?, ?)
	`

	var inserted int64
	for _, ev := range events {
		if ev.URL == "" {
			continue
		}
		res, err := tx.ExecContext(ctx, query, ev.URL, ev.Title, ev.VisitedAtMs)
		if err != nil {
			return 0, fmt.Errorf("insert history event: %w", err)
		}
		n, _ := res.RowsAffected()
		inserted += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit history batch: %w", err)
	}
	return inserted, nil
}

// Search returns navigation events with visited_at in [start, end), capped
// at maxResults. Hitting the cap truncates silently; callers treat the
// result as an accepted approximation. Ordering is not guaranteed — the
// reconciliation engine sorts for itself.
func (h *HistoryStore) Search(ctx context.Context, start, end time.Time, maxResults int) ([]models.NavigationEvent, error) {
	const query = `
		SELECT url, title, visited_at_epoch
		FROM history_events
		WHERE visited_at_epoch >= ? AND visited_at_epoch < ?
		LIMIT ?
	`

	rows, err := h.store.QueryContext(ctx, query, start.UnixMilli(), end.UnixMilli(), maxResults)
	if err != nil {
		return nil, fmt.Errorf("search history: %w", err)
	}
	defer rows.Close()

	var events []models.NavigationEvent
	for rows.Next() {
		var ev models.NavigationEvent
		if err := rows.Scan(&ev.URL, &ev.Title, &ev.VisitedAtMs); err != nil {
			return nil, fmt.Errorf("scan history event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return events, nil
}

// PruneBefore deletes mirrored events older than the cutoff and returns the
// number removed. Day-bucket records are never pruned here; their retention
// is an external concern.
func (h *HistoryStore) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := h.store.ExecContext(ctx,
		`DELETE FROM history_events WHERE visited_at_epoch < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("prune history: %w", err)
	}
	return res.RowsAffected()
}
