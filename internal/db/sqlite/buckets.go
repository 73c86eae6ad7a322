package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/thebtf/dwell/pkg/models"
)

// BucketStore persists DomainDayRecord entries, one record-set per calendar
// day. The tracker is the only writer; the reconciliation engine reads.
type BucketStore struct {
	store *Store
}

// NewBucketStore creates a new bucket store.
func NewBucketStore(store *Store) *BucketStore {
	return &BucketStore{store: store}
}

// MergeDayBucket accumulates delta dwell time for a domain in the bucket of
// now's calendar day, creating the record if absent, and refreshes the
// last-visit timestamp. A zero delta still refreshes last-visit. The upsert
// is a single atomic statement, so rapid back-to-back flushes for the same
// bucket never lose writes.
func (b *BucketStore) MergeDayBucket(ctx context.Context, now time.Time, domain string, delta time.Duration) error {
	const query = `
		INSERT INTO day_stats (bucket_key, domain, time_ms, visits, last_visit_epoch, icon)
		VALUES (?, ?, ?, 0, ?, ?)
		ON CONFLICT (bucket_key, domain) DO UPDATE SET
			time_ms          = time_ms + excluded.time_ms,
			last_visit_epoch = excluded.last_visit_epoch
	`

	_, err := b.store.ExecContext(ctx, query,
		models.BucketKey(now), domain, delta.Milliseconds(),
		now.UnixMilli(), models.FaviconURL(domain),
	)
	if err != nil {
		return fmt.Errorf("merge day bucket: %w", err)
	}
	return nil
}

// GetDayBucket returns the record-set for one calendar day. A day with no
// data yields an empty bucket, never an error.
func (b *BucketStore) GetDayBucket(ctx context.Context, day time.Time) (models.DayBucket, error) {
	const query = `
		SELECT domain, time_ms, visits, last_visit_epoch, icon
		FROM day_stats
		WHERE bucket_key = ?
	`

	rows, err := b.store.QueryContext(ctx, query, models.BucketKey(day))
	if err != nil {
		return nil, fmt.Errorf("query day bucket: %w", err)
	}
	defer rows.Close()

	bucket := make(models.DayBucket)
	for rows.Next() {
		var rec models.DomainDayRecord
		if err := rows.Scan(&rec.Domain, &rec.TimeMs, &rec.Visits, &rec.LastVisitMs, &rec.Icon); err != nil {
			return nil, fmt.Errorf("scan day record: %w", err)
		}
		bucket[rec.Domain] = &rec
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return bucket, nil
}

// GetRange fetches one bucket per calendar day in [start, end] inclusive,
// keyed by ISO date. Missing days contribute no entries; a day whose fetch
// fails degrades to "no real data for this day" rather than aborting the
// whole range. Arbitrarily large ranges just cost more I/O.
func (b *BucketStore) GetRange(ctx context.Context, start, end time.Time) map[string]models.DayBucket {
	result := make(map[string]models.DayBucket)

	startDay := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, start.Location())
	endDay := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, end.Location())

	for day := startDay; !day.After(endDay); day = day.AddDate(0, 0, 1) {
		bucket, err := b.GetDayBucket(ctx, day)
		if err != nil {
			log.Debug().Err(err).Str("day", day.Format(models.DateLayout)).Msg("Day bucket fetch failed, skipping")
			continue
		}
		if len(bucket) > 0 {
			result[day.Format(models.DateLayout)] = bucket
		}
	}

	return result
}
