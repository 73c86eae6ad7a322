// Package models contains domain models for dwell.
package models

import (
	"fmt"
	"time"
)

// BucketKeyPrefix prefixes every per-day record-set key in durable storage.
const BucketKeyPrefix = "stats_"

// DateLayout is the calendar-day format used for bucket keys.
const DateLayout = "2006-01-02"

// DomainDayRecord is the accumulated dwell-time record for one domain on one
// calendar day. The tracker is its only writer; visit counts are reserved and
// intentionally never incremented here to avoid double counting against
// history-derived visit counts.
type DomainDayRecord struct {
	Domain      string `json:"domain"`
	TimeMs      int64  `json:"time"`
	Visits      int64  `json:"visits"`
	LastVisitMs int64  `json:"lastVisit"`
	Icon        string `json:"icon"`
}

// DayBucket maps domain to its record for a single calendar day.
type DayBucket map[string]*DomainDayRecord

// BucketKey returns the durable-storage key for a calendar day,
// e.g. "stats_2026-08-28".
func BucketKey(day time.Time) string {
	return BucketKeyPrefix + day.Format(DateLayout)
}

// FaviconURL returns the favicon lookup reference for a domain.
func FaviconURL(domain string) string {
	return fmt.Sprintf("https://www.google.com/s2/favicons?domain=%s", domain)
}
