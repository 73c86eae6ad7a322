// Package report implements the history reconciliation engine: it merges
// inferred dwell time reconstructed from navigation-event gaps with real
// measured dwell time from the durable store into one ranked per-domain
// statistic set.
package report

import (
	"net/url"
	"sort"
	"time"

	"github.com/thebtf/dwell/pkg/models"
)

const (
	// MaxHistoryResults caps how many navigation events a single report
	// consumes. Hitting the cap truncates silently; the result is an
	// accepted approximation, not an error.
	MaxHistoryResults = 100000

	// maxSessionGap is the longest event-to-event gap still attributed as
	// dwell time. Anything longer is treated as a new, unrelated session.
	maxSessionGap = 20 * time.Minute

	// defaultPageTime is the flat contribution used when no following event
	// bounds the estimate (last event, or gap above maxSessionGap).
	defaultPageTime = 60 * time.Second

	// minPageTime floors rapid-fire navigations so no event contributes
	// zero or negative time.
	minPageTime = 5 * time.Second
)

// estimateGap applies the clamp rules to the raw gap between two adjacent
// events and returns the dwell-time contribution of the earlier one.
func estimateGap(gap time.Duration) time.Duration {
	if gap > maxSessionGap {
		return defaultPageTime
	}
	if gap < minPageTime {
		return minPageTime
	}
	return gap
}

// domainAccum accumulates per-domain state while walking the event timeline.
type domainAccum struct {
	entry      models.DomainReportEntry
	pageOrder  []string
	pageCounts map[string]int
}

// Build reconciles a sorted-or-unsorted navigation-event list with real
// day-bucket data into a ranked report. It is a pure function of its inputs:
// no hidden state, safe to cache by window label.
func Build(events []models.NavigationEvent, buckets map[string]models.DayBucket, start, end time.Time, label string) *models.Report {
	// The provider's ordering is unspecified; gap estimation is only
	// meaningful between temporally adjacent events.
	sorted := make([]models.NavigationEvent, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].VisitedAtMs < sorted[j].VisitedAtMs
	})

	rep := &models.Report{
		PeriodLabel: label,
		StartMs:     start.UnixMilli(),
		EndMs:       end.UnixMilli(),
		TotalVisits: len(sorted),
	}

	accums := make(map[string]*domainAccum)
	var order []string
	activeDays := make(map[string]struct{})

	touch := func(domain string) *domainAccum {
		acc, ok := accums[domain]
		if !ok {
			acc = &domainAccum{
				entry: models.DomainReportEntry{
					Domain: domain,
					Icon:   models.FaviconURL(domain),
				},
				pageCounts: make(map[string]int),
			}
			accums[domain] = acc
			order = append(order, domain)
		}
		return acc
	}

	for i, ev := range sorted {
		domain := resolveDomain(ev.URL)
		if domain == "" {
			// Malformed URL: the event contributes to nothing.
			continue
		}

		acc := touch(domain)
		acc.entry.VisitCount++
		// Events are ascending, so this ends up the latest visit.
		acc.entry.LastVisitMs = ev.VisitedAtMs

		t := time.UnixMilli(ev.VisitedAtMs)
		rep.Hours[t.Hour()]++
		rep.WeekDays[int(t.Weekday())]++
		activeDays[t.Format(models.DateLayout)] = struct{}{}

		pageKey := ev.Title
		if pageKey == "" {
			pageKey = ev.URL
		}
		if _, seen := acc.pageCounts[pageKey]; !seen {
			acc.pageOrder = append(acc.pageOrder, pageKey)
		}
		acc.pageCounts[pageKey]++

		if i < len(sorted)-1 {
			gap := time.Duration(sorted[i+1].VisitedAtMs-ev.VisitedAtMs) * time.Millisecond
			acc.entry.EstimatedTimeMs += estimateGap(gap).Milliseconds()
		} else {
			acc.entry.EstimatedTimeMs += defaultPageTime.Milliseconds()
		}
	}

	rep.ActiveDays = len(activeDays)

	// Merge real measurements. Real and estimated time are deliberately not
	// deduplicated even when both cover the same day; isApproximate carries
	// the trust signal instead. Buckets are walked in sorted order so that
	// storage-only domains get a deterministic encounter order.
	for _, day := range sortedKeys(buckets) {
		bucket := buckets[day]
		for _, domain := range sortedBucketDomains(bucket) {
			rec := bucket[domain]
			acc := touch(domain)
			acc.entry.RealTimeMs += rec.TimeMs
			if rec.LastVisitMs > acc.entry.LastVisitMs {
				acc.entry.LastVisitMs = rec.LastVisitMs
			}
		}
	}

	entries := make([]models.DomainReportEntry, 0, len(order))
	for _, domain := range order {
		acc := accums[domain]
		acc.entry.TotalDurationMs = acc.entry.RealTimeMs + acc.entry.EstimatedTimeMs
		acc.entry.IsApproximate = acc.entry.RealTimeMs == 0
		acc.entry.Pages = sortedPages(acc.pageOrder, acc.pageCounts)
		entries = append(entries, acc.entry)
	}

	// Descending by total duration; stable, so ties keep encounter order.
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].TotalDurationMs > entries[j].TotalDurationMs
	})
	rep.Domains = entries

	return rep
}

// resolveDomain extracts the hostname from a raw URL, or "" when the URL is
// unusable as an aggregation key.
func resolveDomain(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

func sortedKeys(buckets map[string]models.DayBucket) []string {
	keys := make([]string, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedBucketDomains(bucket models.DayBucket) []string {
	domains := make([]string, 0, len(bucket))
	for d := range bucket {
		domains = append(domains, d)
	}
	sort.Strings(domains)
	return domains
}

func sortedPages(order []string, counts map[string]int) []models.PageCount {
	pages := make([]models.PageCount, 0, len(order))
	for _, key := range order {
		pages = append(pages, models.PageCount{Title: key, Count: counts[key]})
	}
	sort.SliceStable(pages, func(i, j int) bool {
		return pages[i].Count > pages[j].Count
	})
	return pages
}
