package models

// PageCount is one page (keyed by title, falling back to URL) and how many
// times it was visited within the report window.
type PageCount struct {
	Title string `json:"title"`
	Count int    `json:"count"`
}

// DomainReportEntry is the reconciled per-domain statistic for one report
// window. EstimatedTimeMs is inferred from navigation gaps, RealTimeMs comes
// from the durable time store; the two are summed, never deduplicated, and
// IsApproximate flags entries whose figure is entirely inference-based.
type DomainReportEntry struct {
	Domain          string      `json:"domain"`
	VisitCount      int         `json:"count"`
	EstimatedTimeMs int64       `json:"estimated_time"`
	RealTimeMs      int64       `json:"real_time"`
	TotalDurationMs int64       `json:"total_duration"`
	IsApproximate   bool        `json:"is_approximate"`
	LastVisitMs     int64       `json:"last_visit"`
	Icon            string      `json:"icon"`
	Pages           []PageCount `json:"pages,omitempty"`
}

// Report is the full output of one reconciliation run. Domains are sorted
// descending by TotalDurationMs, stable on encounter order.
type Report struct {
	PeriodLabel string              `json:"period_label"`
	StartMs     int64               `json:"start"`
	EndMs       int64               `json:"end"`
	TotalVisits int                 `json:"total_visits"`
	ActiveDays  int                 `json:"active_days"`
	Hours       [24]int             `json:"hours"`
	WeekDays    [7]int              `json:"week_days"`
	Domains     []DomainReportEntry `json:"domains"`
}

// TopDomain returns the highest-ranked domain, or "" for an empty report.
func (r *Report) TopDomain() string {
	if len(r.Domains) == 0 {
		return ""
	}
	return r.Domains[0].Domain
}
