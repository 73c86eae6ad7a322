package worker

import (
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"github.com/thebtf/dwell/internal/ai"
	"github.com/thebtf/dwell/internal/config"
	"github.com/thebtf/dwell/internal/metrics"
	"github.com/thebtf/dwell/internal/privacy"
	"github.com/thebtf/dwell/internal/report"
	"github.com/thebtf/dwell/pkg/models"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100

	// quickStatsLimit caps the popup's domain list.
	quickStatsLimit = 10
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"uptime":  time.Since(s.startTime).String(),
		"ready":   s.ready.Load(),
	})
}

// handleTabEvent dispatches one extension tab event to the tracker loop.
func (s *Service) handleTabEvent(w http.ResponseWriter, r *http.Request) {
	var ev models.TabEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeError(w, http.StatusBadRequest, "invalid tab event: "+err.Error())
		return
	}

	switch ev.Type {
	case models.TabActivated, models.TabNavigated, models.WindowBlurred,
		models.WindowFocused, models.TabClosed:
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown event type %q", ev.Type))
		return
	}

	s.tracker.Dispatch(ev)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

type historyBatch struct {
	Events []models.NavigationEvent `json:"events"`
}

// handleHistoryIngest stores a navigation-event batch into the history
// mirror. URLs are redacted and excluded domains dropped before anything
// touches disk.
func (s *Service) handleHistoryIngest(w http.ResponseWriter, r *http.Request) {
	var batch historyBatch
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid history batch: "+err.Error())
		return
	}

	exclusions := privacy.NewExclusions(config.Get().ExcludedDomains)
	events := make([]models.NavigationEvent, 0, len(batch.Events))
	for _, ev := range batch.Events {
		if u, err := url.Parse(ev.URL); err == nil && exclusions.Excluded(u.Hostname()) {
			continue
		}
		ev.URL = privacy.RedactURL(ev.URL)
		events = append(events, ev)
	}

	inserted, err := s.history.InsertBatch(r.Context(), events)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "storing history batch: "+err.Error())
		return
	}

	metrics.RecordIngest(r.Context(), inserted)
	writeJSON(w, http.StatusOK, map[string]any{
		"received": len(batch.Events),
		"inserted": inserted,
	})
}

type reportResponse struct {
	*models.Report
	Page         int             `json:"page"`
	PageSize     int             `json:"page_size"`
	TotalDomains int             `json:"total_domains"`
	AIReport     json.RawMessage `json:"ai_report,omitempty"`
}

// handleReport builds (or joins an in-flight build of) the reconciled report
// for the requested window and returns one page of domains.
func (s *Service) handleReport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	rep, label, err := s.buildReport(r, q.Get("period"), q.Get("date"))
	if err != nil {
		status := http.StatusInternalServerError
		if strings.Contains(err.Error(), "parse") || strings.Contains(err.Error(), "unknown period") {
			status = http.StatusBadRequest
		}
		writeError(w, status, err.Error())
		return
	}

	page, pageSize := paginationParams(q.Get("page"), q.Get("pageSize"))
	paged := *rep
	paged.Domains = pageSlice(rep.Domains, page, pageSize)

	resp := reportResponse{
		Report:       &paged,
		Page:         page,
		PageSize:     pageSize,
		TotalDomains: len(rep.Domains),
	}

	// A cached AI report rides along when present; cache trouble only costs
	// the overlay.
	if data, ok, err := s.reportCache.Get(r.Context(), label); err == nil && ok {
		resp.AIReport = data
	} else if err != nil {
		log.Debug().Err(err).Str("label", label).Msg("Report cache lookup failed")
	}

	writeJSON(w, http.StatusOK, resp)
}

// buildReport resolves the window selector and runs the reconciliation
// engine, deduplicating concurrent identical builds by window label.
func (s *Service) buildReport(r *http.Request, period, date string) (*models.Report, string, error) {
	now := s.now()

	win, err := report.ParseSelector(period, date, now)
	if err != nil {
		return nil, "", err
	}
	start, end, label := win.Resolve(now)

	v, err, _ := s.flights.Do(label, func() (any, error) {
		buildStart := time.Now()

		// History failure is fatal to the request; without events the
		// report would silently misrepresent the window.
		events, err := s.history.Search(r.Context(), start, end, report.MaxHistoryResults)
		if err != nil {
			return nil, fmt.Errorf("fetching history: %w", err)
		}

		// Bucket failures already degraded inside GetRange.
		buckets := s.buckets.GetRange(r.Context(), start, end)

		rep := report.Build(events, buckets, start, end, label)
		metrics.RecordReportBuild(r.Context(), time.Since(buildStart))
		return rep, nil
	})
	if err != nil {
		return nil, "", err
	}
	return v.(*models.Report), label, nil
}

func paginationParams(pageStr, pageSizeStr string) (page, pageSize int) {
	page, _ = strconv.Atoi(pageStr)
	if page < 1 {
		page = 1
	}
	pageSize, _ = strconv.Atoi(pageSizeStr)
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}

func pageSlice(entries []models.DomainReportEntry, page, pageSize int) []models.DomainReportEntry {
	start := (page - 1) * pageSize
	if start >= len(entries) {
		return []models.DomainReportEntry{}
	}
	end := start + pageSize
	if end > len(entries) {
		end = len(entries)
	}
	return entries[start:end]
}

type quickStatsEntry struct {
	Domain      string `json:"domain"`
	TimeMs      int64  `json:"time"`
	Visits      int64  `json:"visits"`
	LastVisitMs int64  `json:"lastVisit"`
	Icon        string `json:"icon"`
}

// handleQuickStats serves the popup view: today's top domains from real
// measured time only, no history reconstruction.
func (s *Service) handleQuickStats(w http.ResponseWriter, r *http.Request) {
	now := s.now()

	bucket, err := s.buckets.GetDayBucket(r.Context(), now)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "fetching today's stats: "+err.Error())
		return
	}

	entries := make([]quickStatsEntry, 0, len(bucket))
	var totalMs int64
	for domain, rec := range bucket {
		entries = append(entries, quickStatsEntry{
			Domain:      domain,
			TimeMs:      rec.TimeMs,
			Visits:      rec.Visits,
			LastVisitMs: rec.LastVisitMs,
			Icon:        rec.Icon,
		})
		totalMs += rec.TimeMs
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].TimeMs > entries[j].TimeMs
	})
	if len(entries) > quickStatsLimit {
		entries = entries[:quickStatsLimit]
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"date":        now.Format(models.DateLayout),
		"totalTimeMs": totalMs,
		"domains":     entries,
	})
}

// handleGetAIReport returns the cached AI report for a window, if any.
func (s *Service) handleGetAIReport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	win, err := report.ParseSelector(q.Get("period"), q.Get("date"), s.now())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	_, _, label := win.Resolve(s.now())

	data, ok, err := s.reportCache.Get(r.Context(), label)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "report cache: "+err.Error())
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "no AI report generated for "+label)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// handleGenerateAIReport builds the window report, asks the summarizer for
// the narrative overlay, and caches the result under the window label.
// Regeneration replaces the cached copy.
func (s *Service) handleGenerateAIReport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	cfg := config.Get()
	if cfg.AI.APIKey == "" {
		writeError(w, http.StatusPreconditionFailed, "no API key configured")
		return
	}

	rep, label, err := s.buildReport(r, q.Get("period"), q.Get("date"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	aiReport, err := s.aiClient.GenerateSummary(r.Context(), cfg.AI, rep)
	if err != nil {
		writeError(w, http.StatusBadGateway, "generating AI report: "+err.Error())
		return
	}

	data, err := json.Marshal(aiReport)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "encoding AI report: "+err.Error())
		return
	}
	if err := s.reportCache.Set(r.Context(), label, data); err != nil {
		log.Debug().Err(err).Str("label", label).Msg("Failed to cache AI report")
	}
	s.sseBroadcaster.BroadcastAIReport(label)

	writeJSON(w, http.StatusOK, aiReport)
}

type domainAnalysisRequest struct {
	Domains []ai.DomainPages `json:"domains"`
}

// handleAnalyzeDomains runs the per-domain batch analysis. Individual
// failures come back as sentinel entries, never as a request error.
func (s *Service) handleAnalyzeDomains(w http.ResponseWriter, r *http.Request) {
	var req domainAnalysisRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid analysis request: "+err.Error())
		return
	}
	if len(req.Domains) == 0 {
		writeError(w, http.StatusBadRequest, "no domains to analyze")
		return
	}

	analyses := s.aiClient.AnalyzeDomains(r.Context(), config.Get().AI, req.Domains)
	writeJSON(w, http.StatusOK, map[string]any{"analyses": analyses})
}

type settingsPayload struct {
	AI               *config.AIConfig `json:"ai,omitempty"`
	ExcludedDomains  *[]string        `json:"excludedDomains,omitempty"`
	HeartbeatSeconds *int             `json:"heartbeatSeconds,omitempty"`
}

// handleGetSettings returns the user-facing settings with the API key
// masked.
func (s *Service) handleGetSettings(w http.ResponseWriter, _ *http.Request) {
	cfg := config.Get()

	writeJSON(w, http.StatusOK, map[string]any{
		"ai": map[string]string{
			"api_key":  maskSecret(cfg.AI.APIKey),
			"base_url": cfg.AI.BaseURL,
			"model":    cfg.AI.Model,
		},
		"excludedDomains":  cfg.ExcludedDomains,
		"heartbeatSeconds": cfg.HeartbeatSeconds,
	})
}

// handlePutSettings updates the mutable settings subset and persists it. An
// omitted field keeps its current value, as does a masked API key echoed
// back from a GET.
func (s *Service) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var payload settingsPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid settings: "+err.Error())
		return
	}

	cfg := *config.Get()
	if payload.AI != nil {
		if payload.AI.APIKey != "" && !strings.Contains(payload.AI.APIKey, "*") {
			cfg.AI.APIKey = payload.AI.APIKey
		}
		if payload.AI.BaseURL != "" {
			cfg.AI.BaseURL = payload.AI.BaseURL
		}
		if payload.AI.Model != "" {
			cfg.AI.Model = payload.AI.Model
		}
	}
	if payload.ExcludedDomains != nil {
		cfg.ExcludedDomains = *payload.ExcludedDomains
	}
	if payload.HeartbeatSeconds != nil && *payload.HeartbeatSeconds > 0 {
		cfg.HeartbeatSeconds = *payload.HeartbeatSeconds
	}

	if err := config.Save(&cfg); err != nil {
		writeError(w, http.StatusInternalServerError, "saving settings: "+err.Error())
		return
	}
	config.Set(&cfg)

	writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}

// maskSecret hides all but a short prefix of a credential.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 6 {
		return "******"
	}
	return s[:3] + "****"
}
