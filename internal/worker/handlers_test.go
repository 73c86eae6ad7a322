package worker

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thebtf/dwell/internal/ai"
	"github.com/thebtf/dwell/internal/cache"
	"github.com/thebtf/dwell/internal/config"
	"github.com/thebtf/dwell/internal/db/sqlite"
	"github.com/thebtf/dwell/internal/tracker"
	"github.com/thebtf/dwell/internal/worker/sse"
	"github.com/thebtf/dwell/pkg/models"
)

// testNow is the frozen "now" for handler tests.
var testNow = time.Date(2026, time.August, 28, 12, 0, 0, 0, time.Local)

// testService creates a Service backed by a temp-dir SQLite store.
func testService(t *testing.T) *Service {
	t.Helper()

	config.Set(config.Default())

	store, err := sqlite.NewStore(sqlite.StoreConfig{
		Path:    filepath.Join(t.TempDir(), "dwell.db"),
		WALMode: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	tr := tracker.New(sqlite.NewBucketStore(store), tracker.Config{})
	tr.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = tr.Close(ctx)
	})

	svc := NewService("test-version", store, tr, ai.New(nil), cache.NewMemory(), sse.NewBroadcaster())
	svc.now = func() time.Time { return testNow }
	t.Cleanup(svc.Shutdown)

	return svc
}

func doJSON(t *testing.T, svc *Service, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	rec := httptest.NewRecorder()
	svc.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

// seedHistory ingests navigation events through the API.
func seedHistory(t *testing.T, svc *Service, events []models.NavigationEvent) {
	t.Helper()
	rec := doJSON(t, svc, http.MethodPost, "/api/history", historyBatch{Events: events})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestHealthz(t *testing.T) {
	svc := testService(t)

	rec := doJSON(t, svc, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	decodeBody(t, rec, &resp)
	assert.Equal(t, "ok", resp["status"])
	assert.Equal(t, "test-version", resp["version"])
}

func TestHandleTabEvent(t *testing.T) {
	svc := testService(t)

	rec := doJSON(t, svc, http.MethodPost, "/api/events/tab", models.TabEvent{
		Type:  models.TabActivated,
		TabID: 1,
		URL:   "https://example.com/",
	})
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = doJSON(t, svc, http.MethodPost, "/api/events/tab", models.TabEvent{Type: "exploded"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleHistoryIngest(t *testing.T) {
	svc := testService(t)

	at := testNow.Add(-time.Hour).UnixMilli()
	events := []models.NavigationEvent{
		{URL: "https://example.com/a", Title: "A", VisitedAtMs: at},
		{URL: "https://example.com/a", Title: "A", VisitedAtMs: at},
		{URL: "https://example.com/b", Title: "B", VisitedAtMs: at + 1000},
	}

	rec := doJSON(t, svc, http.MethodPost, "/api/history", historyBatch{Events: events})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	decodeBody(t, rec, &resp)
	assert.Equal(t, float64(3), resp["received"])
	assert.Equal(t, float64(2), resp["inserted"])
}

func TestHandleHistoryIngestRedactsAndExcludes(t *testing.T) {
	svc := testService(t)

	cfg := config.Default()
	cfg.ExcludedDomains = []string{"private.example"}
	config.Set(cfg)

	at := testNow.Add(-time.Hour).UnixMilli()
	seedHistory(t, svc, []models.NavigationEvent{
		{URL: "https://example.com/login?token=supersecret&q=go", VisitedAtMs: at},
		{URL: "https://private.example/inbox", VisitedAtMs: at + 1000},
	})

	stored, err := svc.history.Search(context.Background(), testNow.AddDate(0, 0, -1), testNow, 100)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Contains(t, stored[0].URL, "token=redacted")
	assert.Contains(t, stored[0].URL, "q=go")
}

func TestHandleReport(t *testing.T) {
	svc := testService(t)

	base := testNow.Add(-3 * time.Hour)
	seedHistory(t, svc, []models.NavigationEvent{
		{URL: "https://example.com/a", Title: "A", VisitedAtMs: base.UnixMilli()},
		{URL: "https://example.com/b", Title: "B", VisitedAtMs: base.Add(10 * time.Second).UnixMilli()},
		{URL: "https://other.example/", Title: "Other", VisitedAtMs: base.Add(20 * time.Second).UnixMilli()},
	})

	// Real measured time for a domain with no history events.
	require.NoError(t, svc.buckets.MergeDayBucket(context.Background(), testNow, "tracked.example", 5*time.Minute))

	rec := doJSON(t, svc, http.MethodGet, "/api/report?period=day&date=2026-08-28", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp reportResponse
	decodeBody(t, rec, &resp)

	assert.Equal(t, "2026-08-28", resp.PeriodLabel)
	assert.Equal(t, 3, resp.TotalVisits)
	assert.Equal(t, 1, resp.ActiveDays)
	assert.Equal(t, 3, resp.TotalDomains)
	assert.Equal(t, 1, resp.Page)
	assert.Equal(t, defaultPageSize, resp.PageSize)
	assert.Empty(t, resp.AIReport)

	// tracked.example has 5 minutes of real time and ranks first.
	require.NotEmpty(t, resp.Domains)
	assert.Equal(t, "tracked.example", resp.Domains[0].Domain)
	assert.False(t, resp.Domains[0].IsApproximate)

	byDomain := map[string]models.DomainReportEntry{}
	for _, d := range resp.Domains {
		byDomain[d.Domain] = d
	}
	// example.com: 10s gap + flat 60s for its last event's successor chain.
	assert.Equal(t, 2, byDomain["example.com"].VisitCount)
	assert.True(t, byDomain["example.com"].IsApproximate)
}

func TestHandleReportRejectsBadSelector(t *testing.T) {
	svc := testService(t)

	rec := doJSON(t, svc, http.MethodGet, "/api/report?period=fortnight", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, svc, http.MethodGet, "/api/report?period=day&date=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleReportPagination(t *testing.T) {
	svc := testService(t)

	base := testNow.Add(-2 * time.Hour)
	var events []models.NavigationEvent
	for i := 0; i < 12; i++ {
		events = append(events, models.NavigationEvent{
			URL:         "https://site" + string(rune('a'+i)) + ".example/",
			VisitedAtMs: base.Add(time.Duration(i) * 30 * time.Minute / 12).UnixMilli(),
		})
	}
	seedHistory(t, svc, events)

	rec := doJSON(t, svc, http.MethodGet, "/api/report?period=day&date=2026-08-28&page=2&pageSize=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp reportResponse
	decodeBody(t, rec, &resp)
	assert.Equal(t, 12, resp.TotalDomains)
	assert.Equal(t, 2, resp.Page)
	assert.Equal(t, 5, resp.PageSize)
	assert.Len(t, resp.Domains, 5)

	// Page beyond the end is empty, not an error.
	rec = doJSON(t, svc, http.MethodGet, "/api/report?period=day&date=2026-08-28&page=9&pageSize=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &resp)
	assert.Empty(t, resp.Domains)
}

func TestHandleQuickStats(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()

	require.NoError(t, svc.buckets.MergeDayBucket(ctx, testNow, "a.example", 10*time.Minute))
	require.NoError(t, svc.buckets.MergeDayBucket(ctx, testNow, "b.example", 30*time.Minute))
	require.NoError(t, svc.buckets.MergeDayBucket(ctx, testNow, "c.example", 1*time.Minute))

	rec := doJSON(t, svc, http.MethodGet, "/api/quickstats", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Date        string            `json:"date"`
		TotalTimeMs int64             `json:"totalTimeMs"`
		Domains     []quickStatsEntry `json:"domains"`
	}
	decodeBody(t, rec, &resp)

	assert.Equal(t, "2026-08-28", resp.Date)
	assert.Equal(t, int64(41*60*1000), resp.TotalTimeMs)
	require.Len(t, resp.Domains, 3)
	assert.Equal(t, "b.example", resp.Domains[0].Domain)
	assert.Equal(t, "a.example", resp.Domains[1].Domain)
}

// aiStub returns a chat-completions endpoint that always replies content.
func aiStub(t *testing.T, content string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": content}},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestAIReportLifecycle(t *testing.T) {
	svc := testService(t)

	// Nothing generated yet.
	rec := doJSON(t, svc, http.MethodGet, "/api/report/ai?period=day&date=2026-08-28", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// No API key configured.
	rec = doJSON(t, svc, http.MethodPost, "/api/report/ai?period=day&date=2026-08-28", nil)
	assert.Equal(t, http.StatusPreconditionFailed, rec.Code)

	srv := aiStub(t, `{"summary": "A quiet day.", "productivityScore": 75}`)
	cfg := config.Default()
	cfg.AI.APIKey = "sk-test"
	cfg.AI.BaseURL = srv.URL
	config.Set(cfg)

	rec = doJSON(t, svc, http.MethodPost, "/api/report/ai?period=day&date=2026-08-28", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var generated models.AIReport
	decodeBody(t, rec, &generated)
	assert.Equal(t, "A quiet day.", generated.Summary)
	assert.Equal(t, 75, generated.ProductivityScore)

	// The cached copy is now served.
	rec = doJSON(t, svc, http.MethodGet, "/api/report/ai?period=day&date=2026-08-28", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var cached models.AIReport
	decodeBody(t, rec, &cached)
	assert.Equal(t, generated, cached)

	// And rides along with the window report.
	rec = doJSON(t, svc, http.MethodGet, "/api/report?period=day&date=2026-08-28", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var report reportResponse
	decodeBody(t, rec, &report)
	assert.NotEmpty(t, report.AIReport)
}

func TestAnalyzeDomains(t *testing.T) {
	svc := testService(t)

	srv := aiStub(t, `{"contentType": "news", "keywords": ["headlines"], "summary": "ok", "rating": 2, "sentiment": "neutral"}`)
	cfg := config.Default()
	cfg.AI.APIKey = "sk-test"
	cfg.AI.BaseURL = srv.URL
	config.Set(cfg)

	rec := doJSON(t, svc, http.MethodPost, "/api/report/ai/domains", domainAnalysisRequest{
		Domains: []ai.DomainPages{
			{Domain: "news.example", Pages: []models.PageCount{{Title: "Headlines", Count: 4}}},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Analyses []models.DomainAnalysis `json:"analyses"`
	}
	decodeBody(t, rec, &resp)
	require.Len(t, resp.Analyses, 1)
	assert.Equal(t, "news.example", resp.Analyses[0].Domain)
	assert.Equal(t, "news", resp.Analyses[0].ContentType)

	// Empty batch is a client error.
	rec = doJSON(t, svc, http.MethodPost, "/api/report/ai/domains", domainAnalysisRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSettingsRoundTrip(t *testing.T) {
	t.Setenv("DWELL_DATA_DIR", t.TempDir())
	svc := testService(t)

	cfg := config.Default()
	cfg.AI.APIKey = "sk-1234567890"
	config.Set(cfg)

	rec := doJSON(t, svc, http.MethodGet, "/api/settings", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got struct {
		AI struct {
			APIKey string `json:"api_key"`
			Model  string `json:"model"`
		} `json:"ai"`
	}
	decodeBody(t, rec, &got)
	assert.Equal(t, "sk-****", got.AI.APIKey)
	assert.Equal(t, config.DefaultModel, got.AI.Model)

	// A masked key echoed back must not clobber the stored one.
	model := "gpt-4o"
	rec = doJSON(t, svc, http.MethodPut, "/api/settings", map[string]any{
		"ai": map[string]string{"api_key": "sk-****", "model": model},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	current := config.Get()
	assert.Equal(t, "sk-1234567890", current.AI.APIKey)
	assert.Equal(t, "gpt-4o", current.AI.Model)
}

func TestAuthMiddleware(t *testing.T) {
	svc := testService(t)

	cfg := config.Default()
	cfg.AuthToken = "secret-token"
	config.Set(cfg)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	svc.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	rec = httptest.NewRecorder()
	svc.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPageSlice(t *testing.T) {
	entries := make([]models.DomainReportEntry, 7)

	assert.Len(t, pageSlice(entries, 1, 5), 5)
	assert.Len(t, pageSlice(entries, 2, 5), 2)
	assert.Empty(t, pageSlice(entries, 3, 5))
	assert.Empty(t, pageSlice(nil, 1, 5))
}
