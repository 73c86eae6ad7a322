// Package worker provides the loopback HTTP service for dwell: it ingests
// tab events and history batches from the browser extension and serves
// reconciled reports to the dashboard.
package worker

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/thebtf/dwell/internal/ai"
	"github.com/thebtf/dwell/internal/cache"
	"github.com/thebtf/dwell/internal/db/sqlite"
	"github.com/thebtf/dwell/internal/tracker"
	"github.com/thebtf/dwell/internal/worker/sse"
	"golang.org/x/sync/singleflight"
)

// Service is the worker HTTP service.
type Service struct {
	version string

	store   *sqlite.Store
	buckets *sqlite.BucketStore
	history *sqlite.HistoryStore

	tracker        *tracker.Tracker
	aiClient       *ai.Client
	reportCache    cache.Cache
	sseBroadcaster *sse.Broadcaster

	router *chi.Mux

	// flights deduplicates concurrent report builds by window label.
	flights singleflight.Group

	ctx       context.Context
	cancel    context.CancelFunc
	startTime time.Time
	ready     atomic.Bool

	// now is the time source, overridable in tests.
	now func() time.Time
}

// NewService wires the worker service and its routes.
func NewService(version string, store *sqlite.Store, tr *tracker.Tracker, aiClient *ai.Client, reportCache cache.Cache, broadcaster *sse.Broadcaster) *Service {
	ctx, cancel := context.WithCancel(context.Background())

	svc := &Service{
		version:        version,
		store:          store,
		buckets:        sqlite.NewBucketStore(store),
		history:        sqlite.NewHistoryStore(store),
		tracker:        tr,
		aiClient:       aiClient,
		reportCache:    reportCache,
		sseBroadcaster: broadcaster,
		router:         chi.NewRouter(),
		ctx:            ctx,
		cancel:         cancel,
		startTime:      time.Now(),
		now:            time.Now,
	}

	svc.setupRoutes()
	svc.ready.Store(true)
	return svc
}

// Router returns the service's HTTP handler.
func (s *Service) Router() http.Handler {
	return s.router
}

// Shutdown cancels in-flight background work.
func (s *Service) Shutdown() {
	s.ready.Store(false)
	s.cancel()
}

func (s *Service) setupRoutes() {
	s.router.Use(requestIDMiddleware)
	s.router.Use(loggingMiddleware)
	s.router.Use(authMiddleware)

	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Post("/events/tab", s.handleTabEvent)
		r.Get("/events/stream", s.sseBroadcaster.HandleSSE)

		r.Post("/history", s.handleHistoryIngest)

		r.Get("/report", s.handleReport)
		r.Get("/quickstats", s.handleQuickStats)

		r.Get("/report/ai", s.handleGetAIReport)
		r.Post("/report/ai", s.handleGenerateAIReport)
		r.Post("/report/ai/domains", s.handleAnalyzeDomains)

		r.Get("/settings", s.handleGetSettings)
		r.Put("/settings", s.handlePutSettings)
	})
}
