// Package tracker implements the active-session dwell-time tracker: a
// single-owner event loop that observes tab/window focus transitions and
// flushes elapsed foreground time into the durable day-bucket store.
//
// All session state lives inside the loop goroutine; every transition
// flushes the prior state's elapsed time before applying the new state, so
// a session's tail is never silently lost. A heartbeat flush caps crash
// loss at the heartbeat interval.
package tracker

import (
	"context"
	"net/url"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog/log"
	"github.com/thebtf/dwell/internal/metrics"
	"github.com/thebtf/dwell/internal/privacy"
	"github.com/thebtf/dwell/pkg/models"
)

const (
	// DefaultHeartbeat is how often an ongoing session is flushed without a
	// state change.
	DefaultHeartbeat = 30 * time.Second

	// minSession debounces tab-flicker noise: sessions at or under this
	// duration are discarded.
	minSession = time.Second

	// flushTimeout bounds each store write.
	flushTimeout = 5 * time.Second
)

// internalSchemes are browser-internal URL schemes that never count as
// browsing time.
var internalSchemes = map[string]struct{}{
	"chrome":           {},
	"chrome-extension": {},
	"edge":             {},
	"about":            {},
	"moz-extension":    {},
	"brave":            {},
	"vivaldi":          {},
	"devtools":         {},
}

// BucketWriter is the durable-store dependency: one read-modify-write per
// flush, scoped to a single day bucket.
type BucketWriter interface {
	MergeDayBucket(ctx context.Context, now time.Time, domain string, delta time.Duration) error
}

// FlushListener is notified after each successful flush. Used to push live
// updates to dashboard clients.
type FlushListener func(domain string, d time.Duration)

// Config carries optional tracker dependencies.
type Config struct {
	Heartbeat  time.Duration
	Clock      clock.Clock
	Exclusions *privacy.Exclusions
	OnFlush    FlushListener
}

// Tracker owns the tracking session state. Events are dispatched into a
// channel and handled one at a time by the loop goroutine; there is no other
// synchronization and none is needed.
type Tracker struct {
	store      BucketWriter
	clock      clock.Clock
	heartbeat  time.Duration
	exclusions *privacy.Exclusions
	onFlush    FlushListener

	events chan models.TabEvent
	quit   chan struct{}
	done   chan struct{}
}

// session is the loop-private tracking state.
type session struct {
	tracking  bool
	tabID     int
	rawURL    string
	startedAt time.Time
}

// New creates a Tracker writing into store. Call Start to begin processing.
func New(store BucketWriter, cfg Config) *Tracker {
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = DefaultHeartbeat
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	return &Tracker{
		store:      store,
		clock:      cfg.Clock,
		heartbeat:  cfg.Heartbeat,
		exclusions: cfg.Exclusions,
		onFlush:    cfg.OnFlush,
		events:     make(chan models.TabEvent, 64),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start launches the event loop.
func (t *Tracker) Start() {
	go t.run()
}

// Dispatch hands a tab event to the loop. Safe from any goroutine.
func (t *Tracker) Dispatch(ev models.TabEvent) {
	select {
	case t.events <- ev:
	case <-t.done:
	}
}

// Close performs the suspend transition: a best-effort flush of the current
// session, then loop shutdown. Blocks until the loop has exited or ctx is
// done.
func (t *Tracker) Close(ctx context.Context) error {
	close(t.quit)
	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Tracker) run() {
	defer close(t.done)

	ticker := t.clock.Ticker(t.heartbeat)
	defer ticker.Stop()

	var s session

	for {
		select {
		case ev := <-t.events:
			t.handle(&s, ev)
		case <-ticker.C:
			// Heartbeat: flush elapsed time and restart the window. Each
			// heartbeat's window is disjoint from the next, so repeated
			// heartbeats never double-count.
			if s.tracking {
				s.startedAt = t.flush(&s)
			}
		case <-t.quit:
			if s.tracking {
				t.flush(&s)
			}
			return
		}
	}
}

// handle applies one transition. Flush-before-transition is mandatory: the
// prior state's elapsed time is recorded before the new state takes effect.
func (t *Tracker) handle(s *session, ev models.TabEvent) {
	now := t.clock.Now()

	switch ev.Type {
	case models.TabActivated, models.WindowFocused:
		if s.tracking {
			t.flush(s)
		}
		t.track(s, ev, now)

	case models.TabNavigated:
		if !s.tracking || ev.TabID != s.tabID {
			return
		}
		t.flush(s)
		t.track(s, ev, now)

	case models.WindowBlurred:
		if s.tracking {
			t.flush(s)
		}
		s.tracking = false

	case models.TabClosed:
		if !s.tracking || ev.TabID != s.tabID {
			return
		}
		t.flush(s)
		s.tracking = false

	default:
		log.Debug().Str("type", string(ev.Type)).Msg("Ignoring unknown tab event")
	}
}

// track enters Tracking for the event's tab. An empty URL means the
// extension could not resolve the tab; tracking degrades to idle.
func (t *Tracker) track(s *session, ev models.TabEvent, now time.Time) {
	if ev.URL == "" {
		s.tracking = false
		return
	}
	s.tracking = true
	s.tabID = ev.TabID
	s.rawURL = ev.URL
	s.startedAt = now
}

// flush records the elapsed session time into today's bucket and returns the
// flush instant. Sub-second sessions, internal-scheme URLs, unparseable URLs,
// and excluded domains are silently dropped; store failures are absorbed —
// losing a few seconds of dwell time is an acceptable failure mode.
func (t *Tracker) flush(s *session) time.Time {
	now := t.clock.Now()
	dur := now.Sub(s.startedAt)
	if dur <= minSession {
		return now
	}

	domain := t.trackableDomain(s.rawURL)
	if domain == "" {
		return now
	}

	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()

	if err := t.store.MergeDayBucket(ctx, now, domain, dur); err != nil {
		log.Debug().Err(err).Str("domain", domain).Msg("Dwell flush failed")
		return now
	}

	metrics.RecordFlush(ctx, dur)
	log.Debug().Str("domain", domain).Dur("duration", dur).Msg("Recorded dwell time")
	if t.onFlush != nil {
		t.onFlush(domain, dur)
	}
	return now
}

// trackableDomain resolves the aggregation key for a URL, or "" when the URL
// should not be tracked.
func (t *Tracker) trackableDomain(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	if _, internal := internalSchemes[u.Scheme]; internal {
		return ""
	}
	domain := u.Hostname()
	if domain == "" {
		return ""
	}
	if t.exclusions.Excluded(domain) {
		return ""
	}
	return domain
}
