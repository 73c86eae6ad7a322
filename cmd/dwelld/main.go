// Package main provides the dwelld daemon entry point: the loopback service
// the browser extension feeds with tab events and navigation history.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/thebtf/dwell/internal/ai"
	"github.com/thebtf/dwell/internal/cache"
	"github.com/thebtf/dwell/internal/config"
	"github.com/thebtf/dwell/internal/db/sqlite"
	"github.com/thebtf/dwell/internal/privacy"
	"github.com/thebtf/dwell/internal/tracker"
	"github.com/thebtf/dwell/internal/watcher"
	"github.com/thebtf/dwell/internal/worker"
	"github.com/thebtf/dwell/internal/worker/sse"
)

// Version is set at build time via ldflags.
var Version = "dev"

const shutdownTimeout = 10 * time.Second

func main() {
	// Parse flags
	listen := flag.String("listen", "", "Listen address (default from settings)")
	dataDir := flag.String("data-dir", "", "Data directory (default: ~/.dwell)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, NoColor: true})

	if *dataDir != "" {
		os.Setenv("DWELL_DATA_DIR", *dataDir)
	}

	// Ensure data directory and settings exist
	if err := config.EnsureAll(); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure data directories")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load config, using defaults")
		cfg = config.Default()
	}
	if *listen != "" {
		cfg.Listen = *listen
	}
	config.Set(cfg)

	// Initialize SQLite store (migrations run automatically)
	store, err := sqlite.NewStore(sqlite.StoreConfig{
		Path:    config.DBPath(),
		WALMode: true,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize SQLite store")
	}
	defer store.Close()

	broadcaster := sse.NewBroadcaster()

	tr := tracker.New(sqlite.NewBucketStore(store), tracker.Config{
		Heartbeat:  cfg.Heartbeat(),
		Exclusions: privacy.NewExclusions(cfg.ExcludedDomains),
		OnFlush:    broadcaster.BroadcastFlush,
	})
	tr.Start()

	reportCache, err := cache.New(cfg.Cache)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize report cache")
	}
	defer reportCache.Close()

	svc := worker.NewService(Version, store, tr, ai.New(nil), reportCache, broadcaster)
	defer svc.Shutdown()

	startSettingsWatcher()

	server := &http.Server{
		Addr:              cfg.Listen,
		Handler:           svc.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Listen).Str("version", Version).Msg("Starting dwelld")
		errCh <- server.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("Shutting down dwelld")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server error")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("HTTP shutdown incomplete")
	}

	// Suspend transition: flush the current session before exit.
	if err := tr.Close(ctx); err != nil {
		log.Warn().Err(err).Msg("Tracker shutdown incomplete")
	}
}

// startSettingsWatcher hot-reloads the config when the settings file
// changes, so credentials added in the UI take effect immediately.
func startSettingsWatcher() {
	settingsPath := config.SettingsPath()
	settingsWatcher, err := watcher.New(settingsPath, func() {
		if _, err := config.Reload(); err != nil {
			log.Warn().Err(err).Msg("Failed to reload settings")
			return
		}
		log.Info().Msg("Settings reloaded")
	})
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create settings watcher")
		return
	}
	if err := settingsWatcher.Start(); err != nil {
		log.Warn().Err(err).Msg("Failed to start settings watcher")
		return
	}
	log.Info().Str("path", settingsPath).Msg("Settings file watcher started")
}
