/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the work-time tracking server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags, load config (file + environment)
  2. Initialize SQLite store
  3. Wire engine services (tracker, summary, sweeper, day-offs, sync)
  4. Configure HTTP router and background scheduler
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  Path to YAML config file (optional)
  -db      SQLite database path, overrides config
           Use ":memory:" for an in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (config timeout)
  3. Stop the background scheduler
  4. Close database connection
  5. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/worktime.db"

  # Run with config file
  ./server -config=./config.yaml

  # Run with in-memory database
  ./server -db=":memory:"

SEE ALSO:
  - config/config.go: Configuration schema and defaults
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/worktime-engine/api"
	"github.com/warp/worktime-engine/config"
	"github.com/warp/worktime-engine/directory"
	"github.com/warp/worktime-engine/engine"
	"github.com/warp/worktime-engine/notify"
	"github.com/warp/worktime-engine/store/sqlite"
)

func main() {
	// Flags
	configPath := flag.String("config", "", "path to YAML config file")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	if *dbPath != "" {
		cfg.DB.Path = *dbPath
	}

	logger := newLogger(cfg.Log.Level)
	slog.SetDefault(logger)

	// Initialize store
	store, err := sqlite.New(cfg.DB.Path)
	if err != nil {
		logger.Error("failed to initialize database", "err", err)
		os.Exit(1)
	}
	defer store.Close()

	// Wire engine services
	notifier := notify.New(logger, cfg.Notify.AdminEmail)
	tracker := engine.NewTracker(store, notifier, nil, logger)
	summary := engine.NewSummaryService(store, nil, cfg.Summary.CacheTTL)
	sweeper := engine.NewSweeper(store, notifier, nil, logger)
	dayOffs := engine.NewDayOffService(store, nil)
	syncer := directory.NewSyncer(store, &directory.StaticFeed{}, logger)

	handler := api.NewHandler(tracker, summary, dayOffs, sweeper, syncer, store, logger)
	router := api.NewRouter(handler)

	scheduler := api.NewScheduler(store, sweeper, syncer, logger)
	scheduler.BreakInterval = cfg.Sweep.BreakInterval
	scheduler.WorkInterval = cfg.Sweep.WorkInterval
	scheduler.DailyHour = cfg.Sweep.DailyHour
	scheduler.Start()
	defer scheduler.Stop()

	// Create server
	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("server starting", "addr", cfg.HTTP.Addr, "db", cfg.DB.Path)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "err", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "err", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
