package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pv/sensor-panel/internal/api"
	"github.com/pv/sensor-panel/internal/archive"
	"github.com/pv/sensor-panel/internal/backend"
	"github.com/pv/sensor-panel/internal/config"
	"github.com/pv/sensor-panel/internal/directory"
	"github.com/pv/sensor-panel/internal/logger"
	"github.com/pv/sensor-panel/internal/sensordata"
	"github.com/pv/sensor-panel/internal/session"
	"github.com/pv/sensor-panel/internal/storage"
	"github.com/pv/sensor-panel/ui"
)

func main() {
	cfg := config.Parse()

	// Initialize logger
	logger.Init(cfg.LogFormat, config.ParseLogLevel(cfg.LogLevel))

	// Create storage
	var store storage.Storage
	var err error

	switch cfg.Storage {
	case config.StorageSQLite:
		store, err = storage.NewSQLiteStorage(cfg.SQLitePath)
		if err != nil {
			logger.Error("Failed to create SQLite storage", "error", err)
			os.Exit(1)
		}
		logger.Info("Using SQLite storage", "path", cfg.SQLitePath)
	default:
		store = storage.NewMemoryStorage()
		logger.Info("Using in-memory storage")
	}
	defer store.Close()

	// Load directory and apply configured endpoints/projects
	dir, err := directory.Load(store)
	if err != nil {
		logger.Error("Failed to load directory", "error", err)
		os.Exit(1)
	}
	seedDirectory(dir, cfg)

	// Optional raw data archive
	var sink sensordata.Sink
	var arch api.Archive
	if cfg.Archive.Enabled() {
		writer, err := archive.Open(cfg.Archive.URL)
		if err != nil {
			logger.Error("Failed to connect archive, continuing without it", "error", err)
		} else {
			recorder := archive.NewRecorder(writer, cfg.Archive.GetBufferSize(), cfg.Archive.GetBatchSize(), cfg.Archive.GetFlushInterval())
			recorder.Start()
			defer recorder.Stop()
			sink, arch = recorder, recorder
			logger.Info("Raw data archive enabled", "batch", cfg.Archive.GetBatchSize(), "interval", cfg.Archive.GetFlushInterval().String())
		}
	}

	client := backend.NewClient(cfg.HTTPTimeout)
	sessions := session.NewManager(dir, client, sink, cfg.RefreshInterval, cfg.SessionTTL)
	sessions.Start()

	handlers := api.NewHandlers(dir, sessions, arch)
	server := api.NewServer(handlers, ui.Content)

	httpServer := &http.Server{
		Addr:    cfg.Addr,
		Handler: server,
	}

	go func() {
		logger.Info("Starting server",
			"addr", cfg.Addr,
			"endpoints", len(dir.Endpoints()),
			"projects", len(dir.Projects()),
			"http_timeout", cfg.HTTPTimeout.String(),
			"refresh_interval", cfg.RefreshInterval.String(),
		)

		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}
	sessions.Stop()

	logger.Info("Server stopped")
}

// seedDirectory adds configured entries that are not stored yet.
// Stored entries win: names already present are left as they are.
func seedDirectory(dir *directory.Directory, cfg *config.Config) {
	for _, ep := range cfg.Endpoints {
		if _, exists := dir.Endpoint(ep.Name); exists {
			continue
		}
		if err := dir.AddEndpoint(ep.Name, ep.GetKind(), ep.URL); err != nil {
			logger.Warn("Skipping configured endpoint", "name", ep.Name, "error", err)
		}
	}
	for _, p := range cfg.Projects {
		if _, exists := dir.Project(p.Name); exists {
			continue
		}
		if err := dir.AddProject(p.Name, p.Key, p.Endpoint); err != nil {
			logger.Warn("Skipping configured project", "name", p.Name, "error", err)
			continue
		}
		if _, ok := dir.Endpoint(p.Endpoint); !ok {
			logger.Warn("Project refers to unknown endpoint", "project", p.Name, "endpoint", p.Endpoint)
		}
	}
}
