package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/JonMunkholm/csvlens/internal/config"
	"github.com/JonMunkholm/csvlens/internal/core"
	"github.com/JonMunkholm/csvlens/internal/logging"
	"github.com/JonMunkholm/csvlens/internal/web"
	"github.com/joho/godotenv"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	// Load and validate configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging based on config
	flushLogs := logging.Setup(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.SeqURL)
	defer flushLogs()

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"table_root", cfg.Table.Root,
		"row_index", cfg.Table.RowIndex,
		"max_sessions", cfg.Session.MaxOpen,
		"rate_limit_enabled", cfg.Rate.Enabled,
	)

	service, err := core.NewService(core.ServiceConfig{
		Root:               cfg.Table.Root,
		RowIndex:           cfg.Table.RowIndex,
		MaxSessions:        cfg.Session.MaxOpen,
		IdleTTL:            cfg.Session.IdleTTL,
		MaxConcurrentOpens: cfg.Table.MaxConcurrentOpens,
		OpenWaitTime:       cfg.Table.OpenWaitTime,
	})
	if err != nil {
		slog.Error("failed to create service", "error", err)
		flushLogs()
		os.Exit(1)
	}

	server := web.NewServer(service, cfg)

	// Create cancellable context for background jobs
	jobCtx, cancelJobs := context.WithCancel(context.Background())
	go service.StartSessionSweeper(jobCtx)

	// Graceful shutdown
	done := make(chan struct{})
	go func() {
		defer close(done)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")
		cancelJobs()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}

		// Opens in flight hold file handles; let them finish before unmapping.
		if status := service.OpenLimiterStatus(); status.Active > 0 {
			slog.Info("waiting for opens to complete", "active", status.Active)
			if err := service.WaitForOpens(shutdownCtx); err != nil {
				slog.Warn("opens did not complete in time", "error", err)
			}
		}

		service.CloseAll()
	}()

	if err := server.Start(cfg.Server.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server stopped", "error", err)
		cancelJobs()
		service.CloseAll()
		flushLogs()
		os.Exit(1)
	}
	<-done
	slog.Info("server stopped")
}
