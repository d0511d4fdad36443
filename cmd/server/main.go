package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/JonMunkholm/mapexport/internal/config"
	"github.com/JonMunkholm/mapexport/internal/core"
	_ "github.com/JonMunkholm/mapexport/internal/core/tables" // Register all targets
	"github.com/JonMunkholm/mapexport/internal/logging"
	"github.com/JonMunkholm/mapexport/internal/metrics"
	"github.com/JonMunkholm/mapexport/internal/store"
	"github.com/JonMunkholm/mapexport/internal/web"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logCloser, err := logging.Setup(logging.Options{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	})
	if err != nil {
		return err
	}
	defer logCloser.Close()

	slog.Info("configuration loaded", "config", cfg.String())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	templates, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	service := core.NewService(templates, core.ServiceConfig{
		ExportTimeout: cfg.Export.Timeout,
		Retention:     cfg.Export.Retention,
		PreviewRows:   cfg.Export.PreviewRows,
		MaxConcurrent: cfg.Export.MaxConcurrent,
		MaxWait:       cfg.Export.MaxWaitTime,
	})

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m, err = metrics.New(cfg.Metrics.Runtime)
		if err != nil {
			return err
		}
		service.SetObserver(m)
	}

	slog.Info("targets registered",
		"count", core.TargetCount(),
		"groups", len(core.Groups()),
	)
	for _, group := range core.Groups() {
		slog.Debug("target group", "group", group, "targets", len(core.ByGroup(group)))
	}

	server := web.NewServer(service, cfg, m)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Let running exports finish before cancelling what remains.
	if status := service.Limiter().Status(); status.Active > 0 {
		slog.Info("waiting for exports to complete", "active", status.Active)
		drainCtx, cancelDrain := context.WithTimeout(shutdownCtx, cfg.Server.ShutdownTimeout/2)
		if err := service.Limiter().WaitForDrain(drainCtx); err != nil {
			slog.Warn("exports did not complete in time", "error", err)
		}
		cancelDrain()
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
	if err := service.Shutdown(shutdownCtx); err != nil {
		slog.Warn("exports cancelled during shutdown", "error", err)
	}
	return nil
}

// openStore connects to PostgreSQL when a database URL is configured and
// falls back to an in-memory store otherwise.
func openStore(ctx context.Context, cfg *config.Config) (core.TemplateStore, func(), error) {
	if cfg.Database.URL == "" {
		slog.Info("no database configured, saved mappings are kept in memory")
		return store.NewMemory(), func() {}, nil
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		return nil, nil, err
	}
	poolConfig.MaxConns = int32(cfg.Database.MaxConns)
	poolConfig.MinConns = int32(cfg.Database.MinConns)
	poolConfig.MaxConnLifetime = cfg.Database.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.Database.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}

	if u, err := url.Parse(cfg.Database.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	} else {
		slog.Info("connected to database")
	}

	pg := store.NewPostgres(pool)
	if cfg.Database.AutoMigrate {
		if err := pg.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
	}
	return pg, pool.Close, nil
}
