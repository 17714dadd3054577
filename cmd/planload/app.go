package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/JonMunkholm/planload/internal/config"
	"github.com/JonMunkholm/planload/internal/core"
	"github.com/JonMunkholm/planload/internal/jobs"
	"github.com/JonMunkholm/planload/internal/logging"
	"github.com/JonMunkholm/planload/internal/metrics"
	"github.com/JonMunkholm/planload/internal/store/duckdb"
	"github.com/JonMunkholm/planload/internal/store/postgres"
	"github.com/JonMunkholm/planload/internal/web"
)

// app wires the configured store, job registry and service together.
type app struct {
	cfg        *config.Config
	service    *core.Service
	metrics    *metrics.Recorder
	closeStore func()
}

func newApp(ctx context.Context, cfg *config.Config, verbose bool) (*app, error) {
	reg, err := loadJobs(cfg)
	if err != nil {
		return nil, err
	}

	open, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	core.MaxFileSize = cfg.Run.MaxFileSize

	rec := metrics.New()
	svc := core.NewService(open, reg,
		core.WithObserver(logging.NewObserver(slog.Default(), verbose)),
		core.WithRecorder(rec),
		core.WithLimiter(core.NewRunLimiter(cfg.Run.MaxConcurrent, cfg.Run.MaxWaitTime)),
		core.WithRunTimeout(cfg.Run.Timeout),
		core.WithPreviewLimit(cfg.Run.PreviewLimit),
	)

	return &app{cfg: cfg, service: svc, metrics: rec, closeStore: closeStore}, nil
}

// loadJobs reads the job file and logs what it registered.
func loadJobs(cfg *config.Config) (*core.Registry, error) {
	reg, err := jobs.LoadFile(cfg.Jobs.File, cfg.Store.Schema)
	if err != nil {
		return nil, err
	}

	slog.Info("jobs registered",
		"file", cfg.Jobs.File,
		"count", reg.Count(),
		"groups", len(reg.Groups()),
		"derived", len(reg.Derived()),
	)
	for _, group := range reg.Groups() {
		slog.Debug("job group", "group", group, "jobs", len(reg.ByGroup(group)))
	}
	return reg, nil
}

// openStore returns the opener for the configured driver and a cleanup func.
func openStore(ctx context.Context, cfg *config.Config) (core.Opener, func(), error) {
	switch cfg.Store.Driver {
	case config.DriverDuckDB:
		slog.Info("using duckdb store", "path", cfg.DuckDB.Path)
		return duckdb.Opener(cfg.DuckDB.Path), func() {}, nil

	case config.DriverPostgres:
		pool, err := postgres.NewPool(ctx, postgres.PoolConfig{
			URL:             cfg.Database.URL,
			MaxConns:        cfg.Database.MaxConns,
			MinConns:        cfg.Database.MinConns,
			MaxConnLifetime: cfg.Database.MaxConnLifetime,
			MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
		})
		if err != nil {
			return nil, nil, err
		}

		// Log which database we connected to
		if u, err := url.Parse(cfg.Database.URL); err == nil {
			slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
		} else {
			slog.Info("connected to database")
		}
		return pool.Opener(), pool.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// Close releases the store.
func (a *app) Close() {
	a.closeStore()
}

// serve runs the HTTP API until ctx is cancelled, then drains active runs.
func (a *app) serve(ctx context.Context) error {
	server := web.NewServer(a.service, a.metrics.Handler(), a.cfg.Server)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if status := a.service.Limiter().Status(); status.Active > 0 {
		slog.Info("waiting for runs to complete", "active", status.Active, "running", status.Running)
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Warn("shutdown incomplete", "error", err)
		return err
	}
	slog.Info("server stopped")
	return nil
}
