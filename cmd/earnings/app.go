package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/warp/earnings-engine/config"
	"github.com/warp/earnings-engine/earnings"
	"github.com/warp/earnings-engine/earnings/store"
	"github.com/warp/earnings-engine/metrics"
	"github.com/warp/earnings-engine/store/sqlite"
)

// backend is everything a store must provide to run the engine.
type backend interface {
	earnings.TaskFeed
	earnings.DefaultsFeed
	earnings.ReasonFeed
	earnings.RecordStore
	earnings.AuditLog
	earnings.FeedWriter
}

// app is the wired engine shared by every command.
type app struct {
	log      *zap.SugaredLogger
	store    backend
	ping     func(ctx context.Context) error
	closeFn  func() error
	reasons  *earnings.CachedReasonFeed
	defaults *earnings.CachedDefaultsFeed
	metrics  *metrics.MetricsRegistry
	svc      *earnings.Service
}

func newApp(cfg config.Config, log *zap.SugaredLogger) (*app, error) {
	a := &app{log: log, closeFn: func() error { return nil }}

	switch cfg.DB.Driver {
	case "memory":
		a.store = store.NewMemory()
		log.Warn("using in-memory store, nothing survives a restart")
	case "sqlite":
		if dir := filepath.Dir(cfg.DB.Path); cfg.DB.Path != ":memory:" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		s, err := sqlite.New(cfg.DB.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		a.store = s
		a.ping = s.Ping
		a.closeFn = s.Close
		log.Infow("database opened", "path", cfg.DB.Path)
	default:
		return nil, fmt.Errorf("unsupported db driver %q", cfg.DB.Driver)
	}

	a.reasons = earnings.NewCachedReasonFeed(a.store, cfg.Cache.ReasonsTTL)
	a.defaults = earnings.NewCachedDefaultsFeed(a.store, cfg.Cache.DefaultsTTL)
	a.metrics = metrics.NewMetricsRegistry()

	a.svc = earnings.NewService(earnings.Deps{
		Tasks:       a.store,
		Defaults:    a.defaults,
		Reasons:     a.reasons,
		Records:     a.store,
		Audit:       a.store,
		Observer:    a.metrics,
		Logger:      log.With("component", "service"),
		Parallelism: cfg.Engine.Parallelism,
	})
	return a, nil
}

func (a *app) Close() error {
	return a.closeFn()
}
