package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gatewarden/gatewarden/internal/catalog"
	_ "github.com/gatewarden/gatewarden/internal/collectors"
	"github.com/gatewarden/gatewarden/internal/config"
	"github.com/gatewarden/gatewarden/internal/engine"
	"github.com/gatewarden/gatewarden/internal/fetch"
	"github.com/gatewarden/gatewarden/internal/jobs"
	"github.com/gatewarden/gatewarden/internal/pipeline"
	"github.com/gatewarden/gatewarden/internal/regexcache"
	"github.com/gatewarden/gatewarden/internal/report"
	"github.com/gatewarden/gatewarden/internal/scanner"
	"github.com/gatewarden/gatewarden/internal/server"
	"github.com/gatewarden/gatewarden/internal/store"
)

// scanStack is the full scan machinery wired from one resolved config:
// catalog, pattern cache, store, fetcher, engine, report writer, job
// registry, and the pipeline service. scan, serve, and mcp serve each
// build one and close it when done.
type scanStack struct {
	cfg      *config.Config
	cache    *regexcache.Cache
	library  *catalog.Library
	store    store.Store
	fetcher  *fetch.Fetcher
	engine   *engine.Engine
	reports  *report.Writer
	registry *jobs.Registry
	metrics  *server.Metrics
	service  *pipeline.Service
	sweeper  *store.Sweeper
}

// buildStack constructs every component in dependency order. withMetrics
// attaches the Prometheus observer; the one-shot CLI paths skip it.
func buildStack(ctx context.Context, cfg *config.Config, withMetrics bool, log *slog.Logger) (*scanStack, error) {
	st := &scanStack{cfg: cfg}
	st.cache = regexcache.New(cfg.Cache.MaxEntries, cfg.Cache.MaxBytes)

	var err error
	if cfg.Catalog.Path != "" {
		st.library, err = catalog.Load(cfg.Catalog.Path, st.cache, log)
	} else {
		st.library, err = catalog.LoadDefault(st.cache, log)
	}
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	backing, err := store.Open(ctx, store.Config{
		Backend: store.Backend(cfg.Storage.Backend),
		DSN:     cfg.Storage.DSN,
		Log:     log,
	})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	st.store = store.WithRetry(backing, store.RetryOptions{Log: log})

	st.fetcher = fetch.New(fetch.Options{
		BaseDir:  cfg.Scans.WorkspaceDir,
		MaxBytes: cfg.Scans.MaxRepoBytes,
		Log:      log,
	})
	st.engine = engine.New(st.library, st.cache, engine.Options{
		Limits: scanner.Limits{
			MaxFileBytes: cfg.Scans.MaxFileBytes,
			Workers:      cfg.Scans.Workers,
		},
		Collectors: cfg.Collectors.EnabledSet(),
		Log:        log,
	})
	st.reports = report.NewWriter(cfg.Reports.Dir, log)
	st.registry = jobs.NewRegistry(jobs.Options{Log: log})

	// A typed-nil *Metrics must not reach the pipeline: only assign the
	// interface when metrics are actually on.
	var observer pipeline.Observer
	if withMetrics {
		st.metrics = server.NewMetrics(st.cache, st.registry)
		observer = st.metrics
	}

	runner, err := pipeline.New(pipeline.Options{
		Fetcher:      st.fetcher,
		Engine:       st.engine,
		Store:        st.store,
		Reports:      st.reports,
		MaxFiles:     cfg.Scans.MaxFiles,
		ExcludeGlobs: cfg.Scans.Exclude,
		Timeouts:     pipeline.Timeouts{Scan: cfg.Scans.Timeout},
		Observer:     observer,
		Log:          log,
	})
	if err != nil {
		_ = st.store.Close()
		return nil, fmt.Errorf("build pipeline: %w", err)
	}
	st.service = pipeline.NewService(runner, st.registry, pipeline.ServiceOptions{
		MaxConcurrent: int64(cfg.Scans.MaxConcurrent),
		Log:           log,
	})

	if cfg.Storage.RetentionDays > 0 {
		st.sweeper = store.NewSweeper(st.store, cfg.Storage.Retention(), cfg.Storage.SweepInterval, log)
	}
	return st, nil
}

// Close tears the stack down in reverse order: stop accepting scans,
// drain the registry, stop the sweeper, then release the store.
func (st *scanStack) Close() {
	st.service.Close()
	st.registry.Close()
	if st.sweeper != nil {
		st.sweeper.Close()
	}
	_ = st.store.Close()
}
