// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/gatewarden/gatewarden/internal/config"
	gatelog "github.com/gatewarden/gatewarden/internal/log"
	"github.com/gatewarden/gatewarden/internal/server"
	"github.com/gatewarden/gatewarden/internal/version"
)

// Serve-specific flag values.
var (
	serveConfig string
	serveHost   string
	servePort   int
)

// serveCmd runs the scan service: the HTTP API, the job registry, the
// retention sweeper, and the Prometheus endpoint.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the gatewarden HTTP API service",
	Long: `Start the gatewarden service. Scans are submitted over the REST API and
run as background jobs; progress, results, and rendered reports are all
served from the same listener, along with /metrics and health probes.

Configuration comes from gatewarden.yaml and GATEWARDEN_* environment
variables; --host and --port override the listener address.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveConfig, "config", "", "path to gatewarden.yaml")
	serveCmd.Flags().StringVar(&serveHost, "host", "", "listen host (overrides config)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "listen port (overrides config)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Resolve(serveConfig)
	if err != nil {
		return exitError(ExitError, "gatewarden: %s", err)
	}
	if cmd.Flags().Changed("host") {
		cfg.Server.Host = serveHost
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = servePort
	}

	// The service logs by level and format, not by the CLI verbosity
	// flags; -v still forces debug for quick diagnosis.
	if verbose {
		cfg.Log.Level = "debug"
	}
	gatelog.SetupService(cfg.Log.Level, cfg.Log.Format)
	log := slog.Default()

	ctx := cmd.Context()
	stack, err := buildStack(ctx, cfg, true, log)
	if err != nil {
		return exitError(ExitError, "gatewarden: %s", err)
	}
	defer stack.Close()

	if cfg.Catalog.Watch && cfg.Catalog.Path != "" {
		go func() {
			if werr := stack.library.Watch(ctx); werr != nil {
				log.Warn("catalog watch stopped", "error", werr)
			}
		}()
	}

	srv, err := server.New(server.Options{
		Service:     stack.service,
		Registry:    stack.registry,
		Store:       stack.store,
		Library:     stack.library,
		Reports:     stack.reports,
		Version:     version.String(),
		CORSOrigins: cfg.Server.CORSOrigins,
		Metrics:     stack.metrics,
		Log:         log,
	})
	if err != nil {
		return exitError(ExitError, "gatewarden: %s", err)
	}

	httpSrv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("gatewarden listening", "addr", httpSrv.Addr, "version", version.String())
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return exitError(ExitError, "gatewarden: serve: %s", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down", "grace", cfg.Server.ShutdownGrace)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownGrace)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		_ = httpSrv.Close()
	}
	return nil
}
