// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: MIT

// Package server exposes the scan pipeline over HTTP: job submission
// and polling, report delivery, the gate catalog, health, and
// Prometheus metrics. The server is a thin layer; every decision about
// scanning lives in the pipeline and the packages under it.
package server

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/gatewarden/gatewarden/internal/catalog"
	"github.com/gatewarden/gatewarden/internal/gate"
	"github.com/gatewarden/gatewarden/internal/jobs"
	"github.com/gatewarden/gatewarden/internal/report"
	"github.com/gatewarden/gatewarden/internal/store"
)

// maxBodyBytes bounds a submission body. Scan requests are a handful
// of short strings; anything bigger is a mistake or an attack.
const maxBodyBytes = 1 << 20

// ScanService is the slice of the pipeline service the handlers need.
// Narrowed to an interface so handler tests run against a stub instead
// of a full pipeline.
type ScanService interface {
	Submit(req gate.Request) (jobs.Snapshot, error)
	Cancel(scanID string) bool
}

// Options wires a Server. Service, Registry, Store, Library, and
// Reports are required.
type Options struct {
	Service  ScanService
	Registry *jobs.Registry
	Store    store.Store
	Library  *catalog.Library
	Reports  *report.Writer

	// Version is reported by the health endpoint.
	Version string
	// CORSOrigins lists allowed origins; empty allows any.
	CORSOrigins []string
	// Metrics enables the /metrics endpoint and per-route series when
	// set.
	Metrics *Metrics
	Log     *slog.Logger
}

// Server carries the handler dependencies. Construct with New; the
// zero value is not usable.
type Server struct {
	svc      ScanService
	registry *jobs.Registry
	store    store.Store
	library  *catalog.Library
	reports  *report.Writer
	version  string
	metrics  *Metrics
	log      *slog.Logger

	handler http.Handler
}

// New validates the wiring and builds the router.
func New(opts Options) (*Server, error) {
	switch {
	case opts.Service == nil:
		return nil, fmt.Errorf("server: missing scan service")
	case opts.Registry == nil:
		return nil, fmt.Errorf("server: missing job registry")
	case opts.Store == nil:
		return nil, fmt.Errorf("server: missing result store")
	case opts.Library == nil:
		return nil, fmt.Errorf("server: missing gate catalog")
	case opts.Reports == nil:
		return nil, fmt.Errorf("server: missing report writer")
	}
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		svc:      opts.Service,
		registry: opts.Registry,
		store:    opts.Store,
		library:  opts.Library,
		reports:  opts.Reports,
		version:  opts.Version,
		metrics:  opts.Metrics,
		log:      log,
	}
	s.handler = s.routes(opts.CORSOrigins)
	return s, nil
}

// Handler returns the root http.Handler. The caller owns the
// http.Server around it, including timeouts and shutdown.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes(origins []string) http.Handler {
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.accessLog)
	r.Use(middleware.Recoverer)
	if s.metrics != nil {
		r.Use(s.metrics.instrument)
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "If-None-Match"},
		MaxAge:         300,
	}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/scan", s.handleSubmit)
		r.Get("/scan/{scanID}", s.handleStatus)
		r.Delete("/scan/{scanID}", s.handleCancel)
		r.Get("/scan/{scanID}/report/{format}", s.handleReport)
		r.Get("/scans", s.handleScans)
		r.Get("/gates", s.handleGates)
		r.Get("/health", s.handleHealth)
	})
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		notFound(w, "route")
	})
	return r
}
