// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: MIT

package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gatewarden/gatewarden/internal/jobs"
	"github.com/gatewarden/gatewarden/internal/regexcache"
)

// Metrics owns the Prometheus series for one server process. It doubles
// as the pipeline Observer, so stage timings flow in without the
// pipeline importing this package's registry. A private registry keeps
// tests from tripping over duplicate registration.
type Metrics struct {
	registry *prometheus.Registry

	scansSubmitted prometheus.Counter
	scansFinished  *prometheus.CounterVec
	stageDuration  *prometheus.HistogramVec
	stageErrors    *prometheus.CounterVec

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// NewMetrics builds the metric set. The cache and registry arguments
// feed pull-style gauges: their Stats methods are invoked at scrape
// time, so the gauges are always current and cost nothing between
// scrapes. Either may be nil to skip its gauges.
func NewMetrics(cache *regexcache.Cache, registry *jobs.Registry) *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		scansSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gatewarden_scans_submitted_total",
			Help: "Scan jobs accepted for execution.",
		}),
		scansFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gatewarden_scans_finished_total",
			Help: "Scan jobs reaching a terminal state, by status.",
		}, []string{"status"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gatewarden_stage_duration_seconds",
			Help:    "Wall time per pipeline stage.",
			Buckets: []float64{.05, .25, 1, 5, 15, 60, 180, 600},
		}, []string{"stage"}),
		stageErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gatewarden_stage_errors_total",
			Help: "Pipeline stage failures, by stage.",
		}, []string{"stage"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gatewarden_http_requests_total",
			Help: "HTTP requests served, by route and status code.",
		}, []string{"method", "route", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gatewarden_http_request_duration_seconds",
			Help:    "HTTP request latency, by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	reg.MustRegister(
		m.scansSubmitted, m.scansFinished,
		m.stageDuration, m.stageErrors,
		m.httpRequests, m.httpDuration,
	)

	if cache != nil {
		reg.MustRegister(
			prometheus.NewCounterFunc(prometheus.CounterOpts{
				Name: "gatewarden_pattern_cache_hits_total",
				Help: "Compiled-pattern cache hits.",
			}, func() float64 { return float64(cache.Stats().Hits) }),
			prometheus.NewCounterFunc(prometheus.CounterOpts{
				Name: "gatewarden_pattern_cache_misses_total",
				Help: "Compiled-pattern cache misses (compiles).",
			}, func() float64 { return float64(cache.Stats().Misses) }),
			prometheus.NewCounterFunc(prometheus.CounterOpts{
				Name: "gatewarden_pattern_cache_evictions_total",
				Help: "Compiled patterns evicted under the size bounds.",
			}, func() float64 { return float64(cache.Stats().Evictions) }),
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Name: "gatewarden_pattern_cache_entries",
				Help: "Compiled patterns currently cached.",
			}, func() float64 { return float64(cache.Stats().Size) }),
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Name: "gatewarden_pattern_cache_memory_bytes",
				Help: "Approximate memory held by cached patterns.",
			}, func() float64 { return float64(cache.Stats().MemoryBytes) }),
		)
	}
	if registry != nil {
		reg.MustRegister(
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Name: "gatewarden_jobs_running",
				Help: "Scan jobs currently executing.",
			}, func() float64 { return float64(registry.Stats().Running) }),
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Name: "gatewarden_jobs_pending",
				Help: "Scan jobs waiting for an execution slot.",
			}, func() float64 { return float64(registry.Stats().Pending) }),
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Name: "gatewarden_jobs_tracked",
				Help: "Scan jobs held in the registry, all states.",
			}, func() float64 { return float64(registry.Stats().Total) }),
		)
	}
	return m
}

// Handler serves the scrape endpoint for this metric set.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ScanSubmitted records one accepted scan job.
func (m *Metrics) ScanSubmitted() {
	m.scansSubmitted.Inc()
}

// StageCompleted implements pipeline.Observer.
func (m *Metrics) StageCompleted(stage string, d time.Duration, err error) {
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
	if err != nil {
		m.stageErrors.WithLabelValues(stage).Inc()
	}
}

// ScanFinished implements pipeline.Observer.
func (m *Metrics) ScanFinished(status jobs.Status, d time.Duration) {
	m.scansFinished.WithLabelValues(string(status)).Inc()
}

// instrument is the HTTP middleware recording request counts and
// latency against the matched chi route pattern, so parametrized paths
// collapse into one series instead of one per scan ID.
func (m *Metrics) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		m.httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(ww.Status())).Inc()
		m.httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
