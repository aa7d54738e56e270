// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: MIT

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/gatewarden/gatewarden/internal/catalog"
	"github.com/gatewarden/gatewarden/internal/gate"
	"github.com/gatewarden/gatewarden/internal/jobs"
	"github.com/gatewarden/gatewarden/internal/report"
	"github.com/gatewarden/gatewarden/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubService drives the real registry without a pipeline behind it.
// Jobs stay pending until a test publishes updates through the handle.
type stubService struct {
	registry  *jobs.Registry
	submitErr error

	mu   sync.Mutex
	jobs map[string]*jobs.Job
}

func (s *stubService) Submit(req gate.Request) (jobs.Snapshot, error) {
	if s.submitErr != nil {
		return jobs.Snapshot{}, s.submitErr
	}
	j, err := s.registry.Create(req)
	if err != nil {
		return jobs.Snapshot{}, err
	}
	j.SetCancel(func() {})
	s.mu.Lock()
	if s.jobs == nil {
		s.jobs = make(map[string]*jobs.Job)
	}
	s.jobs[j.ID()] = j
	s.mu.Unlock()
	return j.Snapshot(), nil
}

func (s *stubService) Cancel(scanID string) bool {
	return s.registry.Cancel(scanID)
}

func (s *stubService) job(id string) *jobs.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id]
}

// closeJobs drains every applier the stub created. Job.Close is safe to
// call more than once, so tests that already closed their handles are
// unaffected.
func (s *stubService) closeJobs() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.jobs {
		j.Close()
	}
}

type testEnv struct {
	srv      *Server
	registry *jobs.Registry
	store    store.Store
	reports  *report.Writer
	svc      *stubService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := discard()

	registry := jobs.NewRegistry(jobs.Options{Log: logger})
	t.Cleanup(registry.Close)

	lib, err := catalog.LoadDefault(nil, logger)
	require.NoError(t, err)

	st := store.NewMemory()
	t.Cleanup(func() { _ = st.Close() })

	reports := report.NewWriter(t.TempDir(), logger)
	svc := &stubService{registry: registry}
	t.Cleanup(svc.closeJobs)

	srv, err := New(Options{
		Service:  svc,
		Registry: registry,
		Store:    st,
		Library:  lib,
		Reports:  reports,
		Version:  "test",
		Metrics:  NewMetrics(nil, registry),
		Log:      logger,
	})
	require.NoError(t, err)

	return &testEnv{srv: srv, registry: registry, store: st, reports: reports, svc: svc}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	return m
}

func sampleResult(id string, created time.Time) *gate.ScanResult {
	return &gate.ScanResult{
		ScanID:       id,
		OverallScore: 82.5,
		Gates: []gate.Result{
			{Gate: "STRUCTURED_LOGS", Status: gate.StatusPass, Score: 90},
			{Gate: "AVOID_LOGGING_SECRETS", Status: gate.StatusFail, Score: 60},
			{Gate: "TIMEOUTS", Status: gate.StatusWarning, Score: 65},
		},
		NotApplicable: []gate.Result{
			{Gate: "RETRY_LOGIC", Status: gate.StatusNotApplicable, Reason: "backend only"},
		},
		Metadata: gate.RepoMetadata{
			RepoURL:   "https://github.com/acme/api",
			Branch:    "main",
			FileCount: 10,
		},
		CreatedAt:   created,
		UpdatedAt:   created.Add(time.Minute),
		CompletedAt: created.Add(time.Minute),
	}
}

func TestSubmitAcceptsScan(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/scan", map[string]any{
		"repository_url": "https://github.com/acme/api",
		"branch":         "main",
	})
	require.Equal(t, http.StatusAccepted, rec.Code)

	body := decodeBody(t, rec)
	assert.NotEmpty(t, body["scan_id"])
	assert.Equal(t, "started", body["status"])
	assert.NotEmpty(t, body["created_at"])

	_, ok := env.registry.Get(body["scan_id"].(string))
	assert.True(t, ok)
}

func TestSubmitRejectsBadBodies(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		body any
	}{
		{"missing url", map[string]any{"branch": "main"}},
		{"whitespace url", map[string]any{"repository_url": "https://github.com/a b"}},
		{"threshold out of range", map[string]any{"repository_url": "https://github.com/acme/api", "threshold": 150}},
		{"unknown format", map[string]any{"repository_url": "https://github.com/acme/api", "report_format": "pdf"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/v1/scan", tt.body)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "invalid_request", decodeBody(t, rec)["kind"])
		})
	}
}

func TestSubmitMalformedJSON(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/scan", bytes.NewReader([]byte("{nope")))
	rec := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitDuplicateConflict(t *testing.T) {
	env := newTestEnv(t)
	body := map[string]any{"repository_url": "https://github.com/acme/api", "branch": "main"}

	first := env.do(t, http.MethodPost, "/api/v1/scan", body)
	require.Equal(t, http.StatusAccepted, first.Code)
	firstID := decodeBody(t, first)["scan_id"]

	second := env.do(t, http.MethodPost, "/api/v1/scan", body)
	require.Equal(t, http.StatusConflict, second.Code)
	dup := decodeBody(t, second)
	assert.Equal(t, "duplicate_scan", dup["kind"])
	assert.Equal(t, firstID, dup["scan_id"])
}

func TestStatusCarriesAliases(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/scan", map[string]any{
		"repository_url": "https://github.com/acme/api",
	})
	id := decodeBody(t, rec)["scan_id"].(string)

	status := env.do(t, http.MethodGet, "/api/v1/scan/"+id, nil)
	require.Equal(t, http.StatusOK, status.Code)
	body := decodeBody(t, status)

	assert.Equal(t, "pending", body["status"])
	assert.Equal(t, body["overall_score"], body["score"])
	assert.Equal(t, body["progress_percent"], body["progress"])
}

func TestStatusCompletedIncludesGates(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/scan", map[string]any{
		"repository_url": "https://github.com/acme/api",
	})
	id := decodeBody(t, rec)["scan_id"].(string)

	j := env.svc.job(id)
	require.NotNil(t, j)
	j.Publish(jobs.Started())
	j.Publish(jobs.Completed(sampleResult(id, time.Now().UTC())))
	j.Close()

	status := env.do(t, http.MethodGet, "/api/v1/scan/"+id, nil)
	require.Equal(t, http.StatusOK, status.Code)
	body := decodeBody(t, status)

	assert.Equal(t, "completed", body["status"])
	assert.Equal(t, body["gate_results"], body["gates"])

	counts := body["counts"].(map[string]any)
	assert.EqualValues(t, 1, counts["passed"])
	assert.EqualValues(t, 1, counts["failed"])
	assert.EqualValues(t, 1, counts["warnings"])
	assert.EqualValues(t, 1, counts["not_applicable"])

	reports := body["reports"].(map[string]any)
	assert.Contains(t, reports, "json")
	assert.Contains(t, reports, "html")
}

func TestStatusFallsBackToStore(t *testing.T) {
	env := newTestEnv(t)
	res := sampleResult("hist-1", time.Now().UTC().Add(-time.Hour))
	require.NoError(t, env.store.Save(context.Background(), res))

	rec := env.do(t, http.MethodGet, "/api/v1/scan/hist-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)

	assert.Equal(t, "completed", body["status"])
	assert.EqualValues(t, 100, body["progress_percent"])
	assert.EqualValues(t, res.OverallScore, body["overall_score"])
	assert.NotEmpty(t, body["gate_results"])
}

func TestStatusUnknownScan(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/v1/scan/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelRunningScan(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/scan", map[string]any{
		"repository_url": "https://github.com/acme/api",
	})
	id := decodeBody(t, rec)["scan_id"].(string)

	del := env.do(t, http.MethodDelete, "/api/v1/scan/"+id, nil)
	require.Equal(t, http.StatusAccepted, del.Code)
	assert.Equal(t, "cancelling", decodeBody(t, del)["status"])
}

func TestCancelTerminalScanConflicts(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/scan", map[string]any{
		"repository_url": "https://github.com/acme/api",
	})
	id := decodeBody(t, rec)["scan_id"].(string)

	j := env.svc.job(id)
	j.Publish(jobs.Started())
	j.Publish(jobs.Completed(sampleResult(id, time.Now().UTC())))
	j.Close()

	del := env.do(t, http.MethodDelete, "/api/v1/scan/"+id, nil)
	assert.Equal(t, http.StatusConflict, del.Code)
}

func TestCancelUnknownScan(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodDelete, "/api/v1/scan/ghost", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestScansMergesLiveAndPersisted(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	old := time.Now().UTC().Add(-2 * time.Hour)
	require.NoError(t, env.store.Save(ctx, sampleResult("hist-a", old)))
	require.NoError(t, env.store.Save(ctx, sampleResult("hist-b", old.Add(time.Minute))))

	rec := env.do(t, http.MethodPost, "/api/v1/scan", map[string]any{
		"repository_url": "https://github.com/acme/live",
	})
	liveID := decodeBody(t, rec)["scan_id"].(string)

	list := env.do(t, http.MethodGet, "/api/v1/scans", nil)
	require.Equal(t, http.StatusOK, list.Code)
	body := decodeBody(t, list)

	assert.EqualValues(t, 3, body["total"])
	scans := body["scans"].([]any)
	require.Len(t, scans, 3)
	newest := scans[0].(map[string]any)
	assert.Equal(t, liveID, newest["scan_id"])
	assert.Equal(t, "pending", newest["status"])
}

func TestScansFiltersAndPaginates(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	for i, id := range []string{"s1", "s2", "s3"} {
		require.NoError(t, env.store.Save(ctx, sampleResult(id, base.Add(time.Duration(i)*time.Minute))))
	}

	list := env.do(t, http.MethodGet, "/api/v1/scans?status=completed&limit=2&offset=1", nil)
	require.Equal(t, http.StatusOK, list.Code)
	body := decodeBody(t, list)

	assert.EqualValues(t, 3, body["total"])
	assert.Len(t, body["scans"].([]any), 2)

	bad := env.do(t, http.MethodGet, "/api/v1/scans?status=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, bad.Code)

	badLimit := env.do(t, http.MethodGet, "/api/v1/scans?limit=-2", nil)
	assert.Equal(t, http.StatusBadRequest, badLimit.Code)
}

func TestGatesListsCatalog(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/gates", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body gatesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body.Version)
	assert.Greater(t, body.TotalGates, 10)
	assert.Equal(t, body.TotalGates, len(body.Gates))
	for _, g := range body.Gates {
		assert.NotEmpty(t, g.Name)
		assert.Greater(t, g.Weight, 0.0)
		assert.Greater(t, g.PatternCount, 0)
	}
}

func TestHealthReportsBackends(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)

	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "test", body["version"])
	st := body["store"].(map[string]any)
	assert.Equal(t, "memory", st["backend"])
	catalogInfo := body["catalog"].(map[string]any)
	assert.Equal(t, "embedded", catalogInfo["source"])
}

// brokenStore fails health checks while passing everything else
// through to the wrapped store.
type brokenStore struct {
	store.Store
}

func (brokenStore) Health(context.Context) error {
	return errors.New("backend gone")
}

func TestHealthDegradedOnStoreFailure(t *testing.T) {
	env := newTestEnv(t)

	srv, err := New(Options{
		Service:  env.svc,
		Registry: env.registry,
		Store:    brokenStore{env.store},
		Library:  mustLibrary(t),
		Reports:  env.reports,
		Version:  "test",
		Log:      discard(),
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "degraded", body["status"])
	assert.Contains(t, body["store_error"], "backend gone")
}

func mustLibrary(t *testing.T) *catalog.Library {
	t.Helper()
	lib, err := catalog.LoadDefault(nil, discard())
	require.NoError(t, err)
	return lib
}

func TestMetricsEndpointServes(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "gatewarden_scans_submitted_total")
	assert.Contains(t, rec.Body.String(), "gatewarden_jobs_running")
}

func TestNewRejectsMissingWiring(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scan service")
}

func TestRequestIDHeaderReflected(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/v1/health", nil)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}
