package mcpserver

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatewarden/gatewarden/internal/catalog"
	"github.com/gatewarden/gatewarden/internal/gate"
	"github.com/gatewarden/gatewarden/internal/jobs"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newRegistry(t *testing.T) *jobs.Registry {
	t.Helper()
	reg := jobs.NewRegistry(jobs.Options{Log: discard()})
	t.Cleanup(reg.Close)
	return reg
}

func loadLibrary(t *testing.T) *catalog.Library {
	t.Helper()
	lib, err := catalog.LoadDefault(nil, discard())
	require.NoError(t, err)
	return lib
}

func sampleResult(scanID string) *gate.ScanResult {
	return &gate.ScanResult{
		ScanID:       scanID,
		OverallScore: 82.5,
		Gates: []gate.Result{
			{
				Gate:        "STRUCTURED_LOGS",
				DisplayName: "Logs Searchable and Available",
				Status:      gate.StatusPass,
				Score:       90,
			},
			{
				Gate:           "RETRY_LOGIC",
				DisplayName:    "Retry Logic",
				Status:         gate.StatusFail,
				Score:          40,
				Recommendation: "Wrap outbound calls in a retry helper with backoff.",
			},
		},
	}
}

// fakeService drives every submission straight to a terminal state.
type fakeService struct {
	registry *jobs.Registry
	fail     bool
}

func (s *fakeService) Submit(req gate.Request) (jobs.Snapshot, error) {
	job, err := s.registry.Create(req)
	if err != nil {
		return jobs.Snapshot{}, err
	}
	snap := job.Snapshot()
	go func() {
		job.Publish(jobs.Started())
		if s.fail {
			job.Publish(jobs.Failed("repository fetch failed"))
		} else {
			job.Publish(jobs.Completed(sampleResult(job.ID())))
		}
		job.Close()
	}()
	return snap, nil
}

// stalledService leaves submissions running until the test cleans up.
type stalledService struct {
	registry *jobs.Registry
	open     []*jobs.Job
}

func (s *stalledService) Submit(req gate.Request) (jobs.Snapshot, error) {
	job, err := s.registry.Create(req)
	if err != nil {
		return jobs.Snapshot{}, err
	}
	job.Publish(jobs.Started())
	s.open = append(s.open, job)
	return job.Snapshot(), nil
}

func (s *stalledService) finish() {
	for _, job := range s.open {
		job.Publish(jobs.Cancelled())
		job.Close()
	}
	s.open = nil
}

func newTestTools(t *testing.T, svc ScanService, reg *jobs.Registry) *tools {
	t.Helper()
	return &tools{service: svc, registry: reg, library: loadLibrary(t)}
}

func decodePayload(t *testing.T, result *mcp.CallToolResult) map[string]any {
	t.Helper()
	require.NotNil(t, result)
	require.Len(t, result.Content, 1)
	text := result.Content[0].(*mcp.TextContent).Text
	require.True(t, json.Valid([]byte(text)), "output should be valid JSON")
	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(text), &payload))
	return payload
}

func TestScanRepository_CompletedScan(t *testing.T) {
	reg := newRegistry(t)
	tl := newTestTools(t, &fakeService{registry: reg}, reg)

	result, _, err := tl.scanRepository(context.Background(), nil, ScanRepositoryInput{
		RepositoryURL: "https://github.com/acme/payments.git",
	})
	require.NoError(t, err)

	payload := decodePayload(t, result)
	scan := payload["scan"].(map[string]any)
	assert.Equal(t, "completed", scan["status"])
	assert.Equal(t, 82.5, scan["overall_score"])

	res := payload["result"].(map[string]any)
	gates := res["gate_results"].([]any)
	assert.Len(t, gates, 2)
}

func TestScanRepository_FailedScanReturnsSnapshot(t *testing.T) {
	reg := newRegistry(t)
	tl := newTestTools(t, &fakeService{registry: reg, fail: true}, reg)

	result, _, err := tl.scanRepository(context.Background(), nil, ScanRepositoryInput{
		RepositoryURL: "https://github.com/acme/ghost.git",
	})
	require.NoError(t, err, "a failed scan is a result, not a handler error")

	payload := decodePayload(t, result)
	scan := payload["scan"].(map[string]any)
	assert.Equal(t, "failed", scan["status"])
	errs := scan["errors"].([]any)
	assert.Contains(t, errs[0], "repository fetch failed")
	assert.Nil(t, payload["result"])
}

func TestScanRepository_InvalidURL(t *testing.T) {
	reg := newRegistry(t)
	tl := newTestTools(t, &fakeService{registry: reg}, reg)

	_, _, err := tl.scanRepository(context.Background(), nil, ScanRepositoryInput{
		RepositoryURL: "not a git target",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "repository_url")
}

func TestScanRepository_InvalidThreshold(t *testing.T) {
	reg := newRegistry(t)
	tl := newTestTools(t, &fakeService{registry: reg}, reg)

	_, _, err := tl.scanRepository(context.Background(), nil, ScanRepositoryInput{
		RepositoryURL: "https://github.com/acme/payments.git",
		Threshold:     101,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "threshold")
}

func TestScanRepository_WaitBudgetReturnsRunning(t *testing.T) {
	reg := newRegistry(t)
	svc := &stalledService{registry: reg}
	defer svc.finish()
	tl := newTestTools(t, svc, reg)

	result, _, err := tl.scanRepository(context.Background(), nil, ScanRepositoryInput{
		RepositoryURL: "https://github.com/acme/slow.git",
		WaitSeconds:   1,
	})
	require.NoError(t, err)

	payload := decodePayload(t, result)
	scan := payload["scan"].(map[string]any)
	assert.Equal(t, "running", scan["status"])
	assert.Nil(t, payload["result"], "no result before completion")
}

func TestScanRepository_DuplicateAttachesToExisting(t *testing.T) {
	reg := newRegistry(t)
	svc := &stalledService{registry: reg}
	defer svc.finish()
	tl := newTestTools(t, svc, reg)

	first, err := svc.Submit(gate.Request{RepositoryURL: "https://github.com/acme/payments.git"})
	require.NoError(t, err)

	result, _, err := tl.scanRepository(context.Background(), nil, ScanRepositoryInput{
		RepositoryURL: "https://github.com/acme/payments.git",
		WaitSeconds:   1,
	})
	require.NoError(t, err)

	payload := decodePayload(t, result)
	scan := payload["scan"].(map[string]any)
	assert.Equal(t, first.ScanID, scan["scan_id"], "should attach to the in-flight scan")
}

func TestScanRepository_ClientCancellation(t *testing.T) {
	reg := newRegistry(t)
	svc := &stalledService{registry: reg}
	defer svc.finish()
	tl := newTestTools(t, svc, reg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, _, err := tl.scanRepository(ctx, nil, ScanRepositoryInput{
		RepositoryURL: "https://github.com/acme/payments.git",
	})
	require.NoError(t, err)

	payload := decodePayload(t, result)
	scan := payload["scan"].(map[string]any)
	assert.Contains(t, []string{"pending", "running"}, scan["status"],
		"cancellation hands back the latest non-terminal snapshot")
}

func TestGetScanStatus_Completed(t *testing.T) {
	reg := newRegistry(t)
	tl := newTestTools(t, &fakeService{registry: reg}, reg)

	job, err := reg.Create(gate.Request{RepositoryURL: "https://github.com/acme/payments.git"})
	require.NoError(t, err)
	job.Publish(jobs.Started())
	job.Publish(jobs.Completed(sampleResult(job.ID())))
	job.Close()

	result, _, err := tl.getScanStatus(context.Background(), nil, GetScanStatusInput{ScanID: job.ID()})
	require.NoError(t, err)

	payload := decodePayload(t, result)
	scan := payload["scan"].(map[string]any)
	assert.Equal(t, "completed", scan["status"])
	require.NotNil(t, payload["result"])
}

func TestGetScanStatus_NotFound(t *testing.T) {
	reg := newRegistry(t)
	tl := newTestTools(t, &fakeService{registry: reg}, reg)

	_, _, err := tl.getScanStatus(context.Background(), nil, GetScanStatusInput{ScanID: "no-such-scan"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestGetScanStatus_EmptyID(t *testing.T) {
	reg := newRegistry(t)
	tl := newTestTools(t, &fakeService{registry: reg}, reg)

	_, _, err := tl.getScanStatus(context.Background(), nil, GetScanStatusInput{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scan_id is required")
}

func TestListGates_FullCatalog(t *testing.T) {
	reg := newRegistry(t)
	tl := newTestTools(t, &fakeService{registry: reg}, reg)

	result, _, err := tl.listGates(context.Background(), nil, ListGatesInput{})
	require.NoError(t, err)

	payload := decodePayload(t, result)
	assert.NotEmpty(t, payload["catalog_version"])

	gates := payload["gates"].([]any)
	require.GreaterOrEqual(t, len(gates), 10)

	names := make(map[string]bool, len(gates))
	for _, g := range gates {
		names[g.(map[string]any)["name"].(string)] = true
	}
	assert.True(t, names["STRUCTURED_LOGS"])
	assert.True(t, names["RETRY_LOGIC"])
	assert.True(t, names["AVOID_LOGGING_SECRETS"])
}

func TestListGates_CategoryFilter(t *testing.T) {
	reg := newRegistry(t)
	tl := newTestTools(t, &fakeService{registry: reg}, reg)

	result, _, err := tl.listGates(context.Background(), nil, ListGatesInput{Category: "auditability"})
	require.NoError(t, err)

	payload := decodePayload(t, result)
	gates := payload["gates"].([]any)
	require.NotEmpty(t, gates)
	for _, g := range gates {
		assert.Equal(t, "auditability", g.(map[string]any)["category"])
	}
}

func TestListGates_UnknownCategory(t *testing.T) {
	reg := newRegistry(t)
	tl := newTestTools(t, &fakeService{registry: reg}, reg)

	result, _, err := tl.listGates(context.Background(), nil, ListGatesInput{Category: "no-such-category"})
	require.NoError(t, err)

	payload := decodePayload(t, result)
	gates := payload["gates"].([]any)
	assert.Empty(t, gates)
}
