// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: MIT

package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatewarden/gatewarden/internal/gate"
	"github.com/gatewarden/gatewarden/internal/jobs"
	"github.com/gatewarden/gatewarden/internal/store"
)

func newService(t *testing.T, h *harness, maxConcurrent int64) *Service {
	t.Helper()
	svc := NewService(h.runner, h.registry, ServiceOptions{
		MaxConcurrent: maxConcurrent,
		Log:           discard(),
	})
	t.Cleanup(svc.Close)
	return svc
}

// waitTerminal blocks until the job settles and returns its final state.
func waitTerminal(t *testing.T, h *harness, id string) jobs.Snapshot {
	t.Helper()
	require.Eventually(t, func() bool {
		snap, ok := h.registry.Get(id)
		return ok && snap.Status.Terminal()
	}, 10*time.Second, 5*time.Millisecond, "scan %s should reach a terminal state", id)
	snap, _ := h.registry.Get(id)
	return snap
}

func TestServiceSubmitCompletes(t *testing.T) {
	src := initRepo(t, map[string]string{
		"app.py": "import logging\nlogging.info(\"x\")\n",
	})
	h := newHarness(t, nil)
	svc := newService(t, h, 2)

	snap, err := svc.Submit(gate.Request{RepositoryURL: src})
	require.NoError(t, err)
	// The scan goroutine is already off and running, so the returned
	// snapshot may be pending or running but never terminal.
	assert.False(t, snap.Status.Terminal())
	require.NotEmpty(t, snap.ScanID)
	assert.False(t, snap.CreatedAt.IsZero())

	final := waitTerminal(t, h, snap.ScanID)
	assert.Equal(t, jobs.StatusCompleted, final.Status)
	assert.Equal(t, 100.0, final.Progress)

	stored, err := h.store.Get(context.Background(), snap.ScanID)
	require.NoError(t, err)
	assert.Equal(t, final.OverallScore, stored.OverallScore)
}

func TestServiceAdmissionBound(t *testing.T) {
	h := newHarness(t, blockerEngine(t))
	svc := newService(t, h, 2)

	// Build every fixture up front so the submissions land together and
	// the first wave's deadline window stays open while we sample.
	const scans = 5
	srcs := make([]string, 0, scans)
	for i := 0; i < scans; i++ {
		srcs = append(srcs, initRepo(t, map[string]string{
			"app.py": "import logging\nlogging.info(\"x\")\n",
		}))
	}

	ids := make([]string, 0, scans)
	for _, src := range srcs {
		snap, err := svc.Submit(gate.Request{
			RepositoryURL: src,
			Timeout:       time.Second,
		})
		require.NoError(t, err)
		ids = append(ids, snap.ScanID)
	}

	counts := func() (running, pending, terminal, queued int) {
		for _, id := range ids {
			snap, ok := h.registry.Get(id)
			if !ok {
				continue
			}
			switch {
			case snap.Status == jobs.StatusRunning:
				running++
			case snap.Status == jobs.StatusPending:
				pending++
				if snap.StepDetail == "queued: waiting for a scan slot" {
					queued++
				}
			case snap.Status.Terminal():
				terminal++
			}
		}
		return running, pending, terminal, queued
	}

	// Two slots fill; the other three park on the admission semaphore
	// and say so in their step detail.
	require.Eventually(t, func() bool {
		running, pending, _, queued := counts()
		return running == 2 && pending == 3 && queued == 3
	}, 2*time.Second, 5*time.Millisecond, "admission should cap running scans at 2")

	// Each wave's deadline frees slots for the next; the cap holds
	// throughout the drain.
	maxRunning := 0
	require.Eventually(t, func() bool {
		running, _, terminal, _ := counts()
		if running > maxRunning {
			maxRunning = running
		}
		return terminal == scans
	}, 15*time.Second, 5*time.Millisecond, "all scans should drain to terminal states")
	assert.LessOrEqual(t, maxRunning, 2)

	for _, id := range ids {
		snap, _ := h.registry.Get(id)
		assert.Equal(t, jobs.StatusCompleted, snap.Status, "scan %s", id)
		assert.True(t, snap.Incomplete, "scan %s hit its deadline mid-validate", id)
	}
	n, err := h.store.Count(context.Background(), store.Filter{})
	require.NoError(t, err)
	assert.Equal(t, scans, n, "every partial result is persisted")
}

func TestServiceDuplicateSubmission(t *testing.T) {
	src := initRepo(t, map[string]string{
		"app.py": "import logging\nlogging.info(\"x\")\n",
	})
	h := newHarness(t, blockerEngine(t))
	svc := newService(t, h, 2)

	first, err := svc.Submit(gate.Request{RepositoryURL: src})
	require.NoError(t, err)

	_, err = svc.Submit(gate.Request{RepositoryURL: src})
	var dup *jobs.DuplicateError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, first.ScanID, dup.ScanID)

	require.True(t, svc.Cancel(first.ScanID))
	snap := waitTerminal(t, h, first.ScanID)
	assert.Equal(t, jobs.StatusCancelled, snap.Status)

	// The slot frees when the cancelled job's applier drains, a moment
	// after the terminal snapshot appears; retry until it does.
	var resub jobs.Snapshot
	require.Eventually(t, func() bool {
		s, err := svc.Submit(gate.Request{RepositoryURL: src})
		if err != nil {
			return false
		}
		resub = s
		return true
	}, 2*time.Second, 5*time.Millisecond, "slot should free after cancellation")
	assert.NotEqual(t, first.ScanID, resub.ScanID)
}

func TestServiceCancelUnknownScan(t *testing.T) {
	h := newHarness(t, nil)
	svc := newService(t, h, 1)
	assert.False(t, svc.Cancel("no-such-scan"))
}

func TestServiceCloseRejectsNewSubmissions(t *testing.T) {
	src := initRepo(t, map[string]string{
		"app.py": "import logging\nlogging.info(\"x\")\n",
	})
	h := newHarness(t, nil)
	svc := newService(t, h, 1)
	svc.Close()

	_, err := svc.Submit(gate.Request{RepositoryURL: src})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shutting down")
}

func TestServiceCloseCancelsInflight(t *testing.T) {
	src := initRepo(t, map[string]string{
		"app.py": "import logging\nlogging.info(\"x\")\n",
	})
	h := newHarness(t, blockerEngine(t))
	svc := newService(t, h, 1)

	snap, err := svc.Submit(gate.Request{RepositoryURL: src})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		s, ok := h.registry.Get(snap.ScanID)
		return ok && s.Status == jobs.StatusRunning
	}, 2*time.Second, 5*time.Millisecond, "scan should occupy its slot before Close")

	// Close blocks until the scan goroutine winds down, so the snapshot
	// is settled by the time it returns.
	svc.Close()

	s, ok := h.registry.Get(snap.ScanID)
	require.True(t, ok)
	assert.Equal(t, jobs.StatusCancelled, s.Status)
}
