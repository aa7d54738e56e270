// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: MIT

package jobs

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/gatewarden/gatewarden/internal/gate"
)

// Every job applier and the registry sweeper must shut down cleanly.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newRegistry(t *testing.T, opts Options) *Registry {
	t.Helper()
	if opts.Log == nil {
		opts.Log = discard()
	}
	r := NewRegistry(opts)
	t.Cleanup(r.Close)
	return r
}

func mustCreate(t *testing.T, r *Registry, url, branch string) *Job {
	t.Helper()
	j, err := r.Create(gate.Request{RepositoryURL: url, Branch: branch})
	require.NoError(t, err)
	t.Cleanup(j.Close)
	return j
}

func TestCreateStartsPending(t *testing.T) {
	r := newRegistry(t, Options{})

	j, err := r.Create(gate.Request{
		RepositoryURL: "https://github.com/acme/api",
		Branch:        "main",
		Credential:    "ghp_secret",
		Threshold:     85,
		ReportFormat:  "html",
	})
	require.NoError(t, err)
	defer j.Close()

	snap, ok := r.Get(j.ID())
	require.True(t, ok)
	assert.Equal(t, StatusPending, snap.Status)
	assert.Equal(t, "https://github.com/acme/api", snap.RepoURL)
	assert.Equal(t, "main", snap.Branch)
	assert.Equal(t, 85.0, snap.Threshold)
	assert.Equal(t, "html", snap.ReportFormat)
	assert.Zero(t, snap.Progress)
	assert.False(t, snap.CreatedAt.IsZero())
	assert.True(t, snap.StartedAt.IsZero())
}

func TestCreateRejectsEmptyURL(t *testing.T) {
	r := newRegistry(t, Options{})

	_, err := r.Create(gate.Request{})
	require.Error(t, err)
	assert.True(t, gate.IsKind(err, gate.KindInvalidRequest))
}

func TestCreateAssignsUniqueIDs(t *testing.T) {
	r := newRegistry(t, Options{})

	a := mustCreate(t, r, "https://github.com/acme/api", "main")
	b := mustCreate(t, r, "https://github.com/acme/web", "main")
	assert.NotEqual(t, a.ID(), b.ID())
}

func TestDuplicateSubmissionRejected(t *testing.T) {
	r := newRegistry(t, Options{})

	first := mustCreate(t, r, "https://github.com/acme/api", "main")

	_, err := r.Create(gate.Request{RepositoryURL: "https://github.com/acme/api", Branch: "main"})
	require.Error(t, err)
	var dup *DuplicateError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, first.ID(), dup.ScanID)

	// A different branch of the same repository is its own job.
	other := mustCreate(t, r, "https://github.com/acme/api", "develop")
	assert.NotEqual(t, first.ID(), other.ID())
}

func TestDuplicateAllowedAfterTerminal(t *testing.T) {
	r := newRegistry(t, Options{})

	first := mustCreate(t, r, "https://github.com/acme/api", "main")
	first.Publish(Started())
	first.Publish(Failed("clone failed"))
	first.Close()

	again, err := r.Create(gate.Request{RepositoryURL: "https://github.com/acme/api", Branch: "main"})
	require.NoError(t, err)
	defer again.Close()
	assert.NotEqual(t, first.ID(), again.ID())

	// The failed job stays visible until the sweeper takes it.
	snap, ok := r.Get(first.ID())
	require.True(t, ok)
	assert.Equal(t, StatusFailed, snap.Status)
	assert.Equal(t, []string{"clone failed"}, snap.Errors)
}

func TestLifecycle(t *testing.T) {
	r := newRegistry(t, Options{})
	j := mustCreate(t, r, "https://github.com/acme/api", "main")

	j.Publish(Started())
	j.Publish(Step("fetch", "cloning", 5))
	j.Publish(Step("validate", "120/512 files", 48.5))
	j.Publish(Completed(&gate.ScanResult{ScanID: j.ID(), OverallScore: 91.3}))
	j.Close()

	snap, ok := r.Get(j.ID())
	require.True(t, ok)
	assert.Equal(t, StatusCompleted, snap.Status)
	assert.Equal(t, 100.0, snap.Progress)
	assert.Equal(t, 91.3, snap.OverallScore)
	assert.Equal(t, "validate", snap.Step)
	assert.False(t, snap.StartedAt.IsZero())
	assert.False(t, snap.CompletedAt.IsZero())
	require.NotNil(t, snap.Result)
	assert.Equal(t, j.ID(), snap.Result.ScanID)
}

func TestTerminalSnapshotsAreImmutable(t *testing.T) {
	r := newRegistry(t, Options{})
	j := mustCreate(t, r, "https://github.com/acme/api", "main")

	j.Publish(Started())
	j.Publish(Completed(&gate.ScanResult{OverallScore: 70}))
	j.Publish(Step("cleanup", "late update", 50))
	j.Publish(Failed("should be ignored"))
	j.Close()

	snap, _ := r.Get(j.ID())
	assert.Equal(t, StatusCompleted, snap.Status)
	assert.Equal(t, 100.0, snap.Progress)
	assert.Empty(t, snap.Errors)
}

func TestProgressNeverDecreases(t *testing.T) {
	r := newRegistry(t, Options{})
	j := mustCreate(t, r, "https://github.com/acme/api", "main")

	j.Publish(Started())
	j.Publish(Detail("scanning", 40))
	j.Publish(Detail("stale update", 25))
	j.Publish(Detail("overflow", 240))
	j.Close()

	snap, _ := r.Get(j.ID())
	assert.Equal(t, 100.0, snap.Progress)
}

func TestProgressClampAndMonotonic(t *testing.T) {
	r := newRegistry(t, Options{})
	j := mustCreate(t, r, "https://github.com/acme/api", "main")

	j.Publish(Started())
	j.Publish(Detail("halfway", 50))
	j.Publish(Detail("rewind", 10))
	j.Close()

	snap, _ := r.Get(j.ID())
	assert.Equal(t, 50.0, snap.Progress)
}

func TestIncompleteCompletionKeepsProgress(t *testing.T) {
	r := newRegistry(t, Options{})
	j := mustCreate(t, r, "https://github.com/acme/api", "main")

	j.Publish(Started())
	j.Publish(Step("validate", "deadline close", 72))
	j.Publish(Completed(&gate.ScanResult{
		OverallScore: 64.2,
		Incomplete:   true,
		Errors:       []string{"scan deadline exceeded"},
	}))
	j.Close()

	snap, _ := r.Get(j.ID())
	assert.Equal(t, StatusCompleted, snap.Status)
	assert.True(t, snap.Incomplete)
	assert.Equal(t, 72.0, snap.Progress)
	assert.Contains(t, snap.Errors, "scan deadline exceeded")
}

func TestWarnAccumulatesErrors(t *testing.T) {
	r := newRegistry(t, Options{})
	j := mustCreate(t, r, "https://github.com/acme/api", "main")

	j.Publish(Started())
	j.Publish(Warn("read src/a.py: permission denied"))
	j.Publish(Warn("skipped oversize file: assets/blob.bin"))
	j.Close()

	snap, _ := r.Get(j.ID())
	assert.Equal(t, StatusRunning, snap.Status)
	assert.Len(t, snap.Errors, 2)
}

func TestSnapshotCopyIsolation(t *testing.T) {
	r := newRegistry(t, Options{})
	j := mustCreate(t, r, "https://github.com/acme/api", "main")

	j.Publish(Started())
	j.Publish(Warn("first"))
	j.Close()

	snap, _ := r.Get(j.ID())
	snap.Errors[0] = "mutated"
	snap.Status = StatusFailed

	fresh, _ := r.Get(j.ID())
	assert.Equal(t, StatusRunning, fresh.Status)
	assert.Equal(t, []string{"first"}, fresh.Errors)
}
