// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: MIT

// Package jobs tracks in-flight and recently finished scans. Each job
// carries an immutable-by-copy snapshot behind an atomic pointer, so
// status polling never blocks the pipeline that owns the job. All
// mutations flow through a per-job update channel with a single
// applier goroutine; the pipeline is the only writer.
package jobs

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gatewarden/gatewarden/internal/gate"
)

// Status is the lifecycle state of a scan job.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status is final. Terminal snapshots are
// immutable; updates arriving afterwards are discarded.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Snapshot is the point-in-time view of a job. Registry reads return
// copies; the Result pointer is shared but never mutated once set.
//
// Credentials from the original request are deliberately absent.
type Snapshot struct {
	ScanID       string  `json:"scan_id"`
	RepoURL      string  `json:"repository_url"`
	Branch       string  `json:"branch,omitempty"`
	Threshold    float64 `json:"threshold,omitempty"`
	ReportFormat string  `json:"report_format,omitempty"`

	Status     Status  `json:"status"`
	Progress   float64 `json:"progress_percent"`
	Step       string  `json:"current_step,omitempty"`
	StepDetail string  `json:"step_details,omitempty"`

	OverallScore float64  `json:"overall_score"`
	Incomplete   bool     `json:"incomplete,omitempty"`
	Errors       []string `json:"errors,omitempty"`

	Result *gate.ScanResult `json:"-"`

	CreatedAt   time.Time `json:"created_at"`
	StartedAt   time.Time `json:"started_at,omitempty"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
}

// clone returns a deep-enough copy for copy-on-write application: the
// Errors slice is duplicated, the Result pointer is shared.
func (s *Snapshot) clone() *Snapshot {
	next := *s
	if len(s.Errors) > 0 {
		next.Errors = make([]string, len(s.Errors))
		copy(next.Errors, s.Errors)
	}
	return &next
}

// Update is one mutation of a job snapshot. Construct updates with the
// package functions below; the zero Update changes nothing.
type Update struct {
	status        Status
	progress      float64
	hasProgress   bool
	step          string
	hasStep       bool
	detail        string
	hasDetail     bool
	score         float64
	hasScore      bool
	incomplete    bool
	hasIncomplete bool
	errs          []string
	result        *gate.ScanResult
}

// Started transitions the job from pending to running.
func Started() Update {
	return Update{status: StatusRunning}
}

// Step reports stage progress. Percent is clamped to the monotonic
// range by the applier, so publishing a stale value is harmless.
func Step(name, detail string, percent float64) Update {
	return Update{
		step: name, hasStep: true,
		detail: detail, hasDetail: true,
		progress: percent, hasProgress: true,
	}
}

// Detail updates only the step detail line, e.g. a files-scanned tally.
func Detail(detail string, percent float64) Update {
	return Update{
		detail: detail, hasDetail: true,
		progress: percent, hasProgress: true,
	}
}

// Warn appends a recoverable error without changing the job status.
func Warn(msg string) Update {
	return Update{errs: []string{msg}}
}

// Completed marks the job done and attaches the result. A complete run
// reaches 100%; an interrupted one keeps its last progress and carries
// the incomplete flag through to the snapshot.
func Completed(result *gate.ScanResult) Update {
	u := Update{
		status:        StatusCompleted,
		result:        result,
		incomplete:    result.Incomplete,
		hasIncomplete: true,
		score:         result.OverallScore,
		hasScore:      true,
		errs:          result.Errors,
	}
	if !result.Incomplete {
		u.progress, u.hasProgress = 100, true
	}
	return u
}

// Failed marks the job failed with a terminal reason.
func Failed(reason string) Update {
	return Update{status: StatusFailed, errs: []string{reason}}
}

// Cancelled marks the job cancelled.
func Cancelled() Update {
	return Update{status: StatusCancelled}
}

// apply folds u into next, enforcing the lifecycle rules: terminal
// states are immutable, progress never decreases, and timestamps are
// stamped on the pending→running and running→terminal edges.
func apply(next *Snapshot, u Update, now time.Time) {
	if next.Status.Terminal() {
		return
	}
	if u.hasProgress {
		p := u.progress
		if p > 100 {
			p = 100
		}
		if p > next.Progress {
			next.Progress = p
		}
	}
	if u.hasStep {
		next.Step = u.step
	}
	if u.hasDetail {
		next.StepDetail = u.detail
	}
	if u.hasScore {
		next.OverallScore = u.score
	}
	if u.hasIncomplete {
		next.Incomplete = u.incomplete
	}
	if len(u.errs) > 0 {
		next.Errors = append(next.Errors, u.errs...)
	}
	if u.result != nil {
		next.Result = u.result
	}
	if u.status != "" && u.status != next.Status {
		switch {
		case u.status == StatusRunning && next.Status == StatusPending:
			next.Status = StatusRunning
			next.StartedAt = now
		case u.status.Terminal():
			next.Status = u.status
			next.CompletedAt = now
		}
	}
}

// Job is the pipeline-side handle for one scan. Exactly one goroutine
// (the owning pipeline) may call Publish and Close.
type Job struct {
	id      string
	reg     *Registry
	updates chan Update
	done    chan struct{}
	snap    atomic.Pointer[Snapshot]

	cancelMu sync.Mutex
	cancel   context.CancelFunc
	closed   sync.Once
}

// ID returns the scan ID.
func (j *Job) ID() string { return j.id }

// Snapshot returns a copy of the current job state.
func (j *Job) Snapshot() Snapshot { return *j.snap.Load() }

// Publish sends one update to the applier. It blocks only while the
// applier catches up and must not be called after Close.
func (j *Job) Publish(u Update) {
	j.updates <- u
}

// Close ends the update stream and waits for the applier to drain.
// Safe to call more than once.
func (j *Job) Close() {
	j.closed.Do(func() { close(j.updates) })
	<-j.done
}

// SetCancel registers the cancel function for Registry.Cancel to
// invoke. The pipeline installs it before starting work.
func (j *Job) SetCancel(fn context.CancelFunc) {
	j.cancelMu.Lock()
	j.cancel = fn
	j.cancelMu.Unlock()
}

func (j *Job) invokeCancel() bool {
	j.cancelMu.Lock()
	fn := j.cancel
	j.cancelMu.Unlock()
	if fn == nil {
		return false
	}
	fn()
	return true
}

// run is the applier loop: copy-on-write the snapshot per update and
// notify the registry when the job turns terminal.
func (j *Job) run() {
	defer close(j.done)
	for u := range j.updates {
		cur := j.snap.Load()
		if cur.Status.Terminal() {
			continue
		}
		next := cur.clone()
		apply(next, u, time.Now().UTC())
		j.snap.Store(next)
		if next.Status.Terminal() {
			j.reg.markTerminal(j)
		}
	}
}
