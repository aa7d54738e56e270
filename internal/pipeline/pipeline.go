// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: MIT

// Package pipeline drives one scan job through its stages: fetch the
// repository, inventory the working tree, extract build metadata,
// validate gates, generate reports, clean up. Stages run sequentially
// on the job's goroutine and publish progress through the job; the
// heavy lifting inside ValidateGates is delegated to the engine.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gatewarden/gatewarden/internal/engine"
	"github.com/gatewarden/gatewarden/internal/fetch"
	"github.com/gatewarden/gatewarden/internal/gate"
	"github.com/gatewarden/gatewarden/internal/inventory"
	"github.com/gatewarden/gatewarden/internal/jobs"
	"github.com/gatewarden/gatewarden/internal/redact"
	"github.com/gatewarden/gatewarden/internal/report"
	"github.com/gatewarden/gatewarden/internal/store"
)

// Stage names, in execution order.
const (
	StageFetch     = "FetchRepository"
	StageInventory = "InventoryRepository"
	StageExtract   = "ExtractBuildMetadata"
	StageValidate  = "ValidateGates"
	StageReport    = "GenerateReport"
	StageCleanup   = "Cleanup"
)

// Stages lists the stage names in execution order.
var Stages = []string{
	StageFetch, StageInventory, StageExtract, StageValidate, StageReport, StageCleanup,
}

// stageStart is the cumulative progress percent when each stage begins.
// The gaps between entries are the stage weights: fetch 15, inventory
// 10, extract 5, validate 55, report 10, cleanup 5.
var stageStart = map[string]float64{
	StageFetch:     0,
	StageInventory: 15,
	StageExtract:   25,
	StageValidate:  30,
	StageReport:    85,
	StageCleanup:   95,
}

const validateWeight = 55

// Timeouts bounds the scan and its stages. The scan deadline is the
// hard ceiling; stage timeouts trim individual stages below it.
type Timeouts struct {
	Scan      time.Duration
	Fetch     time.Duration
	Inventory time.Duration
	Extract   time.Duration
	Validate  time.Duration
	Report    time.Duration
	Cleanup   time.Duration
}

// DefaultTimeouts returns the production defaults (15 minute scans).
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Scan:      15 * time.Minute,
		Fetch:     5 * time.Minute,
		Inventory: 2 * time.Minute,
		Extract:   time.Minute,
		Validate:  12 * time.Minute,
		Report:    time.Minute,
		Cleanup:   30 * time.Second,
	}
}

// merged returns t with zero fields replaced by defaults.
func (t Timeouts) merged() Timeouts {
	d := DefaultTimeouts()
	if t.Scan <= 0 {
		t.Scan = d.Scan
	}
	if t.Fetch <= 0 {
		t.Fetch = d.Fetch
	}
	if t.Inventory <= 0 {
		t.Inventory = d.Inventory
	}
	if t.Extract <= 0 {
		t.Extract = d.Extract
	}
	if t.Validate <= 0 {
		t.Validate = d.Validate
	}
	if t.Report <= 0 {
		t.Report = d.Report
	}
	if t.Cleanup <= 0 {
		t.Cleanup = d.Cleanup
	}
	return t
}

// Observer receives stage-level telemetry. The server layer plugs a
// metrics implementation in; everything else runs with the no-op.
type Observer interface {
	StageCompleted(stage string, d time.Duration, err error)
	ScanFinished(status jobs.Status, d time.Duration)
}

type nopObserver struct{}

func (nopObserver) StageCompleted(string, time.Duration, error) {}
func (nopObserver) ScanFinished(jobs.Status, time.Duration)     {}

// Options configures a Runner.
type Options struct {
	// Fetcher materializes working trees. Required.
	Fetcher *fetch.Fetcher
	// Engine evaluates gates against an inventoried tree. Required.
	Engine *engine.Engine
	// Store persists finished results. Wrap it with store.WithRetry so
	// transient backend failures do not lose a finished scan. Required.
	Store store.Store
	// Reports writes rendered report files. Required.
	Reports *report.Writer

	// MaxFiles aborts inventory on oversized repositories. Zero means
	// unbounded.
	MaxFiles int
	// ExcludeGlobs drops matching paths from the inventory.
	ExcludeGlobs []string

	Timeouts Timeouts
	Observer Observer
	Log      *slog.Logger
}

// Runner executes scan jobs. One Runner serves the whole process; each
// Run call owns exactly one job and runs on the caller's goroutine.
type Runner struct {
	fetcher  *fetch.Fetcher
	engine   *engine.Engine
	store    store.Store
	reports  *report.Writer
	maxFiles int
	excludes []string
	timeouts Timeouts
	observer Observer
	log      *slog.Logger
}

// New validates the wiring and builds a Runner.
func New(opts Options) (*Runner, error) {
	if opts.Fetcher == nil {
		return nil, fmt.Errorf("pipeline: missing fetcher")
	}
	if opts.Engine == nil {
		return nil, fmt.Errorf("pipeline: missing engine")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("pipeline: missing store")
	}
	if opts.Reports == nil {
		return nil, fmt.Errorf("pipeline: missing report writer")
	}
	obs := opts.Observer
	if obs == nil {
		obs = nopObserver{}
	}
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	return &Runner{
		fetcher:  opts.Fetcher,
		engine:   opts.Engine,
		store:    opts.Store,
		reports:  opts.Reports,
		maxFiles: opts.MaxFiles,
		excludes: opts.ExcludeGlobs,
		timeouts: opts.Timeouts.merged(),
		observer: obs,
		log:      log,
	}, nil
}

// state is the per-job workspace handed from stage to stage. Only the
// job's goroutine touches it.
type state struct {
	checkout *fetch.Checkout
	meta     *gate.RepoMetadata
	files    []gate.FileEntry
	result   *gate.ScanResult
	warnings []string
}

// Run executes every stage for one job and leaves the job in a
// terminal state. The request's own timeout, when set, overrides the
// configured scan deadline. The returned result is non-nil whenever
// the validate stage produced one, incomplete scans included.
func (r *Runner) Run(ctx context.Context, job *jobs.Job, req gate.Request) *gate.ScanResult {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = r.timeouts.Scan
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	job.Publish(jobs.Started())
	start := time.Now()
	st := &state{}

	status := r.runStages(ctx, job, req, st)
	r.observer.ScanFinished(status, time.Since(start))
	r.log.Info("scan finished",
		"scan_id", job.ID(),
		"status", status,
		"duration", time.Since(start).Round(time.Millisecond))
	return st.result
}

// runStages executes the ordered stages and returns the job's terminal
// status. Cleanup runs no matter how the earlier stages ended.
func (r *Runner) runStages(ctx context.Context, job *jobs.Job, req gate.Request, st *state) jobs.Status {
	scanID := job.ID()
	defer r.runCleanup(ctx, job, scanID)

	// FetchRepository: fatal on any failure, there is nothing to scan.
	err := r.stage(ctx, job, StageFetch, r.timeouts.Fetch, func(c context.Context) error {
		co, err := r.fetcher.Fetch(c, scanID, req)
		if err != nil {
			return err
		}
		st.checkout = co
		return nil
	})
	if err != nil {
		return r.terminate(job, StageFetch, err)
	}

	// InventoryRepository: fatal, the gate engine needs the file list.
	err = r.stage(ctx, job, StageInventory, r.timeouts.Inventory, func(c context.Context) error {
		meta, files, err := inventory.Walk(c, st.checkout.Path, inventory.Options{
			MaxFiles:     r.maxFiles,
			ExcludeGlobs: r.excludes,
			Progress: func(n int) {
				job.Publish(jobs.Detail(fmt.Sprintf("%d files inventoried", n), stageStart[StageInventory]))
			},
			Warn: func(relPath string, err error) {
				st.warnings = append(st.warnings, fmt.Sprintf("inventory %s: %v", relPath, err))
			},
			Log: r.log,
		})
		if err != nil {
			return err
		}
		meta.RepoURL = req.RepositoryURL
		meta.Branch = st.checkout.Branch
		meta.CommitHash = st.checkout.CommitHash
		meta.LastCommit = st.checkout.LastCommit
		st.meta, st.files = meta, files
		return nil
	})
	if err != nil {
		return r.terminate(job, StageInventory, err)
	}

	// ExtractBuildMetadata: recoverable, gates fall back to language
	// detection when build files cannot be parsed.
	err = r.stage(ctx, job, StageExtract, r.timeouts.Extract, func(c context.Context) error {
		return inventory.ExtractBuildMetadata(c, st.meta, st.files, r.log)
	})
	if err != nil {
		if terminal(err) {
			return r.terminate(job, StageExtract, err)
		}
		r.recordWarning(job, st, StageExtract, err)
	}

	// ValidateGates: the engine returns a partial result instead of an
	// error when the deadline or a cancel lands mid-scan.
	err = r.stage(ctx, job, StageValidate, r.timeouts.Validate, func(c context.Context) error {
		res, err := r.engine.Evaluate(c, scanID, st.meta, st.files, func(done, total int) {
			job.Publish(jobs.Detail(
				fmt.Sprintf("%d/%d files scanned", done, total),
				validatePercent(done, total)))
		})
		if err != nil {
			return err
		}
		st.result = res
		return nil
	})
	if err != nil {
		return r.terminate(job, StageValidate, err)
	}
	// A cancelled scan ends cancelled; only deadline expiry turns into
	// a completed-but-incomplete result.
	if ctx.Err() == context.Canceled {
		return r.terminate(job, StageValidate, gate.E(gate.KindCancelled, "pipeline.Run", ctx.Err()))
	}
	if len(st.warnings) > 0 {
		merged := make([]string, 0, len(st.warnings)+len(st.result.Errors))
		merged = append(merged, st.warnings...)
		merged = append(merged, st.result.Errors...)
		st.result.Errors = merged
	}
	if st.result.Incomplete {
		job.Publish(jobs.Warn("scan interrupted before all files were checked; results are partial"))
	}

	// GenerateReport: persist first, then render. Both are recoverable;
	// the snapshot still carries the in-memory result either way.
	// Detached context: an expired scan deadline must not block the
	// write-out of the partial result it produced.
	err = r.stage(ctx, job, StageReport, r.timeouts.Report, func(c context.Context) error {
		return r.persistAndRender(c, st, req)
	})
	if err != nil {
		if terminal(err) {
			return r.terminate(job, StageReport, err)
		}
		r.recordWarning(job, st, StageReport, err)
	}

	job.Publish(jobs.Completed(st.result))
	return jobs.StatusCompleted
}

// stage runs one stage under its timeout and reports it to the
// observer. Report and Cleanup detach from the scan deadline so they
// run even after expiry.
func (r *Runner) stage(ctx context.Context, job *jobs.Job, name string, timeout time.Duration, fn func(context.Context) error) error {
	job.Publish(jobs.Step(name, "", stageStart[name]))
	if name == StageReport || name == StageCleanup {
		ctx = context.WithoutCancel(ctx)
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	start := time.Now()
	err := fn(ctx)
	r.observer.StageCompleted(name, time.Since(start), err)
	if err != nil {
		r.log.Warn("stage failed", "scan_id", job.ID(), "stage", name, "error", redact.Error(err))
	}
	return err
}

func (r *Runner) persistAndRender(ctx context.Context, st *state, req gate.Request) error {
	res := st.result
	res.CompletedAt = time.Now().UTC()
	res.UpdatedAt = res.CompletedAt

	var errs []string
	if err := r.store.Save(ctx, res); err != nil {
		errs = append(errs, fmt.Sprintf("persist result: %v", redact.Error(err)))
	}
	if _, err := r.reports.Write(res, report.Expand(req.ReportFormat)); err != nil {
		errs = append(errs, fmt.Sprintf("render reports: %v", redact.Error(err)))
	}
	if len(errs) > 0 {
		return gate.Ef(gate.KindStorageUnavailable, "pipeline.report", "%s", strings.Join(errs, "; "))
	}
	return nil
}

// runCleanup removes the scan workspace. Report files are kept; they
// are the scan's deliverable.
func (r *Runner) runCleanup(ctx context.Context, job *jobs.Job, scanID string) {
	_ = r.stage(ctx, job, StageCleanup, r.timeouts.Cleanup, func(context.Context) error {
		if err := r.fetcher.Cleanup(scanID); err != nil {
			job.Publish(jobs.Warn(fmt.Sprintf("cleanup: %v", redact.Error(err))))
			return err
		}
		return nil
	})
}

// terminate maps a stage failure to the job's terminal state:
// cancellation stays a cancellation, everything else fails the job.
func (r *Runner) terminate(job *jobs.Job, stage string, err error) jobs.Status {
	if gate.KindOf(err) == gate.KindCancelled {
		job.Publish(jobs.Cancelled())
		return jobs.StatusCancelled
	}
	job.Publish(jobs.Failed(fmt.Sprintf("%s: %v", stage, redact.Error(err))))
	return jobs.StatusFailed
}

func (r *Runner) recordWarning(job *jobs.Job, st *state, stage string, err error) {
	msg := fmt.Sprintf("%s: %v", stage, redact.Error(err))
	st.warnings = append(st.warnings, msg)
	if st.result != nil {
		st.result.Errors = append(st.result.Errors, msg)
	}
	job.Publish(jobs.Warn(msg))
}

// terminal reports whether an error from a recoverable stage must still
// end the job: user cancellation always wins.
func terminal(err error) bool {
	return gate.KindOf(err) == gate.KindCancelled
}

// validatePercent maps files-scanned progress into the validate stage's
// progress window.
func validatePercent(done, total int) float64 {
	start := stageStart[StageValidate]
	if total <= 0 {
		return start
	}
	frac := float64(done) / float64(total)
	if frac > 1 {
		frac = 1
	}
	return start + frac*validateWeight
}
