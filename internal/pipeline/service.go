// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: MIT

package pipeline

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/gatewarden/gatewarden/internal/gate"
	"github.com/gatewarden/gatewarden/internal/jobs"
)

// DefaultMaxConcurrent is the global admission limit for running scans.
const DefaultMaxConcurrent = 4

// ServiceOptions tunes a Service.
type ServiceOptions struct {
	// MaxConcurrent bounds how many scans run at once; further submits
	// queue on the admission semaphore. Zero means DefaultMaxConcurrent.
	MaxConcurrent int64
	Log           *slog.Logger
}

// Service accepts scan requests and runs each as a background job:
// create the job in the registry, acquire an admission slot, run the
// pipeline, release. It is the one place that ties jobs to goroutines,
// so Close can wait for every scan to wind down.
type Service struct {
	runner   *Runner
	registry *jobs.Registry
	sem      *semaphore.Weighted
	log      *slog.Logger

	baseCtx    context.Context
	baseCancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewService builds a Service around a runner and a job registry.
func NewService(runner *Runner, registry *jobs.Registry, opts ServiceOptions) *Service {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = DefaultMaxConcurrent
	}
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		runner:     runner,
		registry:   registry,
		sem:        semaphore.NewWeighted(opts.MaxConcurrent),
		log:        opts.Log,
		baseCtx:    ctx,
		baseCancel: cancel,
	}
}

// Submit registers a scan job and starts it in the background. The
// returned snapshot is the job's initial (pending) state. A request
// already running for the same repository and branch comes back as a
// *jobs.DuplicateError.
func (s *Service) Submit(req gate.Request) (jobs.Snapshot, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return jobs.Snapshot{}, gate.Ef(gate.KindInternal, "pipeline.Submit", "scan service is shutting down")
	}
	job, err := s.registry.Create(req)
	if err != nil {
		s.mu.Unlock()
		return jobs.Snapshot{}, err
	}

	ctx, cancel := context.WithCancel(s.baseCtx)
	job.SetCancel(cancel)
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer cancel()
		defer job.Close()
		s.execute(ctx, job, req)
	}()

	s.log.Info("scan submitted", "scan_id", job.ID(), "branch", req.Branch)
	return job.Snapshot(), nil
}

func (s *Service) execute(ctx context.Context, job *jobs.Job, req gate.Request) {
	if !s.sem.TryAcquire(1) {
		job.Publish(jobs.Detail("queued: waiting for a scan slot", 0))
		if err := s.sem.Acquire(ctx, 1); err != nil {
			job.Publish(jobs.Cancelled())
			return
		}
	}
	defer s.sem.Release(1)
	s.runner.Run(ctx, job, req)
}

// Cancel requests cooperative cancellation of a running scan.
func (s *Service) Cancel(scanID string) bool {
	return s.registry.Cancel(scanID)
}

// Close stops accepting submissions, cancels in-flight scans, and
// waits for their goroutines to exit.
func (s *Service) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.baseCancel()
	s.wg.Wait()
}
