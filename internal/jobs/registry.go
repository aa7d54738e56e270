// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: MIT

package jobs

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gatewarden/gatewarden/internal/gate"
)

const (
	// DefaultRetention keeps terminal jobs visible for polling clients
	// that come back late. Persisted results outlive this window.
	DefaultRetention = 24 * time.Hour

	defaultSweepEvery = 10 * time.Minute
)

// DuplicateError reports a scan already pending or running for the same
// repository and branch. Callers surface the existing scan ID instead
// of starting a second checkout of the same tree.
type DuplicateError struct {
	ScanID string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("scan already in progress: %s", e.ScanID)
}

// Options configures a Registry. The zero value is usable.
type Options struct {
	// Retention is how long terminal jobs stay listed. Zero means
	// DefaultRetention; negative keeps them until Close.
	Retention time.Duration
	// SweepEvery is the sweeper interval. Zero means ten minutes.
	SweepEvery time.Duration
	Log        *slog.Logger
}

// Registry owns every job in the process. Snapshot reads are lock-free;
// the map itself is guarded for create, list, and sweep.
type Registry struct {
	mu     sync.RWMutex
	jobs   map[string]*Job
	active map[string]string // repo key → scan ID, pending/running only

	retention time.Duration
	log       *slog.Logger

	stop     chan struct{}
	sweeperD chan struct{}
}

// NewRegistry builds a registry and starts its retention sweeper.
// Callers must Close it to stop the sweeper.
func NewRegistry(opts Options) *Registry {
	retention := opts.Retention
	if retention == 0 {
		retention = DefaultRetention
	}
	every := opts.SweepEvery
	if every <= 0 {
		every = defaultSweepEvery
	}
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	r := &Registry{
		jobs:      make(map[string]*Job),
		active:    make(map[string]string),
		retention: retention,
		log:       log,
		stop:      make(chan struct{}),
		sweeperD:  make(chan struct{}),
	}
	go r.sweeper(every)
	return r
}

// Close stops the sweeper. Jobs keep their appliers until their owning
// pipelines close them.
func (r *Registry) Close() {
	select {
	case <-r.stop:
	default:
		close(r.stop)
	}
	<-r.sweeperD
}

// Create registers a new job for req and returns the pipeline-side
// handle. A second submission for the same repository and branch while
// the first is still pending or running yields a DuplicateError
// carrying the existing scan ID. Credentials are never copied into the
// snapshot.
func (r *Registry) Create(req gate.Request) (*Job, error) {
	const op = "jobs.Create"
	if req.RepositoryURL == "" {
		return nil, gate.Ef(gate.KindInvalidRequest, op, "missing repository URL")
	}
	key := repoKey(req.RepositoryURL, req.Branch)

	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.active[key]; ok {
		return nil, &DuplicateError{ScanID: id}
	}

	id := uuid.NewString()
	snap := &Snapshot{
		ScanID:       id,
		RepoURL:      req.RepositoryURL,
		Branch:       req.Branch,
		Threshold:    req.Threshold,
		ReportFormat: req.ReportFormat,
		Status:       StatusPending,
		CreatedAt:    time.Now().UTC(),
	}
	j := &Job{
		id:      id,
		reg:     r,
		updates: make(chan Update, 64),
		done:    make(chan struct{}),
	}
	j.snap.Store(snap)
	go j.run()

	r.jobs[id] = j
	r.active[key] = id
	r.log.Debug("job created", "scan_id", id, "branch", req.Branch)
	return j, nil
}

// Get returns a copy of the snapshot for id.
func (r *Registry) Get(id string) (Snapshot, bool) {
	r.mu.RLock()
	j, ok := r.jobs[id]
	r.mu.RUnlock()
	if !ok {
		return Snapshot{}, false
	}
	return *j.snap.Load(), true
}

// Cancel asks the job's pipeline to stop. It reports whether a cancel
// signal was delivered; terminal and unknown jobs return false. The
// status flips to cancelled only when the pipeline acknowledges.
func (r *Registry) Cancel(id string) bool {
	r.mu.RLock()
	j, ok := r.jobs[id]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if j.snap.Load().Status.Terminal() {
		return false
	}
	return j.invokeCancel()
}

// Filter selects jobs for List.
type Filter struct {
	Status Status // empty matches all
	Limit  int    // 0 means no limit
	Offset int
}

// List returns snapshots ordered by creation time, newest first, plus
// the total number of matches before pagination.
func (r *Registry) List(f Filter) ([]Snapshot, int) {
	r.mu.RLock()
	all := make([]Snapshot, 0, len(r.jobs))
	for _, j := range r.jobs {
		s := *j.snap.Load()
		if f.Status != "" && s.Status != f.Status {
			continue
		}
		all = append(all, s)
	}
	r.mu.RUnlock()

	sort.Slice(all, func(i, k int) bool {
		if !all[i].CreatedAt.Equal(all[k].CreatedAt) {
			return all[i].CreatedAt.After(all[k].CreatedAt)
		}
		return all[i].ScanID < all[k].ScanID
	})

	total := len(all)
	if f.Offset > 0 {
		if f.Offset >= len(all) {
			return nil, total
		}
		all = all[f.Offset:]
	}
	if f.Limit > 0 && len(all) > f.Limit {
		all = all[:f.Limit]
	}
	return all, total
}

// Stats tallies jobs by status.
type Stats struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
}

// Stats returns current lifecycle counts.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var s Stats
	s.Total = len(r.jobs)
	for _, j := range r.jobs {
		switch j.snap.Load().Status {
		case StatusPending:
			s.Pending++
		case StatusRunning:
			s.Running++
		case StatusCompleted:
			s.Completed++
		case StatusFailed:
			s.Failed++
		case StatusCancelled:
			s.Cancelled++
		}
	}
	return s
}

// Sweep drops terminal jobs whose completion predates now minus the
// retention window and returns how many were removed.
func (r *Registry) Sweep(now time.Time) int {
	if r.retention < 0 {
		return 0
	}
	cutoff := now.Add(-r.retention)

	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, j := range r.jobs {
		s := j.snap.Load()
		if s.Status.Terminal() && s.CompletedAt.Before(cutoff) {
			delete(r.jobs, id)
			removed++
		}
	}
	if removed > 0 {
		r.log.Debug("swept terminal jobs", "removed", removed)
	}
	return removed
}

func (r *Registry) sweeper(every time.Duration) {
	defer close(r.sweeperD)
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-r.stop:
			return
		case now := <-t.C:
			r.Sweep(now)
		}
	}
}

// markTerminal frees the duplicate-detection slot once a job finishes,
// so the same repository and branch can be scanned again.
func (r *Registry) markTerminal(j *Job) {
	s := j.snap.Load()
	key := repoKey(s.RepoURL, s.Branch)

	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.active[key]; ok && id == j.id {
		delete(r.active, key)
	}
}

func repoKey(url, branch string) string {
	return url + "\x00" + branch
}
