// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: MIT

package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/gatewarden/gatewarden/internal/gate"
	"github.com/gatewarden/gatewarden/internal/jobs"
	"github.com/gatewarden/gatewarden/internal/report"
	"github.com/gatewarden/gatewarden/internal/store"
)

var submissionCheck = validator.New(validator.WithRequiredStructEnabled())

// scanSubmission is the POST /scan body. Unknown fields are tolerated
// so older clients with extra fields keep working.
type scanSubmission struct {
	RepositoryURL string   `json:"repository_url" validate:"required,max=2048"`
	Branch        string   `json:"branch" validate:"omitempty,max=250"`
	Credential    string   `json:"credential" validate:"omitempty,max=4096"`
	Threshold     *float64 `json:"threshold" validate:"omitempty,min=0,max=100"`
	ReportFormat  string   `json:"report_format" validate:"omitempty,oneof=html json both"`
}

// submitResponse acknowledges an accepted scan.
type submitResponse struct {
	ScanID    string    `json:"scan_id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var sub scanSubmission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		writeError(w, gate.Ef(gate.KindInvalidRequest, "api.submit", "malformed request body: %v", err))
		return
	}
	if err := submissionCheck.Struct(sub); err != nil {
		writeError(w, gate.Ef(gate.KindInvalidRequest, "api.submit", "invalid request: %v", firstViolation(err)))
		return
	}
	if strings.ContainsAny(sub.RepositoryURL, " \t\r\n") {
		writeError(w, gate.Ef(gate.KindInvalidRequest, "api.submit", "repository_url must not contain whitespace"))
		return
	}

	threshold := gate.DefaultThreshold
	if sub.Threshold != nil {
		threshold = *sub.Threshold
	}
	snap, err := s.svc.Submit(gate.Request{
		RepositoryURL: sub.RepositoryURL,
		Branch:        sub.Branch,
		Credential:    sub.Credential,
		Threshold:     threshold,
		ReportFormat:  sub.ReportFormat,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	if s.metrics != nil {
		s.metrics.ScanSubmitted()
	}
	writeJSON(w, http.StatusAccepted, submitResponse{
		ScanID:    snap.ScanID,
		Status:    "started",
		CreatedAt: snap.CreatedAt,
	})
}

// firstViolation flattens a validator error to its first field message.
func firstViolation(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		f := verrs[0]
		return fmt.Sprintf("field %s fails %q", f.Field(), f.Tag())
	}
	return err.Error()
}

// statusCounts tallies a completed scan's gate outcomes.
type statusCounts struct {
	Passed        int `json:"passed"`
	Failed        int `json:"failed"`
	Warnings      int `json:"warnings"`
	NotApplicable int `json:"not_applicable"`
}

// statusResponse is the job snapshot plus backward-compatible aliases:
// score mirrors overall_score, progress mirrors progress_percent, and
// gates mirrors gate_results. Older dashboards read the short names.
type statusResponse struct {
	jobs.Snapshot

	Score    float64 `json:"score"`
	Progress float64 `json:"progress"`

	Counts        *statusCounts `json:"counts,omitempty"`
	GateResults   []gate.Result `json:"gate_results,omitempty"`
	Gates         []gate.Result `json:"gates,omitempty"`
	NotApplicable []gate.Result `json:"not_applicable,omitempty"`

	Reports map[string]string `json:"reports,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "scanID")

	if snap, ok := s.registry.Get(id); ok {
		writeJSON(w, http.StatusOK, s.statusFromSnapshot(snap))
		return
	}

	// The job has been swept from the registry; history serves it.
	res, err := s.store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			notFound(w, "scan")
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.statusFromResult(res))
}

func (s *Server) statusFromSnapshot(snap jobs.Snapshot) statusResponse {
	resp := statusResponse{
		Snapshot: snap,
		Score:    snap.OverallScore,
		Progress: snap.Progress,
	}
	if snap.Result != nil {
		resp.Counts = countGates(snap.Result)
		resp.GateResults = snap.Result.Gates
		resp.Gates = snap.Result.Gates
		resp.NotApplicable = snap.Result.NotApplicable
	}
	if snap.Status == jobs.StatusCompleted {
		resp.Reports = s.reportURLs(snap.ScanID, snap.ReportFormat)
	}
	return resp
}

// statusFromResult reconstructs the status view for a scan that only
// exists in the store. Persisted scans are completed by definition.
func (s *Server) statusFromResult(res *gate.ScanResult) statusResponse {
	snap := jobs.Snapshot{
		ScanID:       res.ScanID,
		RepoURL:      res.Metadata.RepoURL,
		Branch:       res.Metadata.Branch,
		Status:       jobs.StatusCompleted,
		Progress:     100,
		OverallScore: res.OverallScore,
		Incomplete:   res.Incomplete,
		Errors:       res.Errors,
		CreatedAt:    res.CreatedAt,
		CompletedAt:  res.CompletedAt,
	}
	return statusResponse{
		Snapshot:      snap,
		Score:         res.OverallScore,
		Progress:      100,
		Counts:        countGates(res),
		GateResults:   res.Gates,
		Gates:         res.Gates,
		NotApplicable: res.NotApplicable,
		Reports:       s.reportURLs(res.ScanID, ""),
	}
}

func countGates(res *gate.ScanResult) *statusCounts {
	c := &statusCounts{NotApplicable: len(res.NotApplicable)}
	for _, g := range res.Gates {
		switch g.Status {
		case gate.StatusPass:
			c.Passed++
		case gate.StatusFail:
			c.Failed++
		case gate.StatusWarning:
			c.Warnings++
		}
	}
	return c
}

// reportURLs lists the report endpoints for the formats the request
// selected. The report handler can render any of them on demand, so the
// URLs are valid even before the files exist on disk.
func (s *Server) reportURLs(scanID, selector string) map[string]string {
	formats := report.Expand(selector)
	urls := make(map[string]string, len(formats))
	for _, f := range formats {
		urls[f] = fmt.Sprintf("/api/v1/scan/%s/report/%s", scanID, f)
	}
	return urls
}

// cancelResponse acknowledges a cancellation request.
type cancelResponse struct {
	ScanID string `json:"scan_id"`
	Status string `json:"status"`
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "scanID")

	if s.svc.Cancel(id) {
		writeJSON(w, http.StatusAccepted, cancelResponse{ScanID: id, Status: "cancelling"})
		return
	}
	if snap, ok := s.registry.Get(id); ok {
		// Present but uncancellable means it already reached a terminal
		// state; latching wins over the late request.
		writeJSON(w, http.StatusConflict, errorBody{
			Error: fmt.Sprintf("scan already %s", snap.Status),
			Kind:  "invalid_request",
		})
		return
	}
	notFound(w, "scan")
}

// scanSummary is one row of the history listing.
type scanSummary struct {
	ScanID      string    `json:"scan_id"`
	RepoURL     string    `json:"repository_url"`
	Branch      string    `json:"branch,omitempty"`
	Status      string    `json:"status"`
	Score       float64   `json:"overall_score"`
	Progress    float64   `json:"progress_percent"`
	Incomplete  bool      `json:"incomplete,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
}

type scansResponse struct {
	Scans  []scanSummary `json:"scans"`
	Total  int           `json:"total"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// handleScans lists scan history: live jobs from the registry merged
// with persisted results, newest first. Pending, running, failed, and
// cancelled states exist only in the registry; completed scans are
// authoritative in the store. Total is the best available count; for
// the unfiltered listing it can lag live jobs that never persisted.
func (s *Server) handleScans(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := pageParams(r)
	if err != nil {
		writeError(w, err)
		return
	}
	status := r.URL.Query().Get("status")

	switch status {
	case "":
		s.listMerged(w, r, limit, offset)
	case string(jobs.StatusPending), string(jobs.StatusRunning),
		string(jobs.StatusFailed), string(jobs.StatusCancelled):
		snaps, total := s.registry.List(jobs.Filter{Status: jobs.Status(status), Limit: limit, Offset: offset})
		items := make([]scanSummary, 0, len(snaps))
		for _, snap := range snaps {
			items = append(items, summaryFromSnapshot(snap))
		}
		writeJSON(w, http.StatusOK, scansResponse{Scans: items, Total: total, Limit: limit, Offset: offset})
	case string(jobs.StatusCompleted):
		s.listCompleted(w, r, limit, offset)
	default:
		writeError(w, gate.Ef(gate.KindInvalidRequest, "api.scans", "unknown status %q", status))
	}
}

func (s *Server) listCompleted(w http.ResponseWriter, r *http.Request, limit, offset int) {
	ctx := r.Context()
	results, err := s.store.List(ctx, store.Filter{Limit: limit, Offset: offset})
	if err != nil {
		writeError(w, err)
		return
	}
	total, err := s.store.Count(ctx, store.Filter{})
	if err != nil {
		writeError(w, err)
		return
	}
	items := make([]scanSummary, 0, len(results))
	for _, res := range results {
		items = append(items, summaryFromResult(res))
	}
	writeJSON(w, http.StatusOK, scansResponse{Scans: items, Total: total, Limit: limit, Offset: offset})
}

// listMerged interleaves live registry jobs with persisted history.
// The store window is sized to cover the requested page even if every
// merged position before it were persisted; anything past the window
// is older than the whole window and cannot land in the page.
func (s *Server) listMerged(w http.ResponseWriter, r *http.Request, limit, offset int) {
	ctx := r.Context()
	live, _ := s.registry.List(jobs.Filter{})

	persisted, err := s.store.List(ctx, store.Filter{Limit: offset + limit})
	if err != nil {
		writeError(w, err)
		return
	}
	storeTotal, err := s.store.Count(ctx, store.Filter{})
	if err != nil {
		writeError(w, err)
		return
	}

	seen := make(map[string]bool, len(live))
	merged := make([]scanSummary, 0, len(live)+len(persisted))
	liveUnpersisted := 0
	for _, snap := range live {
		seen[snap.ScanID] = true
		merged = append(merged, summaryFromSnapshot(snap))
		if snap.Status != jobs.StatusCompleted {
			liveUnpersisted++
		}
	}
	for _, res := range persisted {
		if !seen[res.ScanID] {
			merged = append(merged, summaryFromResult(res))
		}
	}
	sort.Slice(merged, func(i, j int) bool {
		if !merged[i].CreatedAt.Equal(merged[j].CreatedAt) {
			return merged[i].CreatedAt.After(merged[j].CreatedAt)
		}
		return merged[i].ScanID < merged[j].ScanID
	})

	if offset > len(merged) {
		merged = nil
	} else {
		merged = merged[offset:]
	}
	if len(merged) > limit {
		merged = merged[:limit]
	}
	writeJSON(w, http.StatusOK, scansResponse{
		Scans:  merged,
		Total:  storeTotal + liveUnpersisted,
		Limit:  limit,
		Offset: offset,
	})
}

func summaryFromSnapshot(snap jobs.Snapshot) scanSummary {
	return scanSummary{
		ScanID:      snap.ScanID,
		RepoURL:     snap.RepoURL,
		Branch:      snap.Branch,
		Status:      string(snap.Status),
		Score:       snap.OverallScore,
		Progress:    snap.Progress,
		Incomplete:  snap.Incomplete,
		CreatedAt:   snap.CreatedAt,
		CompletedAt: snap.CompletedAt,
	}
}

func summaryFromResult(res *gate.ScanResult) scanSummary {
	return scanSummary{
		ScanID:      res.ScanID,
		RepoURL:     res.Metadata.RepoURL,
		Branch:      res.Metadata.Branch,
		Status:      string(jobs.StatusCompleted),
		Score:       res.OverallScore,
		Progress:    100,
		Incomplete:  res.Incomplete,
		CreatedAt:   res.CreatedAt,
		CompletedAt: res.CompletedAt,
	}
}

func pageParams(r *http.Request) (limit, offset int, err error) {
	limit = defaultPageSize
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit < 1 {
			return 0, 0, gate.Ef(gate.KindInvalidRequest, "api.scans", "limit must be a positive integer")
		}
		if limit > maxPageSize {
			limit = maxPageSize
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		offset, err = strconv.Atoi(v)
		if err != nil || offset < 0 {
			return 0, 0, gate.Ef(gate.KindInvalidRequest, "api.scans", "offset must be a non-negative integer")
		}
	}
	return limit, offset, nil
}
