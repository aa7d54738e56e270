// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: MIT

package server

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/go-chi/chi/v5"

	"github.com/gatewarden/gatewarden/internal/gate"
	"github.com/gatewarden/gatewarden/internal/report"
	"github.com/gatewarden/gatewarden/internal/store"
)

// notReadyResponse is the 202 body while a scan is still producing its
// report.
type notReadyResponse struct {
	ScanID   string  `json:"scan_id"`
	Status   string  `json:"status"`
	Progress float64 `json:"progress_percent"`
	Message  string  `json:"message"`
}

// handleReport serves a rendered report. Resolution order: the file the
// pipeline wrote, then an on-the-fly render from the completed job's
// result, then the persisted result. A scan still in flight answers 202
// with its progress so clients can poll the same URL until it flips to
// 200.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "scanID")
	format := chi.URLParam(r, "format")

	renderer, err := report.Get(format)
	if err != nil {
		writeError(w, gate.E(gate.KindInvalidRequest, "api.report", err))
		return
	}

	body, err := os.ReadFile(s.reports.Path(id, format))
	switch {
	case err == nil:
		s.serveReport(w, r, renderer.ContentType(), body)
		return
	case !errors.Is(err, fs.ErrNotExist):
		writeError(w, gate.E(gate.KindInternal, "api.report", err).WithPath(s.reports.Path(id, format)))
		return
	}

	if snap, ok := s.registry.Get(id); ok {
		if !snap.Status.Terminal() {
			writeJSON(w, http.StatusAccepted, notReadyResponse{
				ScanID:   id,
				Status:   string(snap.Status),
				Progress: snap.Progress,
				Message:  "report not ready: scan in progress",
			})
			return
		}
		if snap.Result != nil {
			s.renderReport(w, r, renderer, snap.Result)
			return
		}
	}

	res, err := s.store.Get(r.Context(), id)
	switch {
	case err == nil:
		s.renderReport(w, r, renderer, res)
	case errors.Is(err, store.ErrNotFound):
		notFound(w, "report")
	default:
		writeError(w, err)
	}
}

func (s *Server) renderReport(w http.ResponseWriter, r *http.Request, renderer report.Renderer, res *gate.ScanResult) {
	var buf bytes.Buffer
	if err := renderer.Render(res, &buf); err != nil {
		writeError(w, gate.E(gate.KindInternal, "api.report", err))
		return
	}
	s.serveReport(w, r, renderer.ContentType(), buf.Bytes())
}

// serveReport writes the body with a content-hash ETag. A matching
// If-None-Match collapses the response to 304, which matters for the
// HTML reports dashboards poll.
func (s *Server) serveReport(w http.ResponseWriter, r *http.Request, contentType string, body []byte) {
	etag := fmt.Sprintf("%q", fmt.Sprintf("%016x", xxhash.Sum64(body)))
	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Type", contentType)

	if match := r.Header.Get("If-None-Match"); match != "" && etagMatches(match, etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		s.log.Debug("report write aborted", "error", err)
	}
}

// etagMatches implements the If-None-Match list comparison, including
// the * wildcard and weak-validator prefixes.
func etagMatches(header, etag string) bool {
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		candidate = strings.TrimPrefix(candidate, "W/")
		if candidate == "*" || candidate == etag {
			return true
		}
	}
	return false
}
