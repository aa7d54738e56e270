// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: MIT

package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gatewarden/gatewarden/internal/gate"
	"github.com/gatewarden/gatewarden/internal/jobs"
	"github.com/gatewarden/gatewarden/internal/redact"
)

// errorBody is the uniform JSON error envelope.
type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
	// ScanID points at the conflicting job on duplicate submissions.
	ScanID string `json:"scan_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		// Headers are gone; all we can do is log.
		slog.Debug("response encode failed", "error", err)
	}
}

// writeError maps err to the API error envelope. Credentials are
// scrubbed from the message; a duplicate submission carries the
// existing scan ID so clients can poll it instead.
func writeError(w http.ResponseWriter, err error) {
	var dup *jobs.DuplicateError
	if errors.As(err, &dup) {
		writeJSON(w, http.StatusConflict, errorBody{
			Error:  "a scan for this repository and branch is already in progress",
			Kind:   "duplicate_scan",
			ScanID: dup.ScanID,
		})
		return
	}
	kind := gate.KindOf(err)
	writeJSON(w, statusForKind(kind), errorBody{
		Error: redact.String(err.Error()),
		Kind:  string(kind),
	})
}

// statusForKind maps error kinds to HTTP status codes: validation
// failures are the caller's fault, deadline expiry is 504, storage
// outages are 503, everything else is a plain 500.
func statusForKind(kind gate.Kind) int {
	switch kind {
	case gate.KindInvalidRequest:
		return http.StatusBadRequest
	case gate.KindDeadlineExceeded:
		return http.StatusGatewayTimeout
	case gate.KindStorageUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// notFound writes the uniform 404 envelope for unknown scan IDs.
func notFound(w http.ResponseWriter, what string) {
	writeJSON(w, http.StatusNotFound, errorBody{Error: what + " not found"})
}
