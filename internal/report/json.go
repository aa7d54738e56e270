// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: MIT

package report

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/gatewarden/gatewarden/internal/gate"
)

func init() {
	Register(NewJSONRenderer())
}

// SchemaVersion identifies the JSON report envelope. Bump on breaking
// changes so consumers can branch on it.
const SchemaVersion = "1"

// Envelope wraps the scan result with schema metadata for the JSON
// report format.
type Envelope struct {
	SchemaVersion string           `json:"schema_version"`
	GeneratedAt   time.Time        `json:"generated_at"`
	Result        *gate.ScanResult `json:"result"`
}

// JSONRenderer writes the scan result as a versioned JSON document.
type JSONRenderer struct {
	// Compact emits a single line instead of two-space indentation.
	Compact bool

	// nowFunc is used for testing to override the current time.
	nowFunc func() time.Time
}

// Compile-time interface check.
var _ Renderer = (*JSONRenderer)(nil)

// NewJSONRenderer returns a JSONRenderer with default settings.
func NewJSONRenderer() *JSONRenderer {
	return &JSONRenderer{}
}

// Name returns the format name.
func (r *JSONRenderer) Name() string { return "json" }

// ContentType returns the MIME type for HTTP delivery.
func (r *JSONRenderer) ContentType() string { return "application/json" }

// Render writes the envelope to w.
func (r *JSONRenderer) Render(res *gate.ScanResult, w io.Writer) error {
	if res == nil {
		return fmt.Errorf("nil scan result")
	}
	now := time.Now().UTC()
	if r.nowFunc != nil {
		now = r.nowFunc()
	}
	enc := json.NewEncoder(w)
	if !r.Compact {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(Envelope{
		SchemaVersion: SchemaVersion,
		GeneratedAt:   now,
		Result:        res,
	}); err != nil {
		return fmt.Errorf("encode json report: %w", err)
	}
	return nil
}
