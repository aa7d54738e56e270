// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: MIT

// Package report renders scan results for delivery: a versioned JSON
// document for machines and a self-contained HTML page for humans.
// Renderers register themselves in a global registry keyed by format
// name, so new formats (PDF, SARIF) plug in without touching the
// pipeline or the API layer.
package report

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/gatewarden/gatewarden/internal/gate"
)

// Renderer writes one scan result to w in a specific format.
type Renderer interface {
	// Name returns the format name served over the API (e.g. "html").
	Name() string

	// ContentType returns the MIME type for HTTP delivery.
	ContentType() string

	// Render writes the report to w.
	Render(res *gate.ScanResult, w io.Writer) error
}

var (
	regMu    sync.RWMutex
	registry = make(map[string]Renderer)
)

// Register adds a renderer to the global registry.
func Register(r Renderer) {
	regMu.Lock()
	defer regMu.Unlock()
	registry[r.Name()] = r
}

// Get returns the renderer with the given name, or an error naming the
// available formats.
func Get(name string) (Renderer, error) {
	regMu.RLock()
	defer regMu.RUnlock()
	r, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown report format %q (available: %s)", name, strings.Join(names(), ", "))
	}
	return r, nil
}

// Formats returns the registered format names, sorted.
func Formats() []string {
	regMu.RLock()
	defer regMu.RUnlock()
	return names()
}

// names must be called with regMu held.
func names() []string {
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// resetForTesting clears the renderer registry. Only for use in tests.
func resetForTesting() {
	regMu.Lock()
	defer regMu.Unlock()
	registry = make(map[string]Renderer)
}

// Expand maps a request's report-format selector to renderer names.
// "both" and "" select every registered format.
func Expand(selector string) []string {
	switch selector {
	case "", "both":
		return Formats()
	default:
		return []string{selector}
	}
}

// Writer materializes reports on disk, one directory per scan. Report
// files outlive the scan workspace so they stay downloadable after
// cleanup.
type Writer struct {
	dir string
	log *slog.Logger
}

// NewWriter returns a Writer rooted at dir.
func NewWriter(dir string, log *slog.Logger) *Writer {
	if log == nil {
		log = slog.Default()
	}
	return &Writer{dir: dir, log: log}
}

// Dir returns the report directory owned by a scan.
func (w *Writer) Dir(scanID string) string {
	return filepath.Join(w.dir, scanID)
}

// Path returns the report file path for a scan and format.
func (w *Writer) Path(scanID, format string) string {
	return filepath.Join(w.Dir(scanID), "report."+format)
}

// Write renders the requested formats for res and returns the written
// paths keyed by format name. Formats that fail to render are skipped;
// their errors come back joined so the caller can record them without
// losing the formats that did land.
func (w *Writer) Write(res *gate.ScanResult, formats []string) (map[string]string, error) {
	if res == nil || res.ScanID == "" {
		return nil, fmt.Errorf("report: missing scan id")
	}
	if filepath.Base(res.ScanID) != res.ScanID {
		return nil, fmt.Errorf("report: scan id %q is not a valid directory name", res.ScanID)
	}
	dir := w.Dir(res.ScanID)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("report: create %s: %w", dir, err)
	}

	written := make(map[string]string, len(formats))
	var errs []error
	for _, format := range formats {
		r, err := Get(format)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		var buf bytes.Buffer
		if err := r.Render(res, &buf); err != nil {
			errs = append(errs, fmt.Errorf("render %s report: %w", format, err))
			continue
		}
		path := w.Path(res.ScanID, format)
		if err := os.WriteFile(path, buf.Bytes(), 0o640); err != nil {
			errs = append(errs, fmt.Errorf("write %s report: %w", format, err))
			continue
		}
		written[format] = path
		w.log.Debug("report written", "scan_id", res.ScanID, "format", format, "bytes", buf.Len())
	}
	return written, errors.Join(errs...)
}

// Remove deletes a scan's report directory.
func (w *Writer) Remove(scanID string) error {
	if filepath.Base(scanID) != scanID {
		return nil
	}
	return os.RemoveAll(w.Dir(scanID))
}
