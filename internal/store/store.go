// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: MIT

// Package store persists scan results behind a single interface with
// four interchangeable backends: an embedded single-file database
// (kv), a networked relational database (sql), a human-inspectable
// file tree (file), and an in-memory map (memory). Every backend keeps
// the canonical JSON encoding of the result as its payload, so the
// backends are semantically identical and results survive schema
// drift in the surrounding columns.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/gatewarden/gatewarden/internal/gate"
)

// ErrNotFound reports a scan ID with no stored result.
var ErrNotFound = errors.New("scan not found")

// Filter narrows List and Count. The zero value matches everything.
type Filter struct {
	// Incomplete selects interrupted (true) or fully scanned (false)
	// results. Nil matches both.
	Incomplete *bool
	Limit      int // 0 means no limit
	Offset     int
}

// Stats summarizes a backend for health reporting.
type Stats struct {
	Backend    string    `json:"backend"`
	Scans      int       `json:"scans"`
	Incomplete int       `json:"incomplete"`
	Oldest     time.Time `json:"oldest_scan,omitempty"`
	Newest     time.Time `json:"newest_scan,omitempty"`
}

// Store persists scan results keyed by scan ID. All operations are
// idempotent by ID: Save upserts, Delete of a missing ID is a no-op.
// List returns newest-first by creation time with a deterministic
// scan-ID tie break.
type Store interface {
	Save(ctx context.Context, r *gate.ScanResult) error
	// Get returns ErrNotFound for unknown IDs.
	Get(ctx context.Context, scanID string) (*gate.ScanResult, error)
	// Update rewrites an existing result; ErrNotFound if absent.
	Update(ctx context.Context, r *gate.ScanResult) error
	Delete(ctx context.Context, scanID string) error
	List(ctx context.Context, f Filter) ([]*gate.ScanResult, error)
	Count(ctx context.Context, f Filter) (int, error)
	// Cleanup removes results created before the cutoff and reports
	// how many were deleted.
	Cleanup(ctx context.Context, olderThan time.Time) (int, error)
	Stats(ctx context.Context) (Stats, error)
	Health(ctx context.Context) error
	Close() error
}

// Backend selects a store implementation.
type Backend string

const (
	BackendKV     Backend = "kv"
	BackendSQL    Backend = "sql"
	BackendFile   Backend = "file"
	BackendMemory Backend = "memory"
)

// Config selects and parameterizes a backend.
type Config struct {
	Backend Backend
	// DSN is a file path for kv and file backends and a connection
	// string for sql. Ignored by memory.
	DSN string
	Log *slog.Logger
}

// backends maps the configuration tag to its opener.
var backends = map[Backend]func(ctx context.Context, cfg Config) (Store, error){
	BackendKV: func(_ context.Context, cfg Config) (Store, error) {
		return OpenSQLite(cfg.DSN, cfg.Log)
	},
	BackendSQL: func(ctx context.Context, cfg Config) (Store, error) {
		return OpenPostgres(ctx, cfg.DSN, cfg.Log)
	},
	BackendFile: func(_ context.Context, cfg Config) (Store, error) {
		return OpenFiletree(cfg.DSN, cfg.Log)
	},
	BackendMemory: func(_ context.Context, _ Config) (Store, error) {
		return NewMemory(), nil
	},
}

// Open constructs the backend named by cfg. An empty backend means kv.
func Open(ctx context.Context, cfg Config) (Store, error) {
	const op = "store.Open"
	if cfg.Backend == "" {
		cfg.Backend = BackendKV
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	open, ok := backends[cfg.Backend]
	if !ok {
		return nil, gate.Ef(gate.KindInvalidRequest, op, "unknown storage backend %q", cfg.Backend)
	}
	s, err := open(ctx, cfg)
	if err != nil {
		return nil, gate.E(gate.KindStorageUnavailable, op, err)
	}
	return s, nil
}

// encode produces the canonical payload for a result.
func encode(r *gate.ScanResult) ([]byte, error) {
	return json.Marshal(r)
}

func decode(b []byte) (*gate.ScanResult, error) {
	var r gate.ScanResult
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// matches applies the status part of a filter to one result.
func (f Filter) matches(r *gate.ScanResult) bool {
	return f.Incomplete == nil || *f.Incomplete == r.Incomplete
}

// paginate applies offset and limit to an already sorted page.
func paginate[T any](items []T, f Filter) []T {
	if f.Offset > 0 {
		if f.Offset >= len(items) {
			return nil
		}
		items = items[f.Offset:]
	}
	if f.Limit > 0 && len(items) > f.Limit {
		items = items[:f.Limit]
	}
	return items
}
