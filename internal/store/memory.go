// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/gatewarden/gatewarden/internal/gate"
)

// Memory is the in-process backend for tests and ephemeral deployments.
// Nothing survives a restart. Rows hold the encoded payload, not the
// caller's pointer, so later mutations of a saved result never leak in.
type Memory struct {
	mu   sync.RWMutex
	rows map[string]memRow
}

type memRow struct {
	payload    []byte
	createdAt  time.Time
	incomplete bool
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{rows: make(map[string]memRow)}
}

var _ Store = (*Memory)(nil)

// Save upserts the result under its scan ID.
func (m *Memory) Save(_ context.Context, r *gate.ScanResult) error {
	const op = "store.memory.Save"
	if r == nil || r.ScanID == "" {
		return gate.Ef(gate.KindInvalidRequest, op, "missing scan id")
	}
	payload, err := encode(r)
	if err != nil {
		return gate.E(gate.KindInternal, op, err)
	}
	m.mu.Lock()
	m.rows[r.ScanID] = memRow{payload: payload, createdAt: r.CreatedAt, incomplete: r.Incomplete}
	m.mu.Unlock()
	return nil
}

// Get returns the stored result or ErrNotFound.
func (m *Memory) Get(_ context.Context, scanID string) (*gate.ScanResult, error) {
	m.mu.RLock()
	row, ok := m.rows[scanID]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return decode(row.payload)
}

// Update rewrites an existing result.
func (m *Memory) Update(ctx context.Context, r *gate.ScanResult) error {
	const op = "store.memory.Update"
	if r == nil || r.ScanID == "" {
		return gate.Ef(gate.KindInvalidRequest, op, "missing scan id")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[r.ScanID]; !ok {
		return ErrNotFound
	}
	payload, err := encode(r)
	if err != nil {
		return gate.E(gate.KindInternal, op, err)
	}
	m.rows[r.ScanID] = memRow{payload: payload, createdAt: r.CreatedAt, incomplete: r.Incomplete}
	return nil
}

// Delete removes the result; deleting a missing ID is a no-op.
func (m *Memory) Delete(_ context.Context, scanID string) error {
	m.mu.Lock()
	delete(m.rows, scanID)
	m.mu.Unlock()
	return nil
}

// List returns stored results newest-first.
func (m *Memory) List(_ context.Context, f Filter) ([]*gate.ScanResult, error) {
	m.mu.RLock()
	ids := make([]string, 0, len(m.rows))
	for id, row := range m.rows {
		if f.Incomplete != nil && *f.Incomplete != row.incomplete {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, k int) bool {
		a, b := m.rows[ids[i]], m.rows[ids[k]]
		if !a.createdAt.Equal(b.createdAt) {
			return a.createdAt.After(b.createdAt)
		}
		return ids[i] < ids[k]
	})
	ids = paginate(ids, f)
	payloads := make([][]byte, len(ids))
	for i, id := range ids {
		payloads[i] = m.rows[id].payload
	}
	m.mu.RUnlock()

	out := make([]*gate.ScanResult, 0, len(payloads))
	for _, p := range payloads {
		r, err := decode(p)
		if err != nil {
			return nil, gate.E(gate.KindInternal, "store.memory.List", err)
		}
		out = append(out, r)
	}
	return out, nil
}

// Count returns how many stored results match the filter.
func (m *Memory) Count(_ context.Context, f Filter) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, row := range m.rows {
		if f.Incomplete == nil || *f.Incomplete == row.incomplete {
			n++
		}
	}
	return n, nil
}

// Cleanup removes results created before the cutoff.
func (m *Memory) Cleanup(_ context.Context, olderThan time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, row := range m.rows {
		if row.createdAt.Before(olderThan) {
			delete(m.rows, id)
			removed++
		}
	}
	return removed, nil
}

// Stats summarizes the held results.
func (m *Memory) Stats(_ context.Context) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := Stats{Backend: string(BackendMemory), Scans: len(m.rows)}
	for _, row := range m.rows {
		if row.incomplete {
			s.Incomplete++
		}
		if s.Oldest.IsZero() || row.createdAt.Before(s.Oldest) {
			s.Oldest = row.createdAt
		}
		if row.createdAt.After(s.Newest) {
			s.Newest = row.createdAt
		}
	}
	return s, nil
}

// Health always succeeds; the map is the process's own heap.
func (m *Memory) Health(_ context.Context) error { return nil }

// Close is a no-op.
func (m *Memory) Close() error { return nil }
