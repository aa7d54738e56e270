// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: MIT

// Package collector defines the evidence-collector interface and a
// registry for the collectors that supplement static pattern matching.
package collector

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/gatewarden/gatewarden/internal/gate"
)

// Phase places a collector in the gate evaluation sequence.
type Phase int

const (
	// PhaseAugment runs before the scan; findings contribute extra
	// patterns to the single scanner pass.
	PhaseAugment Phase = iota
	// PhaseVerify runs after the scan; findings confirm or refute a
	// gate's evidence against an external source.
	PhaseVerify
	// PhaseRecommend runs after scoring; findings supply recommendation
	// text for the report.
	PhaseRecommend
)

func (p Phase) String() string {
	switch p {
	case PhaseAugment:
		return "augment"
	case PhaseVerify:
		return "verify"
	case PhaseRecommend:
		return "recommend"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Target is what a collector may inspect: the inventoried repository and
// the gate under evaluation. Post-scan phases also see the in-progress
// result.
type Target struct {
	ScanID string
	Meta   *gate.RepoMetadata
	Files  []gate.FileEntry
	Def    *gate.Definition
	// Result is populated for PhaseVerify and PhaseRecommend.
	Result *gate.Result
	Log    *slog.Logger
}

// Finding is a collector's contribution to one gate. Fields are
// phase-specific; the rest stay zero.
type Finding struct {
	// Patterns are extra weighted patterns to scan with (augment).
	Patterns []gate.PatternSpec
	// Verified reports an external verdict (verify); nil means the
	// collector ran but could not decide.
	Verified *bool
	// Recommendation is report prose (recommend).
	Recommendation string

	Confidence gate.Confidence
	// Detail is a short human-readable note for the sources table.
	Detail string
}

// Collector supplements a gate evaluation with evidence beyond the
// static catalog patterns.
type Collector interface {
	// Name returns the unique name of this collector (e.g., "github_ci").
	Name() string

	// Phase returns where in the evaluation the collector runs.
	Phase() Phase

	// Enabled reports whether the collector can run for this target,
	// e.g. whether its credentials or endpoint are configured. Disabled
	// collectors are recorded as skipped, never as failed.
	Enabled(t *Target) bool

	// Collect produces the collector's finding for one gate.
	Collect(ctx context.Context, t *Target) (*Finding, error)
}

var (
	mu       sync.RWMutex
	registry = make(map[string]Collector)
)

// Register adds a collector to the global registry.
// It panics if a collector with the same name is already registered.
func Register(c Collector) {
	mu.Lock()
	defer mu.Unlock()
	name := c.Name()
	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("collector already registered: %s", name))
	}
	registry[name] = c
}

// Get returns the collector with the given name, or nil if not found.
func Get(name string) Collector {
	mu.RLock()
	defer mu.RUnlock()
	return registry[name]
}

// List returns the names of all registered collectors in no particular order.
func List() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}

// ByPhase returns the registered collectors for one phase, ordered by
// name so evaluation is deterministic.
func ByPhase(p Phase) []Collector {
	mu.RLock()
	defer mu.RUnlock()
	var out []Collector
	for _, c := range registry {
		if c.Phase() == p {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// resetForTesting clears the registry. Only for use in tests.
func resetForTesting() {
	mu.Lock()
	defer mu.Unlock()
	registry = make(map[string]Collector)
}
