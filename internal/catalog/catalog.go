// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: MIT

// Package catalog loads and validates the external gate catalog: gate
// definitions with per-language weighted patterns, scoring knobs, and
// the global configuration blocks shared by the scanner and scorer.
package catalog

import (
	"log/slog"
	"sync"

	"github.com/gatewarden/gatewarden/internal/gate"
	"github.com/gatewarden/gatewarden/internal/regexcache"
)

// AllLanguages is the pattern bucket applied to every repository
// regardless of detected technologies.
const AllLanguages = "all_languages"

// ScoringDefaults are the catalog-global knob values merged into any
// gate that leaves a knob unset.
type ScoringDefaults struct {
	BaseScore        float64 `yaml:"base_score" json:"base_score"`
	ViolationPenalty float64 `yaml:"violation_penalty" json:"violation_penalty"`
	MaxPenalty       float64 `yaml:"max_penalty" json:"max_penalty"`
	BonusForClean    float64 `yaml:"bonus_for_clean" json:"bonus_for_clean"`

	BonusThreshold    float64 `yaml:"bonus_threshold" json:"bonus_threshold"`
	BonusMultiplier   float64 `yaml:"bonus_multiplier" json:"bonus_multiplier"`
	PenaltyThreshold  float64 `yaml:"penalty_threshold" json:"penalty_threshold"`
	PenaltyMultiplier float64 `yaml:"penalty_multiplier" json:"penalty_multiplier"`

	// Expected-coverage bonus: points proportional to how far actual
	// coverage exceeds the catalog author's expectation.
	ExpectedBonusPerExcess float64 `yaml:"expected_bonus_per_excess" json:"expected_bonus_per_excess"`
	ExpectedBonusCap       float64 `yaml:"expected_bonus_cap" json:"expected_bonus_cap"`
}

// StatusConfig holds the thresholds that classify scores into statuses.
type StatusConfig struct {
	PassThreshold         float64 `yaml:"pass_threshold" json:"pass_threshold"`
	WarningThreshold      float64 `yaml:"warning_threshold" json:"warning_threshold"`
	SecurityPassThreshold float64 `yaml:"security_pass_threshold" json:"security_pass_threshold"`
}

// TechConfig drives primary-technology detection and language aliasing.
type TechConfig struct {
	// Thresholds are percentages of the repo's file count.
	PrimaryThresholdPercent   float64 `yaml:"primary_threshold_percent" json:"primary_threshold_percent"`
	SecondaryThresholdPercent float64 `yaml:"secondary_threshold_percent" json:"secondary_threshold_percent"`
	// Aliases maps a canonical catalog language to the technology tags
	// that select its patterns, e.g. java -> [spring, kotlin, scala].
	Aliases map[string][]string `yaml:"aliases" json:"aliases"`
}

// FileConfig bounds how files are read and scanned.
type FileConfig struct {
	SmallFileBytes        int64 `yaml:"small_file_bytes" json:"small_file_bytes"`
	MmapFileBytes         int64 `yaml:"mmap_file_bytes" json:"mmap_file_bytes"`
	MaxFileBytes          int64 `yaml:"max_file_bytes" json:"max_file_bytes"`
	OverlapBytes          int   `yaml:"overlap_bytes" json:"overlap_bytes"`
	MaxMatchesPerGateFile int   `yaml:"max_matches_per_gate_per_file" json:"max_matches_per_gate_per_file"`
	MaxParallelFiles      int   `yaml:"max_parallel_files" json:"max_parallel_files"`
}

// UIConfig carries presentation hints for report rendering.
type UIConfig struct {
	Title        string            `yaml:"title" json:"title"`
	StatusColors map[string]string `yaml:"status_colors" json:"status_colors"`
}

// Global is the catalog's global configuration block.
type Global struct {
	Scoring             ScoringDefaults `yaml:"scoring" json:"scoring"`
	StatusDetermination StatusConfig    `yaml:"status_determination" json:"status_determination"`
	TechnologyDetection TechConfig      `yaml:"technology_detection" json:"technology_detection"`
	FileProcessing      FileConfig      `yaml:"file_processing" json:"file_processing"`
	UI                  UIConfig        `yaml:"ui" json:"ui"`
}

// Metadata mirrors the catalog header counters.
type Metadata struct {
	TotalGates    int `yaml:"total_gates" json:"total_gates"`
	TotalPatterns int `yaml:"total_patterns" json:"total_patterns"`
}

// Document is one parsed and validated catalog.
type Document struct {
	Version  string   `json:"version"`
	Metadata Metadata `json:"metadata"`
	Global   Global   `json:"global"`

	// Gates preserves catalog author order.
	Gates []gate.Definition `json:"gates"`

	byName map[string]int
	// DroppedPatterns counts patterns excluded at load time because they
	// failed to compile.
	DroppedPatterns int `json:"dropped_patterns,omitempty"`
}

// Gate looks a definition up by stable name.
func (d *Document) Gate(name string) (gate.Definition, bool) {
	i, ok := d.byName[name]
	if !ok {
		return gate.Definition{}, false
	}
	return d.Gates[i], true
}

// Library is the process-wide catalog handle. Load replaces the whole
// document atomically so a reload never exposes a half-applied catalog.
type Library struct {
	mu    sync.RWMutex
	doc   *Document
	path  string // empty for the embedded default
	cache *regexcache.Cache
	log   *slog.Logger
}

// Document returns the current catalog snapshot.
func (l *Library) Document() *Document {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.doc
}

// Gate looks up a definition in the current snapshot.
func (l *Library) Gate(name string) (gate.Definition, bool) {
	return l.Document().Gate(name)
}

// Gates returns the current definitions in catalog order.
func (l *Library) Gates() []gate.Definition {
	return l.Document().Gates
}

// Global returns the current global configuration.
func (l *Library) Global() Global {
	return l.Document().Global
}

// Version returns the current catalog version string.
func (l *Library) Version() string {
	return l.Document().Version
}

// Path returns the backing file path, empty when the embedded default
// catalog is active.
func (l *Library) Path() string {
	return l.path
}

// PatternsFor selects the gate's patterns for the detected technologies:
// the buckets whose canonical language matches any technology (directly
// or through an alias), plus the all_languages bucket. The result order
// is deterministic for identical inputs.
func (d *Document) PatternsFor(def gate.Definition, technologies []string) []gate.PatternSpec {
	var out []gate.PatternSpec
	for _, lang := range d.MatchedLanguages(def, technologies) {
		out = append(out, def.Patterns[lang]...)
	}
	out = append(out, def.Patterns[AllLanguages]...)
	return out
}

// MatchedLanguages returns the gate's language buckets (sorted, excluding
// all_languages) that match the detected technologies after aliasing.
func (d *Document) MatchedLanguages(def gate.Definition, technologies []string) []string {
	languages := ResolveLanguages(technologies, d.Global.TechnologyDetection.Aliases)

	matched := make(map[string]bool, len(languages))
	for _, lang := range languages {
		matched[lang] = true
	}

	var out []string
	for _, lang := range sortedKeys(def.Patterns) {
		if lang != AllLanguages && matched[lang] {
			out = append(out, lang)
		}
	}
	return out
}

// PatternsFor selects against the current catalog snapshot.
func (l *Library) PatternsFor(def gate.Definition, technologies []string) []gate.PatternSpec {
	return l.Document().PatternsFor(def, technologies)
}
