// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: MIT

// Package gate defines the core domain types for gatewarden: gate
// definitions from the catalog, evaluation results, and the scan-level
// request/result shapes shared by the pipeline, store, and API.
package gate

import "time"

// Status classifies a gate evaluation outcome.
type Status string

const (
	StatusPass          Status = "PASS"
	StatusFail          Status = "FAIL"
	StatusWarning       Status = "WARNING"
	StatusNotApplicable Status = "NOT_APPLICABLE"
)

// Priority ranks how urgently a failing gate should be addressed.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// ScoringMode selects which scoring formula applies to a gate.
type ScoringMode string

const (
	// ModeCoverage rewards presence of desired patterns. Score grows with
	// the share of relevant files carrying evidence.
	ModeCoverage ScoringMode = "coverage"
	// ModeSecurity punishes presence of forbidden patterns. Any match is a
	// violation; zero violations earns a clean bonus.
	ModeSecurity ScoringMode = "security"
)

// Confidence tags how much a result or collector verdict can be trusted.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// MinConfidence returns the weaker of two confidence tags.
func MinConfidence(a, b Confidence) Confidence {
	rank := map[Confidence]int{ConfidenceHigh: 3, ConfidenceMedium: 2, ConfidenceLow: 1}
	if rank[a] == 0 {
		return b
	}
	if rank[b] == 0 {
		return a
	}
	if rank[a] <= rank[b] {
		return a
	}
	return b
}

// PatternSpec is one weighted regex from the catalog.
type PatternSpec struct {
	Pattern   string  `json:"pattern" yaml:"pattern"`
	Weight    float64 `json:"weight" yaml:"weight"`
	Rationale string  `json:"rationale,omitempty" yaml:"rationale,omitempty"`
	// Flags holds optional regex flags as a letter string ("i", "im").
	// Empty means case-sensitive single-line matching.
	Flags string `json:"flags,omitempty" yaml:"flags,omitempty"`
}

// ScoringKnobs are the per-gate tuning parameters from the catalog.
// Coverage gates use the threshold/multiplier fields; security gates use
// the base/penalty/bonus fields. Zero values fall back to catalog-global
// defaults at load time.
type ScoringKnobs struct {
	Mode ScoringMode `json:"mode" yaml:"mode"`

	// Security knobs.
	BaseScore        float64 `json:"base_score,omitempty" yaml:"base_score,omitempty"`
	ViolationPenalty float64 `json:"violation_penalty,omitempty" yaml:"violation_penalty,omitempty"`
	MaxPenalty       float64 `json:"max_penalty,omitempty" yaml:"max_penalty,omitempty"`
	BonusForClean    float64 `json:"bonus_for_clean,omitempty" yaml:"bonus_for_clean,omitempty"`

	// Coverage knobs.
	BonusThreshold    float64 `json:"bonus_threshold,omitempty" yaml:"bonus_threshold,omitempty"`
	BonusMultiplier   float64 `json:"bonus_multiplier,omitempty" yaml:"bonus_multiplier,omitempty"`
	PenaltyThreshold  float64 `json:"penalty_threshold,omitempty" yaml:"penalty_threshold,omitempty"`
	PenaltyMultiplier float64 `json:"penalty_multiplier,omitempty" yaml:"penalty_multiplier,omitempty"`
}

// ExpectedCoverage is the catalog author's estimate of how much of a repo
// should plausibly carry a gate's patterns.
type ExpectedCoverage struct {
	Percent    float64 `json:"percent" yaml:"percent"`
	Reasoning  string  `json:"reasoning,omitempty" yaml:"reasoning,omitempty"`
	Confidence string  `json:"confidence,omitempty" yaml:"confidence,omitempty"`
}

// Applicability decides whether a gate applies to a repository's stack.
// A gate applies iff every required category is present in the detected
// stack and no excluded category is.
type Applicability struct {
	RequiredCategories []string `json:"required_categories,omitempty" yaml:"required_categories,omitempty"`
	ExcludedCategories []string `json:"excluded_categories,omitempty" yaml:"excluded_categories,omitempty"`
	// Reason is the human-readable explanation reported when the gate is
	// skipped, e.g. "API/backend only".
	Reason string `json:"reason,omitempty" yaml:"reason,omitempty"`
}

// Definition is one gate from the catalog.
type Definition struct {
	Name        string   `json:"name" yaml:"name"`
	DisplayName string   `json:"display_name" yaml:"display_name"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Category    string   `json:"category,omitempty" yaml:"category,omitempty"`
	Priority    Priority `json:"priority" yaml:"priority"`
	Weight      float64  `json:"weight" yaml:"weight"`

	// Patterns maps a language tag ("python", "java", "all_languages") to
	// its weighted patterns. The all_languages bucket applies to every
	// repository regardless of detected stack.
	Patterns map[string][]PatternSpec `json:"patterns" yaml:"patterns"`

	Scoring          ScoringKnobs     `json:"scoring" yaml:"scoring"`
	ExpectedCoverage ExpectedCoverage `json:"expected_coverage" yaml:"expected_coverage"`
	Applicability    Applicability    `json:"applicability" yaml:"applicability"`

	// EvidenceCollectors names collectors that must succeed for this gate
	// to PASS (beyond the always-on static pattern collector).
	EvidenceCollectors []string `json:"mandatory_evidence_collectors,omitempty" yaml:"mandatory_evidence_collectors,omitempty"`
}

// PatternCount returns the number of patterns across all language buckets.
func (d *Definition) PatternCount() int {
	n := 0
	for _, specs := range d.Patterns {
		n += len(specs)
	}
	return n
}

// Match is one piece of evidence: a pattern hit inside a scanned file.
type Match struct {
	File    string `json:"file"`
	Line    int    `json:"line"` // 1-based
	Pattern string `json:"pattern"`
	Matched string `json:"matched"`
	Source  string `json:"source"`            // collector that produced it
	Context string `json:"context,omitempty"` // surrounding line, bounded
}

// Counts summarizes the evidence volume behind a gate result.
type Counts struct {
	PatternsUsed     int `json:"patterns_used"`
	MatchesFound     int `json:"matches_found"`
	RelevantFiles    int `json:"relevant_files"`
	FilesWithMatches int `json:"files_with_matches"`
}

// ScoreDetail records the inputs the scorer used, for report display.
type ScoreDetail struct {
	Weight           float64 `json:"weight"`
	ActualCoverage   float64 `json:"actual_coverage"`   // 0-100
	ExpectedCoverage float64 `json:"expected_coverage"` // 0-100
	Violations       int     `json:"violations,omitempty"`
}

// SourceReport records one collector's contribution to a gate result.
type SourceReport struct {
	Collector  string     `json:"collector"`
	Enabled    bool       `json:"enabled"`
	Succeeded  bool       `json:"succeeded"`
	Error      string     `json:"error,omitempty"`
	Confidence Confidence `json:"confidence"`
	Mandatory  bool       `json:"mandatory,omitempty"`
}

// Result is the evaluated outcome of one gate against one repository.
type Result struct {
	Gate        string   `json:"gate"`
	DisplayName string   `json:"display_name,omitempty"`
	Category    string   `json:"category,omitempty"`
	Priority    Priority `json:"priority,omitempty"`

	Status Status  `json:"status"`
	Score  float64 `json:"score"`

	Matches       []Match `json:"matches,omitempty"`
	MatchesCapped bool    `json:"matches_capped,omitempty"`
	// Partial marks results produced from an interrupted scan (deadline or
	// cancellation hit before every relevant file was visited).
	Partial bool `json:"partial,omitempty"`

	Counts  Counts      `json:"counts"`
	Scoring ScoreDetail `json:"scoring"`

	Sources    []SourceReport `json:"sources,omitempty"`
	Confidence Confidence     `json:"confidence,omitempty"`

	Recommendation string `json:"recommendation,omitempty"`
	// Reason explains a NOT_APPLICABLE status.
	Reason string `json:"reason,omitempty"`
}

// Applicable reports whether the gate contributed to the overall score.
func (r *Result) Applicable() bool {
	return r.Status != StatusNotApplicable
}

// ScanResult is the full outcome of one scan, as persisted and reported.
type ScanResult struct {
	ScanID       string  `json:"scan_id"`
	OverallScore float64 `json:"overall_score"`

	Gates         []Result `json:"gate_results"`
	NotApplicable []Result `json:"not_applicable,omitempty"`

	Metadata RepoMetadata `json:"metadata"`

	// Incomplete marks a scan that hit its deadline or was cancelled
	// before visiting every file; scores cover only what was scanned.
	Incomplete bool     `json:"incomplete,omitempty"`
	Errors     []string `json:"errors,omitempty"`

	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
}

// GateCount returns applicable plus non-applicable gate totals.
func (s *ScanResult) GateCount() (applicable, skipped int) {
	return len(s.Gates), len(s.NotApplicable)
}

// StatusCounts tallies gate results by status.
func (s *ScanResult) StatusCounts() map[Status]int {
	out := make(map[Status]int, 4)
	for _, g := range s.Gates {
		out[g.Status]++
	}
	for range s.NotApplicable {
		out[StatusNotApplicable]++
	}
	return out
}
