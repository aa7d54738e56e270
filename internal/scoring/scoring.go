// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: MIT

// Package scoring turns aggregated scan evidence into per-gate scores,
// status classifications, and the overall weighted score. Scores are a
// pure function of evidence and catalog knobs; nothing here touches the
// filesystem or any scan state.
package scoring

import (
	"math"

	"github.com/gatewarden/gatewarden/internal/catalog"
	"github.com/gatewarden/gatewarden/internal/gate"
)

// Evidence is the folded scan evidence for one gate. Coverage gates use
// the file-credit fields; security gates use Violations.
type Evidence struct {
	// RelevantFiles is how many inventoried files the gate's pattern
	// languages select.
	RelevantFiles int
	// FilesWithMatches counts relevant files carrying at least one match.
	FilesWithMatches int
	// FileCredits sums, over matched files, the heaviest matched pattern
	// weight in that file.
	FileCredits float64
	// MaxPatternWeight is the heaviest weight among the gate's selected
	// patterns; a file can earn at most this much credit.
	MaxPatternWeight float64
	// Violations is the total match count (security gates only).
	Violations int
}

// Scorer applies catalog scoring knobs. The zero value scores with the
// built-in defaults.
type Scorer struct {
	Defaults catalog.ScoringDefaults
	Status   catalog.StatusConfig
}

// New builds a Scorer from a catalog's global block.
func New(global catalog.Global) *Scorer {
	return &Scorer{Defaults: global.Scoring, Status: global.StatusDetermination}
}

// ScoreGate computes the gate's 0-100 score from its evidence.
func (s *Scorer) ScoreGate(def *gate.Definition, ev Evidence) (float64, gate.ScoreDetail) {
	detail := gate.ScoreDetail{
		Weight:           def.Weight,
		ExpectedCoverage: def.ExpectedCoverage.Percent,
		Violations:       ev.Violations,
	}
	if def.Scoring.Mode == gate.ModeSecurity {
		return s.scoreSecurity(def, ev), detail
	}
	score, actual := s.scoreCoverage(def, ev)
	detail.ActualCoverage = actual
	return score, detail
}

// scoreSecurity starts from the base score, subtracts a capped penalty
// per violation, and awards the clean bonus when nothing was found.
func (s *Scorer) scoreSecurity(def *gate.Definition, ev Evidence) float64 {
	k := def.Scoring
	base := knob(k.BaseScore, knob(s.Defaults.BaseScore, 100))
	if ev.Violations == 0 {
		bonus := knob(k.BonusForClean, s.Defaults.BonusForClean)
		return round2(math.Min(base+bonus, 100))
	}
	perViolation := knob(k.ViolationPenalty, knob(s.Defaults.ViolationPenalty, 20))
	maxPenalty := knob(k.MaxPenalty, knob(s.Defaults.MaxPenalty, 60))
	penalty := math.Min(float64(ev.Violations)*perViolation, maxPenalty)
	return round2(math.Max(0, base-penalty))
}

// scoreCoverage converts file credits into a coverage percentage, adds
// the expected-coverage bonus, then applies the threshold multipliers.
// Returns the final score and the raw coverage percentage.
func (s *Scorer) scoreCoverage(def *gate.Definition, ev Evidence) (float64, float64) {
	if ev.RelevantFiles == 0 || ev.MaxPatternWeight <= 0 {
		return 0, 0
	}
	raw := ev.FileCredits / (float64(ev.RelevantFiles) * ev.MaxPatternWeight)
	raw = math.Max(0, math.Min(raw, 1))
	basePercent := raw * 100

	score := basePercent
	if expected := def.ExpectedCoverage.Percent / 100; expected > 0 && raw > expected {
		excess := (raw - expected) / expected
		perExcess := knob(s.Defaults.ExpectedBonusPerExcess, 0.1)
		cap := knob(s.Defaults.ExpectedBonusCap, 5)
		score += math.Min(perExcess*excess, cap)
	}

	k := def.Scoring
	switch {
	case raw >= knob(k.BonusThreshold, 0.8):
		score *= knob(k.BonusMultiplier, 1.1)
	case raw <= knob(k.PenaltyThreshold, 0.3):
		score *= knob(k.PenaltyMultiplier, 0.8)
	}
	return round2(math.Max(0, math.Min(score, 100))), round2(basePercent)
}

// Classify maps a score to a status. Security gates are two-state: a
// clean gate always passes, a violated one passes only above the
// security threshold. Coverage gates get the three-state ladder.
func (s *Scorer) Classify(def *gate.Definition, score float64, violations int) gate.Status {
	if def.Scoring.Mode == gate.ModeSecurity {
		if violations == 0 {
			return gate.StatusPass
		}
		if score >= knob(s.Status.SecurityPassThreshold, 95) {
			return gate.StatusPass
		}
		return gate.StatusFail
	}
	switch {
	case score >= knob(s.Status.PassThreshold, 80):
		return gate.StatusPass
	case score >= knob(s.Status.WarningThreshold, 60):
		return gate.StatusWarning
	default:
		return gate.StatusFail
	}
}

// Overall is the weight-normalized mean over applicable gates.
// Non-applicable results contribute to neither sum.
func Overall(results []gate.Result) float64 {
	var sum, weight float64
	for i := range results {
		r := &results[i]
		if !r.Applicable() {
			continue
		}
		sum += r.Score * r.Scoring.Weight
		weight += r.Scoring.Weight
	}
	if weight == 0 {
		return 0
	}
	return round2(sum / weight)
}

func knob(v, fallback float64) float64 {
	if v == 0 {
		return fallback
	}
	return v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
