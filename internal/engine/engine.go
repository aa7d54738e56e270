// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: MIT

// Package engine evaluates the gate catalog against an inventoried
// working tree. One evaluation decides applicability per gate, lets
// augmenting collectors contribute extra patterns, drives a single
// shared scanner pass over the repository, scores the evidence,
// checks mandatory external sources, and folds everything into a
// gate.ScanResult.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gatewarden/gatewarden/internal/applicability"
	"github.com/gatewarden/gatewarden/internal/catalog"
	"github.com/gatewarden/gatewarden/internal/collector"
	"github.com/gatewarden/gatewarden/internal/gate"
	"github.com/gatewarden/gatewarden/internal/recommend"
	"github.com/gatewarden/gatewarden/internal/regexcache"
	"github.com/gatewarden/gatewarden/internal/scanner"
	"github.com/gatewarden/gatewarden/internal/scoring"
)

const (
	// SourceStatic labels evidence produced by the catalog's own
	// patterns, as opposed to a registered collector.
	SourceStatic = "static_patterns"

	// DefaultMatchesPerGate bounds how many matches a gate result
	// retains for reporting.
	DefaultMatchesPerGate = 50

	// collectorTimeout bounds a single collector call so one slow
	// external API cannot stall the evaluation.
	collectorTimeout = 30 * time.Second

	// maxScanIssues bounds the non-fatal error list on a result.
	maxScanIssues = 20
)

// Options tunes one engine instance.
type Options struct {
	// Limits overrides the catalog's file-processing bounds field by
	// field; zero fields keep the catalog values.
	Limits scanner.Limits

	// Collectors filters which registered collectors may run, keyed by
	// collector name. A nil map enables all of them; a non-nil map
	// enables only names mapped to true.
	Collectors map[string]bool

	// MatchesPerGate caps retained matches per gate result. Zero means
	// DefaultMatchesPerGate, negative keeps everything.
	MatchesPerGate int

	Log *slog.Logger
}

// Engine evaluates gates for one catalog snapshot at a time. It is safe
// for concurrent use; each Evaluate call pins the catalog document it
// started with.
type Engine struct {
	lib   *catalog.Library
	cache *regexcache.Cache
	opts  Options
	log   *slog.Logger
}

// New builds an engine around a loaded catalog and a shared compiled-
// pattern cache. The cache should be the same instance the catalog was
// loaded with so static patterns are already warm.
func New(lib *catalog.Library, cache *regexcache.Cache, opts Options) *Engine {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	if cache == nil {
		cache = regexcache.New(regexcache.DefaultMaxEntries, regexcache.DefaultMaxBytes)
	}
	return &Engine{lib: lib, cache: cache, opts: opts, log: log}
}

// Progress receives file-level scan progress (files done, total).
type Progress func(done, total int)

// gateState accumulates one applicable gate's evidence across phases.
type gateState struct {
	def       gate.Definition
	static    []gate.PatternSpec
	augmented []taggedSpec

	// weights maps pattern source to its strongest weight for credit
	// folding; maxWeight is the gate-wide ceiling.
	weights   map[string]float64
	maxWeight float64
	compiled  int

	relevant   map[string]bool
	sources    []gate.SourceReport
	confidence gate.Confidence
}

type taggedSpec struct {
	spec gate.PatternSpec
	tag  string
}

func (st *gateState) mandatory(name string) bool {
	for _, n := range st.def.EvidenceCollectors {
		if n == name {
			return true
		}
	}
	return false
}

// Evaluate runs the full gate evaluation for one inventoried checkout.
// A cancelled or expired context yields a partial result rather than an
// error: gates are scored on whatever the scanner reached, and the
// result is marked incomplete.
func (e *Engine) Evaluate(ctx context.Context, scanID string, meta *gate.RepoMetadata, files []gate.FileEntry, progress Progress) (*gate.ScanResult, error) {
	if meta == nil {
		return nil, gate.Ef(gate.KindInvalidRequest, "engine.Evaluate", "missing repository metadata")
	}

	doc := e.lib.Document()
	scorer := scoring.New(doc.Global)
	technologies := doc.PrimaryTechnologies(meta)
	categories := applicability.Detect(meta, files)

	now := time.Now().UTC()
	out := &gate.ScanResult{
		ScanID:    scanID,
		Metadata:  *meta,
		CreatedAt: now,
		UpdatedAt: now,
	}

	e.log.Info("evaluating gates",
		"scan_id", scanID,
		"gates", len(doc.Gates),
		"files", len(files),
		"technologies", technologies,
		"categories", categories.List())

	states := e.prepare(doc, technologies, categories, files, out)

	if len(files) == 0 {
		// Nothing to scan: applicable gates fail outright on zero
		// evidence instead of pretending a clean pass.
		for _, st := range states {
			r := e.baseResult(st)
			r.Status = gate.StatusFail
			r.Reason = "repository has no scannable files"
			r.Recommendation = recommend.DefaultFor(&st.def, r.Status, 0)
			r.Sources = st.sources
			r.Confidence = st.confidence
			out.Gates = append(out.Gates, *r)
		}
		out.OverallScore = 0
		return finalize(out), nil
	}

	e.runAugment(ctx, scanID, meta, files, states)
	patterns := e.compilePatterns(states)

	scanRes, err := scanner.Scan(ctx, meta.WorkTree, files, patterns, scanner.Options{
		Limits:   e.limits(doc.Global.FileProcessing),
		Progress: progress,
		Log:      e.log,
	})
	if err != nil {
		return nil, err
	}

	results := make([]*gate.Result, len(states))
	for i, st := range states {
		results[i] = e.scoreGate(scorer, st, scanRes)
	}

	e.runVerify(ctx, scanID, meta, files, states, results)
	e.runRecommend(ctx, scanID, meta, files, states, results)

	for i, st := range states {
		r := results[i]
		r.Sources = st.sources
		r.Confidence = st.confidence
		if scanRes.Incomplete {
			r.Partial = true
		}
		out.Gates = append(out.Gates, *r)
	}

	out.Incomplete = scanRes.Incomplete
	out.Errors = foldScanIssues(scanRes)
	out.OverallScore = scoring.Overall(out.Gates)

	e.log.Info("evaluation complete",
		"scan_id", scanID,
		"overall", out.OverallScore,
		"applicable", len(out.Gates),
		"not_applicable", len(out.NotApplicable),
		"files_scanned", scanRes.FilesScanned,
		"incomplete", scanRes.Incomplete)

	return finalize(out), nil
}

// prepare decides applicability and selects static patterns per gate.
// Gates that do not apply, or that have no patterns for the detected
// stack, land on the result's NotApplicable list immediately.
func (e *Engine) prepare(doc *catalog.Document, technologies []string, categories applicability.Set, files []gate.FileEntry, out *gate.ScanResult) []*gateState {
	canon := canonicalizer(doc.Global.TechnologyDetection.Aliases)
	maxBytes := e.limits(doc.Global.FileProcessing).MaxFileBytes

	var states []*gateState
	for _, def := range doc.Gates {
		applies, reason := applicability.Decide(&def, categories)
		if !applies {
			out.NotApplicable = append(out.NotApplicable, notApplicableResult(def, reason))
			continue
		}

		specs := doc.PatternsFor(def, technologies)
		if len(specs) == 0 {
			out.NotApplicable = append(out.NotApplicable, notApplicableResult(def, "no patterns for the detected technology stack"))
			continue
		}

		matched := doc.MatchedLanguages(def, technologies)
		states = append(states, &gateState{
			def:        def,
			static:     specs,
			weights:    make(map[string]float64, len(specs)),
			relevant:   relevantFiles(def, matched, files, canon, maxBytes),
			confidence: gate.ConfidenceHigh,
			sources: []gate.SourceReport{{
				Collector:  SourceStatic,
				Enabled:    true,
				Succeeded:  true,
				Confidence: gate.ConfidenceHigh,
			}},
		})
	}
	return states
}

// runAugment gives PhaseAugment collectors a chance to add patterns
// before the scan. Collector failures are recorded on the sources table
// and never stop the evaluation.
func (e *Engine) runAugment(ctx context.Context, scanID string, meta *gate.RepoMetadata, files []gate.FileEntry, states []*gateState) {
	augmenters := collector.ByPhase(collector.PhaseAugment)
	if len(augmenters) == 0 {
		return
	}
	for _, st := range states {
		for _, c := range augmenters {
			t := &collector.Target{ScanID: scanID, Meta: meta, Files: files, Def: &st.def, Log: e.log}
			f, row, ran := e.collect(ctx, c, st, t)
			if row != nil {
				st.sources = append(st.sources, *row)
			}
			if !ran || f == nil {
				continue
			}
			for _, spec := range f.Patterns {
				st.augmented = append(st.augmented, taggedSpec{spec: spec, tag: c.Name()})
			}
			if len(f.Patterns) > 0 {
				st.confidence = gate.MinConfidence(st.confidence, f.Confidence)
			}
		}
	}
}

// collect runs one collector with a bounded context and translates the
// outcome into an optional sources row. Rows are emitted for every
// collector that ran and for mandatory collectors that were skipped;
// optional collectors that were skipped stay silent.
func (e *Engine) collect(ctx context.Context, c collector.Collector, st *gateState, t *collector.Target) (*collector.Finding, *gate.SourceReport, bool) {
	name := c.Name()
	mandatory := st.mandatory(name)

	skipped := func() (*collector.Finding, *gate.SourceReport, bool) {
		if !mandatory {
			return nil, nil, false
		}
		return nil, &gate.SourceReport{Collector: name, Mandatory: true}, false
	}

	if !e.collectorEnabled(name) {
		return skipped()
	}
	if !c.Enabled(t) {
		return skipped()
	}

	cctx, cancel := context.WithTimeout(ctx, collectorTimeout)
	defer cancel()

	f, err := c.Collect(cctx, t)
	row := gate.SourceReport{Collector: name, Enabled: true, Mandatory: mandatory}
	if err != nil {
		row.Error = err.Error()
		e.log.Warn("collector failed",
			"collector", name,
			"gate", st.def.Name,
			"phase", c.Phase().String(),
			"error", err)
		return nil, &row, true
	}
	row.Succeeded = true
	if f != nil {
		row.Confidence = f.Confidence
	}
	return f, &row, true
}

func (e *Engine) collectorEnabled(name string) bool {
	if e.opts.Collectors == nil {
		return true
	}
	return e.opts.Collectors[name]
}

// compilePatterns turns every gate's static and augmented specs into
// scanner patterns through the shared cache. Uncompilable entries are
// dropped with a warning; they must not sink the whole gate.
func (e *Engine) compilePatterns(states []*gateState) []scanner.Pattern {
	var out []scanner.Pattern
	for _, st := range states {
		add := func(spec gate.PatternSpec, tag string) {
			flags, err := regexcache.ParseFlags(spec.Flags)
			if err != nil {
				e.log.Warn("dropping pattern with unknown flags", "gate", st.def.Name, "flags", spec.Flags)
				return
			}
			re, err := e.cache.GetTagged(spec.Pattern, flags, tag)
			if err != nil {
				e.log.Warn("dropping uncompilable pattern", "gate", st.def.Name, "source", tag, "error", err)
				return
			}
			w := spec.Weight
			if w <= 0 || w > 1 {
				w = 1
			}
			if w > st.weights[spec.Pattern] {
				st.weights[spec.Pattern] = w
			}
			if w > st.maxWeight {
				st.maxWeight = w
			}
			st.compiled++
			out = append(out, scanner.Pattern{Gate: st.def.Name, Source: spec.Pattern, Weight: w, Re: re, Tag: tag})
		}
		for _, spec := range st.static {
			add(spec, SourceStatic)
		}
		for _, ts := range st.augmented {
			add(ts.spec, ts.tag)
		}
	}
	return out
}

// scoreGate folds the scan output for one gate into a scored result.
func (e *Engine) scoreGate(scorer *scoring.Scorer, st *gateState, scanRes *scanner.Result) *gate.Result {
	matches := scanRes.ByGate[st.def.Name]
	fold := foldEvidence(matches, st.relevant, st.weights)

	ev := scoring.Evidence{
		RelevantFiles:    len(st.relevant),
		FilesWithMatches: fold.filesWithMatches,
		FileCredits:      fold.credits,
		MaxPatternWeight: st.maxWeight,
		Violations:       len(matches),
	}
	score, detail := scorer.ScoreGate(&st.def, ev)
	status := scorer.Classify(&st.def, score, ev.Violations)

	r := e.baseResult(st)
	r.Status = status
	r.Score = score
	r.Scoring = detail
	r.Counts = gate.Counts{
		PatternsUsed:     st.compiled,
		MatchesFound:     len(matches),
		RelevantFiles:    len(st.relevant),
		FilesWithMatches: fold.filesWithMatches,
	}
	r.Matches, r.MatchesCapped = capMatches(matches, e.matchCap())
	if scanRes.Capped[st.def.Name] {
		r.MatchesCapped = true
	}
	return r
}

// runVerify checks post-scan external sources. A verifier runs for a
// gate only when the gate lists it among its mandatory evidence
// collectors, and its verdict binds: an explicit negative fails the
// gate, while an unavailable or inconclusive source demotes a coverage
// PASS to WARNING.
func (e *Engine) runVerify(ctx context.Context, scanID string, meta *gate.RepoMetadata, files []gate.FileEntry, states []*gateState, results []*gate.Result) {
	verifiers := collector.ByPhase(collector.PhaseVerify)
	if len(verifiers) == 0 {
		return
	}
	for i, st := range states {
		r := results[i]
		for _, c := range verifiers {
			if !st.mandatory(c.Name()) {
				continue
			}
			t := &collector.Target{ScanID: scanID, Meta: meta, Files: files, Def: &st.def, Result: r, Log: e.log}
			f, row, ran := e.collect(ctx, c, st, t)
			if row != nil {
				st.sources = append(st.sources, *row)
			}
			if !ran {
				continue
			}
			switch {
			case f == nil:
				e.demotePass(st, r, fmt.Sprintf("%s verification unavailable", c.Name()))
			case f.Verified == nil:
				e.demotePass(st, r, fmt.Sprintf("%s verification inconclusive", c.Name()))
			case !*f.Verified:
				r.Status = gate.StatusFail
				r.Reason = verdictReason(c.Name(), f)
				st.confidence = gate.MinConfidence(st.confidence, f.Confidence)
			}
		}
	}
}

// demotePass downgrades a coverage PASS to WARNING when a mandatory
// external source could not confirm it. Security verdicts stand on the
// pattern evidence alone.
func (e *Engine) demotePass(st *gateState, r *gate.Result, reason string) {
	st.confidence = gate.ConfidenceLow
	if r.Status != gate.StatusPass || st.def.Scoring.Mode == gate.ModeSecurity {
		return
	}
	r.Status = gate.StatusWarning
	r.Reason = reason
}

// runRecommend fills recommendation text for gates that need attention:
// a PhaseRecommend collector's prose when one produced any, otherwise
// the built-in fallback.
func (e *Engine) runRecommend(ctx context.Context, scanID string, meta *gate.RepoMetadata, files []gate.FileEntry, states []*gateState, results []*gate.Result) {
	recommenders := collector.ByPhase(collector.PhaseRecommend)
	for i, st := range states {
		r := results[i]
		for _, c := range recommenders {
			if r.Recommendation != "" {
				break
			}
			t := &collector.Target{ScanID: scanID, Meta: meta, Files: files, Def: &st.def, Result: r, Log: e.log}
			f, row, ran := e.collect(ctx, c, st, t)
			if row != nil {
				st.sources = append(st.sources, *row)
			}
			if ran && f != nil && f.Recommendation != "" {
				r.Recommendation = f.Recommendation
				st.confidence = gate.MinConfidence(st.confidence, f.Confidence)
			}
		}
		if r.Recommendation == "" {
			r.Recommendation = recommend.DefaultFor(&st.def, r.Status, r.Scoring.Violations)
		}
	}
}

func (e *Engine) baseResult(st *gateState) *gate.Result {
	return &gate.Result{
		Gate:        st.def.Name,
		DisplayName: st.def.DisplayName,
		Category:    st.def.Category,
		Priority:    st.def.Priority,
		Scoring:     gate.ScoreDetail{Weight: st.def.Weight},
		Counts:      gate.Counts{RelevantFiles: len(st.relevant)},
	}
}

func (e *Engine) matchCap() int {
	switch {
	case e.opts.MatchesPerGate > 0:
		return e.opts.MatchesPerGate
	case e.opts.MatchesPerGate < 0:
		return 0
	default:
		return DefaultMatchesPerGate
	}
}

// limits merges catalog file-processing bounds with per-engine
// overrides.
func (e *Engine) limits(fc catalog.FileConfig) scanner.Limits {
	l := scanner.Limits{
		SmallFileBytes:        fc.SmallFileBytes,
		MmapFileBytes:         fc.MmapFileBytes,
		MaxFileBytes:          fc.MaxFileBytes,
		OverlapBytes:          fc.OverlapBytes,
		MaxMatchesPerGateFile: fc.MaxMatchesPerGateFile,
		Workers:               fc.MaxParallelFiles,
	}
	o := e.opts.Limits
	if o.SmallFileBytes > 0 {
		l.SmallFileBytes = o.SmallFileBytes
	}
	if o.MmapFileBytes > 0 {
		l.MmapFileBytes = o.MmapFileBytes
	}
	if o.MaxFileBytes > 0 {
		l.MaxFileBytes = o.MaxFileBytes
	}
	if o.OverlapBytes > 0 {
		l.OverlapBytes = o.OverlapBytes
	}
	if o.MaxMatchesPerGateFile > 0 {
		l.MaxMatchesPerGateFile = o.MaxMatchesPerGateFile
	}
	if o.MaxContextBytes > 0 {
		l.MaxContextBytes = o.MaxContextBytes
	}
	if o.Workers > 0 {
		l.Workers = o.Workers
	}
	return l
}

func notApplicableResult(def gate.Definition, reason string) gate.Result {
	return gate.Result{
		Gate:        def.Name,
		DisplayName: def.DisplayName,
		Category:    def.Category,
		Priority:    def.Priority,
		Status:      gate.StatusNotApplicable,
		Reason:      reason,
		Scoring:     gate.ScoreDetail{Weight: def.Weight},
	}
}

func verdictReason(name string, f *collector.Finding) string {
	if f.Detail != "" {
		return fmt.Sprintf("%s verification failed: %s", name, f.Detail)
	}
	return fmt.Sprintf("%s verification failed", name)
}

func finalize(out *gate.ScanResult) *gate.ScanResult {
	done := time.Now().UTC()
	out.UpdatedAt = done
	out.CompletedAt = done
	return out
}
