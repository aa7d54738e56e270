// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: MIT

package catalog

import (
	"fmt"
	"log/slog"
	"os"
	"regexp"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/gatewarden/gatewarden/internal/gate"
	"github.com/gatewarden/gatewarden/internal/regexcache"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// gateChecks is the validated subset of a gate definition. Everything
// else is optional and falls back to catalog-global defaults.
type gateChecks struct {
	Name        string  `validate:"required"`
	DisplayName string  `validate:"required"`
	Weight      float64 `validate:"gt=0"`
	Priority    string  `validate:"omitempty,oneof=critical high medium low"`
}

var topLevelFields = []string{"version", "metadata", "global", "gates"}

var gateFields = []string{
	"name", "display_name", "description", "category", "priority", "weight",
	"patterns", "scoring", "expected_coverage", "applicability",
	"mandatory_evidence_collectors",
}

// Load reads and validates a catalog file. The cache, when non-nil, is
// warmed with every pattern that survives validation; patterns that fail
// to compile are excluded from the active set with a warning, never a
// load failure.
func Load(path string, cache *regexcache.Cache, log *slog.Logger) (*Library, error) {
	if log == nil {
		log = slog.Default()
	}
	lib := &Library{path: path, cache: cache, log: log}
	if err := lib.Reload(); err != nil {
		return nil, err
	}
	return lib, nil
}

// Reload re-reads the backing file and swaps the document atomically.
// A parse failure leaves the previous document in place.
func (l *Library) Reload() error {
	if l.path == "" {
		return l.reloadEmbedded()
	}
	data, err := os.ReadFile(l.path) //nolint:gosec // operator-provided catalog path
	if err != nil {
		return gate.E(gate.KindPatternLibraryLoad, "catalog.read", err).WithPath(l.path)
	}
	doc, err := Parse(data, l.cache, l.log)
	if err != nil {
		return err
	}
	l.mu.Lock()
	l.doc = doc
	l.mu.Unlock()
	l.log.Info("catalog loaded",
		"path", l.path,
		"version", doc.Version,
		"gates", len(doc.Gates),
		"dropped_patterns", doc.DroppedPatterns)
	return nil
}

// Parse decodes, validates, and normalizes one catalog document.
func Parse(data []byte, cache *regexcache.Cache, log *slog.Logger) (*Document, error) {
	if log == nil {
		log = slog.Default()
	}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, gate.E(gate.KindPatternLibraryLoad, "catalog.parse", err)
	}
	if len(root.Content) == 0 {
		return nil, gate.Ef(gate.KindPatternLibraryLoad, "catalog.parse", "empty catalog document")
	}
	docNode := root.Content[0]
	warnUnknown(log, docNode, "catalog", topLevelFields)

	var raw struct {
		Version  string    `yaml:"version"`
		Metadata Metadata  `yaml:"metadata"`
		Global   Global    `yaml:"global"`
		Gates    yaml.Node `yaml:"gates"`
	}
	if err := docNode.Decode(&raw); err != nil {
		return nil, gate.E(gate.KindPatternLibraryLoad, "catalog.decode", err)
	}
	if raw.Version == "" {
		return nil, gate.Ef(gate.KindPatternLibraryLoad, "catalog.decode", "missing catalog version")
	}
	if raw.Gates.Kind != yaml.MappingNode {
		return nil, gate.Ef(gate.KindPatternLibraryLoad, "catalog.decode", "gates must be a mapping")
	}

	doc := &Document{
		Version:  raw.Version,
		Metadata: raw.Metadata,
		Global:   raw.Global,
		byName:   make(map[string]int),
	}
	applyGlobalDefaults(&doc.Global)

	parsedPatterns := 0
	// Mapping node content alternates key, value; iteration preserves
	// author order.
	for i := 0; i+1 < len(raw.Gates.Content); i += 2 {
		nameNode, valueNode := raw.Gates.Content[i], raw.Gates.Content[i+1]

		var def gate.Definition
		if err := valueNode.Decode(&def); err != nil {
			log.Warn("skipping malformed gate", "gate", nameNode.Value, "error", err)
			continue
		}
		def.Name = nameNode.Value
		warnUnknown(log, valueNode, "gate "+def.Name, gateFields)

		if err := validate.Struct(gateChecks{
			Name:        def.Name,
			DisplayName: def.DisplayName,
			Weight:      def.Weight,
			Priority:    string(def.Priority),
		}); err != nil {
			log.Warn("skipping invalid gate", "gate", def.Name, "error", err)
			continue
		}

		applyScoringDefaults(&def.Scoring, doc.Global.Scoring)
		parsedPatterns += def.PatternCount()
		doc.DroppedPatterns += compileCheck(&def, cache, log)
		if def.PatternCount() == 0 && len(def.EvidenceCollectors) == 0 {
			log.Warn("gate has no usable patterns or collectors", "gate", def.Name)
		}

		if _, dup := doc.byName[def.Name]; dup {
			log.Warn("duplicate gate name, keeping first", "gate", def.Name)
			continue
		}
		doc.byName[def.Name] = len(doc.Gates)
		doc.Gates = append(doc.Gates, def)
	}

	if len(doc.Gates) == 0 {
		return nil, gate.Ef(gate.KindPatternLibraryLoad, "catalog.validate", "no valid gates in catalog")
	}
	if doc.Metadata.TotalGates != 0 && doc.Metadata.TotalGates != len(doc.Gates) {
		log.Warn("catalog metadata gate count mismatch",
			"declared", doc.Metadata.TotalGates, "actual", len(doc.Gates))
	}
	if doc.Metadata.TotalPatterns != 0 && doc.Metadata.TotalPatterns != parsedPatterns {
		log.Warn("catalog metadata pattern count mismatch",
			"declared", doc.Metadata.TotalPatterns, "actual", parsedPatterns)
	}
	return doc, nil
}

// compileCheck drops any pattern that fails flag parsing or regex
// compilation, returning the number dropped. Surviving patterns are
// warmed into the cache so the scan hot path never compiles.
func compileCheck(def *gate.Definition, cache *regexcache.Cache, log *slog.Logger) int {
	dropped := 0
	for lang, specs := range def.Patterns {
		kept := specs[:0]
		for _, spec := range specs {
			if spec.Pattern == "" {
				dropped++
				log.Warn("excluding empty pattern", "gate", def.Name, "language", lang)
				continue
			}
			if spec.Weight <= 0 {
				spec.Weight = 1.0
			}
			flags, err := regexcache.ParseFlags(spec.Flags)
			if err != nil {
				dropped++
				log.Warn("excluding pattern with bad flags",
					"gate", def.Name, "language", lang, "pattern", spec.Pattern, "error", err)
				continue
			}
			if cache != nil {
				_, err = cache.GetTagged(spec.Pattern, flags, "catalog")
			} else {
				_, err = regexp.Compile(spec.Pattern)
			}
			if err != nil {
				dropped++
				log.Warn("excluding pattern that does not compile",
					"gate", def.Name, "language", lang, "pattern", spec.Pattern, "error", err)
				continue
			}
			kept = append(kept, spec)
		}
		if len(kept) == 0 {
			delete(def.Patterns, lang)
		} else {
			def.Patterns[lang] = kept
		}
	}
	return dropped
}

func applyScoringDefaults(k *gate.ScoringKnobs, d ScoringDefaults) {
	if k.Mode == "" {
		k.Mode = gate.ModeCoverage
	}
	if k.BaseScore == 0 {
		k.BaseScore = d.BaseScore
	}
	if k.ViolationPenalty == 0 {
		k.ViolationPenalty = d.ViolationPenalty
	}
	if k.MaxPenalty == 0 {
		k.MaxPenalty = d.MaxPenalty
	}
	if k.BonusForClean == 0 {
		k.BonusForClean = d.BonusForClean
	}
	if k.BonusThreshold == 0 {
		k.BonusThreshold = d.BonusThreshold
	}
	if k.BonusMultiplier == 0 {
		k.BonusMultiplier = d.BonusMultiplier
	}
	if k.PenaltyThreshold == 0 {
		k.PenaltyThreshold = d.PenaltyThreshold
	}
	if k.PenaltyMultiplier == 0 {
		k.PenaltyMultiplier = d.PenaltyMultiplier
	}
}

func applyGlobalDefaults(g *Global) {
	s := &g.Scoring
	if s.BaseScore == 0 {
		s.BaseScore = 100
	}
	if s.ViolationPenalty == 0 {
		s.ViolationPenalty = 20
	}
	if s.MaxPenalty == 0 {
		s.MaxPenalty = 60
	}
	if s.BonusForClean == 0 {
		s.BonusForClean = 5
	}
	if s.BonusThreshold == 0 {
		s.BonusThreshold = 0.8
	}
	if s.BonusMultiplier == 0 {
		s.BonusMultiplier = 1.1
	}
	if s.PenaltyThreshold == 0 {
		s.PenaltyThreshold = 0.3
	}
	if s.PenaltyMultiplier == 0 {
		s.PenaltyMultiplier = 0.8
	}
	if s.ExpectedBonusPerExcess == 0 {
		s.ExpectedBonusPerExcess = 0.1
	}
	if s.ExpectedBonusCap == 0 {
		s.ExpectedBonusCap = 5
	}

	st := &g.StatusDetermination
	if st.PassThreshold == 0 {
		st.PassThreshold = 80
	}
	if st.WarningThreshold == 0 {
		st.WarningThreshold = 60
	}
	if st.SecurityPassThreshold == 0 {
		st.SecurityPassThreshold = 95
	}

	t := &g.TechnologyDetection
	if t.PrimaryThresholdPercent == 0 {
		t.PrimaryThresholdPercent = 20
	}
	if t.SecondaryThresholdPercent == 0 {
		t.SecondaryThresholdPercent = 10
	}
	t.Aliases = mergeAliases(t.Aliases)

	f := &g.FileProcessing
	if f.SmallFileBytes == 0 {
		f.SmallFileBytes = 64 << 10
	}
	if f.MmapFileBytes == 0 {
		f.MmapFileBytes = 4 << 20
	}
	if f.MaxFileBytes == 0 {
		f.MaxFileBytes = 20 << 20
	}
	if f.OverlapBytes == 0 {
		f.OverlapBytes = 4 << 10
	}
	if f.MaxMatchesPerGateFile == 0 {
		f.MaxMatchesPerGateFile = 100
	}
	if f.MaxParallelFiles == 0 {
		f.MaxParallelFiles = 4
	}

	if g.UI.Title == "" {
		g.UI.Title = "Hard Gate Assessment"
	}
	if g.UI.StatusColors == nil {
		g.UI.StatusColors = map[string]string{
			"PASS":           "#2e7d32",
			"WARNING":        "#f9a825",
			"FAIL":           "#c62828",
			"NOT_APPLICABLE": "#757575",
		}
	}
}

func warnUnknown(log *slog.Logger, node *yaml.Node, context string, known []string) {
	if node.Kind != yaml.MappingNode {
		return
	}
	set := make(map[string]bool, len(known))
	for _, k := range known {
		set[k] = true
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if k := node.Content[i].Value; !set[k] {
			log.Warn(fmt.Sprintf("ignoring unknown field in %s", context), "field", k)
		}
	}
}
