// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: MIT

package engine

import (
	"fmt"

	"github.com/gatewarden/gatewarden/internal/catalog"
	"github.com/gatewarden/gatewarden/internal/gate"
	"github.com/gatewarden/gatewarden/internal/scanner"
)

// canonicalizer maps raw inventory language tags to catalog bucket
// names through the alias table, memoizing per evaluation.
func canonicalizer(aliases map[string][]string) func(string) string {
	memo := make(map[string]string)
	return func(lang string) string {
		if lang == "" {
			return ""
		}
		if c, ok := memo[lang]; ok {
			return c
		}
		c := lang
		if out := catalog.ResolveLanguages([]string{lang}, aliases); len(out) == 1 {
			c = out[0]
		}
		memo[lang] = c
		return c
	}
}

// relevantFiles picks one gate's scoring denominator: files whose
// canonical language matches a selected pattern bucket, or every
// scannable file when the gate carries only all-languages patterns.
// Binary and oversize files can hold no evidence, so they never count.
func relevantFiles(def gate.Definition, matchedLangs []string, files []gate.FileEntry, canon func(string) string, maxBytes int64) map[string]bool {
	langs := make(map[string]bool, len(matchedLangs))
	for _, l := range matchedLangs {
		langs[l] = true
	}
	allFiles := len(matchedLangs) == 0 && len(def.Patterns[catalog.AllLanguages]) > 0

	out := make(map[string]bool)
	for _, f := range files {
		if f.Binary || (maxBytes > 0 && f.Size > maxBytes) {
			continue
		}
		if allFiles || langs[canon(f.Language)] {
			out[f.Path] = true
		}
	}
	return out
}

// evidenceFold is the per-gate aggregate the scorer consumes.
type evidenceFold struct {
	// credits sums each relevant file's strongest matched weight.
	credits float64
	// filesWithMatches counts distinct matched files, relevant or not,
	// for display.
	filesWithMatches int
}

// foldEvidence reduces a gate's matches to scoring inputs. A file earns
// credit once, at the weight of its strongest matched pattern; matches
// outside the relevant set remain visible evidence but earn nothing.
func foldEvidence(matches []gate.Match, relevant map[string]bool, weights map[string]float64) evidenceFold {
	perFile := make(map[string]float64)
	seen := make(map[string]bool)
	for _, m := range matches {
		seen[m.File] = true
		if !relevant[m.File] {
			continue
		}
		if w := weights[m.Pattern]; w > perFile[m.File] {
			perFile[m.File] = w
		}
	}

	var fold evidenceFold
	fold.filesWithMatches = len(seen)
	for _, w := range perFile {
		fold.credits += w
	}
	return fold
}

// capMatches bounds the retained match list. Matches arrive sorted by
// file then line, so truncation keeps a stable prefix. A zero limit
// keeps everything.
func capMatches(matches []gate.Match, limit int) ([]gate.Match, bool) {
	if len(matches) == 0 {
		return nil, false
	}
	if limit <= 0 || len(matches) <= limit {
		return matches, false
	}
	return matches[:limit], true
}

// foldScanIssues flattens the scanner's non-fatal problems into the
// result's error list, bounded so a permission-broken tree cannot bloat
// the stored result.
func foldScanIssues(sr *scanner.Result) []string {
	issues := make([]string, 0, len(sr.Errors)+len(sr.TooLarge))
	for _, fe := range sr.Errors {
		issues = append(issues, fmt.Sprintf("read %s: %v", fe.Path, fe.Err))
	}
	for _, p := range sr.TooLarge {
		issues = append(issues, "skipped oversize file: "+p)
	}
	if len(issues) > maxScanIssues {
		extra := len(issues) - maxScanIssues
		issues = append(issues[:maxScanIssues], fmt.Sprintf("(%d more suppressed)", extra))
	}
	if len(issues) == 0 {
		return nil
	}
	return issues
}
