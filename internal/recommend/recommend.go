// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: MIT

// Package recommend produces the per-gate recommendation text shown in
// reports. Collector-supplied prose (usually model output) is normalized
// to plain single-paragraph text; gates without a collector contribution
// fall back to deterministic defaults keyed on status.
package recommend

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/gatewarden/gatewarden/internal/gate"
)

// DefaultMaxLen bounds normalized recommendation text, in runes.
const DefaultMaxLen = 600

var (
	fenceRe  = regexp.MustCompile("(?s)```[a-zA-Z0-9]*\n?.*?```")
	headerRe = regexp.MustCompile(`(?m)^\s{0,3}#{1,6}\s+`)
	bulletRe = regexp.MustCompile(`(?m)^\s*(?:[-*•]|\d+[.)])\s+`)
	// Underscores stay: stripping them would mangle snake_case
	// identifiers quoted in the text.
	emphasisRe = regexp.MustCompile("(\\*\\*|__|\\*|`)")
	spaceRe    = regexp.MustCompile(`\s+`)
)

// Normalize flattens model-produced markdown into one plain paragraph
// bounded to maxLen runes. Placeholder answers normalize to the empty
// string so callers fall back to a default.
func Normalize(text string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = DefaultMaxLen
	}
	s := fenceRe.ReplaceAllString(text, " ")
	s = headerRe.ReplaceAllString(s, "")
	s = bulletRe.ReplaceAllString(s, "")
	s = emphasisRe.ReplaceAllString(s, "")
	s = spaceRe.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)
	if isPlaceholder(s) {
		return ""
	}
	return truncate(s, maxLen)
}

func isPlaceholder(s string) bool {
	switch strings.ToLower(s) {
	case "", "n/a", "na", "none", "todo", "tbd", "unknown":
		return true
	}
	return strings.HasPrefix(s, "<") && strings.HasSuffix(s, ">")
}

// truncate cuts at a word boundary when one lands in the second half of
// the budget, then appends an ellipsis.
func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	cut := string(r[:maxLen])
	if i := strings.LastIndexByte(cut, ' '); i > maxLen/2 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " ,.;:") + "..."
}

// DefaultFor returns the fallback recommendation for a gate result.
// Passing and skipped gates need no action and get none.
func DefaultFor(def *gate.Definition, status gate.Status, violations int) string {
	if status == gate.StatusPass || status == gate.StatusNotApplicable {
		return ""
	}
	name := def.DisplayName
	if name == "" {
		name = def.Name
	}
	if def.Scoring.Mode == gate.ModeSecurity && violations > 0 {
		return fmt.Sprintf("%s found %d violation(s). Remove or redact each flagged occurrence; this control tolerates none.", name, violations)
	}
	if status == gate.StatusWarning {
		return fmt.Sprintf("Coverage for %s is below target. Apply the practice consistently across the remaining relevant files.", name)
	}
	return fmt.Sprintf("Little or no evidence of %s. Introduce it in the core code paths and re-scan.", name)
}
