// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: MIT

package report

import (
	"fmt"
	"html/template"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/gatewarden/gatewarden/internal/gate"
)

func init() {
	Register(NewHTMLRenderer())
}

// HTMLRenderer writes the scan result as a self-contained HTML page:
// no external assets, safe to email or archive next to the repo.
type HTMLRenderer struct {
	// Title overrides the page heading.
	Title string

	// nowFunc is used for testing to override the current time.
	nowFunc func() time.Time
}

// Compile-time interface check.
var _ Renderer = (*HTMLRenderer)(nil)

// NewHTMLRenderer returns an HTMLRenderer with default settings.
func NewHTMLRenderer() *HTMLRenderer {
	return &HTMLRenderer{}
}

// Name returns the format name.
func (h *HTMLRenderer) Name() string { return "html" }

// ContentType returns the MIME type for HTTP delivery.
func (h *HTMLRenderer) ContentType() string { return "text/html; charset=utf-8" }

var (
	htmlTmplOnce sync.Once
	htmlTmpl     *template.Template
)

// Render writes the report page to w.
func (h *HTMLRenderer) Render(res *gate.ScanResult, w io.Writer) error {
	if res == nil {
		return fmt.Errorf("nil scan result")
	}
	htmlTmplOnce.Do(func() {
		htmlTmpl = template.Must(template.New("report").Parse(htmlTemplate))
	})

	now := time.Now()
	if h.nowFunc != nil {
		now = h.nowFunc()
	}

	if err := htmlTmpl.Execute(w, h.buildData(res, now)); err != nil {
		return fmt.Errorf("execute html template: %w", err)
	}
	return nil
}

// maxEvidenceChars bounds one matched snippet in the evidence table.
const maxEvidenceChars = 160

type htmlData struct {
	Title       string
	GeneratedAt string

	ScanID     string
	RepoURL    string
	Branch     string
	CommitHash string

	OverallScore string
	ScoreClass   string
	Incomplete   bool
	Errors       []string

	Passed        int
	Failed        int
	Warnings      int
	Skipped       int
	FileCount     int
	TotalLines    int
	Languages     []languageShare
	Gates         []gateSection
	NotApplicable []skippedGate
}

type languageShare struct {
	Name  string
	Files int
}

type gateSection struct {
	Anchor      string
	Name        string
	DisplayName string
	Category    string
	Priority    string
	Status      string
	StatusClass string
	Score       string
	Weight      string
	Coverage    string
	Confidence  string
	Partial     bool

	Matches       []matchRow
	MatchesCapped bool
	MatchCount    int

	Sources        []sourceRow
	Recommendation string
}

type matchRow struct {
	File     string
	Line     int
	Evidence string
	Source   string
}

type sourceRow struct {
	Collector  string
	Outcome    string
	Confidence string
}

type skippedGate struct {
	Name        string
	DisplayName string
	Reason      string
}

func (h *HTMLRenderer) buildData(res *gate.ScanResult, now time.Time) htmlData {
	title := h.Title
	if title == "" {
		title = "Gatewarden Hard Gates Report"
	}
	data := htmlData{
		Title:        title,
		GeneratedAt:  now.UTC().Format("2006-01-02 15:04 UTC"),
		ScanID:       res.ScanID,
		RepoURL:      res.Metadata.RepoURL,
		Branch:       res.Metadata.Branch,
		CommitHash:   shortHash(res.Metadata.CommitHash),
		OverallScore: formatScore(res.OverallScore),
		ScoreClass:   scoreClass(res.OverallScore),
		Incomplete:   res.Incomplete,
		Errors:       res.Errors,
		FileCount:    res.Metadata.FileCount,
		TotalLines:   res.Metadata.TotalLines,
		Languages:    buildLanguages(res.Metadata.Languages),
	}

	counts := res.StatusCounts()
	data.Passed = counts[gate.StatusPass]
	data.Failed = counts[gate.StatusFail]
	data.Warnings = counts[gate.StatusWarning]
	data.Skipped = counts[gate.StatusNotApplicable]

	data.Gates = make([]gateSection, 0, len(res.Gates))
	for i := range res.Gates {
		data.Gates = append(data.Gates, buildGateSection(&res.Gates[i]))
	}
	for _, r := range res.NotApplicable {
		data.NotApplicable = append(data.NotApplicable, skippedGate{
			Name:        r.Gate,
			DisplayName: displayName(r.Gate, r.DisplayName),
			Reason:      r.Reason,
		})
	}
	return data
}

func buildGateSection(r *gate.Result) gateSection {
	s := gateSection{
		Anchor:      r.Gate,
		Name:        r.Gate,
		DisplayName: displayName(r.Gate, r.DisplayName),
		Category:    r.Category,
		Priority:    string(r.Priority),
		Status:      string(r.Status),
		StatusClass: statusClass(r.Status),
		Score:       formatScore(r.Score),
		Weight:      fmt.Sprintf("%g", r.Scoring.Weight),
		Confidence:  string(r.Confidence),
		Partial:     r.Partial,

		MatchesCapped:  r.MatchesCapped,
		MatchCount:     r.Counts.MatchesFound,
		Recommendation: r.Recommendation,
	}
	if r.Scoring.ExpectedCoverage > 0 {
		s.Coverage = fmt.Sprintf("%.1f%% of %.0f%% expected",
			r.Scoring.ActualCoverage, r.Scoring.ExpectedCoverage)
	}
	for _, m := range r.Matches {
		s.Matches = append(s.Matches, matchRow{
			File:     m.File,
			Line:     m.Line,
			Evidence: truncate(evidence(m), maxEvidenceChars),
			Source:   m.Source,
		})
	}
	for _, src := range r.Sources {
		outcome := "ok"
		switch {
		case !src.Enabled:
			outcome = "disabled"
		case !src.Succeeded:
			outcome = "failed"
		}
		s.Sources = append(s.Sources, sourceRow{
			Collector:  src.Collector,
			Outcome:    outcome,
			Confidence: string(src.Confidence),
		})
	}
	return s
}

func buildLanguages(stats map[string]gate.LanguageStat) []languageShare {
	out := make([]languageShare, 0, len(stats))
	for name, st := range stats {
		out = append(out, languageShare{Name: name, Files: st.Files})
	}
	sort.Slice(out, func(i, k int) bool {
		if out[i].Files != out[k].Files {
			return out[i].Files > out[k].Files
		}
		return out[i].Name < out[k].Name
	})
	return out
}

// evidence prefers the surrounding source line over the bare match.
func evidence(m gate.Match) string {
	if m.Context != "" {
		return m.Context
	}
	return m.Matched
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}

func displayName(name, display string) string {
	if display != "" {
		return display
	}
	return name
}

func formatScore(score float64) string {
	return fmt.Sprintf("%.1f", score)
}

func statusClass(s gate.Status) string {
	switch s {
	case gate.StatusPass:
		return "pass"
	case gate.StatusWarning:
		return "warn"
	case gate.StatusFail:
		return "fail"
	default:
		return "na"
	}
}

// scoreClass mirrors the default status thresholds (70 pass, 50 warn).
func scoreClass(score float64) string {
	switch {
	case score >= 70:
		return "pass"
	case score >= 50:
		return "warn"
	default:
		return "fail"
	}
}

func shortHash(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}
