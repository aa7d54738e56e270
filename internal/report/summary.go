// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: MIT

package report

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/gatewarden/gatewarden/internal/gate"
)

// Summary writes a human-readable terminal summary of one scan result:
// the overall verdict against the compliance threshold, a per-gate
// table, skipped gates with reasons, and recommendations for gates that
// need attention.
func Summary(res *gate.ScanResult, threshold float64, w io.Writer) error {
	if threshold <= 0 {
		threshold = gate.DefaultThreshold
	}

	verdict := colorGreen.Sprint("PASS")
	if res.OverallScore < threshold {
		verdict = colorRed.Sprint("FAIL")
	}
	fmt.Fprintf(w, "\n%s\n\n", SectionTitle("Scan Summary"))
	fmt.Fprintf(w, "  Overall score: %s / 100 (threshold %s) — %s\n",
		ColorScore(formatScore(res.OverallScore)), formatScore(threshold), verdict)
	if res.Metadata.RepoURL != "" {
		fmt.Fprintf(w, "  Repository:    %s", res.Metadata.RepoURL)
		if res.Metadata.Branch != "" {
			fmt.Fprintf(w, " @ %s", res.Metadata.Branch)
		}
		fmt.Fprintln(w)
	}
	if res.Metadata.CommitHash != "" {
		fmt.Fprintf(w, "  Commit:        %s\n", shortHash(res.Metadata.CommitHash))
	}
	fmt.Fprintf(w, "  Files:         %d (%d lines)\n", res.Metadata.FileCount, res.Metadata.TotalLines)

	counts := res.StatusCounts()
	fmt.Fprintf(w, "  Gates:         %s passed, %s warnings, %s failed, %d skipped\n",
		strconv.Itoa(counts[gate.StatusPass]),
		colorCount(counts[gate.StatusWarning]),
		colorCount(counts[gate.StatusFail]),
		counts[gate.StatusNotApplicable])

	if res.Incomplete {
		fmt.Fprintf(w, "\n  %s\n", colorYellow.Sprint("WARNING: scan was interrupted; scores cover only the files that were checked"))
	}

	if len(res.Gates) > 0 {
		fmt.Fprintf(w, "\n%s\n\n", SectionTitle("Gate Results"))
		tbl := NewTable(
			Column{Header: "GATE"},
			Column{Header: "STATUS", Color: ColorStatus},
			Column{Header: "SCORE", Align: AlignRight, Color: ColorScore},
			Column{Header: "EVIDENCE", Align: AlignRight},
			Column{Header: "PRIORITY", Color: ColorPriority},
		)
		for _, g := range sortedByScore(res.Gates) {
			tbl.AddRow(
				displayName(g.Gate, g.DisplayName),
				string(g.Status),
				formatScore(g.Score),
				strconv.Itoa(g.Counts.MatchesFound),
				string(g.Priority),
			)
		}
		if err := tbl.Render(w); err != nil {
			return err
		}
	}

	if len(res.NotApplicable) > 0 {
		fmt.Fprintf(w, "\n%s\n\n", SectionTitle("Not Applicable"))
		for _, g := range res.NotApplicable {
			fmt.Fprintf(w, "  %s: %s\n", displayName(g.Gate, g.DisplayName), g.Reason)
		}
	}

	writeRecommendations(res, w)

	if len(res.Errors) > 0 {
		fmt.Fprintf(w, "\n%s\n\n", SectionTitle("Scan Issues"))
		for _, e := range res.Errors {
			fmt.Fprintf(w, "  - %s\n", e)
		}
	}
	fmt.Fprintln(w)
	return nil
}

// writeRecommendations prints recommendation text for gates that did not
// pass, worst first.
func writeRecommendations(res *gate.ScanResult, w io.Writer) {
	var attention []gate.Result
	for _, g := range res.Gates {
		if g.Status == gate.StatusPass || g.Recommendation == "" {
			continue
		}
		attention = append(attention, g)
	}
	if len(attention) == 0 {
		return
	}
	sort.Slice(attention, func(i, k int) bool {
		if attention[i].Score != attention[k].Score {
			return attention[i].Score < attention[k].Score
		}
		return attention[i].Gate < attention[k].Gate
	})

	fmt.Fprintf(w, "\n%s\n\n", SectionTitle("Recommendations"))
	for _, g := range attention {
		fmt.Fprintf(w, "  %s (%s)\n", displayName(g.Gate, g.DisplayName), ColorStatus(string(g.Status)))
		fmt.Fprintf(w, "    %s\n", g.Recommendation)
	}
}

// CatalogTable writes the gate catalog listing used by the gates
// command: one row per gate, ordered by name.
func CatalogTable(defs []gate.Definition, w io.Writer) error {
	tbl := NewTable(
		Column{Header: "GATE"},
		Column{Header: "CATEGORY"},
		Column{Header: "PRIORITY", Color: ColorPriority},
		Column{Header: "WEIGHT", Align: AlignRight},
		Column{Header: "PATTERNS", Align: AlignRight},
	)

	sorted := make([]gate.Definition, len(defs))
	copy(sorted, defs)
	sort.Slice(sorted, func(i, k int) bool { return sorted[i].Name < sorted[k].Name })

	for _, d := range sorted {
		tbl.AddRow(
			d.Name,
			d.Category,
			string(d.Priority),
			strconv.FormatFloat(d.Weight, 'f', 1, 64),
			strconv.Itoa(d.PatternCount()),
		)
	}
	if err := tbl.Render(w); err != nil {
		return err
	}
	fmt.Fprintf(w, "\n  %d gates\n", len(sorted))
	return nil
}

// sortedByScore orders gates worst-first so problems lead the table.
func sortedByScore(gates []gate.Result) []gate.Result {
	out := make([]gate.Result, len(gates))
	copy(out, gates)
	sort.Slice(out, func(i, k int) bool {
		if out[i].Score != out[k].Score {
			return out[i].Score < out[k].Score
		}
		return out[i].Gate < out[k].Gate
	})
	return out
}

// DescribeSnapshotLine formats a one-line progress string for polling
// CLIs: status, percent, and the current step when one is set.
func DescribeSnapshotLine(status string, percent float64, step, detail string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-9s %3.0f%%", status, percent)
	if step != "" {
		fmt.Fprintf(&b, "  %s", step)
	}
	if detail != "" {
		fmt.Fprintf(&b, " (%s)", detail)
	}
	return b.String()
}
