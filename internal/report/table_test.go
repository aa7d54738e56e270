// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: MIT

package report

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTable_BasicRender(t *testing.T) {
	tbl := NewTable(
		Column{Header: "GATE"},
		Column{Header: "SCORE", Align: AlignRight},
	)
	tbl.AddRow("structured_logs", "88.5")
	tbl.AddRow("timeouts", "40.0")

	var buf bytes.Buffer
	require.NoError(t, tbl.Render(&buf))

	out := buf.String()
	assert.Contains(t, out, "GATE")
	assert.Contains(t, out, "SCORE")
	assert.Contains(t, out, "---------------")
	assert.Contains(t, out, "structured_logs")
	assert.Contains(t, out, "timeouts")
}

func TestTable_ColumnAlignment(t *testing.T) {
	tbl := NewTable(
		Column{Header: "Left"},
		Column{Header: "Right", Align: AlignRight},
	)
	tbl.AddRow("a", "1")
	tbl.AddRow("bb", "22")

	var buf bytes.Buffer
	require.NoError(t, tbl.Render(&buf))

	lines := splitLines(buf.String())
	require.True(t, len(lines) >= 4, "expected header + separator + 2 rows")
	// Right-aligned single digit is left-padded to the column width.
	assert.Contains(t, lines[2], "a     ")
	assert.True(t, strings.HasSuffix(lines[2], " 1"), "expected right-aligned %q", lines[2])
}

func TestTable_EdgeShapes(t *testing.T) {
	tests := []struct {
		name        string
		columns     []Column
		row         []string
		contains    []string
		notContains []string
		empty       bool
	}{
		{
			name:     "short row renders empty cells",
			columns:  []Column{{Header: "A"}, {Header: "B"}, {Header: "C"}},
			row:      []string{"only-one"},
			contains: []string{"only-one"},
		},
		{
			name:        "extra cells are dropped",
			columns:     []Column{{Header: "A"}},
			row:         []string{"one", "extra-ignored"},
			contains:    []string{"one"},
			notContains: []string{"extra-ignored"},
		},
		{
			name:     "no rows still prints header and rule",
			columns:  []Column{{Header: "X"}},
			contains: []string{"X", "-"},
		},
		{
			name:  "no columns renders nothing",
			empty: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tbl := NewTable(tt.columns...)
			if tt.row != nil {
				tbl.AddRow(tt.row...)
			}

			var buf bytes.Buffer
			require.NoError(t, tbl.Render(&buf))

			if tt.empty {
				assert.Empty(t, buf.String())
				return
			}
			for _, want := range tt.contains {
				assert.Contains(t, buf.String(), want)
			}
			for _, not := range tt.notContains {
				assert.NotContains(t, buf.String(), not)
			}
		})
	}
}

func TestTable_MaxWidthTruncation(t *testing.T) {
	tbl := NewTable(
		Column{Header: "REASON", MaxWidth: 12},
	)
	tbl.AddRow("short")
	tbl.AddRow("a reason that would stretch the table far too wide")

	var buf bytes.Buffer
	require.NoError(t, tbl.Render(&buf))

	out := buf.String()
	assert.Contains(t, out, "short")
	assert.Contains(t, out, "a reason th…")
	assert.NotContains(t, out, "far too wide")
}

func TestTable_MultiByteWidths(t *testing.T) {
	tbl := NewTable(
		Column{Header: "FILE"},
		Column{Header: "N", Align: AlignRight},
	)
	tbl.AddRow("café.py", "1")
	tbl.AddRow("main.py", "2")

	var buf bytes.Buffer
	require.NoError(t, tbl.Render(&buf))

	lines := splitLines(buf.String())
	require.True(t, len(lines) >= 4)
	// Both data rows line up: the second column starts at the same
	// visual offset because widths count runes, not bytes.
	caf := lines[2]
	main := lines[3]
	assert.Equal(t, strings.Index(main, "2"), strings.Index(caf, "1")-1,
		"rune-width padding keeps columns aligned despite the two-byte é")
}

func TestTable_RuleSpansWidestCell(t *testing.T) {
	tbl := NewTable(
		Column{Header: "ID"},
		Column{Header: "Value"},
	)
	tbl.AddRow("short", "x")
	tbl.AddRow("much-longer-value", "y")

	var buf bytes.Buffer
	require.NoError(t, tbl.Render(&buf))

	lines := splitLines(buf.String())
	require.True(t, len(lines) >= 4)
	assert.Contains(t, lines[1], strings.Repeat("-", len("much-longer-value")))
}

// splitLines returns the non-empty lines of rendered output.
func splitLines(s string) []string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
