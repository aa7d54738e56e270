package report

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/fatih/color"
)

// Alignment selects which side of a cell gets the padding.
type Alignment int

const (
	// AlignLeft places padding after the value (default).
	AlignLeft Alignment = iota
	// AlignRight places padding before the value.
	AlignRight
)

// ColorFunc decorates a rendered cell. Nil leaves the cell plain.
type ColorFunc func(value string) string

// Column configures one table column.
type Column struct {
	Header string
	Align  Alignment
	Color  ColorFunc
	// MaxWidth truncates cells longer than this many runes with an
	// ellipsis. Zero means unbounded. Gate names and reasons can run
	// long; the table stays readable either way.
	MaxWidth int
}

// Table accumulates rows and renders them as aligned text columns.
type Table struct {
	columns []Column
	rows    [][]string
}

// NewTable returns an empty table over the given columns.
func NewTable(columns ...Column) *Table {
	return &Table{columns: columns}
}

// AddRow appends one row of cells. Extra values are dropped, missing
// ones render empty.
func (t *Table) AddRow(values ...string) {
	row := make([]string, len(t.columns))
	for i := range row {
		if i < len(values) {
			row[i] = t.clip(i, values[i])
		}
	}
	t.rows = append(t.rows, row)
}

// clip truncates a cell to its column's MaxWidth.
func (t *Table) clip(col int, val string) string {
	max := t.columns[col].MaxWidth
	if max <= 0 || utf8.RuneCountInString(val) <= max {
		return val
	}
	if max <= 1 {
		return "…"
	}
	return string([]rune(val)[:max-1]) + "…"
}

// widths measures every column: the widest of header and cells, counted
// in runes so multi-byte evidence snippets align.
func (t *Table) widths() []int {
	widths := make([]int, len(t.columns))
	for i, col := range t.columns {
		widths[i] = utf8.RuneCountInString(col.Header)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			if n := utf8.RuneCountInString(cell); n > widths[i] {
				widths[i] = n
			}
		}
	}
	return widths
}

// Render writes the bold header, a dashed rule, and every row to w.
func (t *Table) Render(w io.Writer) error {
	if len(t.columns) == 0 {
		return nil
	}
	widths := t.widths()

	bold := color.New(color.Bold)
	header := make([]string, len(t.columns))
	rule := make([]string, len(t.columns))
	for i, col := range t.columns {
		header[i] = bold.Sprint(pad(col.Header, widths[i], col.Align))
		rule[i] = strings.Repeat("-", widths[i])
	}
	if err := writeLine(w, header); err != nil {
		return err
	}
	if err := writeLine(w, rule); err != nil {
		return err
	}

	for _, row := range t.rows {
		cells := make([]string, len(t.columns))
		for i, col := range t.columns {
			val := row[i]
			// Color after measuring: padding is based on the raw value,
			// not the ANSI-colored string.
			display := val
			if col.Color != nil {
				display = col.Color(val)
			}
			filler := strings.Repeat(" ", widths[i]-utf8.RuneCountInString(val))
			if col.Align == AlignRight {
				cells[i] = filler + display
			} else {
				cells[i] = display + filler
			}
		}
		if err := writeLine(w, cells); err != nil {
			return err
		}
	}
	return nil
}

func writeLine(w io.Writer, cells []string) error {
	if _, err := fmt.Fprintf(w, "  %s\n", strings.Join(cells, "  ")); err != nil {
		return fmt.Errorf("render table: %w", err)
	}
	return nil
}

func pad(s string, width int, align Alignment) string {
	filler := strings.Repeat(" ", width-utf8.RuneCountInString(s))
	if align == AlignRight {
		return filler + s
	}
	return s + filler
}
