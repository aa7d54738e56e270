// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: MIT

package report

import (
	"strconv"
	"strings"

	"github.com/fatih/color"

	"github.com/gatewarden/gatewarden/internal/gate"
)

// Shared color printers for terminal output.
var (
	colorRed    = color.New(color.FgRed)
	colorYellow = color.New(color.FgYellow)
	colorGreen  = color.New(color.FgGreen)
	colorGray   = color.New(color.FgHiBlack)
	colorBold   = color.New(color.Bold)
)

var statusColors = map[gate.Status]*color.Color{
	gate.StatusPass:          colorGreen,
	gate.StatusWarning:       colorYellow,
	gate.StatusFail:          colorRed,
	gate.StatusNotApplicable: colorGray,
}

// ColorStatus colors a gate status label. Unknown labels pass through.
func ColorStatus(val string) string {
	if c, ok := statusColors[gate.Status(val)]; ok {
		return c.Sprint(val)
	}
	return val
}

// ColorScore colors a numeric score using the report's traffic-light
// bands: 80 and up green, 60 and up yellow, below 60 red. Non-numeric
// cells pass through.
func ColorScore(val string) string {
	score, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
	if err != nil {
		return val
	}
	switch {
	case score >= 80:
		return colorGreen.Sprint(val)
	case score >= 60:
		return colorYellow.Sprint(val)
	default:
		return colorRed.Sprint(val)
	}
}

var priorityColors = map[gate.Priority]*color.Color{
	gate.PriorityCritical: colorRed,
	gate.PriorityHigh:     colorYellow,
	gate.PriorityLow:      colorGray,
}

// ColorPriority colors a gate priority label. Unknown labels pass through.
func ColorPriority(val string) string {
	if c, ok := priorityColors[gate.Priority(val)]; ok {
		return c.Sprint(val)
	}
	return val
}

// SectionTitle renders a report heading in bold.
func SectionTitle(title string) string {
	return colorBold.Sprint(title)
}

// colorCount greens a zero and yellows anything above it.
func colorCount(n int) string {
	s := strconv.Itoa(n)
	if n == 0 {
		return colorGreen.Sprint(s)
	}
	return colorYellow.Sprint(s)
}
