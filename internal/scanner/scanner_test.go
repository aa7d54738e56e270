// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: MIT

package scanner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatewarden/gatewarden/internal/gate"
)

func writeFile(t *testing.T, root, rel, content string) gate.FileEntry {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o750))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o600))
	lines := strings.Count(content, "\n")
	if len(content) > 0 && !strings.HasSuffix(content, "\n") {
		lines++
	}
	return gate.FileEntry{
		Path:  filepath.ToSlash(rel),
		Size:  int64(len(content)),
		Lines: lines,
		Role:  gate.RoleSource,
	}
}

func mustPattern(t *testing.T, gateName, src string, weight float64) Pattern {
	t.Helper()
	return Pattern{
		Gate:   gateName,
		Source: src,
		Weight: weight,
		Re:     regexp.MustCompile(src),
		Tag:    "static",
	}
}

func TestStrategyBoundaries(t *testing.T) {
	limits := Limits{SmallFileBytes: 100, MmapFileBytes: 1000, MaxFileBytes: 10_000}
	limits.setDefaults()

	tests := []struct {
		size int64
		want strategy
	}{
		{0, strategyRead},
		{100, strategyRead},
		{101, strategyMmap},
		{1000, strategyMmap},
		{1001, strategyStream},
		{10_000, strategyStream},
		{10_001, strategySkip},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, strategyFor(tt.size, limits), "size %d", tt.size)
	}
}

func TestScanFindsMatchWithLineNumber(t *testing.T) {
	root := t.TempDir()
	entry := writeFile(t, root, "src/app.py",
		"import logging\n\ndef login(pwd):\n    logger.info(\"password=\"+pwd)\n")

	res, err := Scan(context.Background(), root, []gate.FileEntry{entry},
		[]Pattern{mustPattern(t, "AVOID_LOGGING_SECRETS", `logger\.info\(.*password`, 1.0)}, Options{})
	require.NoError(t, err)

	require.Len(t, res.ByGate["AVOID_LOGGING_SECRETS"], 1)
	m := res.ByGate["AVOID_LOGGING_SECRETS"][0]
	assert.Equal(t, "src/app.py", m.File)
	assert.Equal(t, 4, m.Line)
	assert.Equal(t, "static", m.Source)
	assert.Contains(t, m.Context, "logger.info")
	assert.Equal(t, 1, res.FilesScanned)
	assert.False(t, res.Incomplete)
}

func TestMatchOnFinalByteNoTrailingNewline(t *testing.T) {
	root := t.TempDir()
	// Three lines, no trailing newline; the match sits on the last byte.
	entry := writeFile(t, root, "a.go", "x\ny\nzq")

	res, err := Scan(context.Background(), root, []gate.FileEntry{entry},
		[]Pattern{mustPattern(t, "G", `q`, 1.0)}, Options{})
	require.NoError(t, err)

	require.Len(t, res.ByGate["G"], 1)
	assert.Equal(t, 3, res.ByGate["G"][0].Line, "line must equal total line count")
	assert.Equal(t, entry.Lines, res.ByGate["G"][0].Line)
}

func TestPerGatePerFileCap(t *testing.T) {
	root := t.TempDir()
	var b strings.Builder
	for i := 0; i < 150; i++ {
		fmt.Fprintf(&b, "logger.info(\"event %d\")\n", i)
	}
	entry := writeFile(t, root, "noisy.py", b.String())

	res, err := Scan(context.Background(), root, []gate.FileEntry{entry},
		[]Pattern{mustPattern(t, "STRUCTURED_LOGS", `logger\.info`, 1.0)},
		Options{Limits: Limits{MaxMatchesPerGateFile: 100}})
	require.NoError(t, err)

	assert.Len(t, res.ByGate["STRUCTURED_LOGS"], 100)
	assert.True(t, res.Capped["STRUCTURED_LOGS"], "cap must be reported")
}

func TestCapSharedAcrossGatePatterns(t *testing.T) {
	root := t.TempDir()
	var b strings.Builder
	for i := 0; i < 40; i++ {
		b.WriteString("log.info(x); log.debug(y)\n")
	}
	entry := writeFile(t, root, "f.js", b.String())

	res, err := Scan(context.Background(), root, []gate.FileEntry{entry},
		[]Pattern{
			mustPattern(t, "G", `log\.info`, 1.0),
			mustPattern(t, "G", `log\.debug`, 0.8),
		},
		Options{Limits: Limits{MaxMatchesPerGateFile: 50}})
	require.NoError(t, err)

	assert.Len(t, res.ByGate["G"], 50, "cap applies per gate, not per pattern")
	assert.True(t, res.Capped["G"])
}

func TestMatchesOrderedByPathThenLine(t *testing.T) {
	root := t.TempDir()
	files := []gate.FileEntry{
		writeFile(t, root, "b/two.py", "logger.info(1)\nx\nlogger.info(2)\n"),
		writeFile(t, root, "a/one.py", "y\nlogger.info(3)\n"),
	}
	patterns := []Pattern{mustPattern(t, "G", `logger\.info`, 1.0)}

	res, err := Scan(context.Background(), root, files, patterns, Options{})
	require.NoError(t, err)

	matches := res.ByGate["G"]
	require.Len(t, matches, 3)
	assert.Equal(t, "a/one.py", matches[0].File)
	assert.Equal(t, 2, matches[0].Line)
	assert.Equal(t, "b/two.py", matches[1].File)
	assert.Equal(t, 1, matches[1].Line)
	assert.Equal(t, "b/two.py", matches[2].File)
	assert.Equal(t, 3, matches[2].Line)

	// Determinism: a second run over the same inputs is identical.
	again, err := Scan(context.Background(), root, files, patterns, Options{})
	require.NoError(t, err)
	assert.Equal(t, res.ByGate, again.ByGate)
}

func TestBinaryAndOversizeSkipped(t *testing.T) {
	root := t.TempDir()
	big := writeFile(t, root, "big.sql", strings.Repeat("select password from t;\n", 10))
	big.Size = 1 << 30 // pretend it exceeds the hard cap
	bin := writeFile(t, root, "blob.dat", "password")
	bin.Binary = true

	res, err := Scan(context.Background(), root, []gate.FileEntry{big, bin},
		[]Pattern{mustPattern(t, "G", `password`, 1.0)}, Options{})
	require.NoError(t, err)

	assert.Empty(t, res.ByGate["G"])
	assert.Equal(t, 2, res.FilesSkipped)
	assert.Equal(t, []string{"big.sql"}, res.TooLarge)
	assert.Zero(t, res.FilesScanned)
}

func TestCancelledContextReturnsPartial(t *testing.T) {
	root := t.TempDir()
	var files []gate.FileEntry
	for i := 0; i < 50; i++ {
		files = append(files, writeFile(t, root, fmt.Sprintf("f%02d.py", i), "logger.info(x)\n"))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := Scan(ctx, root, files, []Pattern{mustPattern(t, "G", `logger`, 1.0)}, Options{})
	require.NoError(t, err, "cancellation yields partial results, not an error")
	assert.True(t, res.Incomplete)
	assert.Less(t, res.FilesScanned, len(files))
}

func TestDeadlineMarksIncomplete(t *testing.T) {
	root := t.TempDir()
	var files []gate.FileEntry
	for i := 0; i < 200; i++ {
		files = append(files, writeFile(t, root, fmt.Sprintf("d/f%03d.py", i),
			strings.Repeat("logger.info(x)\n", 200)))
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	time.Sleep(time.Millisecond)

	res, err := Scan(ctx, root, files, []Pattern{mustPattern(t, "G", `logger`, 1.0)}, Options{})
	require.NoError(t, err)
	assert.True(t, res.Incomplete)
}

func TestProgressReported(t *testing.T) {
	root := t.TempDir()
	files := []gate.FileEntry{
		writeFile(t, root, "a.py", "x\n"),
		writeFile(t, root, "b.py", "y\n"),
		writeFile(t, root, "c.py", "z\n"),
	}

	var calls int
	var last int
	res, err := Scan(context.Background(), root, files,
		[]Pattern{mustPattern(t, "G", `nothing-matches`, 1.0)},
		Options{Progress: func(done, total int) {
			calls++
			last = total
		}})
	require.NoError(t, err)
	assert.Equal(t, 3, res.FilesScanned)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 3, last)
}

func TestMmapStrategyMatches(t *testing.T) {
	root := t.TempDir()
	// Content pushed past the small threshold so the mmap path runs.
	content := strings.Repeat("filler line of text\n", 40) + "token = SECRET_MARKER\n"
	entry := writeFile(t, root, "cfg/big.yaml", content)

	res, err := Scan(context.Background(), root, []gate.FileEntry{entry},
		[]Pattern{mustPattern(t, "G", `SECRET_MARKER`, 1.0)},
		Options{Limits: Limits{SmallFileBytes: 64, MmapFileBytes: 1 << 20}})
	require.NoError(t, err)

	require.Len(t, res.ByGate["G"], 1)
	assert.Equal(t, 41, res.ByGate["G"][0].Line)
}

func TestStreamingCrossChunkMatch(t *testing.T) {
	root := t.TempDir()

	// Build content larger than one stream chunk with one needle
	// spanning the chunk boundary and one shortly before it.
	line := strings.Repeat("a", 63) + "\n"
	var b strings.Builder
	for b.Len() < defaultStreamChunkSize-100 {
		b.WriteString(line)
	}
	b.WriteString("NEEDLE_ONE\n")
	for b.Len() < defaultStreamChunkSize-5 {
		b.WriteString("b")
	}
	b.WriteString("NEEDLE_TWO\n") // straddles the first chunk boundary
	b.WriteString(strings.Repeat(line, 100))
	content := b.String()

	entry := writeFile(t, root, "huge.log", content)
	require.Greater(t, entry.Size, int64(defaultStreamChunkSize))

	limits := Limits{
		SmallFileBytes: 1024,
		MmapFileBytes:  2048, // force the streaming path
		MaxFileBytes:   int64(len(content)) + 1,
		OverlapBytes:   64,
	}
	res, err := Scan(context.Background(), root, []gate.FileEntry{entry},
		[]Pattern{
			mustPattern(t, "G", `NEEDLE_ONE`, 1.0),
			mustPattern(t, "G", `NEEDLE_TWO`, 1.0),
		},
		Options{Limits: limits})
	require.NoError(t, err)

	matches := res.ByGate["G"]
	require.Len(t, matches, 2, "each needle reported exactly once")

	wantOne := strings.Count(content[:strings.Index(content, "NEEDLE_ONE")], "\n") + 1
	wantTwo := strings.Count(content[:strings.Index(content, "NEEDLE_TWO")], "\n") + 1
	assert.Equal(t, wantOne, matches[0].Line)
	assert.Equal(t, wantTwo, matches[1].Line)
}

func TestStreamingNoDuplicateInOverlap(t *testing.T) {
	root := t.TempDir()

	// Needle placed fully inside the overlap tail of chunk one: found in
	// window one, carried into window two, and must not repeat.
	var b strings.Builder
	for b.Len() < defaultStreamChunkSize-40 {
		b.WriteString("x")
	}
	b.WriteString("NEEDLE_TAIL")
	for b.Len() < defaultStreamChunkSize+500 {
		b.WriteString("y")
	}
	content := b.String()
	entry := writeFile(t, root, "tail.log", content)

	limits := Limits{
		SmallFileBytes: 1024,
		MmapFileBytes:  2048,
		MaxFileBytes:   int64(len(content)) + 1,
		OverlapBytes:   128,
	}
	res, err := Scan(context.Background(), root, []gate.FileEntry{entry},
		[]Pattern{mustPattern(t, "G", `NEEDLE_TAIL`, 1.0)}, Options{Limits: limits})
	require.NoError(t, err)
	assert.Len(t, res.ByGate["G"], 1)
}

func TestEmptyInputs(t *testing.T) {
	root := t.TempDir()
	entry := writeFile(t, root, "a.py", "logger.info(x)\n")

	res, err := Scan(context.Background(), root, nil,
		[]Pattern{mustPattern(t, "G", `logger`, 1.0)}, Options{})
	require.NoError(t, err)
	assert.Empty(t, res.ByGate)

	res, err = Scan(context.Background(), root, []gate.FileEntry{entry}, nil, Options{})
	require.NoError(t, err)
	assert.Empty(t, res.ByGate)
	assert.Zero(t, res.FilesScanned)
}

func TestUnreadableFileRecordedNotFatal(t *testing.T) {
	root := t.TempDir()
	ok := writeFile(t, root, "ok.py", "logger.info(x)\n")
	missing := gate.FileEntry{Path: "gone.py", Size: 10, Role: gate.RoleSource}

	res, err := Scan(context.Background(), root, []gate.FileEntry{missing, ok},
		[]Pattern{mustPattern(t, "G", `logger`, 1.0)}, Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, res.FilesScanned)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "gone.py", res.Errors[0].Path)
	assert.True(t, gate.IsKind(res.Errors[0].Err, gate.KindFileReadError))
	assert.Len(t, res.ByGate["G"], 1)
}

func TestLineIndex(t *testing.T) {
	buf := []byte("one\ntwo\nthree")
	ix := newLineIndex(buf)
	assert.Equal(t, 1, ix.lineAt(0))
	assert.Equal(t, 1, ix.lineAt(3))
	assert.Equal(t, 2, ix.lineAt(4))
	assert.Equal(t, 3, ix.lineAt(8))
	assert.Equal(t, 3, ix.lineAt(12))
}

func TestLineAround(t *testing.T) {
	buf := []byte("alpha\nbeta gamma\r\ndelta")
	assert.Equal(t, "beta gamma", lineAround(buf, 8, 100))
	assert.Equal(t, "delta", lineAround(buf, 20, 100))
	assert.Equal(t, "be", lineAround(buf, 6, 2))
}
