// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: MIT

// Package scanner is the scan hot path: it applies every applicable
// gate's compiled patterns to every inventoried file in a single pass.
// The outer loop is over files so each file is opened and resident at
// most once regardless of how many gates inspect it.
package scanner

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/gatewarden/gatewarden/internal/gate"
)

// Pattern is one compiled, weighted regex contributed by a gate. The
// Re field must come from the regex cache; the scanner never compiles.
type Pattern struct {
	Gate   string
	Source string
	Weight float64
	Re     *regexp.Regexp
	// Tag names the collector that contributed the pattern ("static",
	// "llm_patterns"). Copied onto every match it produces.
	Tag string
}

// Limits bounds per-file processing. Zero values fall back to the
// documented defaults.
type Limits struct {
	SmallFileBytes        int64 // <= whole-buffer read
	MmapFileBytes         int64 // <= memory-mapped
	MaxFileBytes          int64 // > skipped, recorded as too large
	OverlapBytes          int   // stream window overlap
	MaxMatchesPerGateFile int
	MaxContextBytes       int
	Workers               int
}

// Documented defaults for Limits.
const (
	DefaultSmallFileBytes  = 64 << 10
	DefaultMmapFileBytes   = 4 << 20
	DefaultMaxFileBytes    = 20 << 20
	DefaultOverlapBytes    = 4 << 10
	DefaultMatchesPerFile  = 100
	DefaultContextBytes    = 200
	defaultStreamChunkSize = 256 << 10
)

func (l *Limits) setDefaults() {
	if l.SmallFileBytes <= 0 {
		l.SmallFileBytes = DefaultSmallFileBytes
	}
	if l.MmapFileBytes <= 0 {
		l.MmapFileBytes = DefaultMmapFileBytes
	}
	if l.MaxFileBytes <= 0 {
		l.MaxFileBytes = DefaultMaxFileBytes
	}
	if l.OverlapBytes <= 0 {
		l.OverlapBytes = DefaultOverlapBytes
	}
	if l.MaxMatchesPerGateFile <= 0 {
		l.MaxMatchesPerGateFile = DefaultMatchesPerFile
	}
	if l.MaxContextBytes <= 0 {
		l.MaxContextBytes = DefaultContextBytes
	}
	if l.Workers <= 0 {
		l.Workers = 4
	}
	if l.Workers > runtime.NumCPU() {
		l.Workers = runtime.NumCPU()
	}
	if l.Workers < 1 {
		l.Workers = 1
	}
}

// Options tunes one Scan invocation.
type Options struct {
	Limits   Limits
	Progress func(done, total int)
	Log      *slog.Logger
}

// FileError records a per-file read problem. Scanning continued past it.
type FileError struct {
	Path string
	Err  error
}

// Result carries per-gate matches plus scan accounting.
type Result struct {
	// ByGate maps gate name to its matches, sorted by file path then
	// line number.
	ByGate map[string][]gate.Match
	// Capped marks gates that hit the per-file match cap at least once.
	Capped map[string]bool

	FilesScanned int
	FilesSkipped int
	// TooLarge lists files skipped for exceeding MaxFileBytes.
	TooLarge []string
	Errors   []FileError

	// Incomplete is set when the deadline or a cancellation stopped the
	// scan before every file was visited. Matches collected so far are
	// still valid.
	Incomplete bool
}

// Scan applies patterns to every scannable file under root. Binary
// entries are skipped. Workers check the context between files and
// between patterns; on expiry the partial result is returned with
// Incomplete set and a nil error.
func Scan(ctx context.Context, root string, files []gate.FileEntry, patterns []Pattern, opts Options) (*Result, error) {
	opts.Limits.setDefaults()
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}

	res := &Result{
		ByGate: make(map[string][]gate.Match),
		Capped: make(map[string]bool),
	}
	if len(patterns) == 0 || len(files) == 0 {
		return res, nil
	}

	var (
		mu   sync.Mutex
		done atomic.Int64
	)
	total := len(files)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Limits.Workers)

submit:
	for i := range files {
		select {
		case <-gctx.Done():
			res.Incomplete = true
			break submit
		default:
		}

		entry := files[i]
		g.Go(func() error {
			if gctx.Err() != nil {
				mu.Lock()
				res.Incomplete = true
				mu.Unlock()
				return nil
			}

			out := scanFile(gctx, root, entry, patterns, opts.Limits)

			mu.Lock()
			switch {
			case out.skippedBinary:
				res.FilesSkipped++
			case out.skippedTooLarge:
				res.FilesSkipped++
				res.TooLarge = append(res.TooLarge, entry.Path)
			case out.err != nil:
				res.Errors = append(res.Errors, FileError{Path: entry.Path, Err: out.err})
			default:
				res.FilesScanned++
			}
			for gateName, matches := range out.matches {
				res.ByGate[gateName] = append(res.ByGate[gateName], matches...)
			}
			for gateName := range out.capped {
				res.Capped[gateName] = true
			}
			if out.interrupted {
				res.Incomplete = true
			}
			mu.Unlock()

			if opts.Progress != nil {
				opts.Progress(int(done.Add(1)), total)
			}
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // workers never return errors

	if ctx.Err() != nil {
		res.Incomplete = true
	}
	sortMatches(res.ByGate)

	log.Debug("scan pass complete",
		"files_scanned", res.FilesScanned,
		"files_skipped", res.FilesSkipped,
		"patterns", len(patterns),
		"incomplete", res.Incomplete)
	return res, nil
}

// fileResult is one worker's output for one file.
type fileResult struct {
	matches         map[string][]gate.Match
	capped          map[string]bool
	err             error
	skippedBinary   bool
	skippedTooLarge bool
	interrupted     bool
}

// strategy selects how a file's content is brought into memory.
type strategy int

const (
	strategyRead strategy = iota
	strategyMmap
	strategyStream
	strategySkip
)

// strategyFor picks the read strategy by file size. Boundaries are
// inclusive: a file exactly at the mmap threshold is mapped, one byte
// more streams.
func strategyFor(size int64, limits Limits) strategy {
	switch {
	case size > limits.MaxFileBytes:
		return strategySkip
	case size <= limits.SmallFileBytes:
		return strategyRead
	case size <= limits.MmapFileBytes:
		return strategyMmap
	default:
		return strategyStream
	}
}

// scanFile picks a read strategy by size and applies every pattern.
func scanFile(ctx context.Context, root string, entry gate.FileEntry, patterns []Pattern, limits Limits) fileResult {
	if entry.Binary {
		return fileResult{skippedBinary: true}
	}

	path := filepath.Join(root, filepath.FromSlash(entry.Path))
	switch strategyFor(entry.Size, limits) {
	case strategyRead:
		buf, err := os.ReadFile(path) //nolint:gosec // owned working tree
		if err != nil {
			return fileResult{err: gate.E(gate.KindFileReadError, "scanner.read", err).WithPath(entry.Path)}
		}
		return matchBuffer(ctx, entry.Path, buf, patterns, limits)

	case strategyMmap:
		return matchMapped(ctx, path, entry, patterns, limits)

	case strategyStream:
		return streamFile(ctx, path, entry, patterns, limits)

	default:
		return fileResult{skippedTooLarge: true}
	}
}

// matchMapped memory-maps the file and runs the buffer matcher over the
// mapping. Platforms without mmap support, and mapping failures, fall
// back to a full read.
func matchMapped(ctx context.Context, path string, entry gate.FileEntry, patterns []Pattern, limits Limits) fileResult {
	data, unmap, err := mmapFile(path, entry.Size)
	if err != nil {
		buf, rerr := os.ReadFile(path) //nolint:gosec // owned working tree
		if rerr != nil {
			return fileResult{err: gate.E(gate.KindFileReadError, "scanner.read", rerr).WithPath(entry.Path)}
		}
		return matchBuffer(ctx, entry.Path, buf, patterns, limits)
	}
	defer unmap() //nolint:errcheck // read-only mapping
	return matchBuffer(ctx, entry.Path, data, patterns, limits)
}

// matchBuffer applies every pattern to a fully resident buffer.
func matchBuffer(ctx context.Context, relPath string, buf []byte, patterns []Pattern, limits Limits) fileResult {
	out := fileResult{
		matches: make(map[string][]gate.Match),
		capped:  make(map[string]bool),
	}
	ix := newLineIndex(buf)
	perGate := make(map[string]int, 8)

	for i := range patterns {
		if ctx.Err() != nil {
			out.interrupted = true
			return out
		}
		p := &patterns[i]
		remaining := limits.MaxMatchesPerGateFile - perGate[p.Gate]
		if remaining <= 0 {
			out.capped[p.Gate] = true
			continue
		}

		locs := p.Re.FindAllIndex(buf, remaining+1)
		if len(locs) == 0 {
			continue
		}
		if len(locs) > remaining {
			locs = locs[:remaining]
			out.capped[p.Gate] = true
		}
		for _, loc := range locs {
			out.matches[p.Gate] = append(out.matches[p.Gate], gate.Match{
				File:    relPath,
				Line:    ix.lineAt(loc[0]),
				Pattern: p.Source,
				Matched: clip(buf, loc[0], loc[1], limits.MaxContextBytes),
				Source:  p.Tag,
				Context: lineAround(buf, loc[0], limits.MaxContextBytes),
			})
		}
		perGate[p.Gate] += len(locs)
	}
	return out
}

// sortMatches orders each gate's matches by file path then line number
// so merged parallel output is deterministic.
func sortMatches(byGate map[string][]gate.Match) {
	for name, matches := range byGate {
		sort.SliceStable(matches, func(i, j int) bool {
			if matches[i].File != matches[j].File {
				return matches[i].File < matches[j].File
			}
			return matches[i].Line < matches[j].Line
		})
		byGate[name] = matches
	}
}
