// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: MIT

package scanner

import (
	"bytes"
	"context"
	"io"
	"os"

	"github.com/gatewarden/gatewarden/internal/gate"
)

// streamFile scans a file too large to hold resident. Chunks overlap by
// Limits.OverlapBytes (the longest plausible match) so a match spanning
// a chunk boundary is still found. A match is reported exactly once:
// only when its end extends past the previously searched window, since
// anything ending inside the carried overlap was already reported.
func streamFile(ctx context.Context, path string, entry gate.FileEntry, patterns []Pattern, limits Limits) fileResult {
	out := fileResult{
		matches: make(map[string][]gate.Match),
		capped:  make(map[string]bool),
	}

	f, err := os.Open(path) //nolint:gosec // owned working tree
	if err != nil {
		out.err = gate.E(gate.KindFileReadError, "scanner.open", err).WithPath(entry.Path)
		return out
	}
	defer f.Close() //nolint:errcheck // read-only handle

	chunkSize := defaultStreamChunkSize
	overlap := limits.OverlapBytes
	if overlap >= chunkSize {
		chunkSize = overlap * 2
	}

	window := make([]byte, 0, chunkSize+overlap)
	readBuf := make([]byte, chunkSize)
	perGate := make(map[string]int, 8)

	var (
		base     int64 // file offset of window[0]
		searched int64 // absolute offset up to which matches were reported
		lineBase int   // newlines before window[0]
	)

	for {
		if ctx.Err() != nil {
			out.interrupted = true
			return out
		}

		n, rerr := f.Read(readBuf)
		if n > 0 {
			// Slide: keep only the overlap tail before appending.
			if len(window) > overlap {
				cut := len(window) - overlap
				lineBase += bytes.Count(window[:cut], []byte{'\n'})
				base += int64(cut)
				window = append(window[:0], window[cut:]...)
			}
			window = append(window, readBuf[:n]...)

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
				for _, loc := range p.Re.FindAllIndex(window, -1) {
					if base+int64(loc[1]) <= searched {
						continue // fully inside already-searched bytes
					}
					if remaining <= 0 {
						out.capped[p.Gate] = true
						break
					}
					out.matches[p.Gate] = append(out.matches[p.Gate], gate.Match{
						File:    entry.Path,
						Line:    lineBase + bytes.Count(window[:loc[0]], []byte{'\n'}) + 1,
						Pattern: p.Source,
						Matched: clip(window, loc[0], loc[1], limits.MaxContextBytes),
						Source:  p.Tag,
						Context: lineAround(window, loc[0], limits.MaxContextBytes),
					})
					perGate[p.Gate]++
					remaining--
				}
			}
			searched = base + int64(len(window))
		}

		if rerr == io.EOF {
			return out
		}
		if rerr != nil {
			out.err = gate.E(gate.KindFileReadError, "scanner.read", rerr).WithPath(entry.Path)
			return out
		}
	}
}
