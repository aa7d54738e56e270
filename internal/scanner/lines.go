// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: MIT

package scanner

import (
	"bytes"
	"sort"
	"strings"
)

// lineIndex resolves byte offsets to 1-based line numbers. The newline
// table is built lazily on first use since most files match nothing.
type lineIndex struct {
	buf   []byte
	nl    []int
	built bool
}

func newLineIndex(buf []byte) *lineIndex {
	return &lineIndex{buf: buf}
}

// lineAt returns 1 plus the count of line terminators before off.
func (ix *lineIndex) lineAt(off int) int {
	if !ix.built {
		ix.built = true
		for i, b := range ix.buf {
			if b == '\n' {
				ix.nl = append(ix.nl, i)
			}
		}
	}
	return sort.SearchInts(ix.nl, off) + 1
}

// lineAround extracts the full line containing off, bounded to max
// bytes. Carriage returns are trimmed.
func lineAround(buf []byte, off, max int) string {
	if off > len(buf) {
		off = len(buf)
	}
	start := bytes.LastIndexByte(buf[:off], '\n') + 1
	end := bytes.IndexByte(buf[off:], '\n')
	if end < 0 {
		end = len(buf)
	} else {
		end += off
	}
	if end-start > max {
		end = start + max
	}
	return strings.TrimRight(string(buf[start:end]), "\r")
}

// clip bounds a matched substring for reporting.
func clip(buf []byte, start, end, max int) string {
	if end-start > max {
		end = start + max
	}
	return string(buf[start:end])
}
