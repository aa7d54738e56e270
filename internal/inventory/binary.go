// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: MIT

package inventory

import (
	"bytes"
	"unicode/utf8"
)

// sniffLen is how much of a file the binary heuristic inspects.
const sniffLen = 4096

// invalidUTF8Threshold is the invalid-byte density above which a file is
// treated as binary.
const invalidUTF8Threshold = 0.10

// magicNumbers are signatures of binary formats that occasionally hide
// behind text-looking names.
var magicNumbers = [][]byte{
	{0x1F, 0x8B},             // gzip
	{0x50, 0x4B, 0x03, 0x04}, // zip
	{0x50, 0x4B, 0x05, 0x06}, // empty zip
	{0x89, 0x50, 0x4E, 0x47}, // png
	{0xFF, 0xD8, 0xFF},       // jpeg
	{0x47, 0x49, 0x46, 0x38}, // gif
	{0x25, 0x50, 0x44, 0x46}, // pdf
	{0x7F, 0x45, 0x4C, 0x46}, // elf
	{0xCA, 0xFE, 0xBA, 0xBE}, // mach-o
	{0x77, 0x4F, 0x46, 0x46}, // woff
	{0x77, 0x4F, 0x46, 0x32}, // woff2
}

// isBinary inspects a leading sample of file content. A NUL byte, a
// known magic number, or a high density of invalid UTF-8 marks the file
// binary.
func isBinary(sample []byte) bool {
	if len(sample) == 0 {
		return false
	}
	if len(sample) > sniffLen {
		sample = sample[:sniffLen]
	}
	for _, magic := range magicNumbers {
		if bytes.HasPrefix(sample, magic) {
			return true
		}
	}
	if bytes.IndexByte(sample, 0) >= 0 {
		return true
	}

	invalid := 0
	for i := 0; i < len(sample); {
		r, size := utf8.DecodeRune(sample[i:])
		if r == utf8.RuneError && size == 1 {
			// A truncated rune at the sample edge is not evidence.
			if i+utf8.UTFMax > len(sample) {
				break
			}
			invalid++
		}
		i += size
	}
	return float64(invalid)/float64(len(sample)) > invalidUTF8Threshold
}
