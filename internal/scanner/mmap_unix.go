// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: MIT

//go:build unix

package scanner

import (
	"os"

	"golang.org/x/sys/unix"
)

// mmapFile maps path read-only. The caller must invoke the returned
// unmap function when done with the data.
func mmapFile(path string, size int64) ([]byte, func() error, error) {
	if size <= 0 {
		// Zero-length mappings are invalid; let the caller fall back.
		return nil, nil, unix.EINVAL
	}
	f, err := os.Open(path) //nolint:gosec // owned working tree
	if err != nil {
		return nil, nil, err
	}
	// The mapping outlives the descriptor; close it either way.
	defer f.Close() //nolint:errcheck // read-only handle

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_PRIVATE)
	if err != nil {
		return nil, nil, err
	}
	return data, func() error { return unix.Munmap(data) }, nil
}
