// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: MIT

//go:build !unix

package scanner

import "errors"

// mmapFile is unavailable on this platform; callers fall back to a
// full read.
func mmapFile(string, int64) ([]byte, func() error, error) {
	return nil, nil, errors.New("mmap not supported on this platform")
}
