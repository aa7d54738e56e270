// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatewarden/gatewarden/internal/gate"
)

func TestSQLiteSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "scans.db")

	s, err := OpenSQLite(path, discard())
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, sampleResult("scan-keep", t0, false)))
	require.NoError(t, s.Close())

	s, err = OpenSQLite(path, discard())
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Get(ctx, "scan-keep")
	require.NoError(t, err)
	assert.Equal(t, "scan-keep", got.ScanID)
	assert.WithinDuration(t, t0, got.CreatedAt, time.Microsecond)
}

func TestSQLiteCreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deeper", "scans.db")
	s, err := OpenSQLite(path, discard())
	require.NoError(t, err)
	require.NoError(t, s.Close())
	assert.FileExists(t, path)
}

func TestOpenSQLiteMissingPath(t *testing.T) {
	_, err := OpenSQLite("", discard())
	require.Error(t, err)
	assert.Equal(t, gate.KindInvalidRequest, gate.KindOf(err))
}

// The pipeline saves from several scan goroutines at once; the single
// writer connection must serialize them without SQLITE_BUSY failures.
func TestSQLiteConcurrentWriters(t *testing.T) {
	ctx := context.Background()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "scans.db"), discard())
	require.NoError(t, err)
	defer s.Close()

	const writers = 8
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("scan-%02d", i)
			errs <- s.Save(ctx, sampleResult(id, t0.Add(time.Duration(i)*time.Second), i%2 == 0))
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	n, err := s.Count(ctx, Filter{})
	require.NoError(t, err)
	assert.Equal(t, writers, n)
}
