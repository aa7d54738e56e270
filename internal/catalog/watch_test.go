// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: MIT

package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatchReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gates.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimalCatalog), 0o644))

	lib, err := Load(path, nil, discard())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, lib.Watch(ctx))

	updated := []byte(`
version: "2.0.0"
gates:
  STRUCTURED_LOGS:
    display_name: Structured Logs
    priority: high
    weight: 2.0
    patterns:
      all_languages:
        - pattern: 'logger'
          weight: 1.0
`)
	require.NoError(t, os.WriteFile(path, updated, 0o644))

	deadline := time.After(5 * time.Second)
	for lib.Version() != "2.0.0" {
		select {
		case <-deadline:
			t.Fatalf("catalog not reloaded, still at %s", lib.Version())
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func TestWatchKeepsCatalogOnBadWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gates.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimalCatalog), 0o644))

	lib, err := Load(path, nil, discard())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, lib.Watch(ctx))

	require.NoError(t, os.WriteFile(path, []byte("gates: ["), 0o644))
	// Give the watcher time to observe and reject the write.
	time.Sleep(2 * debounce)
	assert.Equal(t, "1.0.0", lib.Version())
	assert.Len(t, lib.Gates(), 2)
}

func TestWatchEmbeddedIsNoop(t *testing.T) {
	lib, err := LoadDefault(nil, discard())
	require.NoError(t, err)
	assert.NoError(t, lib.Watch(context.Background()))
}
