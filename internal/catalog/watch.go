// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: MIT

package catalog

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounce collapses editor write bursts into one reload.
const debounce = 250 * time.Millisecond

// Watch reloads the catalog whenever its backing file changes. It
// returns immediately for the embedded catalog. The watcher stops when
// ctx is cancelled. A reload failure keeps the previous document and
// logs the error; running scans are never interrupted.
func (l *Library) Watch(ctx context.Context) error {
	if l.path == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	// Watch the directory, not the file: editors replace files by
	// rename, which drops a direct file watch.
	if err := watcher.Add(filepath.Dir(l.path)); err != nil {
		watcher.Close() //nolint:errcheck // already failing
		return err
	}

	go func() {
		defer watcher.Close() //nolint:errcheck // shutdown path
		var timer *time.Timer
		var pending <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(l.path) {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
					continue
				}
				if timer == nil {
					timer = time.NewTimer(debounce)
				} else {
					timer.Reset(debounce)
				}
				pending = timer.C
			case <-pending:
				pending = nil
				if err := l.Reload(); err != nil {
					l.log.Error("catalog reload failed, keeping previous", "path", l.path, "error", err)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				l.log.Warn("catalog watcher error", "error", err)
			}
		}
	}()
	return nil
}
