// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/gatewarden/gatewarden/internal/gate"
)

// Shard directories under the filetree root. A result lives in exactly
// one of them, keyed by its incomplete flag, so an operator can see at
// a glance which scans were interrupted.
const (
	shardComplete   = "complete"
	shardIncomplete = "incomplete"
)

// Filetree stores one pretty-printed JSON document per scan under
// <root>/<shard>/<scan_id>.json. It is the slowest backend and the only
// one a human can browse with ls and an editor.
type Filetree struct {
	mu   sync.Mutex
	root string
	log  *slog.Logger
}

var _ Store = (*Filetree)(nil)

// OpenFiletree creates the shard directories under root.
func OpenFiletree(root string, log *slog.Logger) (*Filetree, error) {
	const op = "store.filetree.Open"
	if root == "" {
		return nil, gate.Ef(gate.KindInvalidRequest, op, "missing root directory")
	}
	if log == nil {
		log = slog.Default()
	}
	for _, shard := range []string{shardComplete, shardIncomplete} {
		if err := os.MkdirAll(filepath.Join(root, shard), 0o750); err != nil {
			return nil, gate.E(gate.KindStorageUnavailable, op, err).WithPath(root)
		}
	}
	log.Debug("filetree store open", "root", root)
	return &Filetree{root: root, log: log}, nil
}

func (t *Filetree) shardOf(incomplete bool) string {
	if incomplete {
		return shardIncomplete
	}
	return shardComplete
}

func (t *Filetree) path(scanID string, incomplete bool) string {
	return filepath.Join(t.root, t.shardOf(incomplete), scanID+".json")
}

// Save upserts the document, moving it between shards when the
// incomplete flag changed since the last write. The write is atomic:
// a temp file in the target shard renamed over the final name.
func (t *Filetree) Save(_ context.Context, r *gate.ScanResult) error {
	const op = "store.filetree.Save"
	if r == nil || r.ScanID == "" {
		return gate.Ef(gate.KindInvalidRequest, op, "missing scan id")
	}
	if filepath.Base(r.ScanID) != r.ScanID {
		return gate.Ef(gate.KindInvalidRequest, op, "scan id %q is not a valid file name", r.ScanID)
	}
	payload, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return gate.E(gate.KindInternal, op, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	dir := filepath.Join(t.root, t.shardOf(r.Incomplete))
	tmp, err := os.CreateTemp(dir, r.ScanID+".tmp-*")
	if err != nil {
		return gate.E(gate.KindStorageUnavailable, op, err).WithPath(dir)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return gate.E(gate.KindStorageUnavailable, op, err).WithPath(tmpName)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return gate.E(gate.KindStorageUnavailable, op, err).WithPath(tmpName)
	}
	if err := os.Rename(tmpName, t.path(r.ScanID, r.Incomplete)); err != nil {
		_ = os.Remove(tmpName)
		return gate.E(gate.KindStorageUnavailable, op, err)
	}
	// Drop any stale copy in the opposite shard.
	_ = os.Remove(t.path(r.ScanID, !r.Incomplete))
	return nil
}

// Get returns the stored result or ErrNotFound.
func (t *Filetree) Get(_ context.Context, scanID string) (*gate.ScanResult, error) {
	const op = "store.filetree.Get"
	if filepath.Base(scanID) != scanID {
		return nil, ErrNotFound
	}
	for _, incomplete := range []bool{false, true} {
		data, err := os.ReadFile(t.path(scanID, incomplete))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, gate.E(gate.KindStorageUnavailable, op, err)
		}
		return decode(data)
	}
	return nil, ErrNotFound
}

// Update rewrites an existing document; ErrNotFound when absent.
func (t *Filetree) Update(ctx context.Context, r *gate.ScanResult) error {
	if r == nil || r.ScanID == "" {
		return gate.Ef(gate.KindInvalidRequest, "store.filetree.Update", "missing scan id")
	}
	if _, err := t.Get(ctx, r.ScanID); err != nil {
		return err
	}
	return t.Save(ctx, r)
}

// Delete removes the document from whichever shard holds it.
func (t *Filetree) Delete(_ context.Context, scanID string) error {
	const op = "store.filetree.Delete"
	if filepath.Base(scanID) != scanID {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, incomplete := range []bool{false, true} {
		err := os.Remove(t.path(scanID, incomplete))
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return gate.E(gate.KindStorageUnavailable, op, err)
		}
	}
	return nil
}

// List decodes every matching document and returns them newest-first.
func (t *Filetree) List(ctx context.Context, f Filter) ([]*gate.ScanResult, error) {
	all, err := t.readAll(ctx, f)
	if err != nil {
		return nil, err
	}
	sort.Slice(all, func(i, k int) bool {
		if !all[i].CreatedAt.Equal(all[k].CreatedAt) {
			return all[i].CreatedAt.After(all[k].CreatedAt)
		}
		return all[i].ScanID < all[k].ScanID
	})
	return paginate(all, f), nil
}

// Count returns how many documents match the filter.
func (t *Filetree) Count(ctx context.Context, f Filter) (int, error) {
	all, err := t.readAll(ctx, f)
	if err != nil {
		return 0, err
	}
	return len(all), nil
}

// Cleanup removes documents created before the cutoff.
func (t *Filetree) Cleanup(ctx context.Context, olderThan time.Time) (int, error) {
	all, err := t.readAll(ctx, Filter{})
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, r := range all {
		if r.CreatedAt.Before(olderThan) {
			if err := t.Delete(ctx, r.ScanID); err != nil {
				return removed, err
			}
			removed++
		}
	}
	return removed, nil
}

// Stats summarizes both shards.
func (t *Filetree) Stats(ctx context.Context) (Stats, error) {
	all, err := t.readAll(ctx, Filter{})
	if err != nil {
		return Stats{}, err
	}
	s := Stats{Backend: string(BackendFile), Scans: len(all)}
	for _, r := range all {
		if r.Incomplete {
			s.Incomplete++
		}
		if s.Oldest.IsZero() || r.CreatedAt.Before(s.Oldest) {
			s.Oldest = r.CreatedAt
		}
		if r.CreatedAt.After(s.Newest) {
			s.Newest = r.CreatedAt
		}
	}
	return s, nil
}

// Health verifies the root is still a writable directory.
func (t *Filetree) Health(_ context.Context) error {
	const op = "store.filetree.Health"
	info, err := os.Stat(t.root)
	if err != nil {
		return gate.E(gate.KindStorageUnavailable, op, err).WithPath(t.root)
	}
	if !info.IsDir() {
		return gate.Ef(gate.KindStorageUnavailable, op, "%s is not a directory", t.root)
	}
	return nil
}

// Close is a no-op; documents are already on disk.
func (t *Filetree) Close() error { return nil }

// readAll walks the shards selected by the filter and decodes every
// document. Files that vanish mid-walk (a concurrent Delete) are
// skipped; truncated documents are surfaced as errors.
func (t *Filetree) readAll(ctx context.Context, f Filter) ([]*gate.ScanResult, error) {
	const op = "store.filetree.read"
	shards := []string{shardComplete, shardIncomplete}
	if f.Incomplete != nil {
		shards = []string{t.shardOf(*f.Incomplete)}
	}
	var out []*gate.ScanResult
	for _, shard := range shards {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		entries, err := os.ReadDir(filepath.Join(t.root, shard))
		if err != nil {
			return nil, gate.E(gate.KindStorageUnavailable, op, err)
		}
		for _, e := range entries {
			if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
				continue
			}
			data, err := os.ReadFile(filepath.Join(t.root, shard, e.Name()))
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			if err != nil {
				return nil, gate.E(gate.KindStorageUnavailable, op, err)
			}
			r, err := decode(data)
			if err != nil {
				return nil, gate.Ef(gate.KindInternal, op, "corrupt document %s/%s: %v", shard, e.Name(), err)
			}
			out = append(out, r)
		}
	}
	return out, nil
}
