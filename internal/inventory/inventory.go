// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: MIT

// Package inventory walks a repository working tree and classifies every
// file: language, role, size, line count, binary flag. The result feeds
// applicability analysis and the file scanner.
package inventory

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/gatewarden/gatewarden/internal/gate"
)

const progressEvery = 500

// Options tunes a walk.
type Options struct {
	// MaxFiles aborts the walk with a repo-too-large error when the
	// inventory grows past it. Zero means unbounded.
	MaxFiles int
	// ExcludeGlobs are doublestar patterns matched against slash-form
	// relative paths. A matching directory is pruned whole; a matching
	// file is left out. Invalid patterns are dropped with a warning.
	ExcludeGlobs []string
	// Progress, when set, is invoked every few hundred files.
	Progress func(files int)
	// Warn receives per-file read problems. The walk continues past
	// them; they never fail the inventory.
	Warn func(relPath string, err error)
	Log  *slog.Logger
}

// Walk performs a depth-first inventory of root. The returned file list
// follows walk order (lexical within each directory), which downstream
// consumers rely on for deterministic output.
func Walk(ctx context.Context, root string, opts Options) (*gate.RepoMetadata, []gate.FileEntry, error) {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	meta := &gate.RepoMetadata{
		WorkTree:  root,
		Languages: make(map[string]gate.LanguageStat),
	}
	var files []gate.FileEntry
	w := newWalker()

	globs := make([]string, 0, len(opts.ExcludeGlobs))
	for _, g := range opts.ExcludeGlobs {
		if !doublestar.ValidatePattern(g) {
			log.Warn("ignoring invalid exclude glob", "pattern", g)
			continue
		}
		globs = append(globs, g)
	}

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil // unreadable entries are skipped
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		relPath, relErr := filepath.Rel(root, path)
		if relErr != nil || relPath == "." {
			return nil
		}
		slashPath := filepath.ToSlash(relPath)

		if d.IsDir() {
			if skipDirs[d.Name()] || matchAny(globs, slashPath) {
				return filepath.SkipDir
			}
			return nil
		}

		if matchAny(globs, slashPath) {
			return nil
		}

		// Skip symlinks that resolve outside the working tree.
		if d.Type()&os.ModeSymlink != 0 {
			resolved, resolveErr := filepath.EvalSymlinks(path)
			if resolveErr != nil {
				return nil
			}
			if !strings.HasPrefix(resolved, root+string(filepath.Separator)) && resolved != root {
				return nil
			}
		}

		if shouldSkipFile(relPath) {
			return nil
		}

		info, infoErr := d.Info()
		if infoErr != nil {
			return nil
		}

		entry, inspectErr := w.inspect(path, relPath, info.Size())
		if inspectErr != nil {
			if opts.Warn != nil {
				opts.Warn(relPath, inspectErr)
			}
			log.Debug("skipping unreadable file", "path", relPath, "error", inspectErr)
			return nil
		}

		files = append(files, entry)
		meta.FileCount++
		meta.TotalLines += entry.Lines
		if entry.Language != "" && !entry.Binary {
			stat := meta.Languages[entry.Language]
			stat.Files++
			stat.Lines += entry.Lines
			meta.Languages[entry.Language] = stat
		}

		if opts.MaxFiles > 0 && meta.FileCount > opts.MaxFiles {
			return gate.Ef(gate.KindRepoTooLarge, "inventory.walk",
				"repository exceeds %d files", opts.MaxFiles)
		}
		if opts.Progress != nil && meta.FileCount%progressEvery == 0 {
			opts.Progress(meta.FileCount)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return meta, files, nil
}

// matchAny reports whether any validated glob matches the slash path.
func matchAny(globs []string, slashPath string) bool {
	for _, g := range globs {
		if ok, _ := doublestar.Match(g, slashPath); ok {
			return true
		}
	}
	return false
}

// walker owns reusable read buffers so a large tree does not churn
// allocations.
type walker struct {
	sample []byte
	chunk  []byte
}

func newWalker() *walker {
	return &walker{
		sample: make([]byte, sniffLen),
		chunk:  make([]byte, 32<<10),
	}
}

// inspect opens the file once: sniffs the leading bytes for binary
// content, then streams the remainder counting line terminators. Size
// comes from the directory entry, never from a full read.
func (w *walker) inspect(path, relPath string, size int64) (gate.FileEntry, error) {
	entry := gate.FileEntry{
		Path:     filepath.ToSlash(relPath),
		Language: classifyLanguage(relPath),
		Size:     size,
	}
	entry.Role = classifyRole(relPath, entry.Language)

	f, err := os.Open(path) //nolint:gosec // path comes from the owned working tree
	if err != nil {
		return entry, gate.E(gate.KindFileReadError, "inventory.open", err).WithPath(entry.Path)
	}
	defer f.Close() //nolint:errcheck // read-only handle

	n, err := io.ReadFull(f, w.sample)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return entry, gate.E(gate.KindFileReadError, "inventory.read", err).WithPath(entry.Path)
	}
	head := w.sample[:n]

	if isBinary(head) {
		entry.Binary = true
		return entry, nil
	}

	lines := bytes.Count(head, []byte{'\n'})
	var lastByte byte
	read := n
	if n > 0 {
		lastByte = head[n-1]
	}
	for {
		m, rerr := f.Read(w.chunk)
		if m > 0 {
			lines += bytes.Count(w.chunk[:m], []byte{'\n'})
			lastByte = w.chunk[m-1]
			read += m
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return entry, gate.E(gate.KindFileReadError, "inventory.read", rerr).WithPath(entry.Path)
		}
	}
	// A trailing partial line still counts.
	if read > 0 && lastByte != '\n' {
		lines++
	}
	entry.Lines = lines
	return entry, nil
}
