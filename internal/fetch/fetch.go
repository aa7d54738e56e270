// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: MIT

// Package fetch materializes a repository revision into a per-scan
// working tree and tears it down afterwards. Every scan owns an
// isolated directory under the fetcher's base dir; nothing here ever
// touches a checkout belonging to another scan.
package fetch

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"

	"github.com/gatewarden/gatewarden/internal/gate"
	"github.com/gatewarden/gatewarden/internal/gitcli"
	"github.com/gatewarden/gatewarden/internal/redact"
)

// Cloner abstracts the clone operation. Production code uses RealCloner;
// tests inject a mock to exercise error paths without a remote.
type Cloner interface {
	CloneContext(ctx context.Context, path string, opts *git.CloneOptions) (Repository, error)
}

// Repository is the subset of *git.Repository the fetcher reads after a
// clone.
type Repository interface {
	Head() (*plumbing.Reference, error)
	CommitObject(h plumbing.Hash) (*object.Commit, error)
}

// RealCloner is the production Cloner backed by go-git.
type RealCloner struct{}

// CloneContext clones into path and returns the repository.
func (RealCloner) CloneContext(ctx context.Context, path string, opts *git.CloneOptions) (Repository, error) {
	repo, err := git.PlainCloneContext(ctx, path, false, opts)
	if err != nil {
		return nil, err
	}
	return repo, nil
}

// DefaultCloner is the production Cloner used when Options leaves it nil.
var DefaultCloner Cloner = RealCloner{}

var (
	_ Cloner     = RealCloner{}
	_ Repository = (*git.Repository)(nil)
)

// Checkout describes a materialized working tree.
type Checkout struct {
	// Path is the working tree root, ready for inventory.
	Path string
	// Branch is the checked-out branch name.
	Branch string
	// CommitHash is the HEAD commit.
	CommitHash string
	// LastCommit is the HEAD commit's author timestamp, UTC.
	LastCommit time.Time
}

// Options configures a Fetcher.
type Options struct {
	// BaseDir roots all per-scan workspaces. Required.
	BaseDir string
	// MaxBytes bounds the checked-out tree size (excluding .git).
	// Zero disables the check.
	MaxBytes int64
	// Cloner defaults to DefaultCloner.
	Cloner Cloner

	Log *slog.Logger
}

// Fetcher clones scan targets into isolated workspace directories.
type Fetcher struct {
	base     string
	maxBytes int64
	cloner   Cloner
	log      *slog.Logger
}

// New builds a Fetcher. The base directory is created on first use.
func New(opts Options) *Fetcher {
	cloner := opts.Cloner
	if cloner == nil {
		cloner = DefaultCloner
	}
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	return &Fetcher{base: opts.BaseDir, maxBytes: opts.MaxBytes, cloner: cloner, log: log}
}

// Dir returns the workspace directory owned by a scan.
func (f *Fetcher) Dir(scanID string) string {
	return filepath.Join(f.base, scanID)
}

// Fetch clones the requested repository revision into the scan's
// workspace. Remote URLs are cloned shallow on a single branch; a
// leftover directory from a previous attempt with the same scan ID is
// replaced. SSH targets retry on the system git binary when go-git
// fails, since go-git often cannot reach the ssh-agent. Error messages
// never echo the repository URL or credential.
func (f *Fetcher) Fetch(ctx context.Context, scanID string, req gate.Request) (*Checkout, error) {
	const op = "fetch.Fetch"
	if scanID == "" {
		return nil, gate.Ef(gate.KindInvalidRequest, op, "missing scan id")
	}
	if req.RepositoryURL == "" {
		return nil, gate.Ef(gate.KindInvalidRequest, op, "missing repository url")
	}

	dir := filepath.Join(f.Dir(scanID), "repo")
	if err := os.RemoveAll(dir); err != nil {
		return nil, gate.E(gate.KindInternal, op, err).WithPath(dir)
	}
	if err := os.MkdirAll(filepath.Dir(dir), 0o750); err != nil {
		return nil, gate.E(gate.KindInternal, op, err)
	}

	opts := &git.CloneOptions{
		URL:          req.RepositoryURL,
		SingleBranch: true,
		Tags:         git.NoTags,
	}
	if remoteURL(req.RepositoryURL) {
		// Shallow history is enough for pattern evidence; local paths
		// clone full because not every file transport serves shallow.
		opts.Depth = 1
	}
	if req.Branch != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(req.Branch)
	}
	if req.Credential != "" && strings.HasPrefix(req.RepositoryURL, "http") {
		opts.Auth = &githttp.BasicAuth{Username: "token", Password: req.Credential}
	}

	start := time.Now()
	f.log.Info("cloning repository", "scan_id", scanID, "url", redact.URL(req.RepositoryURL), "branch", req.Branch)

	co, err := f.clone(ctx, scanID, dir, opts, req)
	if err != nil {
		_ = os.RemoveAll(f.Dir(scanID))
		return nil, err
	}

	if f.maxBytes > 0 {
		size, err := treeSize(dir)
		if err != nil {
			_ = os.RemoveAll(f.Dir(scanID))
			return nil, gate.E(gate.KindInternal, op, err)
		}
		if size > f.maxBytes {
			_ = os.RemoveAll(f.Dir(scanID))
			return nil, gate.Ef(gate.KindRepoTooLarge, op, "working tree is %d bytes, limit %d", size, f.maxBytes)
		}
	}

	f.log.Info("clone complete",
		"scan_id", scanID,
		"branch", co.Branch,
		"commit", co.CommitHash,
		"elapsed", time.Since(start).Round(time.Millisecond))
	return co, nil
}

// clone materializes the checkout, preferring go-git. SSH-style URLs
// without a credential retry on the system binary, which picks up
// ssh-agent and per-user git config that the pure-Go transport misses.
func (f *Fetcher) clone(ctx context.Context, scanID, dir string, opts *git.CloneOptions, req gate.Request) (*Checkout, error) {
	const op = "fetch.Fetch"

	repo, err := f.cloner.CloneContext(ctx, dir, opts)
	if err == nil {
		return f.checkoutFrom(repo, dir, req)
	}

	if sshStyle(req.RepositoryURL) && req.Credential == "" && gitcli.Available() == nil {
		f.log.Warn("go-git clone failed, retrying with system git",
			"scan_id", scanID, "error", redact.Error(err, req.Credential))
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			return nil, gate.E(gate.KindInternal, op, rmErr).WithPath(dir)
		}
		cliErr := gitcli.Clone(ctx, gitcli.CloneOptions{
			URL:    req.RepositoryURL,
			Dir:    dir,
			Branch: req.Branch,
			Depth:  opts.Depth,
		})
		if cliErr == nil {
			head, headErr := gitcli.ResolveHead(ctx, dir)
			if headErr != nil {
				return nil, gate.Ef(gate.KindRepoFetchFailed, op, "resolve HEAD: %s", redact.Error(headErr, req.Credential))
			}
			branch := req.Branch
			if branch == "" {
				branch = head.Branch
			}
			return &Checkout{Path: dir, Branch: branch, CommitHash: head.CommitHash, LastCommit: head.AuthorTime}, nil
		}
		err = cliErr
	}
	return nil, f.classify(op, err, req)
}

// checkoutFrom reads HEAD metadata out of a freshly cloned repository.
func (f *Fetcher) checkoutFrom(repo Repository, dir string, req gate.Request) (*Checkout, error) {
	head, err := repo.Head()
	if err != nil {
		return nil, gate.Ef(gate.KindRepoFetchFailed, "fetch.Fetch", "resolve HEAD: %s", redact.Error(err, req.Credential))
	}
	co := &Checkout{
		Path:       dir,
		Branch:     req.Branch,
		CommitHash: head.Hash().String(),
	}
	if co.Branch == "" {
		co.Branch = head.Name().Short()
	}
	if commit, err := repo.CommitObject(head.Hash()); err == nil {
		co.LastCommit = commit.Author.When.UTC()
	}
	return co, nil
}

// Cleanup removes the scan's entire workspace directory. Missing
// directories are not an error; cleanup must be safe to repeat.
func (f *Fetcher) Cleanup(scanID string) error {
	if scanID == "" || f.base == "" {
		return gate.Ef(gate.KindInvalidRequest, "fetch.Cleanup", "missing scan id or base dir")
	}
	if err := os.RemoveAll(f.Dir(scanID)); err != nil {
		return gate.E(gate.KindInternal, "fetch.Cleanup", err)
	}
	return nil
}

// classify maps a clone failure onto the module's error kinds with all
// credentials scrubbed.
func (f *Fetcher) classify(op string, err error, req gate.Request) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return gate.Ef(gate.KindDeadlineExceeded, op, "clone timed out")
	case errors.Is(err, context.Canceled):
		return gate.Ef(gate.KindCancelled, op, "clone cancelled")
	default:
		return gate.Ef(gate.KindRepoFetchFailed, op, "%s", redact.Error(err, req.Credential))
	}
}

// remoteURL reports whether the target needs a network transport.
func remoteURL(u string) bool {
	for _, scheme := range []string{"http://", "https://", "git://", "ssh://"} {
		if strings.HasPrefix(u, scheme) {
			return true
		}
	}
	// scp-like syntax: git@host:path
	at := strings.IndexByte(u, '@')
	colon := strings.IndexByte(u, ':')
	return at > 0 && colon > at
}

// sshStyle reports whether the target rides the SSH transport, either
// explicitly or via scp-like syntax.
func sshStyle(u string) bool {
	if strings.HasPrefix(u, "ssh://") {
		return true
	}
	if strings.Contains(u, "://") {
		return false
	}
	at := strings.IndexByte(u, '@')
	colon := strings.IndexByte(u, ':')
	return at > 0 && colon > at
}

// treeSize sums regular-file sizes under root, skipping .git.
func treeSize(root string) (int64, error) {
	var total int64
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	return total, err
}
