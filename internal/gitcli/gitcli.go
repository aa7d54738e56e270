// Package gitcli shells out to the system git binary for the transports
// go-git cannot serve, ssh-agent authentication in particular. The
// fetcher prefers go-git and falls back here when a clone fails on an
// SSH-style URL and the binary is on PATH.
//
// Credentials never pass through this package: argv is visible in the
// process table, so token-authenticated HTTPS clones stay on go-git.
package gitcli

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// probeTimeout bounds quick metadata commands such as the HEAD lookup.
// Clones run under the caller's context alone.
const probeTimeout = 5 * time.Second

// Executor abstracts exec.LookPath and exec.CommandContext so this
// package can be tested without a real git binary.
type Executor interface {
	LookPath(file string) (string, error)
	CommandContext(ctx context.Context, name string, args ...string) *exec.Cmd
}

// RealExecutor is the production Executor backed by os/exec.
type RealExecutor struct{}

// LookPath wraps exec.LookPath.
func (RealExecutor) LookPath(file string) (string, error) {
	return exec.LookPath(file)
}

// CommandContext wraps exec.CommandContext.
func (RealExecutor) CommandContext(ctx context.Context, name string, args ...string) *exec.Cmd {
	return exec.CommandContext(ctx, name, args...) //nolint:gosec // args are controlled by callers within this package
}

var executor Executor = RealExecutor{}

// SetExecutor swaps the process executor, primarily for tests. Passing
// nil restores the real one.
func SetExecutor(e Executor) {
	if e == nil {
		executor = RealExecutor{}
		return
	}
	executor = e
}

// Available reports whether the git binary is on PATH.
func Available() error {
	if _, err := executor.LookPath("git"); err != nil {
		return fmt.Errorf("git not found on PATH: %w", err)
	}
	return nil
}

// Run executes a git command in dir and returns its stdout. Stderr is
// folded into the error; callers redact before logging.
func Run(ctx context.Context, dir string, args ...string) ([]byte, error) {
	cmd := executor.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

// CloneOptions parameterizes a CLI clone.
type CloneOptions struct {
	URL    string
	Dir    string
	Branch string // empty clones the remote default branch
	// Depth limits history; zero clones full history.
	Depth int
}

// Clone runs a single-branch clone into opts.Dir. The caller owns the
// directory and removes it on failure.
func Clone(ctx context.Context, opts CloneOptions) error {
	if opts.URL == "" || opts.Dir == "" {
		return fmt.Errorf("gitcli: clone needs a url and a target dir")
	}
	args := []string{"clone", "--single-branch", "--no-tags"}
	if opts.Depth > 0 {
		args = append(args, "--depth", strconv.Itoa(opts.Depth))
	}
	if opts.Branch != "" {
		args = append(args, "--branch", opts.Branch)
	}
	args = append(args, "--", opts.URL, opts.Dir)

	_, err := Run(ctx, "", args...)
	return err
}

// Head describes the checked-out HEAD of a working tree.
type Head struct {
	CommitHash string
	Branch     string
	AuthorTime time.Time
}

// ResolveHead reads the HEAD commit hash, branch name, and author
// timestamp from a working tree.
func ResolveHead(ctx context.Context, dir string) (Head, error) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	out, err := Run(ctx, dir, "log", "-1", "--format=%H%x00%at")
	if err != nil {
		return Head{}, err
	}
	hash, unix, ok := strings.Cut(strings.TrimSpace(string(out)), "\x00")
	if !ok || len(hash) != 40 || !isHex(hash) {
		return Head{}, fmt.Errorf("gitcli: unexpected log output %q", strings.TrimSpace(string(out)))
	}
	h := Head{CommitHash: hash}
	if secs, err := strconv.ParseInt(unix, 10, 64); err == nil {
		h.AuthorTime = time.Unix(secs, 0).UTC()
	}

	if out, err := Run(ctx, dir, "rev-parse", "--abbrev-ref", "HEAD"); err == nil {
		if name := strings.TrimSpace(string(out)); name != "" && name != "HEAD" {
			h.Branch = name
		}
	}
	return h, nil
}

// isHex reports whether s consists entirely of hexadecimal characters.
func isHex(s string) bool {
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') && (c < 'A' || c > 'F') {
			return false
		}
	}
	return len(s) > 0
}
