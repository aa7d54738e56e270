// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: MIT

package collectors

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/google/go-github/v68/github"
	"github.com/sony/gobreaker"

	"github.com/gatewarden/gatewarden/internal/collector"
	"github.com/gatewarden/gatewarden/internal/gate"
)

// sshRemotePattern matches git@github.com:owner/repo.git SSH URLs.
var sshRemotePattern = regexp.MustCompile(`^git@github\.com:([^/]+)/([^/]+?)(?:\.git)?$`)

func init() {
	collector.Register(NewCIVerifier())
}

// githubAPI abstracts the GitHub API for testing.
type githubAPI interface {
	ListWorkflows(ctx context.Context, owner, repo string, opts *github.ListOptions) (*github.Workflows, *github.Response, error)
}

// realGitHubAPI wraps the real go-github client to implement githubAPI.
type realGitHubAPI struct {
	client *github.Client
}

func (r *realGitHubAPI) ListWorkflows(ctx context.Context, owner, repo string, opts *github.ListOptions) (*github.Workflows, *github.Response, error) {
	return r.client.Actions.ListWorkflows(ctx, owner, repo, opts)
}

// CIVerifier confirms a repository's CI setup against the GitHub API:
// the automated-tests gate can claim external verification only when the
// repository actually has active workflow definitions. Calls run behind
// a circuit breaker so a flaky or rate-limited API degrades to
// "collector failed" instead of stalling every scan.
type CIVerifier struct {
	// api is the GitHub API client (nil means build the real client from
	// GITHUB_TOKEN at collect time).
	api     githubAPI
	breaker *gobreaker.CircuitBreaker
}

// NewCIVerifier builds the collector with its breaker. The breaker opens
// after three consecutive API failures and probes again after two
// minutes.
func NewCIVerifier() *CIVerifier {
	return &CIVerifier{
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "github_ci",
			MaxRequests: 1,
			Timeout:     2 * time.Minute,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= 3
			},
		}),
	}
}

// Name returns the catalog tag this collector registers under.
func (c *CIVerifier) Name() string { return NameGitHubCI }

// Phase runs after the scan, contributing an external verdict.
func (c *CIVerifier) Phase() collector.Phase { return collector.PhaseVerify }

// Enabled requires an API client (token or injected) and a GitHub
// remote. Anything else is recorded as skipped.
func (c *CIVerifier) Enabled(t *collector.Target) bool {
	if c.api == nil && os.Getenv("GITHUB_TOKEN") == "" {
		return false
	}
	_, _, err := parseGitHubURL(t.Meta.RepoURL)
	return err == nil
}

// Collect lists the repository's workflows and reports whether any are
// active.
func (c *CIVerifier) Collect(ctx context.Context, t *collector.Target) (*collector.Finding, error) {
	owner, repo, err := parseGitHubURL(t.Meta.RepoURL)
	if err != nil {
		return nil, gate.E(gate.KindCollectorFailed, "collectors.github_ci", err)
	}

	api := c.api
	if api == nil {
		client := github.NewClient(nil).WithAuthToken(os.Getenv("GITHUB_TOKEN"))
		api = &realGitHubAPI{client: client}
	}

	v, err := c.breaker.Execute(func() (any, error) {
		wf, _, lerr := api.ListWorkflows(ctx, owner, repo, &github.ListOptions{PerPage: 50})
		if lerr != nil {
			return nil, lerr
		}
		return wf, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, gate.Ef(gate.KindCollectorFailed, "collectors.github_ci", "github api circuit open")
		}
		return nil, gate.E(gate.KindCollectorFailed, "collectors.github_ci", err)
	}

	wf := v.(*github.Workflows)
	active := 0
	for _, w := range wf.Workflows {
		if w.GetState() == "active" {
			active++
		}
	}
	verified := active > 0
	return &collector.Finding{
		Verified:   &verified,
		Confidence: gate.ConfidenceHigh,
		Detail:     fmt.Sprintf("%d active workflow(s) on github.com/%s/%s", active, owner, repo),
	}, nil
}

// parseGitHubURL parses a GitHub URL (HTTPS or SSH) into owner and
// repo. Error messages never echo the raw URL since it may embed a
// credential.
func parseGitHubURL(rawURL string) (owner, repo string, err error) {
	if m := sshRemotePattern.FindStringSubmatch(rawURL); m != nil {
		return m[1], m[2], nil
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", "", errors.New("unparseable remote URL")
	}
	if parsed.Host != "github.com" {
		return "", "", fmt.Errorf("remote host %q is not github.com", parsed.Host)
	}

	parts := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	if len(parts) < 2 {
		return "", "", fmt.Errorf("cannot parse owner/repo from path %q", parsed.Path)
	}
	return parts[0], strings.TrimSuffix(parts[1], ".git"), nil
}

// Compile-time interface check.
var _ collector.Collector = (*CIVerifier)(nil)
