// Package mcpserver implements an MCP (Model Context Protocol) server
// that exposes gatewarden's scan operations as tools over stdio transport.
package mcpserver

import (
	"fmt"
	"strings"
)

const (
	maxURLLength    = 2048
	maxBranchLength = 255
)

// ValidateRepositoryURL normalizes and validates a scan target. It
// accepts http(s), ssh, git, and scp-like remote URLs plus absolute
// local paths, and rejects anything that could smuggle flags or control
// bytes into a transport.
func ValidateRepositoryURL(raw string) (string, error) {
	u := strings.TrimSpace(raw)
	if u == "" {
		return "", fmt.Errorf("repository_url is required")
	}
	if len(u) > maxURLLength {
		return "", fmt.Errorf("repository_url exceeds %d characters", maxURLLength)
	}
	if err := rejectUnsafeRunes("repository_url", u); err != nil {
		return "", err
	}
	if strings.ContainsAny(u, " \t") {
		return "", fmt.Errorf("repository_url must not contain whitespace")
	}
	if strings.HasPrefix(u, "-") {
		return "", fmt.Errorf("repository_url must not start with '-'")
	}

	for _, scheme := range []string{"http://", "https://", "ssh://", "git://"} {
		if strings.HasPrefix(u, scheme) {
			return u, nil
		}
	}
	if strings.HasPrefix(u, "/") {
		// Absolute local working tree.
		return u, nil
	}
	// scp-like syntax: user@host:path
	at := strings.IndexByte(u, '@')
	colon := strings.IndexByte(u, ':')
	if at > 0 && colon > at+1 && colon < len(u)-1 {
		return u, nil
	}
	return "", fmt.Errorf("repository_url %q is not a recognized git target", u)
}

// ValidateBranch checks a branch name against the characters git itself
// refuses, so a hostile name cannot reach the clone transport. Empty
// means the repository default and is fine.
func ValidateBranch(branch string) error {
	if branch == "" {
		return nil
	}
	if len(branch) > maxBranchLength {
		return fmt.Errorf("branch exceeds %d characters", maxBranchLength)
	}
	if err := rejectUnsafeRunes("branch", branch); err != nil {
		return err
	}
	if strings.HasPrefix(branch, "-") || strings.HasPrefix(branch, ".") || strings.HasPrefix(branch, "/") {
		return fmt.Errorf("branch %q has an invalid leading character", branch)
	}
	if strings.HasSuffix(branch, "/") || strings.HasSuffix(branch, ".lock") {
		return fmt.Errorf("branch %q has an invalid suffix", branch)
	}
	if strings.Contains(branch, "..") || strings.Contains(branch, "@{") || strings.Contains(branch, "//") {
		return fmt.Errorf("branch %q contains an invalid sequence", branch)
	}
	if strings.ContainsAny(branch, " ~^:?*[\\") {
		return fmt.Errorf("branch %q contains characters git refuses", branch)
	}
	return nil
}

// ValidateThreshold bounds the passing score. Zero means the default.
func ValidateThreshold(t float64) error {
	if t < 0 || t > 100 {
		return fmt.Errorf("threshold must be between 0 and 100, got %g", t)
	}
	return nil
}

// rejectUnsafeRunes refuses control characters, which have no business
// in any git target and usually signal an injection attempt.
func rejectUnsafeRunes(field, s string) error {
	for _, r := range s {
		if r < 0x20 || r == 0x7f {
			return fmt.Errorf("%s contains control characters", field)
		}
	}
	return nil
}
