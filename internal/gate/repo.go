// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: MIT

package gate

import (
	"sort"
	"time"
)

// FileRole classifies what a file is for, independent of its language.
type FileRole string

const (
	RoleSource FileRole = "source"
	RoleTest   FileRole = "test"
	RoleConfig FileRole = "config"
	RoleDoc    FileRole = "doc"
	RoleBuild  FileRole = "build"
	RoleOther  FileRole = "other"
)

// FileEntry is one file discovered during inventory.
type FileEntry struct {
	Path     string   `json:"path"` // relative to the working tree
	Language string   `json:"language,omitempty"`
	Role     FileRole `json:"role"`
	Size     int64    `json:"size"`
	Lines    int      `json:"lines"`
	Binary   bool     `json:"binary,omitempty"`
}

// LanguageStat aggregates file and line counts for one language.
type LanguageStat struct {
	Files int `json:"files"`
	Lines int `json:"lines"`
}

// RepoMetadata describes the inventoried repository. Built once during
// the inventory stage and immutable thereafter.
type RepoMetadata struct {
	WorkTree   string                  `json:"-"` // absolute path, never serialized
	RepoURL    string                  `json:"repo_url,omitempty"`
	Branch     string                  `json:"branch,omitempty"`
	FileCount  int                     `json:"file_count"`
	TotalLines int                     `json:"total_lines"`
	Languages  map[string]LanguageStat `json:"languages,omitempty"`

	BuildTools []string `json:"build_tools,omitempty"`
	Frameworks []string `json:"frameworks,omitempty"`
	Platforms  []string `json:"platforms,omitempty"`

	CommitHash string    `json:"commit_hash,omitempty"`
	LastCommit time.Time `json:"last_commit,omitempty"`
}

// PrimaryLanguages returns languages whose file share meets primaryShare
// (0-1). If none qualify, it falls back to the single most populous
// language provided its share meets secondaryShare. Ties break
// lexicographically so detection is deterministic.
func (m *RepoMetadata) PrimaryLanguages(primaryShare, secondaryShare float64) []string {
	if m.FileCount == 0 || len(m.Languages) == 0 {
		return nil
	}
	var primary []string
	bestName, bestShare := "", 0.0
	for name, stat := range m.Languages {
		share := float64(stat.Files) / float64(m.FileCount)
		if share >= primaryShare {
			primary = append(primary, name)
		}
		if share > bestShare || (share == bestShare && (bestName == "" || name < bestName)) {
			bestName, bestShare = name, share
		}
	}
	if len(primary) > 0 {
		sort.Strings(primary)
		return primary
	}
	if bestShare >= secondaryShare {
		return []string{bestName}
	}
	return nil
}

// DefaultThreshold is the compliance threshold applied when a request
// does not set one: a repository scoring at or above it passes.
const DefaultThreshold = 70.0

// Request is a validated scan submission.
type Request struct {
	RepositoryURL string        `json:"repository_url"`
	Branch        string        `json:"branch,omitempty"`
	Credential    string        `json:"credential,omitempty"`
	Threshold     float64       `json:"threshold,omitempty"`     // compliance threshold, default 70
	ReportFormat  string        `json:"report_format,omitempty"` // "html", "json", "both"
	Timeout       time.Duration `json:"-"`
}
