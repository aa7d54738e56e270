// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: MIT

// Package collectors provides the built-in evidence collectors that
// supplement static pattern matching: GitHub CI verification and
// LLM-backed pattern augmentation and recommendation text.
package collectors

// Registration tags. Gates reference these in their
// mandatory_evidence_collectors list; configuration enables or disables
// them by the same names.
const (
	NameGitHubCI     = "integration:github_ci"
	NamePatternLLM   = "llm:patterns"
	NameRecommendLLM = "llm:recommendations"
)
