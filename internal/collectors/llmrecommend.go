// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: MIT

package collectors

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/gatewarden/gatewarden/internal/collector"
	"github.com/gatewarden/gatewarden/internal/gate"
	"github.com/gatewarden/gatewarden/internal/llm"
	"github.com/gatewarden/gatewarden/internal/recommend"
)

const (
	llmRecommendMaxTokens = 512
	// recommendEvidenceFiles caps how many matched files the prompt cites.
	recommendEvidenceFiles = 5
)

const recommendSystemPrompt = `You write one short remediation paragraph for a code-quality finding.
Plain text only: no markdown, no headers, no bullet lists. Two to four sentences.`

func init() {
	collector.Register(NewRecommender())
}

// Recommender asks a model for remediation prose on gates that did not
// pass. Output is normalized to a single bounded paragraph; anything
// unusable falls back to the deterministic default downstream.
type Recommender struct {
	mu       sync.Mutex
	provider llm.Provider
	factory  func() (llm.Provider, error)
}

// NewRecommender builds the collector with a lazy Anthropic provider.
func NewRecommender() *Recommender {
	return &Recommender{
		factory: func() (llm.Provider, error) {
			return llm.NewAnthropicProvider()
		},
	}
}

// Name returns the catalog tag this collector registers under.
func (r *Recommender) Name() string { return NameRecommendLLM }

// Phase runs after scoring, once statuses are final.
func (r *Recommender) Phase() collector.Phase { return collector.PhaseRecommend }

// Enabled requires an API key (or injected provider) and a gate result
// that needs action; passing gates get no recommendation call.
func (r *Recommender) Enabled(t *collector.Target) bool {
	r.mu.Lock()
	injected := r.provider != nil
	r.mu.Unlock()
	if !injected && os.Getenv("ANTHROPIC_API_KEY") == "" {
		return false
	}
	if t.Result == nil {
		return false
	}
	return t.Result.Status == gate.StatusFail || t.Result.Status == gate.StatusWarning
}

// Collect produces normalized recommendation text for one gate result.
func (r *Recommender) Collect(ctx context.Context, t *collector.Target) (*collector.Finding, error) {
	p, err := r.getProvider()
	if err != nil {
		return nil, gate.E(gate.KindCollectorFailed, "collectors.llm_recommend", err)
	}

	temp := 0.0
	resp, err := p.Complete(ctx, llm.Request{
		SystemPrompt: recommendSystemPrompt,
		Prompt:       buildRecommendPrompt(t),
		MaxTokens:    llmRecommendMaxTokens,
		Temperature:  &temp,
	})
	if err != nil {
		return nil, gate.E(gate.KindCollectorFailed, "collectors.llm_recommend", err)
	}

	text := recommend.Normalize(resp.Content, recommend.DefaultMaxLen)
	return &collector.Finding{
		Recommendation: text,
		Confidence:     gate.ConfidenceMedium,
		Detail:         "model-generated recommendation",
	}, nil
}

func (r *Recommender) getProvider() (llm.Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.provider != nil {
		return r.provider, nil
	}
	p, err := r.factory()
	if err != nil {
		return nil, err
	}
	r.provider = p
	return p, nil
}

// buildRecommendPrompt summarizes the result: status, score, and a few
// evidence locations so the advice can cite real files.
func buildRecommendPrompt(t *collector.Target) string {
	res := t.Result
	var b strings.Builder
	fmt.Fprintf(&b, "Gate: %s (%s)\n", t.Def.Name, t.Def.DisplayName)
	if t.Def.Description != "" {
		fmt.Fprintf(&b, "Control: %s\n", strings.TrimSpace(t.Def.Description))
	}
	fmt.Fprintf(&b, "Status: %s, score %.1f/100\n", res.Status, res.Score)
	if res.Scoring.Violations > 0 {
		fmt.Fprintf(&b, "Violations found: %d\n", res.Scoring.Violations)
	} else {
		fmt.Fprintf(&b, "Coverage: %.1f%% of relevant files (expected %.0f%%)\n",
			res.Scoring.ActualCoverage, res.Scoring.ExpectedCoverage)
	}
	for i, m := range res.Matches {
		if i == recommendEvidenceFiles {
			break
		}
		fmt.Fprintf(&b, "Evidence: %s:%d %s\n", m.File, m.Line, m.Matched)
	}
	b.WriteString("Write the remediation paragraph.")
	return b.String()
}

// Compile-time interface check.
var _ collector.Collector = (*Recommender)(nil)
