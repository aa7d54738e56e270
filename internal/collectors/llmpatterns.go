// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: MIT

package collectors

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/gatewarden/gatewarden/internal/collector"
	"github.com/gatewarden/gatewarden/internal/gate"
	"github.com/gatewarden/gatewarden/internal/llm"
)

const (
	// llmMaxPatterns bounds how many augmented patterns one gate accepts.
	llmMaxPatterns = 5
	// llmPatternMaxTokens bounds the completion for a pattern request.
	llmPatternMaxTokens = 1024
)

const patternSystemPrompt = `You design regular expressions for a static code auditor.
Respond with a JSON array only, no prose. Each element:
{"pattern": "<RE2 regex>", "weight": <0.1-1.0>, "rationale": "<short>"}.
Patterns must be valid RE2 (no backreferences, no lookaround).`

func init() {
	collector.Register(NewPatternAugmenter())
}

// PatternAugmenter asks a model for extra regex patterns tailored to the
// repository's stack. Proposals are syntax-checked here; the engine
// compiles survivors through the shared cache tagged as llm evidence.
type PatternAugmenter struct {
	mu       sync.Mutex
	provider llm.Provider
	factory  func() (llm.Provider, error)
}

// NewPatternAugmenter builds the collector with a lazy Anthropic
// provider. The provider is constructed on first use so an unset API key
// costs nothing.
func NewPatternAugmenter() *PatternAugmenter {
	return &PatternAugmenter{
		factory: func() (llm.Provider, error) {
			return llm.NewAnthropicProvider()
		},
	}
}

// Name returns the catalog tag this collector registers under.
func (a *PatternAugmenter) Name() string { return NamePatternLLM }

// Phase runs before the scan; findings feed the single scanner pass.
func (a *PatternAugmenter) Phase() collector.Phase { return collector.PhaseAugment }

// Enabled requires an API key or an injected provider.
func (a *PatternAugmenter) Enabled(*collector.Target) bool {
	a.mu.Lock()
	injected := a.provider != nil
	a.mu.Unlock()
	return injected || os.Getenv("ANTHROPIC_API_KEY") != ""
}

// Collect requests up to llmMaxPatterns extra patterns for the gate.
func (a *PatternAugmenter) Collect(ctx context.Context, t *collector.Target) (*collector.Finding, error) {
	p, err := a.getProvider()
	if err != nil {
		return nil, gate.E(gate.KindCollectorFailed, "collectors.llm_patterns", err)
	}

	temp := 0.0
	resp, err := p.Complete(ctx, llm.Request{
		SystemPrompt: patternSystemPrompt,
		Prompt:       buildPatternPrompt(t),
		MaxTokens:    llmPatternMaxTokens,
		Temperature:  &temp,
	})
	if err != nil {
		return nil, gate.E(gate.KindCollectorFailed, "collectors.llm_patterns", err)
	}

	specs := parsePatternSpecs(resp.Content, t)
	return &collector.Finding{
		Patterns:   specs,
		Confidence: gate.ConfidenceMedium,
		Detail:     fmt.Sprintf("%d augmented pattern(s)", len(specs)),
	}, nil
}

func (a *PatternAugmenter) getProvider() (llm.Provider, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.provider != nil {
		return a.provider, nil
	}
	p, err := a.factory()
	if err != nil {
		return nil, err
	}
	a.provider = p
	return p, nil
}

// buildPatternPrompt describes the gate and the repository's dominant
// languages. Language order is deterministic so identical scans produce
// identical prompts.
func buildPatternPrompt(t *collector.Target) string {
	langs := make([]string, 0, len(t.Meta.Languages))
	for lang, stat := range t.Meta.Languages {
		langs = append(langs, fmt.Sprintf("%s(%d files)", lang, stat.Files))
	}
	sort.Strings(langs)

	var b strings.Builder
	fmt.Fprintf(&b, "Gate: %s (%s)\n", t.Def.Name, t.Def.DisplayName)
	if t.Def.Description != "" {
		fmt.Fprintf(&b, "Checks for: %s\n", strings.TrimSpace(t.Def.Description))
	}
	fmt.Fprintf(&b, "Repository languages: %s\n", strings.Join(langs, ", "))
	fmt.Fprintf(&b, "The catalog already has %d patterns for this gate.\n", t.Def.PatternCount())
	fmt.Fprintf(&b, "Propose at most %d additional patterns that catch evidence the catalog misses.", llmMaxPatterns)
	return b.String()
}

// parsePatternSpecs extracts and sanity-checks the model's proposals.
// Anything that does not compile, or falls outside the weight range, is
// dropped with a warning rather than failing the collector.
func parsePatternSpecs(content string, t *collector.Target) []gate.PatternSpec {
	raw := extractJSONArray(content)
	if raw == "" {
		return nil
	}
	var proposed []gate.PatternSpec
	if err := json.Unmarshal([]byte(raw), &proposed); err != nil {
		if t.Log != nil {
			t.Log.Warn("unparseable llm pattern response", "gate", t.Def.Name, "error", err)
		}
		return nil
	}

	out := make([]gate.PatternSpec, 0, llmMaxPatterns)
	for _, spec := range proposed {
		if len(out) == llmMaxPatterns {
			break
		}
		spec.Pattern = strings.TrimSpace(spec.Pattern)
		if spec.Pattern == "" {
			continue
		}
		if _, err := regexp.Compile(spec.Pattern); err != nil {
			if t.Log != nil {
				t.Log.Warn("dropping invalid llm pattern", "gate", t.Def.Name, "pattern", spec.Pattern, "error", err)
			}
			continue
		}
		if spec.Weight <= 0 || spec.Weight > 1 {
			spec.Weight = 0.5
		}
		out = append(out, spec)
	}
	return out
}

// extractJSONArray returns the outermost JSON array in s, tolerating
// code fences and prose around it.
func extractJSONArray(s string) string {
	start := strings.IndexByte(s, '[')
	end := strings.LastIndexByte(s, ']')
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}

// Compile-time interface check.
var _ collector.Collector = (*PatternAugmenter)(nil)
