// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: MIT

package catalog

import (
	"sort"
	"strings"

	"github.com/gatewarden/gatewarden/internal/gate"
)

// DefaultAliases maps canonical catalog languages to the technology tags
// that should select their patterns. A catalog's technology_detection
// block extends this table per language rather than replacing it.
func DefaultAliases() map[string][]string {
	return map[string][]string{
		"java":       {"spring", "kotlin", "scala", "groovy"},
		"javascript": {"node", "nodejs", "typescript", "react", "vue", "angular"},
		"python":     {"django", "flask", "fastapi"},
		"go":         {"golang"},
		"csharp":     {"dotnet", "c#", ".net"},
		"ruby":       {"rails"},
		"php":        {"laravel", "symfony"},
	}
}

// mergeAliases overlays catalog-provided aliases on the fixed defaults.
// A catalog entry replaces that language's tag list; languages the
// catalog does not mention keep their built-in tags.
func mergeAliases(overrides map[string][]string) map[string][]string {
	merged := DefaultAliases()
	for lang, tags := range overrides {
		merged[strings.ToLower(lang)] = tags
	}
	return merged
}

// ResolveLanguages maps detected technology tags to the canonical catalog
// languages whose pattern buckets apply. A tag matches a canonical
// language directly or through the alias table. Output is sorted and
// deduplicated so pattern selection is deterministic.
func ResolveLanguages(technologies []string, aliases map[string][]string) []string {
	if aliases == nil {
		aliases = DefaultAliases()
	}
	reverse := make(map[string]string)
	for canonical, tags := range aliases {
		for _, tag := range tags {
			reverse[strings.ToLower(tag)] = canonical
		}
	}

	seen := make(map[string]bool)
	for _, tech := range technologies {
		tech = strings.ToLower(strings.TrimSpace(tech))
		if tech == "" {
			continue
		}
		if canonical, ok := reverse[tech]; ok {
			seen[canonical] = true
			continue
		}
		seen[tech] = true
	}

	out := make([]string, 0, len(seen))
	for lang := range seen {
		out = append(out, lang)
	}
	sort.Strings(out)
	return out
}

// PrimaryTechnologies applies the catalog thresholds to the inventoried
// language statistics and resolves the winners through the alias table.
func (d *Document) PrimaryTechnologies(meta *gate.RepoMetadata) []string {
	tech := d.Global.TechnologyDetection
	primary := meta.PrimaryLanguages(tech.PrimaryThresholdPercent/100, tech.SecondaryThresholdPercent/100)
	return ResolveLanguages(primary, tech.Aliases)
}

// PrimaryTechnologies resolves against the current catalog snapshot.
func (l *Library) PrimaryTechnologies(meta *gate.RepoMetadata) []string {
	return l.Document().PrimaryTechnologies(meta)
}

func sortedKeys(m map[string][]gate.PatternSpec) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
