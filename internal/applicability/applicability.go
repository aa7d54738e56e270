// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: MIT

// Package applicability derives project categories from the inventoried
// stack and decides which gates apply to them. A repository is tagged
// with any of four categories (frontend, backend, api, mobile); a gate
// whose required categories are absent, or whose excluded categories
// are present, is skipped rather than scored.
package applicability

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gatewarden/gatewarden/internal/gate"
)

const (
	CategoryFrontend = "frontend"
	CategoryBackend  = "backend"
	CategoryAPI      = "api"
	CategoryMobile   = "mobile"
)

// backendLanguages imply server-side code by their presence alone.
// JavaScript and TypeScript are deliberately absent (they only count as
// backend when a server framework confirms it), as are java and kotlin
// (Android app code unless no manifest or a server framework says
// otherwise).
var backendLanguages = map[string]bool{
	"python": true, "go": true, "csharp": true,
	"ruby": true, "php": true, "rust": true, "scala": true,
	"groovy": true, "c": true, "cpp": true,
}

var mobileLanguages = map[string]bool{
	"swift": true, "objective-c": true, "dart": true,
}

var frontendFrameworks = map[string]bool{
	"react": true, "vue": true, "angular": true, "next": true,
}

// serverFrameworks mark both the backend and api categories: a repo
// carrying one serves requests.
var serverFrameworks = map[string]bool{
	"express": true, "koa": true, "fastify": true,
	"flask": true, "django": true, "fastapi": true,
	"spring": true, "rails": true, "laravel": true,
	"actix": true, "axum": true, "rocket": true,
	"chi": true, "gin": true, "echo": true, "fiber": true,
	"gorilla": true, "grpc": true,
}

// apiSpecNames match interface-contract files by basename prefix.
var apiSpecNames = []string{"openapi", "swagger", "api-spec", "apispec"}

// Set is the detected category set for one repository.
type Set map[string]bool

// List returns the categories in sorted order for reporting.
func (s Set) List() []string {
	if len(s) == 0 {
		return nil
	}
	out := make([]string, 0, len(s))
	for c := range s {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Detect tags the repository with project categories from its detected
// languages, frameworks, and file names. Languages come straight from
// inventory, not from the catalog's canonical aliasing, since aliasing
// folds mobile signals (kotlin, swift) into server languages.
func Detect(meta *gate.RepoMetadata, files []gate.FileEntry) Set {
	cats := make(Set, 4)

	frameworks := make(map[string]bool, len(meta.Frameworks))
	for _, f := range meta.Frameworks {
		frameworks[strings.ToLower(f)] = true
	}
	hasServerFramework := false
	for fw := range frameworks {
		switch {
		case frontendFrameworks[fw]:
			cats[CategoryFrontend] = true
		case serverFrameworks[fw]:
			cats[CategoryBackend] = true
			cats[CategoryAPI] = true
			hasServerFramework = true
		}
	}

	hasAndroidManifest := false
	for _, f := range files {
		base := strings.ToLower(filepath.Base(f.Path))
		if base == "androidmanifest.xml" {
			hasAndroidManifest = true
		}
		if isAPISpec(base) {
			cats[CategoryAPI] = true
		}
	}
	if hasAndroidManifest {
		cats[CategoryMobile] = true
	}

	for lang := range meta.Languages {
		lang = strings.ToLower(lang)
		switch {
		case backendLanguages[lang]:
			cats[CategoryBackend] = true
		case mobileLanguages[lang]:
			cats[CategoryMobile] = true
		case lang == "java" || lang == "kotlin":
			// JVM code next to an Android manifest is app code, not a
			// service, unless a server framework is also present.
			if !hasAndroidManifest || hasServerFramework {
				cats[CategoryBackend] = true
			}
		case lang == "protobuf":
			cats[CategoryAPI] = true
		}
	}

	hasMarkup := meta.Languages["html"].Files > 0 || meta.Languages["css"].Files > 0
	scripted := meta.Languages["javascript"].Files > 0 ||
		meta.Languages["typescript"].Files > 0 ||
		meta.Languages["vue"].Files > 0
	if scripted && hasMarkup {
		cats[CategoryFrontend] = true
	}

	return cats
}

func isAPISpec(base string) bool {
	ext := filepath.Ext(base)
	if ext != ".yaml" && ext != ".yml" && ext != ".json" {
		return false
	}
	stem := strings.TrimSuffix(base, ext)
	for _, name := range apiSpecNames {
		if strings.HasPrefix(stem, name) {
			return true
		}
	}
	return false
}

// Decide reports whether a gate applies to the detected categories and,
// when it does not, the reason recorded on the skipped result.
//
// A gate with no category constraints always applies. An empty detected
// set also applies every gate: an unrecognizable stack must not silence
// the whole catalog.
func Decide(def *gate.Definition, cats Set) (bool, string) {
	required := def.Applicability.RequiredCategories
	excluded := def.Applicability.ExcludedCategories
	if len(required) == 0 && len(excluded) == 0 {
		return true, ""
	}
	if len(cats) == 0 {
		return true, ""
	}

	for _, c := range excluded {
		if cats[strings.ToLower(c)] {
			return false, reason(def, fmt.Sprintf("not applicable to %s projects", strings.ToLower(c)))
		}
	}
	var missing []string
	for _, c := range required {
		if !cats[strings.ToLower(c)] {
			missing = append(missing, strings.ToLower(c))
		}
	}
	if len(missing) > 0 {
		return false, reason(def, fmt.Sprintf("requires a %s stack, none detected", strings.Join(missing, "/")))
	}
	return true, ""
}

func reason(def *gate.Definition, fallback string) string {
	if def.Applicability.Reason != "" {
		return def.Applicability.Reason
	}
	return fallback
}
