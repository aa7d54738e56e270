// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: MIT

package inventory

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"golang.org/x/mod/modfile"

	"github.com/gatewarden/gatewarden/internal/gate"
)

// frameworkDeps maps well-known dependency names to the framework tag
// recorded in repo metadata. Tags feed technology aliasing and the
// API-ness heuristic.
var frameworkDeps = map[string]string{
	"express":          "express",
	"koa":              "koa",
	"fastify":          "fastify",
	"next":             "next",
	"react":            "react",
	"vue":              "vue",
	"@angular/core":    "angular",
	"flask":            "flask",
	"django":           "django",
	"fastapi":          "fastapi",
	"actix-web":        "actix",
	"axum":             "axum",
	"rocket":           "rocket",
	"rails":            "rails",
	"laravel/framework": "laravel",
}

var goFrameworkModules = map[string]string{
	"github.com/go-chi/chi":      "chi",
	"github.com/go-chi/chi/v5":   "chi",
	"github.com/gin-gonic/gin":   "gin",
	"github.com/labstack/echo":   "echo",
	"github.com/labstack/echo/v4": "echo",
	"github.com/gofiber/fiber/v2": "fiber",
	"github.com/gorilla/mux":     "gorilla",
	"google.golang.org/grpc":     "grpc",
}

// ExtractBuildMetadata fills meta's build-tool, framework, and platform
// fields from the inventoried files. Parse failures degrade to warnings;
// the stage never fails the scan over one unreadable manifest.
func ExtractBuildMetadata(ctx context.Context, meta *gate.RepoMetadata, files []gate.FileEntry, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}
	tools := make(map[string]bool)
	frameworks := make(map[string]bool)
	platforms := make(map[string]bool)

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		base := strings.ToLower(filepath.Base(f.Path))
		full := filepath.Join(meta.WorkTree, filepath.FromSlash(f.Path))

		switch {
		case base == "go.mod":
			tools["go-modules"] = true
			parseGoMod(full, frameworks, log)
		case base == "package.json":
			tools["npm"] = true
			parsePackageJSON(full, frameworks, log)
		case base == "pyproject.toml":
			tools["pip"] = true
			parsePyProject(full, frameworks, log)
		case base == "requirements.txt":
			tools["pip"] = true
			parseRequirements(full, frameworks, log)
		case base == "cargo.toml":
			tools["cargo"] = true
			parseCargoToml(full, frameworks, log)
		case base == "pom.xml":
			tools["maven"] = true
			scanForSpring(full, frameworks)
		case base == "build.gradle", base == "build.gradle.kts":
			tools["gradle"] = true
			scanForSpring(full, frameworks)
		case base == "gemfile":
			tools["bundler"] = true
		case base == "composer.json":
			tools["composer"] = true
		case base == "makefile":
			tools["make"] = true
		case base == "dockerfile" || strings.HasPrefix(base, "dockerfile."):
			platforms["docker"] = true
		case base == "jenkinsfile":
			platforms["jenkins"] = true
		case base == "serverless.yml" || base == "serverless.yaml":
			platforms["serverless"] = true
		}

		dir := filepath.ToSlash(filepath.Dir(f.Path))
		switch {
		case strings.HasPrefix(dir, ".github/workflows"):
			platforms["github-actions"] = true
		case base == ".gitlab-ci.yml":
			platforms["gitlab-ci"] = true
		case f.Language == "terraform":
			platforms["terraform"] = true
		case f.Language == "yaml" && looksLikeKubernetes(full):
			platforms["kubernetes"] = true
		}
	}

	meta.BuildTools = sortedSet(tools)
	meta.Frameworks = sortedSet(frameworks)
	meta.Platforms = sortedSet(platforms)
	return nil
}

func parseGoMod(path string, frameworks map[string]bool, log *slog.Logger) {
	data, err := os.ReadFile(path) //nolint:gosec // owned working tree
	if err != nil {
		return
	}
	mf, err := modfile.Parse(path, data, nil)
	if err != nil {
		log.Warn("unparseable go.mod", "path", path, "error", err)
		return
	}
	for _, req := range mf.Require {
		if tag, ok := goFrameworkModules[req.Mod.Path]; ok {
			frameworks[tag] = true
		}
	}
}

func parsePackageJSON(path string, frameworks map[string]bool, log *slog.Logger) {
	data, err := os.ReadFile(path) //nolint:gosec // owned working tree
	if err != nil {
		return
	}
	var pkg struct {
		Dependencies    map[string]string `json:"dependencies"`
		DevDependencies map[string]string `json:"devDependencies"`
	}
	if err := json.Unmarshal(data, &pkg); err != nil {
		log.Warn("unparseable package.json", "path", path, "error", err)
		return
	}
	for dep := range pkg.Dependencies {
		if tag, ok := frameworkDeps[dep]; ok {
			frameworks[tag] = true
		}
	}
	for dep := range pkg.DevDependencies {
		if tag, ok := frameworkDeps[dep]; ok {
			frameworks[tag] = true
		}
	}
}

func parsePyProject(path string, frameworks map[string]bool, log *slog.Logger) {
	var doc struct {
		Project struct {
			Dependencies []string `toml:"dependencies"`
		} `toml:"project"`
		Tool struct {
			Poetry struct {
				Dependencies map[string]any `toml:"dependencies"`
			} `toml:"poetry"`
		} `toml:"tool"`
	}
	if _, err := toml.DecodeFile(path, &doc); err != nil {
		log.Warn("unparseable pyproject.toml", "path", path, "error", err)
		return
	}
	for _, dep := range doc.Project.Dependencies {
		markPythonFramework(dep, frameworks)
	}
	for dep := range doc.Tool.Poetry.Dependencies {
		markPythonFramework(dep, frameworks)
	}
}

func parseRequirements(path string, frameworks map[string]bool, _ *slog.Logger) {
	data, err := os.ReadFile(path) //nolint:gosec // owned working tree
	if err != nil {
		return
	}
	for _, line := range strings.Split(string(data), "\n") {
		markPythonFramework(line, frameworks)
	}
}

func markPythonFramework(dep string, frameworks map[string]bool) {
	name := strings.ToLower(strings.TrimSpace(dep))
	for _, sep := range []string{"==", ">=", "<=", "~=", "[", " ", ";"} {
		if i := strings.Index(name, sep); i >= 0 {
			name = name[:i]
		}
	}
	if tag, ok := frameworkDeps[name]; ok {
		frameworks[tag] = true
	}
}

func parseCargoToml(path string, frameworks map[string]bool, log *slog.Logger) {
	var doc struct {
		Dependencies map[string]any `toml:"dependencies"`
	}
	if _, err := toml.DecodeFile(path, &doc); err != nil {
		log.Warn("unparseable Cargo.toml", "path", path, "error", err)
		return
	}
	for dep := range doc.Dependencies {
		if tag, ok := frameworkDeps[dep]; ok {
			frameworks[tag] = true
		}
	}
}

// scanForSpring does a cheap substring probe; full XML/Groovy parsing
// buys nothing over it for framework tagging.
func scanForSpring(path string, frameworks map[string]bool) {
	data, err := os.ReadFile(path) //nolint:gosec // owned working tree
	if err != nil {
		return
	}
	if strings.Contains(string(data), "spring-boot") || strings.Contains(string(data), "org.springframework") {
		frameworks["spring"] = true
	}
}

func looksLikeKubernetes(path string) bool {
	data, err := os.ReadFile(path) //nolint:gosec // owned working tree
	if err != nil || len(data) > 1<<20 {
		return false
	}
	s := string(data)
	return strings.Contains(s, "apiVersion:") && strings.Contains(s, "kind:")
}

func sortedSet(set map[string]bool) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
