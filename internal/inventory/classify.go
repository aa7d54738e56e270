// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: MIT

package inventory

import (
	"path/filepath"
	"strings"

	"github.com/gatewarden/gatewarden/internal/gate"
)

// skipDirs are pruned without descent during the walk.
var skipDirs = map[string]bool{
	".git":          true,
	".hg":           true,
	".svn":          true,
	"node_modules":  true,
	"vendor":        true,
	"venv":          true,
	".venv":         true,
	"env":           true,
	"__pycache__":   true,
	".pytest_cache": true,
	".mypy_cache":   true,
	".tox":          true,
	"dist":          true,
	"build":         true,
	"target":        true,
	"out":           true,
	"bin":           true,
	"obj":           true,
	".idea":         true,
	".vscode":       true,
	".terraform":    true,
	".gradle":       true,
	"coverage":      true,
	".next":         true,
	".nuxt":         true,
	"bower_components": true,
}

// skipExtensions are dropped from the inventory entirely. Binary content
// sniffing catches what this table misses.
var skipExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".bmp": true,
	".ico": true, ".webp": true, ".tiff": true,
	".woff": true, ".woff2": true, ".ttf": true, ".otf": true, ".eot": true,
	".zip": true, ".tar": true, ".gz": true, ".bz2": true, ".xz": true,
	".7z": true, ".rar": true, ".jar": true, ".war": true,
	".exe": true, ".dll": true, ".so": true, ".dylib": true, ".a": true,
	".o": true, ".obj": true, ".bin": true,
	".pdf": true, ".doc": true, ".docx": true, ".xls": true, ".xlsx": true,
	".ppt": true, ".pptx": true,
	".mp3": true, ".mp4": true, ".avi": true, ".mov": true, ".wav": true,
	".db": true, ".sqlite": true, ".sqlite3": true,
	".pyc": true, ".pyo": true, ".class": true, ".pickle": true, ".pkl": true,
	".lock": true, ".map": true,
}

// skipFileNames are dropped by exact name; mostly lockfiles whose
// extension alone does not identify them.
var skipFileNames = map[string]bool{
	"package-lock.json": true,
	"pnpm-lock.yaml":    true,
	"go.sum":            false, // kept: counts as a build file
}

// shouldSkipFile reports whether the file is excluded from inventory by
// name or extension. Minified assets are skipped because their
// single-line bodies defeat line-oriented matching.
func shouldSkipFile(relPath string) bool {
	base := strings.ToLower(filepath.Base(relPath))
	if skipFileNames[base] {
		return true
	}
	if strings.HasSuffix(base, ".min.js") || strings.HasSuffix(base, ".min.css") {
		return true
	}
	return skipExtensions[filepath.Ext(base)]
}

// languageByExtension classifies a file's language from its extension.
var languageByExtension = map[string]string{
	".py":     "python",
	".pyw":    "python",
	".java":   "java",
	".kt":     "kotlin",
	".kts":    "kotlin",
	".scala":  "scala",
	".groovy": "groovy",
	".js":     "javascript",
	".jsx":    "javascript",
	".mjs":    "javascript",
	".cjs":    "javascript",
	".ts":     "typescript",
	".tsx":    "typescript",
	".vue":    "vue",
	".go":     "go",
	".cs":     "csharp",
	".rb":     "ruby",
	".php":    "php",
	".rs":     "rust",
	".c":      "c",
	".h":      "c",
	".cpp":    "cpp",
	".cc":     "cpp",
	".hpp":    "cpp",
	".swift":  "swift",
	".m":      "objective-c",
	".html":   "html",
	".htm":    "html",
	".css":    "css",
	".scss":   "css",
	".less":   "css",
	".sql":    "sql",
	".sh":     "shell",
	".bash":   "shell",
	".ps1":    "powershell",
	".yaml":   "yaml",
	".yml":    "yaml",
	".json":   "json",
	".xml":    "xml",
	".toml":   "toml",
	".md":     "markdown",
	".rst":    "markdown",
	".tf":     "terraform",
	".proto":  "protobuf",
}

// programmingLanguages marks languages that count as source code for
// role classification.
var programmingLanguages = map[string]bool{
	"python": true, "java": true, "kotlin": true, "scala": true,
	"groovy": true, "javascript": true, "typescript": true, "vue": true,
	"go": true, "csharp": true, "ruby": true, "php": true, "rust": true,
	"c": true, "cpp": true, "swift": true, "objective-c": true,
	"shell": true, "powershell": true, "sql": true,
}

// buildFileNames mark a file as build tooling regardless of extension.
var buildFileNames = map[string]bool{
	"makefile":         true,
	"dockerfile":       true,
	"pom.xml":          true,
	"build.gradle":     true,
	"build.gradle.kts": true,
	"settings.gradle":  true,
	"package.json":     true,
	"go.mod":           true,
	"go.sum":           true,
	"cargo.toml":       true,
	"setup.py":         true,
	"pyproject.toml":   true,
	"requirements.txt": true,
	"gemfile":          true,
	"composer.json":    true,
	"cmakelists.txt":   true,
	"build.xml":        true,
	"jenkinsfile":      true,
}

var configExtensions = map[string]bool{
	".yaml": true, ".yml": true, ".json": true, ".toml": true,
	".ini": true, ".conf": true, ".cfg": true, ".properties": true,
	".env": true, ".xml": true,
}

var docExtensions = map[string]bool{
	".md": true, ".rst": true, ".txt": true, ".adoc": true,
}

var testPathMarkers = []string{
	"_test.", ".test.", ".spec.", "/tests/", "/test/", "/__tests__/", "/spec/",
}

// classifyLanguage returns the language tag for a path, empty when
// unknown.
func classifyLanguage(relPath string) string {
	base := strings.ToLower(filepath.Base(relPath))
	if base == "dockerfile" || strings.HasPrefix(base, "dockerfile.") {
		return "docker"
	}
	return languageByExtension[strings.ToLower(filepath.Ext(relPath))]
}

// classifyRole derives the file's role from its name, path, and
// language. Build files win over config extensions; test markers only
// promote files that would otherwise be source.
func classifyRole(relPath, language string) gate.FileRole {
	base := strings.ToLower(filepath.Base(relPath))
	if buildFileNames[base] || strings.HasPrefix(base, "dockerfile") {
		return gate.RoleBuild
	}
	if programmingLanguages[language] {
		if isTestPath(relPath, base) {
			return gate.RoleTest
		}
		return gate.RoleSource
	}
	ext := strings.ToLower(filepath.Ext(relPath))
	switch {
	case docExtensions[ext]:
		return gate.RoleDoc
	case configExtensions[ext]:
		return gate.RoleConfig
	default:
		return gate.RoleOther
	}
}

func isTestPath(relPath, base string) bool {
	slashed := "/" + filepath.ToSlash(relPath)
	for _, marker := range testPathMarkers {
		if strings.Contains(slashed, marker) {
			return true
		}
	}
	return strings.HasPrefix(base, "test_") || strings.HasPrefix(base, "test.")
}
