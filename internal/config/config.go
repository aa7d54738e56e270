// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: MIT

// Package config holds the gatewarden service configuration: defaults
// in code, overridden by an optional YAML file, overridden by
// GATEWARDEN_* environment variables. CLI flags sit on top of all
// three; the cmd layer applies them after Resolve.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
)

// FileName is the service configuration file looked up next to the
// working directory when no explicit path is given.
const FileName = "gatewarden.yaml"

// Config is the full service configuration tree.
type Config struct {
	Server     Server     `yaml:"server"`
	Scans      Scans      `yaml:"scans"`
	Storage    Storage    `yaml:"storage"`
	Catalog    Catalog    `yaml:"catalog"`
	Cache      Cache      `yaml:"cache"`
	Reports    Reports    `yaml:"reports"`
	Collectors Collectors `yaml:"collectors"`
	Log        Log        `yaml:"log"`

	// DataDir roots every path the service derives when the specific
	// setting is left empty (workspaces, reports, embedded database).
	DataDir string `yaml:"data_dir"`
}

// Server configures the HTTP API listener.
type Server struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port" validate:"min=1,max=65535"`
	// CORSOrigins lists allowed Origin values; empty allows any.
	CORSOrigins []string `yaml:"cors_origins"`
	// ShutdownGrace bounds graceful shutdown before in-flight requests
	// are dropped.
	ShutdownGrace time.Duration `yaml:"shutdown_grace"`
}

// Addr returns the listen address in host:port form.
func (s Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Scans bounds scan admission and resource use.
type Scans struct {
	// MaxConcurrent is the global admission limit for running scans.
	MaxConcurrent int `yaml:"max_concurrent" validate:"min=1"`
	// Timeout is the hard per-scan deadline.
	Timeout time.Duration `yaml:"timeout" validate:"min=0"`
	// MaxFiles aborts inventory on repositories with more files.
	// Zero means unbounded.
	MaxFiles int `yaml:"max_files" validate:"min=0"`
	// MaxFileBytes skips individual files larger than this during
	// scanning. Zero keeps the catalog's file-processing default.
	MaxFileBytes int64 `yaml:"max_file_bytes" validate:"min=0"`
	// MaxRepoBytes fails the fetch when the working tree exceeds this
	// size. Zero disables the check.
	MaxRepoBytes int64 `yaml:"max_repo_bytes" validate:"min=0"`
	// Workers sizes the file-scanner pool, capped at the CPU count.
	Workers int `yaml:"workers" validate:"min=0"`
	// Exclude lists doublestar globs matched against slash-separated
	// repository paths; matching files and directories are left out of
	// the inventory.
	Exclude []string `yaml:"exclude"`
	// WorkspaceDir roots per-scan checkouts. Empty derives
	// <data_dir>/workspaces.
	WorkspaceDir string `yaml:"workspace_dir"`
}

// Storage selects and parameterizes the result store backend.
type Storage struct {
	// Backend is one of kv, sql, file, memory.
	Backend string `yaml:"backend" validate:"omitempty,oneof=kv sql file memory"`
	// DSN is a file path for kv and file backends and a connection
	// string for sql. Empty derives a path under DataDir for the file
	// backends.
	DSN string `yaml:"dsn"`
	// RetentionDays bounds how long persisted results are kept before
	// the sweeper removes them. Zero disables sweeping.
	RetentionDays int `yaml:"retention_days" validate:"min=0"`
	// SweepInterval is how often the retention sweeper runs.
	SweepInterval time.Duration `yaml:"sweep_interval" validate:"min=0"`
}

// Catalog selects the gate catalog source.
type Catalog struct {
	// Path points at an external catalog file. Empty uses the embedded
	// default catalog.
	Path string `yaml:"path"`
	// Watch reloads the catalog when the file changes. Ignored for the
	// embedded catalog.
	Watch bool `yaml:"watch"`
}

// Cache bounds the compiled-pattern cache.
type Cache struct {
	MaxEntries int   `yaml:"max_entries" validate:"min=0"`
	MaxBytes   int64 `yaml:"max_bytes" validate:"min=0"`
}

// Reports configures rendered report output.
type Reports struct {
	// Dir receives one subdirectory per scan. Empty derives
	// <data_dir>/reports.
	Dir string `yaml:"dir"`
}

// Collectors enables optional evidence collectors by name. The static
// pattern collector is always on and is not listed here.
type Collectors struct {
	Enabled []string `yaml:"enabled"`
}

// EnabledSet returns the engine-shaped enablement map: nil when no
// optional collector is configured, so a bare config runs static-only.
func (c Collectors) EnabledSet() map[string]bool {
	if len(c.Enabled) == 0 {
		return map[string]bool{}
	}
	set := make(map[string]bool, len(c.Enabled))
	for _, name := range c.Enabled {
		set[name] = true
	}
	return set
}

// Log selects the slog level and handler.
type Log struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `yaml:"format" validate:"omitempty,oneof=text json"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: Server{
			Port:          8080,
			ShutdownGrace: 15 * time.Second,
		},
		Scans: Scans{
			MaxConcurrent: 4,
			Timeout:       15 * time.Minute,
			MaxFiles:      50000,
			MaxRepoBytes:  2 << 30,
		},
		Storage: Storage{
			Backend:       "kv",
			RetentionDays: 30,
			SweepInterval: time.Hour,
		},
		Cache: Cache{
			MaxEntries: 10000,
			MaxBytes:   64 << 20,
		},
		Log: Log{
			Level:  "info",
			Format: "text",
		},
		DataDir: "data",
	}
}

// Normalize derives dependent defaults: paths rooted under DataDir and
// a DSN for the file-backed stores.
func (c *Config) Normalize() {
	if c.DataDir == "" {
		c.DataDir = "data"
	}
	if c.Scans.WorkspaceDir == "" {
		c.Scans.WorkspaceDir = filepath.Join(c.DataDir, "workspaces")
	}
	if c.Reports.Dir == "" {
		c.Reports.Dir = filepath.Join(c.DataDir, "reports")
	}
	if c.Storage.DSN == "" {
		switch c.Storage.Backend {
		case "", "kv":
			c.Storage.DSN = filepath.Join(c.DataDir, "gatewarden.db")
		case "file":
			c.Storage.DSN = filepath.Join(c.DataDir, "scans")
		}
	}
}

// Retention returns the persisted-result retention window.
func (s Storage) Retention() time.Duration {
	return time.Duration(s.RetentionDays) * 24 * time.Hour
}

var checker = validator.New(validator.WithRequiredStructEnabled())

// Validate checks bounds and enumerations after all layers applied.
func (c *Config) Validate() error {
	if err := checker.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			f := verrs[0]
			return fmt.Errorf("config: %s fails %q (value %v)", f.Namespace(), f.Tag(), f.Value())
		}
		return fmt.Errorf("config: %w", err)
	}
	if c.Storage.Backend == "sql" && c.Storage.DSN == "" {
		return fmt.Errorf("config: storage backend sql requires a dsn")
	}
	return nil
}
