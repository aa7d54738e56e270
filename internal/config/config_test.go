// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: MIT

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	cfg.Normalize()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, ":8080", cfg.Server.Addr())
	assert.Equal(t, 4, cfg.Scans.MaxConcurrent)
	assert.Equal(t, 15*time.Minute, cfg.Scans.Timeout)
	assert.Equal(t, "kv", cfg.Storage.Backend)
	assert.Equal(t, 30*24*time.Hour, cfg.Storage.Retention())
}

func TestNormalizeDerivesPaths(t *testing.T) {
	cfg := Default()
	cfg.DataDir = "/var/lib/gatewarden"
	cfg.Normalize()

	assert.Equal(t, filepath.Join("/var/lib/gatewarden", "workspaces"), cfg.Scans.WorkspaceDir)
	assert.Equal(t, filepath.Join("/var/lib/gatewarden", "reports"), cfg.Reports.Dir)
	assert.Equal(t, filepath.Join("/var/lib/gatewarden", "gatewarden.db"), cfg.Storage.DSN)
}

func TestNormalizeFileBackendDSN(t *testing.T) {
	cfg := Default()
	cfg.Storage.Backend = "file"
	cfg.Normalize()
	assert.Equal(t, filepath.Join("data", "scans"), cfg.Storage.DSN)
}

func TestNormalizeKeepsExplicitPaths(t *testing.T) {
	cfg := Default()
	cfg.Scans.WorkspaceDir = "/scratch/ws"
	cfg.Storage.DSN = "/scratch/db.sqlite"
	cfg.Normalize()
	assert.Equal(t, "/scratch/ws", cfg.Scans.WorkspaceDir)
	assert.Equal(t, "/scratch/db.sqlite", cfg.Storage.DSN)
}

func TestResolveFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gatewarden.yaml")
	body := `
server:
  port: 9090
scans:
  max_concurrent: 8
  timeout: 5m
storage:
  backend: memory
log:
  level: debug
  format: json
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := Resolve(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 8, cfg.Scans.MaxConcurrent)
	assert.Equal(t, 5*time.Minute, cfg.Scans.Timeout)
	assert.Equal(t, "memory", cfg.Storage.Backend)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	// Untouched settings keep their defaults.
	assert.Equal(t, 50000, cfg.Scans.MaxFiles)
}

func TestResolveRejectsUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gatewarden.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  prot: 9090\n"), 0o600))

	_, err := Resolve(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse")
}

func TestResolveMissingExplicitFileFails(t *testing.T) {
	_, err := Resolve(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestApplyEnvOverlay(t *testing.T) {
	env := map[string]string{
		EnvPort:          "7070",
		EnvMaxConcurrent: "2",
		EnvScanTimeout:   "90s",
		EnvStorage:       "file",
		EnvStorageDSN:    "/tmp/scans",
		EnvRetentionDays: "7",
		EnvCollectors:    "integration:github_ci, llm:patterns",
		EnvExclude:       "vendor/**, **/*.min.js",
		EnvLogFormat:     "json",
		EnvCatalogWatch:  "true",
	}
	cfg := Default()
	applyEnv(cfg, func(k string) string { return env[k] })

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, 2, cfg.Scans.MaxConcurrent)
	assert.Equal(t, 90*time.Second, cfg.Scans.Timeout)
	assert.Equal(t, []string{"vendor/**", "**/*.min.js"}, cfg.Scans.Exclude)
	assert.Equal(t, "file", cfg.Storage.Backend)
	assert.Equal(t, "/tmp/scans", cfg.Storage.DSN)
	assert.Equal(t, 7, cfg.Storage.RetentionDays)
	assert.Equal(t, []string{"integration:github_ci", "llm:patterns"}, cfg.Collectors.Enabled)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.True(t, cfg.Catalog.Watch)
}

func TestApplyEnvBareSecondsTimeout(t *testing.T) {
	cfg := Default()
	applyEnv(cfg, func(k string) string {
		if k == EnvScanTimeout {
			return "300"
		}
		return ""
	})
	assert.Equal(t, 5*time.Minute, cfg.Scans.Timeout)
}

func TestApplyEnvSkipsGarbage(t *testing.T) {
	cfg := Default()
	applyEnv(cfg, func(k string) string {
		if k == EnvPort {
			return "not-a-port"
		}
		return ""
	})
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port out of range", func(c *Config) { c.Server.Port = 700000 }},
		{"zero concurrency", func(c *Config) { c.Scans.MaxConcurrent = 0 }},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "etcd" }},
		{"unknown log level", func(c *Config) { c.Log.Level = "loud" }},
		{"sql without dsn", func(c *Config) { c.Storage.Backend = "sql"; c.Storage.DSN = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestCollectorsEnabledSet(t *testing.T) {
	var c Collectors
	assert.Empty(t, c.EnabledSet())

	c.Enabled = []string{"integration:github_ci"}
	set := c.EnabledSet()
	assert.True(t, set["integration:github_ci"])
	assert.False(t, set["llm:patterns"])
}
