// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: MIT

package config

import (
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// Environment variable names. All optional; unset variables keep the
// file or default value.
const (
	EnvHost          = "GATEWARDEN_HOST"
	EnvPort          = "GATEWARDEN_PORT"
	EnvCORSOrigins   = "GATEWARDEN_CORS_ORIGINS"
	EnvMaxConcurrent = "GATEWARDEN_MAX_CONCURRENT_SCANS"
	EnvScanTimeout   = "GATEWARDEN_SCAN_TIMEOUT"
	EnvMaxFiles      = "GATEWARDEN_MAX_FILES"
	EnvMaxFileBytes  = "GATEWARDEN_MAX_FILE_SIZE"
	EnvMaxRepoBytes  = "GATEWARDEN_MAX_REPO_SIZE"
	EnvWorkers       = "GATEWARDEN_SCAN_WORKERS"
	EnvExclude       = "GATEWARDEN_EXCLUDE"
	EnvWorkspaceDir  = "GATEWARDEN_WORKSPACE_DIR"
	EnvStorage       = "GATEWARDEN_STORAGE_BACKEND"
	EnvStorageDSN    = "GATEWARDEN_STORAGE_DSN"
	EnvRetentionDays = "GATEWARDEN_RETENTION_DAYS"
	EnvCatalogPath   = "GATEWARDEN_CATALOG"
	EnvCatalogWatch  = "GATEWARDEN_CATALOG_WATCH"
	EnvReportDir     = "GATEWARDEN_REPORT_DIR"
	EnvDataDir       = "GATEWARDEN_DATA_DIR"
	EnvCollectors    = "GATEWARDEN_COLLECTORS"
	EnvLogLevel      = "GATEWARDEN_LOG_LEVEL"
	EnvLogFormat     = "GATEWARDEN_LOG_FORMAT"
)

// applyEnv overlays environment variables onto cfg. The lookup is
// injected so tests do not mutate the process environment. Unparseable
// numeric values are skipped with a warning rather than failing
// startup.
func applyEnv(cfg *Config, getenv func(string) string) {
	setString(getenv, EnvHost, &cfg.Server.Host)
	setInt(getenv, EnvPort, &cfg.Server.Port)
	setList(getenv, EnvCORSOrigins, &cfg.Server.CORSOrigins)

	setInt(getenv, EnvMaxConcurrent, &cfg.Scans.MaxConcurrent)
	setDuration(getenv, EnvScanTimeout, &cfg.Scans.Timeout)
	setInt(getenv, EnvMaxFiles, &cfg.Scans.MaxFiles)
	setInt64(getenv, EnvMaxFileBytes, &cfg.Scans.MaxFileBytes)
	setInt64(getenv, EnvMaxRepoBytes, &cfg.Scans.MaxRepoBytes)
	setInt(getenv, EnvWorkers, &cfg.Scans.Workers)
	setList(getenv, EnvExclude, &cfg.Scans.Exclude)
	setString(getenv, EnvWorkspaceDir, &cfg.Scans.WorkspaceDir)

	setString(getenv, EnvStorage, &cfg.Storage.Backend)
	setString(getenv, EnvStorageDSN, &cfg.Storage.DSN)
	setInt(getenv, EnvRetentionDays, &cfg.Storage.RetentionDays)

	setString(getenv, EnvCatalogPath, &cfg.Catalog.Path)
	setBool(getenv, EnvCatalogWatch, &cfg.Catalog.Watch)

	setString(getenv, EnvReportDir, &cfg.Reports.Dir)
	setString(getenv, EnvDataDir, &cfg.DataDir)
	setList(getenv, EnvCollectors, &cfg.Collectors.Enabled)

	setString(getenv, EnvLogLevel, &cfg.Log.Level)
	setString(getenv, EnvLogFormat, &cfg.Log.Format)
}

func setString(getenv func(string) string, key string, dst *string) {
	if v := getenv(key); v != "" {
		*dst = v
	}
}

func setList(getenv func(string) string, key string, dst *[]string) {
	v := getenv(key)
	if v == "" {
		return
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	*dst = out
}

func setInt(getenv func(string) string, key string, dst *int) {
	v := getenv(key)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("ignoring unparseable environment variable", "name", key, "value", v)
		return
	}
	*dst = n
}

func setInt64(getenv func(string) string, key string, dst *int64) {
	v := getenv(key)
	if v == "" {
		return
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		slog.Warn("ignoring unparseable environment variable", "name", key, "value", v)
		return
	}
	*dst = n
}

func setBool(getenv func(string) string, key string, dst *bool) {
	v := getenv(key)
	if v == "" {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		slog.Warn("ignoring unparseable environment variable", "name", key, "value", v)
		return
	}
	*dst = b
}

// setDuration accepts Go duration syntax ("90s", "15m") and bare
// integers, which are read as seconds for operator convenience.
func setDuration(getenv func(string) string, key string, dst *time.Duration) {
	v := getenv(key)
	if v == "" {
		return
	}
	if d, err := time.ParseDuration(v); err == nil {
		*dst = d
		return
	}
	if n, err := strconv.Atoi(v); err == nil {
		*dst = time.Duration(n) * time.Second
		return
	}
	slog.Warn("ignoring unparseable environment variable", "name", key, "value", v)
}
