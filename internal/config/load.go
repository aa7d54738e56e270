// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: MIT

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
)

// Resolve builds the effective configuration: defaults, then the YAML
// file, then environment variables, then derived paths, then
// validation. An empty path looks for ./gatewarden.yaml and silently
// skips it when absent; an explicit path must exist.
func Resolve(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if path == "" {
		path = FileName
	}
	if err := loadFile(cfg, path, explicit); err != nil {
		return nil, err
	}
	applyEnv(cfg, os.Getenv)
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFile merges one YAML document over cfg. Unknown keys are
// rejected so a typoed setting fails loudly instead of silently
// keeping its default.
func loadFile(cfg *Config, path string, mustExist bool) error {
	data, err := os.ReadFile(path) //nolint:gosec // operator-provided config path
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !mustExist {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}
