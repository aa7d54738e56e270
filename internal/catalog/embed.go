// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: MIT

package catalog

import (
	_ "embed"
	"log/slog"

	"github.com/gatewarden/gatewarden/internal/regexcache"
)

//go:embed default_gates.yaml
var defaultCatalog []byte

// LoadDefault parses the embedded catalog. It is the fallback whenever
// no external catalog path is configured.
func LoadDefault(cache *regexcache.Cache, log *slog.Logger) (*Library, error) {
	if log == nil {
		log = slog.Default()
	}
	lib := &Library{cache: cache, log: log}
	if err := lib.reloadEmbedded(); err != nil {
		return nil, err
	}
	return lib, nil
}

func (l *Library) reloadEmbedded() error {
	doc, err := Parse(defaultCatalog, l.cache, l.log)
	if err != nil {
		return err
	}
	l.mu.Lock()
	l.doc = doc
	l.mu.Unlock()
	return nil
}
