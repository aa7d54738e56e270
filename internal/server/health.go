// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: MIT

package server

import (
	"net/http"

	"github.com/gatewarden/gatewarden/internal/gate"
	"github.com/gatewarden/gatewarden/internal/jobs"
	"github.com/gatewarden/gatewarden/internal/redact"
	"github.com/gatewarden/gatewarden/internal/store"
)

// gateInfo is one catalog entry in the listing, without the full
// pattern bodies: clients wanting patterns load the catalog file.
type gateInfo struct {
	Name               string           `json:"name"`
	DisplayName        string           `json:"display_name"`
	Category           string           `json:"category,omitempty"`
	Priority           gate.Priority    `json:"priority"`
	Weight             float64          `json:"weight"`
	ScoringMode        gate.ScoringMode `json:"scoring_mode"`
	PatternCount       int              `json:"pattern_count"`
	Description        string           `json:"description,omitempty"`
	RequiredCategories []string         `json:"required_categories,omitempty"`
	ExcludedCategories []string         `json:"excluded_categories,omitempty"`
	Collectors         []string         `json:"mandatory_evidence_collectors,omitempty"`
}

type gatesResponse struct {
	Version       string     `json:"version"`
	TotalGates    int        `json:"total_gates"`
	TotalPatterns int        `json:"total_patterns"`
	Gates         []gateInfo `json:"gates"`
}

func (s *Server) handleGates(w http.ResponseWriter, _ *http.Request) {
	defs := s.library.Gates()
	infos := make([]gateInfo, 0, len(defs))
	patterns := 0
	for _, d := range defs {
		n := d.PatternCount()
		patterns += n
		infos = append(infos, gateInfo{
			Name:               d.Name,
			DisplayName:        d.DisplayName,
			Category:           d.Category,
			Priority:           d.Priority,
			Weight:             d.Weight,
			ScoringMode:        d.Scoring.Mode,
			PatternCount:       n,
			Description:        d.Description,
			RequiredCategories: d.Applicability.RequiredCategories,
			ExcludedCategories: d.Applicability.ExcludedCategories,
			Collectors:         d.EvidenceCollectors,
		})
	}
	writeJSON(w, http.StatusOK, gatesResponse{
		Version:       s.library.Version(),
		TotalGates:    len(defs),
		TotalPatterns: patterns,
		Gates:         infos,
	})
}

type catalogInfo struct {
	Version string `json:"version"`
	Gates   int    `json:"gates"`
	// Source is the external catalog path, or "embedded".
	Source string `json:"source"`
}

type healthResponse struct {
	Status  string      `json:"status"`
	Version string      `json:"version"`
	Catalog catalogInfo `json:"catalog"`
	Jobs    jobs.Stats  `json:"jobs"`

	Store      *store.Stats `json:"store,omitempty"`
	StoreError string       `json:"store_error,omitempty"`
}

// handleHealth reports liveness plus backend health: 200 when the
// result store answers, 503 when it does not. The process keeps
// serving status reads from the registry either way.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	resp := healthResponse{
		Status:  "ok",
		Version: s.version,
		Catalog: catalogInfo{
			Version: s.library.Version(),
			Gates:   len(s.library.Gates()),
			Source:  catalogSource(s.library.Path()),
		},
		Jobs: s.registry.Stats(),
	}

	code := http.StatusOK
	if err := s.store.Health(ctx); err != nil {
		resp.Status = "degraded"
		resp.StoreError = redact.String(err.Error())
		code = http.StatusServiceUnavailable
	} else if stats, err := s.store.Stats(ctx); err == nil {
		resp.Store = &stats
	}
	writeJSON(w, code, resp)
}

func catalogSource(path string) string {
	if path == "" {
		return "embedded"
	}
	return path
}
