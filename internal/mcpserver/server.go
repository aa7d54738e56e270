// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: MIT

package mcpserver

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/gatewarden/gatewarden/internal/catalog"
	"github.com/gatewarden/gatewarden/internal/gate"
	"github.com/gatewarden/gatewarden/internal/jobs"
)

// ScanService accepts scan submissions. *pipeline.Service satisfies it.
type ScanService interface {
	Submit(req gate.Request) (jobs.Snapshot, error)
}

// Deps carries the shared services the MCP tools operate on. All fields
// are required.
type Deps struct {
	Service  ScanService
	Registry *jobs.Registry
	Library  *catalog.Library
}

// New creates a new MCP server with gatewarden's tools registered.
func New(version string, deps Deps) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "gatewarden",
		Title:   "Gatewarden — Hard Gate Validation",
		Version: version,
	}, nil)

	registerTools(server, deps)
	return server
}

// Run builds a server over deps and serves it on transport, blocking
// until the client disconnects or ctx is cancelled.
func Run(ctx context.Context, version string, deps Deps, transport mcp.Transport) error {
	server := New(version, deps)
	return server.Run(ctx, transport)
}
