// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: MIT

package main

import (
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/gatewarden/gatewarden/internal/config"
	"github.com/gatewarden/gatewarden/internal/mcpserver"
	"github.com/gatewarden/gatewarden/internal/version"
)

// mcpConfig is the --config flag value for mcp serve.
var mcpConfig string

// mcpCmd groups the Model Context Protocol subcommands.
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Expose gatewarden to AI agents over MCP",
	Long:  "Commands for running gatewarden as an MCP server, exposing scan, status, and catalog tools to AI agents.",
}

// mcpServeCmd serves MCP on stdin/stdout.
var mcpServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve MCP tools on stdin/stdout",
	Long: `Start an MCP server on stdin/stdout, exposing gatewarden's core tools:
  - scan_repository: Scan a repository and wait for the verdict
  - get_scan_status: Poll a running scan by id
  - list_gates:      List the hard gate catalog

The server communicates using the Model Context Protocol (MCP) over stdio
transport, enabling AI agents to score repositories directly.`,
	Args: cobra.NoArgs,
	RunE: runMCPServe,
}

func init() {
	mcpServeCmd.Flags().StringVar(&mcpConfig, "config", "", "path to gatewarden.yaml")
	mcpCmd.AddCommand(mcpServeCmd)
}

func runMCPServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Resolve(mcpConfig)
	if err != nil {
		return exitError(ExitError, "gatewarden: %s", err)
	}

	ctx := cmd.Context()
	stack, err := buildStack(ctx, cfg, false, slog.Default())
	if err != nil {
		return exitError(ExitError, "gatewarden: %s", err)
	}
	defer stack.Close()

	return mcpserver.Run(ctx, version.String(), mcpserver.Deps{
		Service:  stack.service,
		Registry: stack.registry,
		Library:  stack.library,
	}, &mcp.StdioTransport{})
}
