// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: MIT

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gatewarden/gatewarden/internal/catalog"
	"github.com/gatewarden/gatewarden/internal/config"
	"github.com/gatewarden/gatewarden/internal/report"
)

// gatesCatalogPath is the --catalog flag value.
var gatesCatalogPath string

// gatesCmd lists the gate catalog.
var gatesCmd = &cobra.Command{
	Use:   "gates",
	Short: "List the hard gate catalog",
	Long: `Print every gate in the catalog with its category, priority, weight, and
pattern count. The embedded catalog is used unless --catalog or the
GATEWARDEN_CATALOG environment variable points at a file.`,
	Args: cobra.NoArgs,
	RunE: runGates,
}

func init() {
	gatesCmd.Flags().StringVar(&gatesCatalogPath, "catalog", "", "path to a gate catalog file")
}

func runGates(cmd *cobra.Command, _ []string) error {
	path := gatesCatalogPath
	if path == "" {
		path = os.Getenv(config.EnvCatalogPath)
	}

	var (
		lib *catalog.Library
		err error
	)
	if path != "" {
		lib, err = catalog.Load(path, nil, nil)
	} else {
		lib, err = catalog.LoadDefault(nil, nil)
	}
	if err != nil {
		return exitError(ExitError, "gatewarden: %s", err)
	}

	source := lib.Path()
	if source == "" {
		source = "embedded"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Gate catalog %s (%s)\n\n", lib.Version(), source)
	return report.CatalogTable(lib.Gates(), cmd.OutOrStdout())
}
