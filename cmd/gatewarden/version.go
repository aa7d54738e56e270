package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gatewarden/gatewarden/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  "Print the gatewarden version, including the VCS revision for dev builds.",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "gatewarden %s\n", version.String())
	},
}
