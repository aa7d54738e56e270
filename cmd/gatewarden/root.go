package main

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	gatelog "github.com/gatewarden/gatewarden/internal/log"
)

// Global flag values.
var (
	verbose bool
	quiet   bool
	noColor bool
)

// rootCmd is the base command for gatewarden.
var rootCmd = &cobra.Command{
	Use:   "gatewarden",
	Short: "Audit repositories against hard quality gates",
	Long: `Gatewarden audits a Git repository against a catalog of hard gates —
non-negotiable engineering practices like structured logging, retry logic,
circuit breakers, and automated tests. Each gate is validated against
evidence found in the code, scored, and rolled up into a weighted
compliance score with prioritized recommendations.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		gatelog.Setup(verbose, quiet)
		if noColor {
			color.NoColor = true
		}
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.BoolVarP(&verbose, "verbose", "v", false, "debug-level logging")
	pf.BoolVarP(&quiet, "quiet", "q", false, "warnings and errors only")
	pf.BoolVar(&noColor, "no-color", false, "plain output without ANSI color")

	rootCmd.AddCommand(
		scanCmd,
		serveCmd,
		gatesCmd,
		viewCmd,
		mcpCmd,
		versionCmd,
	)
}
