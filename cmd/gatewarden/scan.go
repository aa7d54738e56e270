// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/gatewarden/gatewarden/internal/config"
	"github.com/gatewarden/gatewarden/internal/gate"
	"github.com/gatewarden/gatewarden/internal/jobs"
	"github.com/gatewarden/gatewarden/internal/report"
)

// Scan-specific flag values.
var (
	scanBranch    string
	scanToken     string
	scanThreshold float64
	scanOutput    string
	scanFormat    string
	scanTimeout   time.Duration
	scanConfig    string
	scanJSON      bool
)

// scanCmd runs one scan end to end and prints the verdict.
var scanCmd = &cobra.Command{
	Use:   "scan <repository-url>",
	Short: "Scan a repository against the hard gate catalog",
	Long: `Scan a Git repository and score it against the hard gate catalog. The
repository is cloned into an isolated workspace, every gate is validated
against the code, and the weighted compliance score decides the exit code:
0 when the score meets the threshold, 1 when it falls short, 2 when the
scan itself fails.

Reports are written under the configured reports directory — HTML for
humans, JSON for machines.`,
	Args: cobra.ExactArgs(1),
	RunE: runScan,
}

func init() {
	scanCmd.Flags().StringVarP(&scanBranch, "branch", "b", "", "branch to scan (default: remote HEAD)")
	scanCmd.Flags().StringVar(&scanToken, "token", "", "access token for private repositories (or set GATEWARDEN_TOKEN)")
	scanCmd.Flags().Float64VarP(&scanThreshold, "threshold", "t", gate.DefaultThreshold, "compliance threshold, 0-100")
	scanCmd.Flags().StringVarP(&scanOutput, "output", "o", "", "report output directory (default: from config)")
	scanCmd.Flags().StringVarP(&scanFormat, "format", "f", "both", "report format (html, json, both)")
	scanCmd.Flags().DurationVar(&scanTimeout, "timeout", 0, "per-scan deadline (default: from config)")
	scanCmd.Flags().StringVar(&scanConfig, "config", "", "path to gatewarden.yaml")
	scanCmd.Flags().BoolVar(&scanJSON, "json", false, "print the JSON report to stdout instead of the summary")
}

func runScan(cmd *cobra.Command, args []string) error {
	repoURL := args[0]

	if scanThreshold < 0 || scanThreshold > 100 {
		return exitError(ExitError, "gatewarden: --threshold must be between 0 and 100 (got %.2f)", scanThreshold)
	}
	switch scanFormat {
	case "html", "json", "both":
	default:
		return exitError(ExitError, "gatewarden: --format must be html, json, or both (got %q)", scanFormat)
	}

	cfg, err := config.Resolve(scanConfig)
	if err != nil {
		return exitError(ExitError, "gatewarden: %s", err)
	}
	if scanOutput != "" {
		cfg.Reports.Dir = scanOutput
	}

	// Credentials never travel through argv in CI; the env var is the
	// supported path there.
	token := scanToken
	if token == "" {
		token = os.Getenv("GATEWARDEN_TOKEN")
	}

	ctx := cmd.Context()
	stack, err := buildStack(ctx, cfg, false, slog.Default())
	if err != nil {
		return exitError(ExitError, "gatewarden: %s", err)
	}
	defer stack.Close()

	snap, err := stack.service.Submit(gate.Request{
		RepositoryURL: repoURL,
		Branch:        scanBranch,
		Credential:    token,
		Threshold:     scanThreshold,
		ReportFormat:  scanFormat,
		Timeout:       scanTimeout,
	})
	if err != nil {
		return exitError(ExitError, "gatewarden: %s", err)
	}

	final, err := waitForScan(ctx, stack, snap.ScanID)
	if err != nil {
		return err
	}

	switch final.Status {
	case jobs.StatusCompleted:
		return printVerdict(cmd, stack, final)
	case jobs.StatusCancelled:
		return exitError(ExitError, "gatewarden: scan cancelled")
	default:
		return exitError(ExitError, "gatewarden: scan failed: %s", strings.Join(final.Errors, "; "))
	}
}

// waitForScan polls the registry until the job lands in a terminal
// state. A first interrupt requests cancellation and keeps waiting so
// the pipeline can clean up its workspace; the scan's own deadline
// bounds how long that takes.
func waitForScan(ctx context.Context, stack *scanStack, scanID string) (jobs.Snapshot, error) {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	done := ctx.Done()
	var lastLine string
	for {
		select {
		case <-done:
			fmt.Fprintln(os.Stderr, "gatewarden: interrupt received, cancelling scan")
			stack.service.Cancel(scanID)
			done = nil
		case <-ticker.C:
			snap, ok := stack.registry.Get(scanID)
			if !ok {
				return jobs.Snapshot{}, exitError(ExitError, "gatewarden: scan %s vanished from the registry", scanID)
			}
			if !quiet {
				line := report.DescribeSnapshotLine(string(snap.Status), snap.Progress, snap.Step, snap.StepDetail)
				if line != lastLine {
					fmt.Fprintln(os.Stderr, line)
					lastLine = line
				}
			}
			if snap.Status.Terminal() {
				return snap, nil
			}
		}
	}
}

// printVerdict renders the finished scan: the JSON report on stdout for
// --json, the colored summary otherwise, then maps the score to the
// exit code.
func printVerdict(cmd *cobra.Command, stack *scanStack, snap jobs.Snapshot) error {
	res := snap.Result
	if res == nil {
		return exitError(ExitError, "gatewarden: scan completed without a result")
	}

	if scanJSON {
		r, err := report.Get("json")
		if err != nil {
			return exitError(ExitError, "gatewarden: %s", err)
		}
		if err := r.Render(res, cmd.OutOrStdout()); err != nil {
			return exitError(ExitError, "gatewarden: render report: %s", err)
		}
	} else {
		if err := report.Summary(res, scanThreshold, cmd.OutOrStdout()); err != nil {
			return exitError(ExitError, "gatewarden: %s", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "\nReports: %s\n", stack.reports.Dir(snap.ScanID))
	}

	if res.OverallScore < scanThreshold {
		// The summary already states the verdict; exit without a message.
		return exitError(ExitBelowThreshold, "")
	}
	return nil
}
