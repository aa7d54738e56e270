// Copyright 2026 The Gatewarden Authors
// SPDX-License-Identifier: MIT

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gatewarden/gatewarden/internal/report"
)

// viewNoBrowser is the --no-browser flag value.
var viewNoBrowser bool

// viewCmd opens a rendered report: HTML in the browser, JSON as a
// terminal summary.
var viewCmd = &cobra.Command{
	Use:   "view <report-path>",
	Short: "Open a rendered scan report",
	Long: `Open a report produced by a previous scan. The argument is either a
report file or a scan's report directory; directories prefer the HTML
report when both formats are present. HTML reports open in the default
browser, JSON reports print as a terminal summary.`,
	Args: cobra.ExactArgs(1),
	RunE: runView,
}

func init() {
	viewCmd.Flags().BoolVar(&viewNoBrowser, "no-browser", false, "print the report path instead of opening a browser")
}

func runView(cmd *cobra.Command, args []string) error {
	path, err := resolveReportPath(args[0])
	if err != nil {
		return exitError(ExitError, "gatewarden: %s", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return viewJSON(cmd, path)
	case ".html", ".htm":
		return viewHTML(cmd, path)
	default:
		return exitError(ExitError, "gatewarden: %s is not an html or json report", path)
	}
}

// resolveReportPath accepts a report file or a scan report directory.
// Directories resolve to report.html, falling back to report.json.
func resolveReportPath(arg string) (string, error) {
	info, err := os.Stat(arg)
	if err != nil {
		return "", fmt.Errorf("cannot open %s: %w", arg, err)
	}
	if !info.IsDir() {
		return arg, nil
	}
	for _, name := range []string{"report.html", "report.json"} {
		candidate := filepath.Join(arg, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no report.html or report.json under %s", arg)
}

func viewJSON(cmd *cobra.Command, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // user-provided report path
	if err != nil {
		return exitError(ExitError, "gatewarden: %s", err)
	}
	var env report.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return exitError(ExitError, "gatewarden: parse %s: %s", path, err)
	}
	if env.Result == nil {
		return exitError(ExitError, "gatewarden: %s contains no scan result", path)
	}
	if err := report.Summary(env.Result, 0, cmd.OutOrStdout()); err != nil {
		return exitError(ExitError, "gatewarden: %s", err)
	}
	return nil
}

func viewHTML(cmd *cobra.Command, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	if viewNoBrowser {
		fmt.Fprintln(cmd.OutOrStdout(), abs)
		return nil
	}
	if err := openBrowser(abs); err != nil {
		// No browser available is not a failure; the path is the answer.
		fmt.Fprintln(cmd.OutOrStdout(), abs)
	}
	return nil
}

// openBrowser hands the file to the platform opener.
func openBrowser(path string) error {
	var c *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		c = exec.Command("open", path)
	case "windows":
		c = exec.Command("rundll32", "url.dll,FileProtocolHandler", path)
	default:
		c = exec.Command("xdg-open", path)
	}
	return c.Start()
}
