package main

import (
	"os"
	"os/exec"
	"strings"
	"testing"

	"github.com/gatewarden/gatewarden/internal/version"
)

func TestVersionString_DevDefault(t *testing.T) {
	if version.Version != "dev" {
		t.Skipf("version overridden at build time: %q", version.Version)
	}
	if got := version.String(); !strings.HasPrefix(got, "dev") {
		t.Errorf("version.String() = %q, want dev prefix", got)
	}
}

func TestVersionSubcommand_PrintsInjectedVersion(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}

	binary := t.TempDir() + "/gatewarden-test"
	build := exec.Command("go", "build", //nolint:gosec // test helper with fixed args
		"-ldflags", `-X github.com/gatewarden/gatewarden/internal/version.Version=v0.1.0-test`,
		"-o", binary, ".",
	)
	build.Dir = wd
	if out, err := build.CombinedOutput(); err != nil {
		t.Fatalf("go build failed: %v\n%s", err, out)
	}

	out, err := exec.Command(binary, "version").Output() //nolint:gosec // test helper with fixed args
	if err != nil {
		t.Fatalf("version subcommand failed: %v", err)
	}
	if got := strings.TrimSpace(string(out)); got != "gatewarden v0.1.0-test" {
		t.Errorf("version output = %q, want %q", got, "gatewarden v0.1.0-test")
	}
}
