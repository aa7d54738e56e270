package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestRootCmd_Help(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs([]string{"--help"})

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("--help: %v", err)
	}

	help := out.String()
	if !strings.Contains(help, "hard gates") {
		t.Errorf("root help missing description, got:\n%s", help)
	}
	for _, sub := range []string{"scan", "serve", "gates", "view", "mcp", "version"} {
		if !strings.Contains(help, sub) {
			t.Errorf("root help missing %s subcommand, got:\n%s", sub, help)
		}
	}
}

func TestRootCmd_GlobalFlags(t *testing.T) {
	flags := rootCmd.PersistentFlags()

	tests := []struct {
		name      string
		shorthand string
	}{
		{"verbose", "v"},
		{"quiet", "q"},
		{"no-color", ""},
	}
	for _, tt := range tests {
		f := flags.Lookup(tt.name)
		if f == nil {
			t.Errorf("global flag --%s not registered", tt.name)
			continue
		}
		if f.Shorthand != tt.shorthand {
			t.Errorf("--%s shorthand = %q, want %q", tt.name, f.Shorthand, tt.shorthand)
		}
	}
}
