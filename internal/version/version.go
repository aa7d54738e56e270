// Package version reports the gatewarden build version.
package version

import (
	"runtime/debug"
	"strings"
)

// Version is set via -ldflags at release build time. Module builds
// without the flag fall back to VCS metadata embedded by the toolchain.
var Version = "dev"

// String returns the version, annotated with the short VCS revision
// when the binary carries build info and no release version was set.
func String() string {
	if Version != "dev" {
		return Version
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return Version
	}
	var revision, modified string
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.modified":
			modified = s.Value
		}
	}
	if revision == "" {
		return Version
	}
	if len(revision) > 12 {
		revision = revision[:12]
	}
	var b strings.Builder
	b.WriteString(Version)
	b.WriteString("+")
	b.WriteString(revision)
	if modified == "true" {
		b.WriteString(".dirty")
	}
	return b.String()
}
