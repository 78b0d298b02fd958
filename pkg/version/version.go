// Package version reports build information for hoist.
package version

import (
	"fmt"
	"runtime"
)

// Set at build time via -ldflags "-X github.com/rzbill/hoist/pkg/version.Version=...".
var (
	Version   = "dev"
	BuildTime = "unknown"
	Commit    = "unknown"
)

// Info returns a one-line version string.
func Info() string {
	commit := Commit
	if len(commit) > 8 {
		commit = commit[:8]
	}
	return fmt.Sprintf("hoist %s (%s) built %s %s/%s go:%s",
		Version, commit, BuildTime, runtime.GOOS, runtime.GOARCH, runtime.Version())
}

// Map returns version information as a map.
func Map() map[string]string {
	return map[string]string{
		"version":   Version,
		"commit":    Commit,
		"buildTime": BuildTime,
		"goVersion": runtime.Version(),
		"os":        runtime.GOOS,
		"arch":      runtime.GOARCH,
	}
}
