// Package version reports the build that is running.
package version

import (
	"fmt"
	"runtime/debug"
)

// These variables are set at build time via ldflags
var (
	Commit    = ""
	BuildTime = "unknown"
)

// String returns the version string (commit-hash based, no semver)
func String() string {
	commit, dirty := buildCommit()
	if dirty {
		commit += "-dirty"
	}
	return fmt.Sprintf("propenrich dev (commit: %s, built: %s)", commit, BuildTime)
}

// buildCommit prefers the ldflags commit and falls back to the VCS stamp the
// go tool embeds in module builds.
func buildCommit() (string, bool) {
	if Commit != "" {
		return short(Commit), false
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown", false
	}
	commit, dirty := "unknown", false
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			commit = short(s.Value)
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	return commit, dirty
}

func short(commit string) string {
	if len(commit) > 7 {
		return commit[:7]
	}
	return commit
}
