// Package version exposes the application version derived from build metadata.
//
// Priority: -ldflags override > VCS info from debug.BuildInfo > "dev" fallback.
//
// Usage:
//
//	version.GitCommit  // "a3f8c2d1" or "dev"
//	version.UserAgent() // "statuswatch/a3f8c2d1"
package version

import "runtime/debug"

// AppName is the application name used in User-Agent headers and logs.
const AppName = "statuswatch"

// gitCommitOverride is set via -ldflags at build time for container builds
// where .git is unavailable.
var gitCommitOverride string

// GitCommit is the short git commit hash (8 chars), or "dev".
var GitCommit = resolveCommit(gitCommitOverride, readBuildInfo)

func readBuildInfo() (*debug.BuildInfo, bool) {
	return debug.ReadBuildInfo()
}

func resolveCommit(override string, buildInfo func() (*debug.BuildInfo, bool)) string {
	if override != "" {
		return shorten(override)
	}
	info, ok := buildInfo()
	if !ok {
		return "dev"
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" && s.Value != "" {
			return shorten(s.Value)
		}
	}
	return "dev"
}

func shorten(commit string) string {
	if len(commit) > 8 {
		return commit[:8]
	}
	return commit
}

// UserAgent returns "statuswatch/<commit>" for outgoing HTTP requests.
func UserAgent() string {
	return AppName + "/" + GitCommit
}
