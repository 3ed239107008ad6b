package core

// Version is the relay version, injected at build time:
//
//	go build -ldflags "-X ragmetrics/core.Version=$(git describe --tags --always)" .
var Version = "dev"

// GitCommit is the short commit hash, injected at build time:
//
//	go build -ldflags "-X ragmetrics/core.GitCommit=$(git rev-parse --short HEAD)" .
var GitCommit = "unknown"

// VersionInfo is the version metadata reported by the health endpoint.
type VersionInfo struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit,omitempty"`
}

// GetVersionInfo returns the compile-time version metadata.
func GetVersionInfo() VersionInfo {
	return VersionInfo{Version: Version, GitCommit: GitCommit}
}
