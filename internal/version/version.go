// Package version holds build-time version metadata, injected via -ldflags.
package version

// Version is the semantic version of the binary, or "dev" for local builds.
var Version = "dev"

// Commit is the git commit hash the binary was built from.
var Commit = "unknown"

// BuildDate is the UTC build timestamp.
var BuildDate = "unknown"
