// Package build holds version information, set at link time with
// -ldflags "-X github.com/armadaproject/renderbench/internal/renderbench/build.ReleaseVersion=...".
package build

import (
	"runtime"
	"runtime/debug"
)

var (
	ReleaseVersion = "dev"
	GitCommit      = ""
	BuildTime      = ""
	GoVersion      = runtime.Version()
)

// Commit returns GitCommit, falling back to the revision the go tool stamped into the binary.
func Commit() string {
	if GitCommit != "" {
		return GitCommit
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" {
				return s.Value
			}
		}
	}
	return "unknown"
}
