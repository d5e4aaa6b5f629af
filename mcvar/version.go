// Package mcvar provides the version of a mimecodec build and helpers that
// depend on whether code runs under test.
package mcvar

import (
	"runtime/debug"
)

// Version is set at runtime from the build info of the main module.
var Version = "(devel)"

// GoVersion is the Go toolchain the binary was built with.
var GoVersion string

func init() {
	buildInfo, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	GoVersion = buildInfo.GoVersion
	Version = buildInfo.Main.Version
	if Version != "(devel)" && Version != "" {
		return
	}
	var rev, modified string
	for _, s := range buildInfo.Settings {
		switch s.Key {
		case "vcs.revision":
			rev = s.Value
		case "vcs.modified":
			modified = s.Value
		}
	}
	if rev == "" {
		Version = "(devel)"
		return
	}
	if len(rev) > 12 {
		rev = rev[:12]
	}
	Version = rev
	if modified == "true" {
		Version += "+modifications"
	}
}
