// Package version reports the build version of contentloader.
package version

import "runtime/debug"

// These are set at build time via -ldflags "-X".
//
//nolint:gochecknoglobals // populated by the linker
var (
	version   = ""
	gitCommit = ""
	buildDate = ""
)

// GetVersion returns the release version, falling back to the module version
// recorded in the binary and finally to "dev".
func GetVersion() string {
	if version != "" {
		return version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return "dev"
}

// GetGitCommit returns the commit the binary was built from, or "".
func GetGitCommit() string {
	return gitCommit
}

// GetBuildDate returns the build timestamp, or "".
func GetBuildDate() string {
	return buildDate
}
