// Package version reports docrag build information.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Version is set with -ldflags "-X github.com/Aman-CERP/docrag/pkg/version.Version=v1.2.3".
var Version = "dev"

// Build metadata, also set via ldflags. When left unset, Commit and Date
// fall back to the VCS stamp the Go toolchain embeds.
var (
	Commit = "unknown"
	Date   = "unknown"
)

// BuildInfo is structured version information for JSON output.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"go_version"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// GetInfo returns structured version information.
func GetInfo() BuildInfo {
	info := BuildInfo{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: runtime.Version(),
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			switch {
			case s.Key == "vcs.revision" && info.Commit == "unknown" && s.Value != "":
				info.Commit = s.Value
				if len(info.Commit) > 12 {
					info.Commit = info.Commit[:12]
				}
			case s.Key == "vcs.time" && info.Date == "unknown" && s.Value != "":
				info.Date = s.Value
			}
		}
	}
	return info
}

// String returns a one-line description of the build.
func String() string {
	i := GetInfo()
	return fmt.Sprintf("docrag %s (commit: %s, built: %s, go: %s, %s/%s)",
		i.Version, i.Commit, i.Date, i.GoVersion, i.OS, i.Arch)
}

// Short returns just the version string.
func Short() string {
	return Version
}
