// Package versions provides build information for the rating server.
package versions

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"time"
)

const (
	unknownStr = "unknown"
)

// Build information set with -ldflags
var (
	// Version is the released version of the rating server
	Version = "dev"
	// Commit is the git commit hash of the build
	Commit = unknownStr
	// BuildDate is the date when the binary was built
	BuildDate = unknownStr
)

// VersionInfo represents the version information
type VersionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// GetVersionInfo returns the version information
func GetVersionInfo() VersionInfo {
	return versionInfo(Version, Commit, BuildDate, readVCSSettings)
}

// UserAgent returns the User-Agent header value outgoing requests carry
func UserAgent() string {
	return "rating-server/" + GetVersionInfo().Version
}

// readVCSSettings returns the VCS revision and time stamped by the go tool
func readVCSSettings() (revision, stamp string) {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "", ""
	}
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			revision = setting.Value
		case "vcs.time":
			stamp = setting.Value
		}
	}
	return revision, stamp
}

func versionInfo(version, commit, buildDate string, vcs func() (string, string)) VersionInfo {
	if strings.HasPrefix(version, "dev") {
		revision, stamp := vcs()
		if commit == unknownStr && revision != "" {
			commit = revision
		}
		if buildDate == unknownStr && stamp != "" {
			buildDate = stamp
		}
	}

	if buildDate != unknownStr {
		if t, err := time.Parse(time.RFC3339, buildDate); err == nil {
			buildDate = t.UTC().Format("2006-01-02 15:04:05 MST")
		}
	}

	// Development builds are named after the commit they were built from
	if version == "dev" && commit != unknownStr {
		version = fmt.Sprintf("build-%.8s", commit)
	}

	return VersionInfo{
		Version:   version,
		Commit:    commit,
		BuildDate: buildDate,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}
