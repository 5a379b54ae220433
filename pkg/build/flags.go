// SPDX-License-Identifier: MIT
//
// Package build provides functionality to manage and retrieve build information
// for a Go application. It allows embedding metadata such as the application
// name, build timestamp, Git commit hash, and semantic version into the binary
// at compile time using linker flags. This information can be useful for debugging,
// logging, and displaying version information to users.
package build

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type ldFlags struct {
	Name        string
	Description string
	Time        string
	Commit      string
	Version     string
}

// Package-level variables for build information. These are populated by -ldflags
// during compilation, for example:
//
//	go build -ldflags "-X featex/pkg/build.buildVersion=1.2.0 -X featex/pkg/build.buildTime=$(date -u +%FT%TZ)"
//
// Development builds keep the defaults below.
var (
	buildName    string
	buildTime    string
	buildCommit  string
	buildVersion string
	buildFlags   = &ldFlags{
		Name:        "featex",
		Description: "Block-based audio feature extraction",
		Time:        "unknown",
		Commit:      "unknown",
		Version:     "0.0.0-dev",
	}
)

// Initialize validates and copies build information from ldflags variables
// into the buildFlags struct. This must be called early in program startup
// to ensure all build information is properly set. Returns an error if any
// required build flag is missing; the development defaults stay in place.
func Initialize() error {
	if buildName == "" {
		return fmt.Errorf("BuildName is required")
	}
	if buildTime == "" {
		return fmt.Errorf("BuildTime is required")
	}
	if buildCommit == "" {
		return fmt.Errorf("BuildCommit is required")
	}
	if buildVersion == "" {
		return fmt.Errorf("BuildVersion is required")
	}

	buildFlags.Name = buildName
	buildFlags.Time = buildTime
	buildFlags.Commit = buildCommit
	buildFlags.Version = buildVersion

	return nil
}

// GetBuildFlags returns the current build information. Initialize()
// must be called before this function to ensure the build information
// is valid. This function is safe to call after initialization.
func GetBuildFlags() *ldFlags {
	return buildFlags
}

// Version parses the major.minor.patch triple of the build version. A
// leading "v" and any pre-release or build suffix are ignored; missing or
// malformed parts are zero.
func Version() (major, minor, patch int) {
	v := strings.TrimPrefix(buildFlags.Version, "v")
	if i := strings.IndexAny(v, "-+"); i >= 0 {
		v = v[:i]
	}
	parts := strings.SplitN(v, ".", 3)
	nums := [3]int{}
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			break
		}
		nums[i] = n
	}
	return nums[0], nums[1], nums[2]
}

// BuildDate returns the build time as a date, or the raw value when it is
// not RFC 3339.
func BuildDate() string {
	t, err := time.Parse(time.RFC3339, buildFlags.Time)
	if err != nil {
		return buildFlags.Time
	}
	return t.UTC().Format(time.DateOnly)
}

// VersionString formats name, version triple and build date for display.
func VersionString() string {
	major, minor, patch := Version()
	return fmt.Sprintf("%s V%d.%d.%d (commit %s), date: %s",
		buildFlags.Name, major, minor, patch, buildFlags.Commit, BuildDate())
}
