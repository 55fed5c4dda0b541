// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"fmt"
	"runtime"
	"strings"
)

// These variables are set via -ldflags at build time.
var (
	// GitCommit is the short git SHA of the build.
	GitCommit = "unknown"

	// GitDirty indicates whether there were uncommitted changes.
	GitDirty = "false"

	// BuildTime is the UTC timestamp of the build.
	BuildTime = "unknown"

	// Version is the semantic version. This is set manually for releases.
	Version = "0.1.0-dev"
)

// Info returns a formatted version string suitable for --version output.
func Info() string {
	dirty := ""
	if GitDirty == "true" {
		dirty = "-dirty"
	}
	return fmt.Sprintf("%s (%s%s, %s)", Version, GitCommit, dirty, BuildTime)
}

// Full returns detailed version information including Go version.
func Full() string {
	return fmt.Sprintf("%s\n  Go: %s\n  Platform: %s/%s",
		Info(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// Short returns just the version number.
func Short() string {
	return Version
}

// Compatible reports whether a store service running other can serve
// this build. The wire protocol only changes across minor versions
// while the major version is zero, and across major versions after
// that. Unparseable versions are treated as compatible; development
// builds report whatever they were built with.
func Compatible(other string) bool {
	mine, ok := release(Version)
	if !ok {
		return true
	}
	theirs, ok := release(other)
	if !ok {
		return true
	}
	if mine[0] != theirs[0] {
		return false
	}
	return mine[0] != "0" || mine[1] == theirs[1]
}

// release returns the major and minor components of a version such
// as "v1.4.2" or "0.1.0-dev".
func release(version string) ([2]string, bool) {
	version = strings.TrimPrefix(strings.TrimSpace(version), "v")
	parts := strings.SplitN(version, ".", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return [2]string{}, false
	}
	return [2]string{parts[0], parts[1]}, true
}
