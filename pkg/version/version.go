package version

import (
	"fmt"

	"github.com/blang/semver/v4"
)

// Version indicates what version of alpha the binary belongs to
var Version = "0.0.0-dev"

// GitCommit indicates which git commit the binary was built from
var GitCommit string

// Semver parses Version.
func Semver() (semver.Version, error) {
	return semver.ParseTolerant(Version)
}

// String returns a pretty string concatenation of Version and GitCommit
func String() string {
	return fmt.Sprintf("alpha version: %s\n   git commit: %s\n", Version, GitCommit)
}
