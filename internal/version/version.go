package version

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

var (
	// Version is the current version of the binary
	// This will be overridden by ldflags during build
	Version = "dev"

	// These variables are set by goreleaser
	commit  = "unknown"
	date    = "unknown"
	builtBy = "unknown"
)

// HiddenVariablesSince is the first GitLab release accepting
// masked_and_hidden on variable creation.
const HiddenVariablesSince = "17.4.0"

// SetBuildInfo sets the build information
func SetBuildInfo(commitHash, buildDate, builder string) {
	commit = commitHash
	date = buildDate
	builtBy = builder
}

// GetVersion returns the full version string
func GetVersion() string {
	return fmt.Sprintf("%s (commit: %s, built: %s, by: %s)",
		Version, commit, date, builtBy)
}

// ParseGitLab parses a GitLab version string such as "17.4.1-ee". The
// edition suffix is not a semver pre-release and is dropped.
func ParseGitLab(raw string) (*semver.Version, error) {
	raw = strings.TrimSpace(strings.TrimPrefix(raw, "v"))
	if i := strings.IndexAny(raw, "-+ "); i >= 0 {
		raw = raw[:i]
	}
	v, err := semver.NewVersion(raw)
	if err != nil {
		return nil, fmt.Errorf("unrecognised GitLab version %q: %w", raw, err)
	}
	return v, nil
}

// AtLeast reports whether the GitLab version raw is at or above min.
func AtLeast(raw, min string) (bool, error) {
	v, err := ParseGitLab(raw)
	if err != nil {
		return false, err
	}
	c, err := semver.NewConstraint(">= " + min)
	if err != nil {
		return false, err
	}
	return c.Check(v), nil
}

// SupportsHiddenVariables reports whether a GitLab instance can create
// masked-and-hidden variables.
func SupportsHiddenVariables(raw string) bool {
	ok, err := AtLeast(raw, HiddenVariablesSince)
	return err == nil && ok
}
