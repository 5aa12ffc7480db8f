package labels

import (
	"strings"

	"github.com/Masterminds/semver/v3"
)

// ParseSemver parses a tag as a strict semantic version. A leading "v"
// is tolerated. It returns nil if the tag is not a valid semver.
func ParseSemver(tag string) *semver.Version {
	v, err := semver.StrictNewVersion(strings.TrimPrefix(tag, "v"))
	if err != nil {
		return nil
	}
	return v
}

// ValidSemver reports whether tag parses as a semantic version.
func ValidSemver(tag string) bool {
	return ParseSemver(tag) != nil
}
