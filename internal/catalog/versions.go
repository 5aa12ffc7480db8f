package catalog

import (
	"slices"

	"github.com/reefcat/reefcat/internal/labels"
)

// TagVersion pairs a registry tag with its parsed version record.
type TagVersion struct {
	Tag     string
	Version *labels.Version
}

// SortVersions orders candidates in strictly descending semantic-version
// order and drops duplicates that normalize to the same version (for
// example "1.0.0" and "v1.0.0"), keeping the first encountered. Every
// candidate tag must already be a valid semver. The highest version ends
// up at index 0; the presentation layer relies on that.
func SortVersions(candidates []TagVersion) []TagVersion {
	sorted := make([]TagVersion, len(candidates))
	copy(sorted, candidates)

	// A stable sort keeps earlier-encountered tags first among equal
	// versions, which is what makes the duplicate drop deterministic.
	slices.SortStableFunc(sorted, func(a, b TagVersion) int {
		return labels.ParseSemver(b.Tag).Compare(labels.ParseSemver(a.Tag))
	})

	out := make([]TagVersion, 0, len(sorted))
	for i, c := range sorted {
		if i > 0 && labels.ParseSemver(c.Tag).Equal(labels.ParseSemver(sorted[i-1].Tag)) {
			continue
		}
		out = append(out, c)
	}
	return out
}
