// Package metadata walks the version-controlled metadata tree and yields
// one static-metadata record per extension directory, together with the
// resolved logo URLs. Records are validated against an embedded JSON
// Schema; a malformed record skips only that extension.
package metadata
