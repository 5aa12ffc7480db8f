// Package labels decodes the label set embedded in a published extension
// image into a structured version record. Each label is decoded
// independently: a malformed optional label is dropped with a warning,
// while a missing or malformed mandatory label (version, website) rejects
// the whole tag.
package labels
