// Package report collects structured failure events from every stage of
// the consolidation run without ever halting producers. It feeds the
// end-of-run summary and renders the machine-readable run log published
// next to the manifest.
package report
