// Package catalog assembles the consolidated extension manifest. It
// joins each scanned static-metadata record with the validated, sorted
// version records resolved from the image registry, running the
// per-extension work on a bounded pool so one broken extension can
// neither corrupt nor abort the run.
package catalog
