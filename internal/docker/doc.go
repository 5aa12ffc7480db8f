// Package docker talks to container registries over HTTP. It implements
// the Docker Registry V2 protocol (token auth, tag listing, manifest and
// config-blob resolution) for any OCI-compliant registry, plus the Docker
// Hub proprietary API for richer per-tag metadata when the image lives on
// Docker Hub. All calls carry a bounded retry with exponential backoff
// and a per-call timeout.
package docker
