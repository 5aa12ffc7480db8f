//go:build integration

package integration_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// fakeRegistry maps repository -> tag -> image labels. Every tag is
// served as a single linux/arm64 image manifest whose config blob
// carries the given labels.
type fakeRegistry map[string]map[string]map[string]string

// startFakeRegistry serves a minimal Registry V2 implementation for the
// configured repositories: a token endpoint, per-repo tag lists, image
// manifests, and config blobs.
func startFakeRegistry(t *testing.T, repos fakeRegistry) *httptest.Server {
	t.Helper()

	handler := func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/token" {
			json.NewEncoder(w).Encode(map[string]any{"token": "testtoken", "expires_in": 300})
			return
		}

		if r.Header.Get("Authorization") != "Bearer testtoken" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		rest, ok := strings.CutPrefix(r.URL.Path, "/v2/")
		if !ok {
			http.NotFound(w, r)
			return
		}

		for repo, tags := range repos {
			switch {
			case rest == repo+"/tags/list":
				names := make([]string, 0, len(tags))
				for tag := range tags {
					names = append(names, tag)
				}
				json.NewEncoder(w).Encode(map[string]any{"name": repo, "tags": names})
				return

			case strings.HasPrefix(rest, repo+"/manifests/"):
				tag := strings.TrimPrefix(rest, repo+"/manifests/")
				if _, ok := tags[tag]; !ok {
					w.WriteHeader(http.StatusNotFound)
					return
				}
				json.NewEncoder(w).Encode(map[string]any{
					"schemaVersion": 2,
					"config": map[string]any{
						"mediaType": "application/vnd.oci.image.config.v1+json",
						"digest":    "sha256:cfg-" + tag,
						"size":      10,
					},
					"layers": []map[string]any{
						{"mediaType": "layer", "digest": "sha256:l1", "size": 100},
					},
				})
				return

			case strings.HasPrefix(rest, repo+"/blobs/sha256:cfg-"):
				tag := strings.TrimPrefix(rest, repo+"/blobs/sha256:cfg-")
				labels, ok := tags[tag]
				if !ok {
					w.WriteHeader(http.StatusNotFound)
					return
				}
				json.NewEncoder(w).Encode(map[string]any{
					"architecture": "arm64",
					"os":           "linux",
					"config":       map[string]any{"Labels": labels},
				})
				return
			}
		}
		http.NotFound(w, r)
	}

	srv := httptest.NewServer(http.HandlerFunc(handler))
	t.Cleanup(srv.Close)
	return srv
}

// imageLabels builds a minimal valid label set for one version.
func imageLabels(version string) map[string]string {
	return map[string]string{
		"version": version,
		"website": "https://example.com/ext",
		"authors": `[{"name":"Jo Diver","email":"jo@example.com"}]`,
		"type":    "device-integration",
	}
}

// writeMetadata drops a metadata.json for <company>/<name> under root.
func writeMetadata(t *testing.T, root, company, name, dockerRef string) {
	t.Helper()

	dir := filepath.Join(root, company, name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("creating %s: %v", dir, err)
	}

	content := fmt.Sprintf(
		`{"name":%q,"description":"An integration test extension","docker":%q,"website":"https://example.com"}`,
		name, dockerRef)
	if err := os.WriteFile(filepath.Join(dir, "metadata.json"), []byte(content), 0644); err != nil {
		t.Fatalf("writing metadata for %s.%s: %v", company, name, err)
	}
}
