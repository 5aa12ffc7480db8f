package catalog

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/reefcat/reefcat/internal/docker"
	"github.com/reefcat/reefcat/internal/report"
)

// fakeClient is an in-memory registryClient.
type fakeClient struct {
	tags       []docker.TagSummary
	tagsErr    error
	infos      map[string]*docker.TagInfo
	resolveErr map[string]error
}

func (f *fakeClient) Tags(ctx context.Context) ([]docker.TagSummary, error) {
	if f.tagsErr != nil {
		return nil, f.tagsErr
	}
	return f.tags, nil
}

func (f *fakeClient) ResolveTag(ctx context.Context, tag string) (*docker.TagInfo, error) {
	if err := f.resolveErr[tag]; err != nil {
		return nil, err
	}
	info, ok := f.infos[tag]
	if !ok {
		return nil, fmt.Errorf("%w: no such tag %s", docker.ErrRegistryNotFound, tag)
	}
	return info, nil
}

func goodLabels(version string) map[string]string {
	return map[string]string{
		"version": version,
		"website": "https://example.com",
		"authors": `[{"name":"Jane","email":"jane@example.com"}]`,
	}
}

func tagNames(names ...string) []docker.TagSummary {
	out := make([]docker.TagSummary, 0, len(names))
	for _, n := range names {
		out = append(out, docker.TagSummary{Name: n})
	}
	return out
}

const metadataTemplate = `{"name":"%s","description":"d","docker":"%s","website":"https://example.com"}`

func writeExtension(t *testing.T, root, company, extension, dockerRef string) {
	t.Helper()
	dir := filepath.Join(root, company, extension)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	content := fmt.Sprintf(metadataTemplate, extension, dockerRef)
	if err := os.WriteFile(filepath.Join(dir, "metadata.json"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

// newTestConsolidator wires a Consolidator to fake clients keyed by
// image reference.
func newTestConsolidator(t *testing.T, root string, clients map[string]*fakeClient, opts Options) *Consolidator {
	t.Helper()
	opts.ReposDir = root
	opts.RepoBaseURL = "https://raw.example.com/repos"
	opts.IncludeEmpty = true
	c := New(opts)
	c.newClient = func(imageRef string) registryClient {
		client, ok := clients[imageRef]
		if !ok {
			t.Fatalf("no fake client for %q", imageRef)
		}
		return client
	}
	return c
}

func TestRun_HappyPath(t *testing.T) {
	root := t.TempDir()
	writeExtension(t, root, "acme", "sonar", "acme/sonar")

	clients := map[string]*fakeClient{
		"acme/sonar": {
			tags: tagNames("1.0.0", "2.0.0", "latest", "1.10.0", "1.9.9"),
			infos: map[string]*docker.TagInfo{
				"1.0.0":  {Labels: goodLabels("1.0.0")},
				"2.0.0":  {Labels: goodLabels("2.0.0")},
				"1.10.0": {Labels: goodLabels("1.10.0")},
				"1.9.9":  {Labels: goodLabels("1.9.9")},
			},
		},
	}

	c := newTestConsolidator(t, root, clients, Options{})
	entries, summary, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.HadErrors {
		t.Errorf("clean run flagged as degraded: %+v", summary)
	}
	if summary.VersionsSkipped != 1 {
		t.Errorf("versions skipped = %d, want 1 for tag latest", summary.VersionsSkipped)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %+v", entries)
	}

	entry := entries[0]
	if entry.Identifier != "acme.sonar" {
		t.Errorf("identifier = %q", entry.Identifier)
	}
	// Strictly descending semver order, highest first.
	want := []string{"2.0.0", "1.10.0", "1.9.9", "1.0.0"}
	got := entry.Versions.Tags()
	if len(got) != len(want) {
		t.Fatalf("tags = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("tags = %v, want %v", got, want)
		}
	}
}

func TestRun_InvalidLabelsDropTagOnly(t *testing.T) {
	root := t.TempDir()
	writeExtension(t, root, "acme", "sonar", "acme/sonar")

	noWebsite := map[string]string{"version": "1.1.0"}
	clients := map[string]*fakeClient{
		"acme/sonar": {
			tags: tagNames("1.0.0", "1.1.0", "1.2.0"),
			infos: map[string]*docker.TagInfo{
				"1.0.0": {Labels: goodLabels("1.0.0")},
				"1.1.0": {Labels: noWebsite},
				"1.2.0": {Labels: goodLabels("1.2.0")},
			},
		},
	}

	c := newTestConsolidator(t, root, clients, Options{})
	entries, summary, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %+v", entries)
	}
	got := entries[0].Versions.Tags()
	if len(got) != 2 || got[0] != "1.2.0" || got[1] != "1.0.0" {
		t.Errorf("tags = %v", got)
	}
	if summary.VersionsErrored != 1 || !summary.HadErrors {
		t.Errorf("summary = %+v", summary)
	}
	if summary.ExtensionsErrored != 0 {
		t.Errorf("a bad tag must not error the extension: %+v", summary)
	}
}

func TestRun_TagTimeoutDoesNotAffectSiblings(t *testing.T) {
	root := t.TempDir()
	writeExtension(t, root, "acme", "flaky", "acme/flaky")
	writeExtension(t, root, "acme", "stable", "acme/stable")

	clients := map[string]*fakeClient{
		"acme/flaky": {
			tags: tagNames("1.0.0", "1.1.0"),
			infos: map[string]*docker.TagInfo{
				"1.0.0": {Labels: goodLabels("1.0.0")},
			},
			resolveErr: map[string]error{
				"1.1.0": fmt.Errorf("%w: timeout", docker.ErrRegistryUnreachable),
			},
		},
		"acme/stable": {
			tags:  tagNames("3.0.0"),
			infos: map[string]*docker.TagInfo{"3.0.0": {Labels: goodLabels("3.0.0")}},
		},
	}

	c := newTestConsolidator(t, root, clients, Options{})
	entries, summary, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %+v", entries)
	}

	byID := map[string]RepositoryEntry{}
	for _, e := range entries {
		byID[e.Identifier] = e
	}
	if byID["acme.flaky"].Versions.Len() != 1 {
		t.Errorf("flaky should keep its good tag: %v", byID["acme.flaky"].Versions.Tags())
	}
	if byID["acme.stable"].Versions.Len() != 1 {
		t.Errorf("stable should be untouched: %v", byID["acme.stable"].Versions.Tags())
	}
	if summary.VersionsErrored != 1 {
		t.Errorf("summary = %+v", summary)
	}
}

func TestRun_MalformedMetadataIsolated(t *testing.T) {
	root := t.TempDir()
	writeExtension(t, root, "acme", "good", "acme/good")

	badDir := filepath.Join(root, "acme", "bad")
	if err := os.MkdirAll(badDir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(badDir, "metadata.json"), []byte(`{"name":"bad"}`), 0644); err != nil {
		t.Fatal(err)
	}

	clients := map[string]*fakeClient{
		"acme/good": {
			tags:  tagNames("1.0.0"),
			infos: map[string]*docker.TagInfo{"1.0.0": {Labels: goodLabels("1.0.0")}},
		},
	}

	c := newTestConsolidator(t, root, clients, Options{})
	entries, summary, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 1 || entries[0].Identifier != "acme.good" {
		t.Fatalf("entries = %+v", entries)
	}
	if summary.ExtensionsErrored != 1 || !summary.HadErrors {
		t.Errorf("summary = %+v", summary)
	}

	var sawMalformed bool
	for _, e := range c.Collector().Events() {
		if e.Kind == report.KindMalformedStaticMetadata && e.Identifier == "acme.bad" {
			sawMalformed = true
		}
	}
	if !sawMalformed {
		t.Error("expected a MalformedStaticMetadata event for acme.bad")
	}
}

func TestRun_UnreachableRegistryKeepsEntryEmpty(t *testing.T) {
	root := t.TempDir()
	writeExtension(t, root, "acme", "down", "acme/down")

	clients := map[string]*fakeClient{
		"acme/down": {tagsErr: fmt.Errorf("%w: connection refused", docker.ErrRegistryUnreachable)},
	}

	c := newTestConsolidator(t, root, clients, Options{})
	entries, summary, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 1 || entries[0].Versions.Len() != 0 {
		t.Fatalf("entries = %+v", entries)
	}
	if summary.ExtensionsErrored != 1 {
		t.Errorf("summary = %+v", summary)
	}
}

func TestRun_EmptyExtensionPolicy(t *testing.T) {
	root := t.TempDir()
	writeExtension(t, root, "acme", "empty", "acme/empty")

	clients := map[string]*fakeClient{
		"acme/empty": {tags: tagNames("latest")},
	}

	// Default policy: included with an empty version map.
	c := newTestConsolidator(t, root, clients, Options{})
	entries, _, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 1 || entries[0].Versions.Len() != 0 {
		t.Fatalf("entries = %+v", entries)
	}

	// Opt-out excludes it entirely.
	c = newTestConsolidator(t, root, clients, Options{})
	c.opts.IncludeEmpty = false
	entries, _, err = c.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("entries = %+v", entries)
	}
}

func TestRun_DuplicateIdentifierFirstWins(t *testing.T) {
	root := t.TempDir()
	// Two trees that collapse to the same identifier: the scanner keys
	// on the last two path components.
	writeExtension(t, filepath.Join(root, "first"), "acme", "ext", "acme/ext-one")
	writeExtension(t, filepath.Join(root, "second"), "acme", "ext", "acme/ext-two")

	clients := map[string]*fakeClient{
		"acme/ext-one": {
			tags:  tagNames("1.0.0"),
			infos: map[string]*docker.TagInfo{"1.0.0": {Labels: goodLabels("1.0.0")}},
		},
		"acme/ext-two": {
			tags:  tagNames("9.0.0"),
			infos: map[string]*docker.TagInfo{"9.0.0": {Labels: goodLabels("9.0.0")}},
		},
	}

	c := newTestConsolidator(t, root, clients, Options{})
	entries, summary, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %+v", entries)
	}
	if entries[0].Docker != "acme/ext-one" {
		t.Errorf("first-discovered should win, got %q", entries[0].Docker)
	}
	if !summary.HadErrors {
		t.Error("duplicate identifier should degrade the run")
	}
}

func TestRun_NoDuplicateIdentifiersInOutput(t *testing.T) {
	root := t.TempDir()
	writeExtension(t, root, "acme", "a", "acme/a")
	writeExtension(t, root, "acme", "b", "acme/b")
	writeExtension(t, root, "zeta", "c", "zeta/c")

	clients := map[string]*fakeClient{}
	for _, ref := range []string{"acme/a", "acme/b", "zeta/c"} {
		clients[ref] = &fakeClient{
			tags:  tagNames("1.0.0"),
			infos: map[string]*docker.TagInfo{"1.0.0": {Labels: goodLabels("1.0.0")}},
		}
	}

	c := newTestConsolidator(t, root, clients, Options{Concurrency: 2})
	entries, _, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	seen := map[string]bool{}
	for _, e := range entries {
		if seen[e.Identifier] {
			t.Errorf("duplicate identifier %q in output", e.Identifier)
		}
		seen[e.Identifier] = true
	}
	if len(entries) != 3 {
		t.Errorf("entries = %d, want 3", len(entries))
	}
}

func TestRun_Idempotent(t *testing.T) {
	root := t.TempDir()
	writeExtension(t, root, "acme", "sonar", "acme/sonar")
	writeExtension(t, root, "acme", "gps", "acme/gps")

	newClients := func() map[string]*fakeClient {
		return map[string]*fakeClient{
			"acme/sonar": {
				tags: tagNames("2.0.0", "1.0.0"),
				infos: map[string]*docker.TagInfo{
					"2.0.0": {Labels: goodLabels("2.0.0")},
					"1.0.0": {Labels: goodLabels("1.0.0")},
				},
			},
			"acme/gps": {
				tags:  tagNames("0.5.0"),
				infos: map[string]*docker.TagInfo{"0.5.0": {Labels: goodLabels("0.5.0")}},
			},
		}
	}

	render := func() []byte {
		c := newTestConsolidator(t, root, newClients(), Options{Concurrency: 4})
		entries, _, err := c.Run(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		path := filepath.Join(t.TempDir(), "manifest.json")
		if err := WriteManifest(path, entries); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		return data
	}

	first := render()
	second := render()
	if !bytes.Equal(first, second) {
		t.Error("re-running against unchanged state produced different bytes")
	}
}

func TestRun_BudgetExhaustedPublishesPartialResults(t *testing.T) {
	root := t.TempDir()
	writeExtension(t, root, "acme", "sonar", "acme/sonar")
	writeExtension(t, root, "acme", "gps", "acme/gps")

	clients := map[string]*fakeClient{}
	for _, ref := range []string{"acme/sonar", "acme/gps"} {
		clients[ref] = &fakeClient{
			tags:  tagNames("1.0.0"),
			infos: map[string]*docker.TagInfo{"1.0.0": {Labels: goodLabels("1.0.0")}},
		}
	}

	// A budget this small expires before any extension is resolved.
	c := newTestConsolidator(t, root, clients, Options{Budget: time.Nanosecond})
	entries, summary, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("an exhausted budget must not abort the run: %v", err)
	}

	// The document is still published, with whatever resolved in time.
	if len(entries) != 2 {
		t.Fatalf("entries = %+v", entries)
	}
	for _, e := range entries {
		if e.Versions.Len() != 0 {
			t.Errorf("%s resolved versions past the budget: %v", e.Identifier, e.Versions.Tags())
		}
	}
	if !summary.HadErrors || summary.ExtensionsErrored != 2 {
		t.Errorf("summary = %+v", summary)
	}

	exceeded := 0
	for _, e := range c.Collector().Events() {
		if e.Kind == report.KindBudgetExceeded {
			exceeded++
		}
	}
	if exceeded != 2 {
		t.Errorf("budget events = %d, want one per pending extension", exceeded)
	}
}

func TestRun_MissingTreeIsFatal(t *testing.T) {
	c := New(Options{ReposDir: filepath.Join(t.TempDir(), "nope")})
	if _, _, err := c.Run(context.Background()); err == nil {
		t.Fatal("expected a fatal error for a missing metadata tree")
	}
}
