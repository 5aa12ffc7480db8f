package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/reefcat/reefcat/internal/docker"
	"github.com/reefcat/reefcat/internal/labels"
	"github.com/reefcat/reefcat/internal/metadata"
	"github.com/reefcat/reefcat/internal/report"
)

// logCatalog binds to the process default logger at call time, so a
// handler installed after package init still applies.
func logCatalog() *slog.Logger {
	return slog.Default().With(slog.String("realm", "catalog"))
}

// registryClient is the slice of the docker client the pipeline needs.
// Tests substitute an in-memory implementation.
type registryClient interface {
	Tags(ctx context.Context) ([]docker.TagSummary, error)
	ResolveTag(ctx context.Context, tag string) (*docker.TagInfo, error)
}

// Options configures a consolidation run.
type Options struct {
	// ReposDir is the root of the metadata tree.
	ReposDir string
	// RepoBaseURL is the raw-content URL logo paths resolve against.
	RepoBaseURL string
	// Concurrency bounds the worker pool; it applies both across
	// extensions and across one extension's tags.
	Concurrency int
	// CallTimeout bounds each registry call.
	CallTimeout time.Duration
	// MaxAttempts bounds retries per registry call.
	MaxAttempts int
	// Budget is an optional wall-clock limit for the whole run. Work
	// still pending when it expires is recorded as errored and the run
	// completes with partial results. Zero means no budget.
	Budget time.Duration
	// IncludeEmpty keeps extensions that have no valid version in the
	// output document as empty-version entries.
	IncludeEmpty bool
	// ProbeRateLimit records the Docker Hub pull rate limit before and
	// after the run.
	ProbeRateLimit bool
	// ClientOption carries extra registry client configuration, such as
	// endpoint overrides for private mirrors or tests.
	ClientOption docker.ClientOption
}

const (
	defaultConcurrency = 8
)

// Consolidator runs the consolidation pipeline: scan the metadata tree,
// resolve every extension against its registry, and assemble the output
// document.
type Consolidator struct {
	opts      Options
	collector *report.Collector
	newClient func(imageRef string) registryClient
}

// New creates a Consolidator with defaults filled in.
func New(opts Options) *Consolidator {
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	c := &Consolidator{
		opts:      opts,
		collector: report.NewCollector(),
	}
	c.newClient = func(imageRef string) registryClient {
		// Fresh slices per client; clients are built concurrently.
		regOpts := append([]docker.RegistryOption{}, opts.ClientOption.Registry...)
		hubOpts := append([]docker.HubOption{}, opts.ClientOption.Hub...)
		if opts.CallTimeout > 0 {
			regOpts = append(regOpts, docker.WithCallTimeout(opts.CallTimeout))
			hubOpts = append(hubOpts, docker.WithHubCallTimeout(opts.CallTimeout))
		}
		if opts.MaxAttempts > 0 {
			regOpts = append(regOpts, docker.WithMaxAttempts(opts.MaxAttempts))
			hubOpts = append(hubOpts, docker.WithHubMaxAttempts(opts.MaxAttempts))
		}
		return docker.NewClient(imageRef, docker.ClientOption{
			Registry:   regOpts,
			Hub:        hubOpts,
			DisableHub: opts.ClientOption.DisableHub,
		})
	}
	return c
}

// Collector exposes the run's error collector.
func (c *Consolidator) Collector() *report.Collector {
	return c.collector
}

// Run executes the pipeline and returns the output document and the run
// summary. The only fatal condition is a total inability to enumerate
// the metadata tree; every other failure is recorded and isolated to
// its extension or tag.
func (c *Consolidator) Run(ctx context.Context) ([]RepositoryEntry, report.Summary, error) {
	if c.opts.Budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.Budget)
		defer cancel()
	}

	if c.opts.ProbeRateLimit {
		c.collector.StartRateLimit(c.probeRateLimit(ctx))
	}

	records, problems, err := metadata.Scan(c.opts.ReposDir, c.opts.RepoBaseURL)
	if err != nil {
		return nil, report.Summary{}, err
	}
	for _, p := range problems {
		c.collector.Error(p.Identifier, "", report.KindMalformedStaticMetadata, "%v", p.Err)
	}
	for range records {
		c.collector.ExtensionScanned()
	}
	logCatalog().Info("metadata tree scanned", "extensions", len(records), "skipped", len(problems))

	// Resolve extensions on a bounded pool. Results land in a slice
	// indexed by scan position, so the output order stays the lexical
	// scan order no matter which worker finishes first.
	resolved := make([]*RepositoryEntry, len(records))
	var eg errgroup.Group
	eg.SetLimit(c.opts.Concurrency)
	for i, record := range records {
		i, record := i, record
		eg.Go(func() error {
			resolved[i] = c.resolve(ctx, record)
			return nil
		})
	}
	eg.Wait()

	// Assemble the document, enforcing identifier uniqueness. The scan
	// order is stable, so first-discovered-wins is deterministic.
	seen := map[string]bool{}
	entries := []RepositoryEntry{}
	for _, entry := range resolved {
		if seen[entry.Identifier] {
			c.collector.Error(entry.Identifier, "", report.KindDuplicateIdentifier,
				"duplicate identifier %s, keeping the first occurrence", entry.Identifier)
			continue
		}
		seen[entry.Identifier] = true
		if entry.Versions.Len() == 0 && !c.opts.IncludeEmpty {
			logCatalog().Info("excluding extension without valid versions", "identifier", entry.Identifier)
			continue
		}
		entries = append(entries, *entry)
	}

	if c.opts.ProbeRateLimit {
		c.collector.FinalRateLimit(c.probeRateLimit(ctx))
	}

	return entries, c.collector.Summary(), nil
}

// resolve builds the catalog entry for one extension: list its tags,
// fetch and parse the labels of every semver tag, and attach the sorted
// versions. Failures degrade the entry, never the run.
func (c *Consolidator) resolve(ctx context.Context, record metadata.Record) *RepositoryEntry {
	entry := &RepositoryEntry{
		Identifier:    record.Identifier,
		Name:          record.Name,
		Description:   record.Description,
		Docker:        record.Docker,
		Website:       record.Website,
		Versions:      NewVersionMap(),
		ExtensionLogo: record.ExtensionLogo,
		CompanyLogo:   record.CompanyLogo,
	}

	if ctx.Err() != nil {
		c.collector.Error(record.Identifier, "", report.KindBudgetExceeded,
			"run budget exhausted before %s was resolved", record.Identifier)
		return entry
	}

	client := c.newClient(record.Docker)
	tags, err := client.Tags(ctx)
	if err != nil {
		kind := report.KindRegistryUnreachable
		if errors.Is(err, docker.ErrRegistryNotFound) {
			kind = report.KindRegistryNotFound
		}
		c.collector.Error(record.Identifier, "", kind, "listing tags: %v", err)
		return entry
	}

	// Tags resolve concurrently; the slice keeps the listing order so
	// duplicate handling stays deterministic.
	versions := make([]*labels.Version, len(tags))
	var eg errgroup.Group
	eg.SetLimit(c.opts.Concurrency)
	for i, tag := range tags {
		i, tag := i, tag
		if !labels.ValidSemver(tag.Name) {
			c.collector.Info(record.Identifier, tag.Name, report.KindSkippedNonSemverTag,
				"%s is not a valid semantic version, ignoring it", tag.Name)
			continue
		}
		eg.Go(func() error {
			versions[i] = c.resolveTag(ctx, client, record.Identifier, tag)
			return nil
		})
	}
	eg.Wait()

	candidates := []TagVersion{}
	for i, v := range versions {
		if v != nil {
			candidates = append(candidates, TagVersion{Tag: tags[i].Name, Version: v})
		}
	}
	for _, tv := range SortVersions(candidates) {
		entry.Versions.Set(tv.Tag, tv.Version)
	}

	logCatalog().Info("extension resolved", "identifier", record.Identifier, "versions", entry.Versions.Len())
	return entry
}

// resolveTag fetches and parses the labels of one tag. It returns nil
// when the tag is dropped; the reason is already recorded.
func (c *Consolidator) resolveTag(ctx context.Context, client registryClient, identifier string, tag docker.TagSummary) *labels.Version {
	if ctx.Err() != nil {
		c.collector.Error(identifier, tag.Name, report.KindBudgetExceeded,
			"run budget exhausted before tag %s was resolved", tag.Name)
		return nil
	}

	info, err := client.ResolveTag(ctx, tag.Name)
	if err != nil {
		c.collector.Error(identifier, tag.Name, report.KindTagFetchError, "fetching labels: %v", err)
		return nil
	}

	version, warnings, err := labels.Parse(tag.Name, info.Labels)
	if err != nil {
		c.collector.Error(identifier, tag.Name, report.KindInvalidVersionLabels, "%v", err)
		return nil
	}
	for _, w := range warnings {
		c.collector.Warning(identifier, tag.Name, report.KindDroppedLabelField, "%s", w)
	}

	// Docker Hub tag listings carry richer per-image data than the
	// manifest; prefer it when present.
	images := tag.Images
	if len(images) == 0 {
		images = info.Images
	}
	for _, img := range images {
		version.Images = append(version.Images, labels.Image{
			Digest:       img.Digest,
			ExpandedSize: img.ExpandedSize,
			Platform: labels.Platform{
				Architecture: img.Architecture,
				Variant:      img.Variant,
				OS:           img.OS,
			},
		})
	}

	return version
}

// probeRateLimit reads the current Docker Hub pull rate limit. Probe
// failures are logged, not recorded: the probe is diagnostics, not part
// of the pipeline.
func (c *Consolidator) probeRateLimit(ctx context.Context) *docker.RateLimit {
	opts := append([]docker.RegistryOption{}, c.opts.ClientOption.Registry...)
	if c.opts.CallTimeout > 0 {
		opts = append(opts, docker.WithCallTimeout(c.opts.CallTimeout))
	}
	rl, err := docker.NewRateLimitProbe(opts...).CheckRateLimit(ctx)
	if err != nil {
		logCatalog().Warn("rate limit probe failed", "error", err)
		return nil
	}
	return rl
}

// WriteManifest serializes the output document to path as indented JSON.
func WriteManifest(path string, entries []RepositoryEntry) error {
	data, err := json.MarshalIndent(entries, "", "    ")
	if err != nil {
		return fmt.Errorf("serializing manifest: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing manifest %s: %w", path, err)
	}
	return nil
}
