package docker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Sentinel errors for registry failures. Both are non-fatal to the
// overall run and are recorded per extension or per tag.
var (
	// ErrRegistryUnreachable marks transient failures (network errors,
	// timeouts, rate limiting, server errors) that survived the retry
	// budget.
	ErrRegistryUnreachable = errors.New("registry unreachable")
	// ErrRegistryNotFound marks an unknown repository or reference.
	ErrRegistryNotFound = errors.New("repository not found")
)

// Media types accepted when fetching manifests. Every format the
// resolver can handle is requested so the registry returns the best match.
var manifestAccept = strings.Join([]string{
	"application/vnd.docker.distribution.manifest.v2+json",
	"application/vnd.docker.distribution.manifest.list.v2+json",
	"application/vnd.oci.image.manifest.v1+json",
	"application/vnd.oci.image.index.v1+json",
}, ",")

const (
	defaultMaxAttempts = 3
	defaultCallTimeout = 30 * time.Second
	retryBaseDelay     = 500 * time.Millisecond
	tagPageSize        = 100
)

// logRegistry binds to the process default logger at call time, so a
// handler installed after package init still applies.
func logRegistry() *slog.Logger {
	return slog.Default().With(slog.String("realm", "docker"))
}

// Registry is a client for the Docker Registry V2 API of one repository.
type Registry struct {
	ref         ImageRef
	httpClient  *http.Client
	auth        *authClient
	baseURL     string
	maxAttempts int
	callTimeout time.Duration
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithHTTPClient sets the HTTP client used for all requests.
func WithHTTPClient(c *http.Client) RegistryOption {
	return func(r *Registry) { r.httpClient = c }
}

// WithEndpoints overrides the registry and auth base URLs. Used by tests
// to point the client at a local server.
func WithEndpoints(registryURL, authURL string) RegistryOption {
	return func(r *Registry) {
		r.baseURL = registryURL
		r.auth.baseURL = authURL
	}
}

// WithMaxAttempts bounds the retry budget per call.
func WithMaxAttempts(n int) RegistryOption {
	return func(r *Registry) { r.maxAttempts = n }
}

// WithCallTimeout bounds the wall-clock time of a single call so one
// slow tag cannot stall the whole run.
func WithCallTimeout(d time.Duration) RegistryOption {
	return func(r *Registry) { r.callTimeout = d }
}

// NewRegistry creates a registry client for the repository in ref.
func NewRegistry(ref ImageRef, opts ...RegistryOption) *Registry {
	r := &Registry{
		ref:         ref,
		httpClient:  http.DefaultClient,
		baseURL:     ref.RegistryURL(),
		maxAttempts: defaultMaxAttempts,
		callTimeout: defaultCallTimeout,
	}
	r.auth = newAuthClient(ref, r.httpClient)
	for _, opt := range opts {
		opt(r)
	}
	r.auth.httpClient = r.httpClient
	return r
}

// NewRateLimitProbe creates a registry client against the Docker Hub
// rate-limit preview repository, whose manifest responses carry the
// account's current pull rate limit in their headers.
func NewRateLimitProbe(opts ...RegistryOption) *Registry {
	return NewRegistry(ParseImageRef("ratelimitpreview/test"), opts...)
}

// ListTags returns every tag published for the repository, paginating
// the V2 tag list until exhausted.
func (r *Registry) ListTags(ctx context.Context) ([]string, error) {
	var tags []string
	last := ""
	for {
		q := url.Values{}
		q.Set("n", strconv.Itoa(tagPageSize))
		if last != "" {
			q.Set("last", last)
		}

		var page struct {
			Name string   `json:"name"`
			Tags []string `json:"tags"`
		}
		route := fmt.Sprintf("%s/v2/%s/tags/list?%s", r.baseURL, r.ref.Repository, q.Encode())
		if _, err := r.getJSON(ctx, route, "", &page); err != nil {
			return nil, fmt.Errorf("listing tags for %s: %w", r.ref.Repository, err)
		}

		tags = append(tags, page.Tags...)
		if len(page.Tags) < tagPageSize {
			return tags, nil
		}
		last = page.Tags[len(page.Tags)-1]
	}
}

// ResolveTag fetches the manifest for tag, follows a manifest list or
// OCI index down to a runnable image, and returns the label set from its
// config blob together with the images backing the tag.
func (r *Registry) ResolveTag(ctx context.Context, tag string) (*TagInfo, error) {
	manifest, err := r.fetchManifest(ctx, tag)
	if err != nil {
		return nil, fmt.Errorf("fetching manifest %s:%s: %w", r.ref.Repository, tag, err)
	}

	images := []ImageInfo{}
	if len(manifest.Manifests) > 0 {
		embedded, err := r.selectEmbedded(ctx, manifest.Manifests)
		if err != nil {
			return nil, fmt.Errorf("resolving manifest list %s:%s: %w", r.ref.Repository, tag, err)
		}
		for _, d := range manifest.Manifests {
			if d.Platform == nil || d.Platform.Architecture == "unknown" {
				continue
			}
			images = append(images, ImageInfo{
				Digest:       d.Digest,
				Architecture: d.Platform.Architecture,
				Variant:      d.Platform.Variant,
				OS:           d.Platform.OS,
			})
		}
		manifest = embedded
	}

	if manifest.Config == nil {
		return nil, fmt.Errorf("manifest %s:%s carries no config reference", r.ref.Repository, tag)
	}

	blob, err := r.fetchConfigBlob(ctx, manifest.Config.Digest)
	if err != nil {
		return nil, fmt.Errorf("fetching config blob %s:%s: %w", r.ref.Repository, tag, err)
	}

	if len(images) == 0 {
		var size int64
		for _, layer := range manifest.Layers {
			size += layer.Size
		}
		images = append(images, ImageInfo{
			Digest:       manifest.Config.Digest,
			ExpandedSize: size,
			Architecture: blob.Architecture,
			OS:           blob.OS,
		})
	}

	labels := blob.Config.Labels
	if labels == nil {
		labels = map[string]string{}
	}
	return &TagInfo{Labels: labels, Images: images}, nil
}

// CheckRateLimit reads the current pull rate limit from the manifest
// response headers of the rate-limit preview repository.
func (r *Registry) CheckRateLimit(ctx context.Context) (*RateLimit, error) {
	route := fmt.Sprintf("%s/v2/%s/manifests/latest", r.baseURL, r.ref.Repository)
	header, err := r.getJSON(ctx, route, manifestAccept, nil)
	if err != nil {
		return nil, fmt.Errorf("probing rate limit: %w", err)
	}

	limit, window, err := parseRateLimitHeader(header.Get("ratelimit-limit"))
	if err != nil {
		return nil, err
	}
	remaining, _, err := parseRateLimitHeader(header.Get("ratelimit-remaining"))
	if err != nil {
		return nil, err
	}

	return &RateLimit{
		Limit:           limit,
		Remaining:       remaining,
		IntervalSeconds: window,
		SourceIP:        header.Get("docker-ratelimit-source"),
	}, nil
}

func (r *Registry) fetchManifest(ctx context.Context, reference string) (*manifestResponse, error) {
	var manifest manifestResponse
	route := fmt.Sprintf("%s/v2/%s/manifests/%s", r.baseURL, r.ref.Repository, reference)
	if _, err := r.getJSON(ctx, route, manifestAccept, &manifest); err != nil {
		return nil, err
	}
	return &manifest, nil
}

func (r *Registry) fetchConfigBlob(ctx context.Context, digest string) (*Blob, error) {
	var blob Blob
	route := fmt.Sprintf("%s/v2/%s/blobs/%s", r.baseURL, r.ref.Repository, digest)
	if _, err := r.getJSON(ctx, route, "", &blob); err != nil {
		return nil, err
	}
	return &blob, nil
}

// selectEmbedded picks a runnable image manifest out of a manifest list,
// preferring the architectures the target hardware runs (arm variants
// first, then amd64), and fetches it.
func (r *Registry) selectEmbedded(ctx context.Context, descriptors []Descriptor) (*manifestResponse, error) {
	for _, arch := range []string{"arm", "arm64", "amd64"} {
		for _, d := range descriptors {
			if d.Platform == nil || d.Platform.OS != "linux" || d.Platform.Architecture != arch {
				continue
			}
			return r.fetchManifest(ctx, d.Digest)
		}
	}
	return nil, errors.New("no compatible linux image in manifest list")
}

// getJSON performs a GET with bearer auth, bounded retries, and a
// per-call timeout. A nil out skips body decoding. It returns the
// response headers of the successful attempt.
func (r *Registry) getJSON(ctx context.Context, route, accept string, out any) (http.Header, error) {
	ctx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()

	var lastErr error
	for attempt := 0; attempt < r.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := retryBaseDelay << (attempt - 1)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", ErrRegistryUnreachable, ctx.Err())
			}
			logRegistry().Debug("retrying registry call", "route", route, "attempt", attempt+1)
		}

		header, retryable, err := r.getJSONOnce(ctx, route, accept, out)
		if err == nil {
			return header, nil
		}
		if !retryable {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

// getJSONOnce performs a single attempt. The second return value reports
// whether the failure is worth retrying.
func (r *Registry) getJSONOnce(ctx context.Context, route, accept string, out any) (http.Header, bool, error) {
	token, err := r.auth.Token(ctx, r.ref.Repository)
	if err != nil {
		return nil, true, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, route, nil)
	if err != nil {
		return nil, false, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("%w: %v", ErrRegistryUnreachable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusUnauthorized:
		return nil, false, fmt.Errorf("%w: %s", ErrRegistryNotFound, registryErrorDetail(resp))
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("%w: %s", ErrRegistryUnreachable, registryErrorDetail(resp))
	default:
		return nil, false, fmt.Errorf("registry returned status %d on %s", resp.StatusCode, route)
	}

	if out != nil {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, true, fmt.Errorf("%w: reading response: %v", ErrRegistryUnreachable, err)
		}
		if err := json.Unmarshal(body, out); err != nil {
			return nil, false, fmt.Errorf("parsing response from %s: %w", route, err)
		}
	}
	return resp.Header, true, nil
}

// registryErrorDetail formats the error payload of a Registry V2 API
// response, falling back to the bare status code.
func registryErrorDetail(resp *http.Response) string {
	var payload registryErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err == nil && len(payload.Errors) > 0 {
		e := payload.Errors[0]
		return fmt.Sprintf("status %d on %s: %s - %s", resp.StatusCode, resp.Request.URL, e.Code, e.Message)
	}
	return fmt.Sprintf("status %d on %s", resp.StatusCode, resp.Request.URL)
}

// parseRateLimitHeader splits a "100;w=21600" style header into value
// and window seconds.
func parseRateLimitHeader(h string) (value, window int, err error) {
	if h == "" {
		return 0, 0, errors.New("rate limit header missing")
	}
	head, tail, found := strings.Cut(h, ";")
	if value, err = strconv.Atoi(head); err != nil {
		return 0, 0, fmt.Errorf("parsing rate limit header %q: %w", h, err)
	}
	if found {
		if w, ok := strings.CutPrefix(tail, "w="); ok {
			window, _ = strconv.Atoi(w)
		}
	}
	return value, window, nil
}
