package docker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const hubPageSize = 100

// HubTag is one tag as reported by the Docker Hub API, carrying richer
// per-image metadata than the plain V2 tag list.
type HubTag struct {
	Name     string        `json:"name"`
	FullSize int64         `json:"full_size"`
	Status   string        `json:"status"`
	Images   []HubTagImage `json:"images"`
}

// HubTagImage describes one image behind a Docker Hub tag.
type HubTagImage struct {
	Architecture string `json:"architecture"`
	Variant      string `json:"variant"`
	OS           string `json:"os"`
	Digest       string `json:"digest"`
	Size         int64  `json:"size"`
	Status       string `json:"status"`
}

type hubTagPage struct {
	Count   int      `json:"count"`
	Next    string   `json:"next"`
	Results []HubTag `json:"results"`
}

// Hub is a client for the Docker Hub proprietary repository API. It only
// applies to images hosted on Docker Hub; other registries use the
// standard V2 tag list on Registry instead.
type Hub struct {
	repository  string
	httpClient  *http.Client
	baseURL     string
	maxAttempts int
	callTimeout time.Duration
}

// HubOption configures a Hub client.
type HubOption func(*Hub)

// WithHubHTTPClient sets the HTTP client used for all requests.
func WithHubHTTPClient(c *http.Client) HubOption {
	return func(h *Hub) { h.httpClient = c }
}

// WithHubEndpoint overrides the API base URL. Used by tests.
func WithHubEndpoint(baseURL string) HubOption {
	return func(h *Hub) { h.baseURL = baseURL }
}

// WithHubMaxAttempts bounds the retry budget per call.
func WithHubMaxAttempts(n int) HubOption {
	return func(h *Hub) { h.maxAttempts = n }
}

// WithHubCallTimeout bounds the wall-clock time of a single call.
func WithHubCallTimeout(d time.Duration) HubOption {
	return func(h *Hub) { h.callTimeout = d }
}

// NewHub creates a Docker Hub client for the given repository
// (e.g. "bluerobotics/cockpit").
func NewHub(repository string, opts ...HubOption) *Hub {
	h := &Hub{
		repository:  repository,
		httpClient:  http.DefaultClient,
		baseURL:     "https://hub.docker.com/v2",
		maxAttempts: defaultMaxAttempts,
		callTimeout: defaultCallTimeout,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Tags returns every tag of the repository, newest first, following the
// paginated listing until exhausted.
func (h *Hub) Tags(ctx context.Context) ([]HubTag, error) {
	q := url.Values{}
	q.Set("page_size", fmt.Sprint(hubPageSize))
	q.Set("page", "1")
	q.Set("ordering", "last_updated")
	next := fmt.Sprintf("%s/repositories/%s/tags?%s", h.baseURL, h.repository, q.Encode())

	var tags []HubTag
	for next != "" {
		var page hubTagPage
		if err := h.getJSON(ctx, next, &page); err != nil {
			return nil, fmt.Errorf("listing Docker Hub tags for %s: %w", h.repository, err)
		}
		tags = append(tags, page.Results...)
		next = page.Next
	}
	return tags, nil
}

// getJSON performs a GET with bounded retries and a per-call timeout.
func (h *Hub) getJSON(ctx context.Context, route string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, h.callTimeout)
	defer cancel()

	var lastErr error
	for attempt := 0; attempt < h.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := retryBaseDelay << (attempt - 1)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return fmt.Errorf("%w: %v", ErrRegistryUnreachable, ctx.Err())
			}
		}

		retryable, err := h.getJSONOnce(ctx, route, out)
		if err == nil {
			return nil
		}
		if !retryable {
			return err
		}
		lastErr = err
	}
	return lastErr
}

func (h *Hub) getJSONOnce(ctx context.Context, route string, out any) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, route, nil)
	if err != nil {
		return false, fmt.Errorf("creating request: %w", err)
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return true, fmt.Errorf("%w: %v", ErrRegistryUnreachable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		return false, fmt.Errorf("%w: status 404 on %s", ErrRegistryNotFound, route)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return true, fmt.Errorf("%w: status %d on %s", ErrRegistryUnreachable, resp.StatusCode, route)
	default:
		return false, fmt.Errorf("Docker Hub API returned status %d on %s", resp.StatusCode, route)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return true, fmt.Errorf("%w: reading response: %v", ErrRegistryUnreachable, err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return false, fmt.Errorf("parsing response from %s: %w", route, err)
	}
	return false, nil
}
