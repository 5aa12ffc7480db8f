package docker

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"
)

// tokenResponse follows the Docker token authentication specification.
// At least one of token or access_token is set on success.
type tokenResponse struct {
	Token       string `json:"token"`
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	IssuedAt    string `json:"issued_at"`
}

// authClient obtains pull-scoped bearer tokens from a Docker-compatible
// token endpoint and caches them until shortly before expiry.
type authClient struct {
	httpClient *http.Client
	baseURL    string
	service    string
	basicAuth  string // Authorization header for the token request, if any

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

func newAuthClient(ref ImageRef, httpClient *http.Client) *authClient {
	return &authClient{
		httpClient: httpClient,
		baseURL:    ref.AuthURL(),
		service:    ref.AuthService(),
		basicAuth:  basicAuthFromEnv(ref),
	}
}

// basicAuthFromEnv builds a basic-auth header from well-known environment
// variables so authenticated runs get higher registry rate limits.
func basicAuthFromEnv(ref ImageRef) string {
	var user, pass string
	switch {
	case ref.IsDockerHub():
		user, pass = os.Getenv("DOCKER_USERNAME"), os.Getenv("DOCKER_PASSWORD")
	case ref.IsGHCR():
		token := os.Getenv("GITHUB_TOKEN")
		if token == "" {
			token = os.Getenv("GH_TOKEN")
		}
		if token != "" {
			user, pass = "token", token
		}
	}
	if user == "" || pass == "" {
		return ""
	}
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+pass))
}

// Token returns a bearer token with pull scope for repo, reusing the
// cached one while it is still valid.
func (a *authClient) Token(ctx context.Context, repo string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.token != "" && time.Now().Before(a.expiresAt) {
		return a.token, nil
	}

	q := url.Values{}
	q.Set("service", a.service)
	q.Set("scope", fmt.Sprintf("repository:%s:pull", repo))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/token?"+q.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("creating token request: %w", err)
	}
	if a.basicAuth != "" {
		req.Header.Set("Authorization", a.basicAuth)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: token request: %v", ErrRegistryUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: token endpoint %s returned status %d", ErrRegistryUnreachable, a.baseURL, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading token response: %w", err)
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", fmt.Errorf("parsing token response: %w", err)
	}

	token := tr.Token
	if token == "" {
		token = tr.AccessToken
	}
	if token == "" {
		return "", fmt.Errorf("token endpoint %s returned neither token nor access_token", a.baseURL)
	}

	expiresIn := tr.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = 60
	}
	a.token = token
	a.expiresAt = time.Now().Add(time.Duration(expiresIn)*time.Second - 10*time.Second)

	return token, nil
}
