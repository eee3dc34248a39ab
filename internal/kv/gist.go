package kv

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	gistAPIURL  = "https://api.github.com/gists"
	gistTimeout = 15 * time.Second
)

// Gist stores each key as the file <key>.json inside one GitHub Gist.
type Gist struct {
	gistID      string
	githubToken string
	baseURL     string
	httpClient  *http.Client
}

// GistOption customizes a Gist store.
type GistOption func(*Gist)

// WithGistBaseURL points the store at a different API root (used by tests
// and GitHub Enterprise).
func WithGistBaseURL(url string) GistOption {
	return func(g *Gist) { g.baseURL = url }
}

// WithGistHTTPClient replaces the HTTP client.
func WithGistHTTPClient(c *http.Client) GistOption {
	return func(g *Gist) { g.httpClient = c }
}

// NewGist creates a Gist-backed store.
func NewGist(gistID, githubToken string, opts ...GistOption) (*Gist, error) {
	if gistID == "" {
		return nil, fmt.Errorf("gist ID is required")
	}
	if githubToken == "" {
		return nil, fmt.Errorf("GitHub token is required")
	}

	return newGist(gistID, githubToken, opts), nil
}

func newGist(gistID, githubToken string, opts []GistOption) *Gist {
	g := &Gist{
		gistID:      gistID,
		githubToken: githubToken,
		baseURL:     gistAPIURL,
		httpClient:  &http.Client{Timeout: gistTimeout},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func gistFilename(key string) string {
	return key + ".json"
}

func (g *Gist) newRequest(ctx context.Context, method, url string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", fmt.Sprintf("token %s", g.githubToken))
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (g *Gist) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ValidateKey(key); err != nil {
		return "", false, err
	}

	req, err := g.newRequest(ctx, http.MethodGet, fmt.Sprintf("%s/%s", g.baseURL, g.gistID), nil)
	if err != nil {
		return "", false, err
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", false, fmt.Errorf("fetching gist: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Don't include response body in error to prevent information leakage
		return "", false, fmt.Errorf("GitHub API error (status %d)", resp.StatusCode)
	}

	var gistResp struct {
		Files map[string]struct {
			Content   string `json:"content"`
			Truncated bool   `json:"truncated"`
			RawURL    string `json:"raw_url"`
		} `json:"files"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&gistResp); err != nil {
		return "", false, fmt.Errorf("decoding gist response: %w", err)
	}

	file, exists := gistResp.Files[gistFilename(key)]
	if !exists {
		return "", false, nil
	}
	if file.Truncated && file.RawURL != "" {
		content, err := g.fetchRaw(ctx, file.RawURL)
		if err != nil {
			return "", false, err
		}
		return content, true, nil
	}
	return file.Content, true, nil
}

// fetchRaw downloads a file the API truncated (larger than 1 MB).
func (g *Gist) fetchRaw(ctx context.Context, url string) (string, error) {
	req, err := g.newRequest(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching raw gist file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("GitHub raw error (status %d)", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading raw gist file: %w", err)
	}
	return string(data), nil
}

func (g *Gist) Set(ctx context.Context, key, value string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}

	payload := map[string]interface{}{
		"files": map[string]interface{}{
			gistFilename(key): map[string]string{
				"content": value,
			},
		},
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling payload: %w", err)
	}

	req, err := g.newRequest(ctx, http.MethodPatch, fmt.Sprintf("%s/%s", g.baseURL, g.gistID), bytes.NewReader(payloadBytes))
	if err != nil {
		return err
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("updating gist: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GitHub API error (status %d)", resp.StatusCode)
	}
	return nil
}

func (g *Gist) Close() error {
	return nil
}

// CreateGist creates a new private Gist seeded with an empty collection under
// key and returns its ID.
func CreateGist(ctx context.Context, githubToken, description, key string, opts ...GistOption) (string, error) {
	if githubToken == "" {
		return "", fmt.Errorf("GitHub token is required")
	}
	if err := ValidateKey(key); err != nil {
		return "", err
	}

	g := newGist("", githubToken, opts)

	payload := map[string]interface{}{
		"description": description,
		"public":      false,
		"files": map[string]interface{}{
			gistFilename(key): map[string]string{
				"content": "[]",
			},
		},
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshaling payload: %w", err)
	}

	req, err := g.newRequest(ctx, http.MethodPost, g.baseURL, bytes.NewReader(payloadBytes))
	if err != nil {
		return "", err
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("creating gist: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("GitHub API error (status %d)", resp.StatusCode)
	}

	var gistResp struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&gistResp); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	return gistResp.ID, nil
}
