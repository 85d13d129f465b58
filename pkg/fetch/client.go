// Package fetch retrieves conformance report documents and release
// listings over HTTP.
package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/boa-dev/conformoor/pkg/config"
	"github.com/boa-dev/conformoor/pkg/report"
)

const (
	githubAPIBaseURL   = "https://api.github.com"
	defaultHTTPTimeout = 30 * time.Second
)

// Release is a single entry of the GitHub releases listing.
type Release struct {
	TagName     string    `json:"tag_name"`
	Name        string    `json:"name"`
	HTMLURL     string    `json:"html_url"`
	PublishedAt time.Time `json:"published_at"`
	Prerelease  bool      `json:"prerelease"`
}

// Client fetches report documents from the configured report host and
// release listings from the GitHub API.
type Client struct {
	log        logrus.FieldLogger
	httpClient *http.Client
	baseURL    string
	repo       string
	apiBaseURL string
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client. The serve path passes a
// retrying client; the one-shot snapshot path passes a plain timeout
// client so a failed fetch fails exactly once, as the page script did.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithGitHubAPIURL overrides the GitHub API base URL.
func WithGitHubAPIURL(u string) Option {
	return func(c *Client) {
		c.apiBaseURL = u
	}
}

// NewClient creates a report fetch client.
func NewClient(
	log logrus.FieldLogger,
	cfg *config.ReportsConfig,
	opts ...Option,
) *Client {
	timeout := defaultHTTPTimeout

	if cfg.FetchTimeout != "" {
		if d, err := time.ParseDuration(cfg.FetchTimeout); err == nil {
			timeout = d
		}
	}

	c := &Client{
		log:        log.WithField("component", "fetch"),
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    cfg.BaseURL,
		repo:       cfg.GitHubRepo,
		apiBaseURL: githubAPIBaseURL,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Info fetches the engine metadata document at {base}/info.json.
func (c *Client) Info(ctx context.Context) (*report.Info, error) {
	var info report.Info
	if err := c.getJSON(ctx, c.baseURL+"/info.json", &info); err != nil {
		return nil, fmt.Errorf("fetching info: %w", err)
	}

	return &info, nil
}

// Latest fetches the most recent complete snapshot for a ref path such
// as "heads/master" or "tags/v0.20".
func (c *Client) Latest(
	ctx context.Context, ref string,
) (*report.Latest, error) {
	url := c.baseURL + "/refs/" + ref + "/latest.json"

	var latest report.Latest
	if err := c.getJSON(ctx, url, &latest); err != nil {
		return nil, fmt.Errorf("fetching latest for %s: %w", ref, err)
	}

	return &latest, nil
}

// History fetches the ordered snapshot series for a ref path.
func (c *Client) History(
	ctx context.Context, ref string,
) (report.History, error) {
	url := c.baseURL + "/refs/" + ref + "/results.json"

	var history report.History
	if err := c.getJSON(ctx, url, &history); err != nil {
		return nil, fmt.Errorf("fetching history for %s: %w", ref, err)
	}

	return history, nil
}

// Releases fetches the repository's releases listing from the GitHub API.
func (c *Client) Releases(ctx context.Context) ([]Release, error) {
	url := c.apiBaseURL + "/repos/" + c.repo + "/releases"

	var releases []Release
	if err := c.getJSON(ctx, url, &releases); err != nil {
		return nil, fmt.Errorf("fetching releases: %w", err)
	}

	return releases, nil
}

// getJSON issues a GET request and decodes the JSON response into out.
func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("requesting %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned status %d", url, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s: %w", url, err)
	}

	return nil
}
