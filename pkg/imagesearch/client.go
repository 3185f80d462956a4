// Package imagesearch finds illustrative photos for a document.
//
// The only provider is Pexels (https://www.pexels.com/api/). A search asks
// for a single landscape photo and returns its largest usable source.
package imagesearch

import (
	"context"
	"net/http"
	"os"
	"strings"
	"time"
)

const (
	// DefaultBaseURL is the Pexels API base URL.
	DefaultBaseURL = "https://api.pexels.com"

	// DefaultTimeout is the per-request timeout.
	DefaultTimeout = 15 * time.Second

	// DefaultMaxRetries is the number of retries for rate limits and
	// server errors.
	DefaultMaxRetries = 2
)

// Searcher finds one photo for a query.
type Searcher interface {
	Search(ctx context.Context, query string) (*Photo, error)
}

// Config is stored as pexels.yaml in a CLI context.
type Config struct {
	// APIKey may name an environment variable, e.g. "$PEXELS_API_KEY".
	APIKey  string `json:"api_key" yaml:"api_key"`
	BaseURL string `json:"base_url,omitzero" yaml:"base_url,omitempty"`
}

// NewClient creates a client from cfg.
func (c Config) NewClient(opts ...Option) *Client {
	key := c.APIKey
	if strings.HasPrefix(key, "$") {
		key = os.ExpandEnv(key)
	}
	if c.BaseURL != "" {
		opts = append([]Option{WithBaseURL(c.BaseURL)}, opts...)
	}
	return NewClient(key, opts...)
}

var _ Searcher = (*Client)(nil)

// Client is a Pexels API client.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	maxRetries int
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL sets a custom API base URL.
func WithBaseURL(url string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(url, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithRetry sets the maximum number of retries.
func WithRetry(maxRetries int) Option {
	return func(c *Client) {
		c.maxRetries = maxRetries
	}
}

// NewClient creates a Pexels client authenticating with apiKey.
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:     apiKey,
		baseURL:    DefaultBaseURL,
		maxRetries: DefaultMaxRetries,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	return c
}
