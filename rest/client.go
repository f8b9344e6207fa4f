package rest

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/audiolink/audiolink/lavalink"
	"github.com/audiolink/audiolink/lfu"
)

// DefaultDecodeCacheSize is the decode cache capacity when not overridden.
const DefaultDecodeCacheSize = 256

// Client provides access to an audio node's REST API.
type Client struct {
	baseURL    string
	password   string
	httpClient *http.Client
	logger     *slog.Logger

	maxRetries   int
	retryBackoff time.Duration

	decodeCache *lfu.Cache[string, lavalink.TrackInfo]
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// NewClient creates a REST client for one node. baseURL is the node's HTTP
// root, e.g. "http://localhost:2333".
func NewClient(baseURL, password string, opts ...ClientOption) (*Client, error) {
	c := &Client{
		baseURL:  baseURL,
		password: password,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger:       slog.Default(),
		maxRetries:   3,
		retryBackoff: time.Second,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.decodeCache == nil {
		cache, err := lfu.New[string, lavalink.TrackInfo](DefaultDecodeCacheSize)
		if err != nil {
			return nil, err
		}
		c.decodeCache = cache
	}

	return c, nil
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithRetries sets the retry configuration.
func WithRetries(max int, backoff time.Duration) ClientOption {
	return func(c *Client) {
		c.maxRetries = max
		c.retryBackoff = backoff
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithDecodeCache sets the decode cache. Useful for sharing one cache
// across clients or tuning its capacity.
func WithDecodeCache(cache *lfu.Cache[string, lavalink.TrackInfo]) ClientOption {
	return func(c *Client) {
		c.decodeCache = cache
	}
}

// CacheStats reports hit/miss/eviction counters for the decode cache.
func (c *Client) CacheStats() lfu.Stats {
	return c.decodeCache.Stats()
}
