// Package mediaforge is a client for the MediaForge media-processing API.
// It covers signed HTTP requests, batch creation and concurrent resumable
// file uploads with pause/resume/abort control.
package mediaforge

import (
	"net/http"
	"strings"

	"github.com/bitrise-io/go-utils/v2/log"

	"github.com/mediaforge-io/mediaforge-go/resumable"
)

// Client talks to the MediaForge API.
type Client struct {
	config         Config
	httpClient     *http.Client
	logger         log.Logger
	resumableStore *resumable.MemoryStore
}

// NewClient creates a Client from the given configuration.
func NewClient(config Config) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Client{
		config:         config,
		httpClient:     &http.Client{},
		logger:         log.NewLogger(),
		resumableStore: resumable.NewMemoryStore(),
	}, nil
}

// SetLogger replaces the default logger.
func (c *Client) SetLogger(logger log.Logger) {
	c.logger = logger
}

// SetHTTPClient replaces the underlying HTTP client, mostly useful in tests.
func (c *Client) SetHTTPClient(httpClient *http.Client) {
	c.httpClient = httpClient
}

// Config returns a copy of the client configuration.
func (c *Client) Config() Config {
	return c.config
}

// newResumableClient builds a protocol client for the endpoint a batch
// creation response handed back. The fingerprint store is shared across
// batches so restarted saves can pick up in-flight uploads.
func (c *Client) newResumableClient(endpoint string) *resumable.Client {
	return resumable.NewClient(resumable.Config{
		Endpoint:        endpoint,
		ChunkSize:       c.config.ChunkSizeBytes,
		ResumingEnabled: c.config.ResumingEnabled,
		Headers:         map[string]string{clientHeader: clientHeaderValue()},
		RetryAttempts:   c.config.RetryAttemptsRequestError,
		QualifiedErrors: c.config.QualifiedErrorsForRetry,
		HTTPClient:      c.httpClient,
		Store:           c.resumableStore,
		Logger:          c.logger,
	})
}

// fullURL converts an API path to an absolute URL. Absolute URLs pass through
// untouched so Location headers from the server can be used directly.
func (c *Client) fullURL(path string) string {
	if strings.HasPrefix(path, "https://") || strings.HasPrefix(path, "http://") {
		return path
	}
	return strings.TrimSuffix(c.config.HostURL, "/") + path
}
