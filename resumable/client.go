package resumable

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/bitrise-io/go-utils/v2/log"
)

// DefaultChunkSize is used when a Client is created with a non-positive
// chunk size.
const DefaultChunkSize int64 = 5 * 1024 * 1024

// Config holds the client configuration for one upload endpoint.
type Config struct {
	// Endpoint is the absolute URL uploads are created against.
	Endpoint string

	// ChunkSize is the number of bytes transmitted per PATCH call.
	ChunkSize int64

	// ResumingEnabled keeps fingerprint entries so interrupted uploads can
	// continue from their last acknowledged offset.
	ResumingEnabled bool

	// Headers are attached to every protocol request (client identification,
	// authorization and the like).
	Headers map[string]string

	// RetryAttempts is the per-call budget for transparently retrying
	// transient errors matching QualifiedErrors.
	RetryAttempts int

	// QualifiedErrors are substrings of error text that qualify a transient
	// failure for a retry.
	QualifiedErrors []string

	// HTTPClient defaults to a plain http.Client.
	HTTPClient *http.Client

	// Store defaults to an in-process MemoryStore.
	Store Store

	Logger log.Logger
}

// Client speaks the resumable upload protocol against one endpoint.
type Client struct {
	config     Config
	httpClient *http.Client
	store      Store
	logger     log.Logger
}

// NewClient creates a Client from the given configuration.
func NewClient(config Config) *Client {
	if config.ChunkSize <= 0 {
		config.ChunkSize = DefaultChunkSize
	}
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	store := config.Store
	if store == nil {
		store = NewMemoryStore()
	}
	logger := config.Logger
	if logger == nil {
		logger = log.NewLogger()
	}
	return &Client{
		config:     config,
		httpClient: httpClient,
		store:      store,
		logger:     logger,
	}
}

// ResumingEnabled reports whether interrupted uploads can be resumed.
func (c *Client) ResumingEnabled() bool {
	return c.config.ResumingEnabled
}

// CreateUpload registers a new upload and returns an open handle positioned
// at offset zero.
func (c *Client) CreateUpload(ctx context.Context, upload *Upload) (*Uploader, error) {
	var location string

	err := c.withRetry(ctx, "create upload", func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, nil)
		if err != nil {
			return err
		}
		c.setCommonHeaders(req)
		req.Header.Set("Upload-Length", strconv.FormatInt(upload.Size(), 10))
		if encoded := upload.encodedMetadata(); encoded != "" {
			req.Header.Set("Upload-Metadata", encoded)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer func() {
			_ = resp.Body.Close()
		}()

		if resp.StatusCode != http.StatusCreated {
			return unexpectedResponse(resp)
		}
		location, err = c.resolveLocation(resp.Header.Get("Location"))
		return err
	})
	if err != nil {
		return nil, err
	}

	if c.config.ResumingEnabled && upload.Fingerprint() != "" {
		c.store.Set(upload.Fingerprint(), location)
	}
	c.logger.Debugf("Created upload at %s (%d bytes)", location, upload.Size())

	return newUploader(c, upload, location, 0)
}

// ResumeUpload re-establishes the handle for a previously created upload via
// fingerprint lookup, positioned at the server's last acknowledged offset.
func (c *Client) ResumeUpload(ctx context.Context, upload *Upload) (*Uploader, error) {
	if !c.config.ResumingEnabled {
		return nil, ErrResumingDisabled
	}
	location, ok := c.store.Get(upload.Fingerprint())
	if !ok {
		return nil, ErrFingerprintNotFound
	}

	var offset int64
	err := c.withRetry(ctx, "look up upload offset", func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, location, nil)
		if err != nil {
			return err
		}
		c.setCommonHeaders(req)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer func() {
			_ = resp.Body.Close()
		}()

		if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
			c.store.Delete(upload.Fingerprint())
			return unexpectedResponse(resp)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return unexpectedResponse(resp)
		}
		offset, err = strconv.ParseInt(resp.Header.Get("Upload-Offset"), 10, 64)
		if err != nil {
			return fmt.Errorf("parse Upload-Offset header: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.Debugf("Resumed upload at %s from offset %d", location, offset)
	return newUploader(c, upload, location, offset)
}

// CreateOrResumeUpload resumes when a fingerprint entry exists and falls
// back to creating a fresh upload when resuming is disabled or unknown.
func (c *Client) CreateOrResumeUpload(ctx context.Context, upload *Upload) (*Uploader, error) {
	uploader, err := c.ResumeUpload(ctx, upload)
	if err == ErrResumingDisabled || err == ErrFingerprintNotFound {
		return c.CreateUpload(ctx, upload)
	}
	if err != nil {
		return nil, err
	}
	return uploader, nil
}

func (c *Client) setCommonHeaders(req *http.Request) {
	for k, v := range c.config.Headers {
		req.Header.Set(k, v)
	}
}

// resolveLocation makes a Location header absolute against the endpoint.
func (c *Client) resolveLocation(location string) (string, error) {
	if location == "" {
		return "", fmt.Errorf("no Location header in create response")
	}
	base, err := url.Parse(c.config.Endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint URL: %w", err)
	}
	ref, err := url.Parse(location)
	if err != nil {
		return "", fmt.Errorf("parse Location header: %w", err)
	}
	return base.ResolveReference(ref).String(), nil
}

func unexpectedResponse(resp *http.Response) error {
	snippet := make([]byte, 256)
	n, _ := io.ReadFull(resp.Body, snippet)
	return &ProtocolError{StatusCode: resp.StatusCode, Message: string(snippet[:n])}
}
