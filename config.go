package mediaforge

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds the client configuration.
type Config struct {
	// AuthKey identifies the account against the API.
	AuthKey string `envconfig:"KEY" required:"true"`

	// AuthSecret signs mutating requests. May be empty when SignRequests is false.
	AuthSecret string `envconfig:"SECRET"`

	// SignRequests adds an HMAC signature field to every mutating request.
	// Default: true
	SignRequests bool `envconfig:"SIGN_REQUESTS" default:"true"`

	// HostURL is the API endpoint.
	// Default: https://api.mediaforge.io
	HostURL string `envconfig:"HOST_URL" default:"https://api.mediaforge.io"`

	// AuthExpiry is how far in the future signed payloads expire.
	// Default: 5 minutes
	AuthExpiry time.Duration `envconfig:"AUTH_EXPIRY" default:"5m"`

	// MaxParallelUploads bounds the number of concurrently uploading files
	// in a batch save. 1 means sequential.
	// Default: 1
	MaxParallelUploads int `envconfig:"MAX_PARALLEL_UPLOADS" default:"1"`

	// RetryAttemptsRequestError is the per-request budget for transparently
	// retrying transient errors that match QualifiedErrorsForRetry.
	// Default: 3
	RetryAttemptsRequestError int `envconfig:"RETRY_ATTEMPTS_REQUEST_ERROR" default:"3"`

	// RetryAttemptsRateLimit is the per-request budget for resubmitting a
	// POST after a rate-limit response.
	// Default: 3
	RetryAttemptsRateLimit int `envconfig:"RETRY_ATTEMPTS_RATE_LIMIT" default:"3"`

	// QualifiedErrorsForRetry are substrings of error text that qualify a
	// transient failure for a retry attempt.
	QualifiedErrorsForRetry []string `envconfig:"QUALIFIED_ERRORS" default:"connection reset,broken pipe,EOF,timeout awaiting response"`

	// ResumingEnabled allows interrupted uploads to continue from their last
	// acknowledged offset. Pausing a batch requires it.
	// Default: true
	ResumingEnabled bool `envconfig:"RESUMING_ENABLED" default:"true"`

	// ChunkSizeBytes is the size of one resumable upload chunk.
	// Default: 5 MiB
	ChunkSizeBytes int64 `envconfig:"CHUNK_SIZE_BYTES" default:"5242880"`
}

// DefaultConfig returns a Config with the given credentials and every other
// field at its default.
func DefaultConfig(authKey, authSecret string) Config {
	return Config{
		AuthKey:                   authKey,
		AuthSecret:                authSecret,
		SignRequests:              true,
		HostURL:                   "https://api.mediaforge.io",
		AuthExpiry:                5 * time.Minute,
		MaxParallelUploads:        1,
		RetryAttemptsRequestError: 3,
		RetryAttemptsRateLimit:    3,
		QualifiedErrorsForRetry:   []string{"connection reset", "broken pipe", "EOF", "timeout awaiting response"},
		ResumingEnabled:           true,
		ChunkSizeBytes:            5 * 1024 * 1024,
	}
}

// NewConfigFromEnv reads the configuration from MEDIAFORGE_* environment
// variables.
func NewConfigFromEnv() (Config, error) {
	var cfg Config
	if err := envconfig.Process("mediaforge", &cfg); err != nil {
		return Config{}, localError("process environment config", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the invariants the rest of the client relies on.
func (c Config) Validate() error {
	if c.AuthKey == "" {
		return localError("auth key is required", nil)
	}
	if c.SignRequests && c.AuthSecret == "" {
		return localError("auth secret is required when request signing is enabled", nil)
	}
	if c.MaxParallelUploads < 1 {
		return localError(fmt.Sprintf("max parallel uploads must be at least 1, got %d", c.MaxParallelUploads), nil)
	}
	if c.RetryAttemptsRequestError < 0 || c.RetryAttemptsRateLimit < 0 {
		return localError("retry budgets cannot be negative", nil)
	}
	if c.ChunkSizeBytes < 1 {
		return localError(fmt.Sprintf("chunk size must be positive, got %d", c.ChunkSizeBytes), nil)
	}
	return nil
}
