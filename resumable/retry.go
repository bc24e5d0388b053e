package resumable

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"
)

// withRetry runs fn, transparently retrying transient errors whose text
// matches the configured allow-list. The attempt budget is local to this one
// logical call. The backoff sleep holds no locks.
func (c *Client) withRetry(ctx context.Context, operation string, fn func() error) error {
	attemptsLeft := c.config.RetryAttempts
	for {
		err := fn()
		if err == nil {
			return nil
		}
		if !c.qualifiedForRetry(err, attemptsLeft) {
			return fmt.Errorf("%s: %w", operation, err)
		}
		attemptsLeft--
		c.logger.Warnf("Retrying %s, attempts left: %d (%s)", operation, attemptsLeft, err)

		wait := time.Second + time.Duration(rand.Int63n(int64(time.Second)))
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%s: backoff interrupted: %w", operation, ctx.Err())
		}
	}
}

func (c *Client) qualifiedForRetry(err error, attemptsLeft int) bool {
	if attemptsLeft <= 0 {
		return false
	}
	text := err.Error()
	for _, substring := range c.config.QualifiedErrors {
		if strings.Contains(text, substring) {
			return true
		}
	}
	return false
}
