package mediaforge

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/bitrise-io/go-utils/v2/retryhttp"
	"github.com/hashicorp/go-retryablehttp"
)

// defaultPollInterval paces WaitForCompletion status polls.
const defaultPollInterval = 2 * time.Second

// GetBatch fetches the current state of a batch resource.
func (c *Client) GetBatch(ctx context.Context, batchURL string) (*BatchInfo, error) {
	resp, err := newRequest(c).get(ctx, batchURL, nil)
	if err != nil {
		return nil, err
	}
	info := &BatchInfo{}
	if err := decodeResponse(resp, info); err != nil {
		return nil, err
	}
	return info, nil
}

// CancelBatch cancels a batch on the server side.
func (c *Client) CancelBatch(ctx context.Context, batchURL string) (*BatchInfo, error) {
	resp, err := newRequest(c).delete(ctx, batchURL, nil)
	if err != nil {
		return nil, err
	}
	info := &BatchInfo{}
	if err := decodeResponse(resp, info); err != nil {
		return nil, err
	}
	return info, nil
}

// WaitForCompletion polls the batch status until it reaches a terminal
// state. Status polls are idempotent GETs, so they ride on the retryable
// HTTP client; pass a zero interval for the default pacing.
func (c *Client) WaitForCompletion(ctx context.Context, batchURL string, interval time.Duration) (*BatchInfo, error) {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	httpClient := retryhttp.NewClient(c.logger)

	for {
		payload, err := c.signedPayload(nil, time.Now())
		if err != nil {
			return nil, err
		}
		query := url.Values{}
		for k, v := range payload {
			query.Set(k, v)
		}

		req, err := retryablehttp.NewRequest(http.MethodGet, c.fullURL(batchURL)+"?"+query.Encode(), nil)
		if err != nil {
			return nil, localError("build status request", err)
		}
		req = req.WithContext(ctx)
		req.Header.Set(clientHeader, clientHeaderValue())
		resp, err := httpClient.Do(req)
		if err != nil {
			return nil, requestError("poll batch status", err)
		}
		info := &BatchInfo{}
		if err := decodeResponse(resp, info); err != nil {
			return nil, err
		}
		if info.Finished() {
			return info, nil
		}
		c.logger.Debugf("Batch %s still %s, polling again in %v", info.ID, info.OK, interval)

		timer := time.NewTimer(interval)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, localError("wait for completion interrupted", ctx.Err())
		}
	}
}
