package mediaforge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// clientHeader names the SDK and version on every outgoing request.
const clientHeader = "MediaForge-Client"

// defaultRateLimitWait is the server cooldown assumed when a rate-limit
// response carries no retryIn hint.
const defaultRateLimitWait = 60 * time.Second

// request executes one logical API call. Retry budgets are cloned from the
// client configuration at construction, so they are consumed per request and
// never leak across requests or mutate shared state.
type request struct {
	client          *Client
	rateLimitLeft   int
	requestErrLeft  int
	qualifiedErrors []string
}

func newRequest(c *Client) *request {
	return &request{
		client:          c,
		rateLimitLeft:   c.config.RetryAttemptsRateLimit,
		requestErrLeft:  c.config.RetryAttemptsRequestError,
		qualifiedErrors: c.config.QualifiedErrorsForRetry,
	}
}

func (r *request) get(ctx context.Context, path string, params map[string]interface{}) (*http.Response, error) {
	build := func() (*http.Request, error) {
		payload, err := r.client.signedPayload(params, time.Now())
		if err != nil {
			return nil, err
		}
		query := url.Values{}
		for k, v := range payload {
			query.Set(k, v)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.client.fullURL(path)+"?"+query.Encode(), nil)
		if err != nil {
			return nil, localError("build GET request", err)
		}
		return req, nil
	}
	return r.execute(ctx, http.MethodGet, build)
}

func (r *request) post(ctx context.Context, path string, params map[string]interface{},
	extraData map[string]string, files map[string]string, streams map[string]io.Reader) (*http.Response, error) {

	// Streams are drained once so the body can be rebuilt on every attempt.
	streamData := make(map[string][]byte, len(streams))
	for field, stream := range streams {
		data, err := io.ReadAll(stream)
		if err != nil {
			return nil, localError(fmt.Sprintf("read stream for field %q", field), err)
		}
		streamData[field] = data
	}

	build := func() (*http.Request, error) {
		payload, err := r.client.signedPayload(params, time.Now())
		if err != nil {
			return nil, err
		}
		for k, v := range extraData {
			payload[k] = v
		}
		body, contentType, err := buildMultipartBody(payload, files, streamData)
		if err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.client.fullURL(path), body)
		if err != nil {
			return nil, localError("build POST request", err)
		}
		req.Header.Set("Content-Type", contentType)
		return req, nil
	}
	return r.execute(ctx, http.MethodPost, build)
}

func (r *request) put(ctx context.Context, path string, params map[string]interface{}) (*http.Response, error) {
	return r.execute(ctx, http.MethodPut, r.plainBodyBuilder(ctx, http.MethodPut, path, params))
}

func (r *request) delete(ctx context.Context, path string, params map[string]interface{}) (*http.Response, error) {
	return r.execute(ctx, http.MethodDelete, r.plainBodyBuilder(ctx, http.MethodDelete, path, params))
}

func (r *request) plainBodyBuilder(ctx context.Context, method, path string, params map[string]interface{}) func() (*http.Request, error) {
	return func() (*http.Request, error) {
		payload, err := r.client.signedPayload(params, time.Now())
		if err != nil {
			return nil, err
		}
		body, contentType, err := buildMultipartBody(payload, nil, nil)
		if err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, method, r.client.fullURL(path), body)
		if err != nil {
			return nil, localError("build "+method+" request", err)
		}
		req.Header.Set("Content-Type", contentType)
		return req, nil
	}
}

// execute runs the per-call state machine: attempt, then either done, a
// jittered backoff for qualifying transient errors, or a rate-limit cooldown
// for POST 413 responses. An exhausted rate-limit budget hands the 413
// response back to the caller untouched.
func (r *request) execute(ctx context.Context, method string, build func() (*http.Request, error)) (*http.Response, error) {
	for {
		req, err := build()
		if err != nil {
			return nil, err
		}
		req.Header.Set(clientHeader, clientHeaderValue())

		resp, err := r.client.httpClient.Do(req)
		if err != nil {
			if !r.qualifiedForRetry(err) {
				return nil, requestError(method+" "+req.URL.Path, err)
			}
			r.requestErrLeft--
			r.client.logger.Warnf("Retrying %s %s, attempts left: %d (%s)", method, req.URL.Path, r.requestErrLeft, err)
			if err := sleepWithJitter(ctx, time.Second); err != nil {
				return nil, err
			}
			continue
		}

		if method == http.MethodPost && resp.StatusCode == http.StatusRequestEntityTooLarge && r.rateLimitLeft > 0 {
			r.rateLimitLeft--
			wait := rateLimitWait(resp)
			r.client.logger.Warnf("Rate limited on POST %s, resubmitting in %v, attempts left: %d", req.URL.Path, wait, r.rateLimitLeft)
			if err := sleepWithJitter(ctx, wait); err != nil {
				return nil, err
			}
			continue
		}

		return resp, nil
	}
}

// qualifiedForRetry reports whether the error text matches the configured
// allow-list while transient attempts remain.
func (r *request) qualifiedForRetry(err error) bool {
	if r.requestErrLeft <= 0 {
		return false
	}
	text := err.Error()
	for _, substring := range r.qualifiedErrors {
		if strings.Contains(text, substring) {
			return true
		}
	}
	return false
}

// rateLimitWait reads the server-suggested cooldown from a 413 body. The
// body is consumed; by this point the response is only used for its hint.
func rateLimitWait(resp *http.Response) time.Duration {
	defer func() {
		_ = resp.Body.Close()
	}()

	var parsed struct {
		Info struct {
			RetryIn interface{} `json:"retryIn"`
		} `json:"info"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return defaultRateLimitWait
	}

	switch v := parsed.Info.RetryIn.(type) {
	case string:
		seconds, err := strconv.ParseFloat(v, 64)
		if err != nil || seconds <= 0 {
			return defaultRateLimitWait
		}
		return time.Duration(seconds * float64(time.Second))
	case float64:
		if v <= 0 {
			return defaultRateLimitWait
		}
		return time.Duration(v * float64(time.Second))
	default:
		return defaultRateLimitWait
	}
}

// sleepWithJitter sleeps for the base duration plus up to one extra second.
// A cancelled context during the sleep is a local failure, mirroring an
// interrupted wait. Callers must not hold any shared lock here.
func sleepWithJitter(ctx context.Context, base time.Duration) error {
	wait := base + time.Duration(rand.Int63n(int64(time.Second)))
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return localError("backoff sleep interrupted", ctx.Err())
	}
}

func buildMultipartBody(fields map[string]string, files map[string]string, streams map[string][]byte) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	for field, path := range files {
		file, err := os.Open(path)
		if err != nil {
			return nil, "", localError("open upload file", err)
		}
		part, err := createFilePart(writer, field, filepath.Base(path))
		if err == nil {
			_, err = io.Copy(part, file)
		}
		if cerr := file.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return nil, "", localError(fmt.Sprintf("attach file %q", path), err)
		}
	}

	for field, data := range streams {
		part, err := createFilePart(writer, field, "")
		if err == nil {
			_, err = part.Write(data)
		}
		if err != nil {
			return nil, "", localError(fmt.Sprintf("attach stream field %q", field), err)
		}
	}

	for field, value := range fields {
		if err := writer.WriteField(field, value); err != nil {
			return nil, "", localError(fmt.Sprintf("write field %q", field), err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", localError("finalize multipart body", err)
	}
	return body, writer.FormDataContentType(), nil
}

func createFilePart(writer *multipart.Writer, field, filename string) (io.Writer, error) {
	contentType := "application/octet-stream"
	if filename != "" {
		if byExtension := mime.TypeByExtension(filepath.Ext(filename)); byExtension != "" {
			contentType = byExtension
		}
	}

	header := make(textproto.MIMEHeader)
	disposition := fmt.Sprintf(`form-data; name=%q`, field)
	if filename != "" {
		disposition = fmt.Sprintf(`form-data; name=%q; filename=%q`, field, filename)
	}
	header.Set("Content-Disposition", disposition)
	header.Set("Content-Type", contentType)
	return writer.CreatePart(header)
}
