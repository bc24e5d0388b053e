package mediaforge

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyTransport fails the first N round trips with a fixed error, then
// forwards to the real transport.
type flakyTransport struct {
	mu       sync.Mutex
	failures int
	err      error
	base     http.RoundTripper
	attempts int
}

func (t *flakyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	t.mu.Lock()
	t.attempts++
	fail := t.failures > 0
	if fail {
		t.failures--
	}
	t.mu.Unlock()

	if fail {
		return nil, t.err
	}
	return t.base.RoundTrip(req)
}

func (t *flakyTransport) attemptCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.attempts
}

func TestRequest_TransientErrorRetried(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	transport := &flakyTransport{
		failures: 1,
		err:      errors.New("connection reset by peer"),
		base:     http.DefaultTransport,
	}
	client := testClient(t, func(cfg *Config) {
		cfg.HostURL = server.URL
		cfg.RetryAttemptsRequestError = 3
	})
	client.SetHTTPClient(&http.Client{Transport: transport})

	resp, err := newRequest(client).get(context.Background(), "/batches/1", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 2, transport.attemptCount())
}

func TestRequest_RetryBudgetExhausted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	transport := &flakyTransport{
		failures: 5,
		err:      errors.New("connection reset by peer"),
		base:     http.DefaultTransport,
	}
	client := testClient(t, func(cfg *Config) {
		cfg.HostURL = server.URL
		cfg.RetryAttemptsRequestError = 1
	})
	client.SetHTTPClient(&http.Client{Transport: transport})

	_, err := newRequest(client).get(context.Background(), "/batches/1", nil)
	require.Error(t, err)

	var reqErr *RequestError
	assert.ErrorAs(t, err, &reqErr)
	assert.Equal(t, 2, transport.attemptCount())
}

func TestRequest_NonQualifyingErrorNotRetried(t *testing.T) {
	transport := &flakyTransport{
		failures: 1,
		err:      errors.New("certificate has expired"),
		base:     http.DefaultTransport,
	}
	client := testClient(t, func(cfg *Config) {
		cfg.RetryAttemptsRequestError = 3
	})
	client.SetHTTPClient(&http.Client{Transport: transport})

	_, err := newRequest(client).get(context.Background(), "/batches/1", nil)
	require.Error(t, err)

	var reqErr *RequestError
	assert.ErrorAs(t, err, &reqErr)
	assert.Equal(t, 1, transport.attemptCount())
}

func TestRequest_FreshBudgetPerRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	transport := &flakyTransport{
		failures: 1,
		err:      errors.New("unexpected EOF"),
		base:     http.DefaultTransport,
	}
	client := testClient(t, func(cfg *Config) {
		cfg.HostURL = server.URL
		cfg.RetryAttemptsRequestError = 1
	})
	client.SetHTTPClient(&http.Client{Transport: transport})

	resp, err := newRequest(client).get(context.Background(), "/batches/1", nil)
	require.NoError(t, err)
	resp.Body.Close()

	// The first request consumed its whole budget; a fresh request starts
	// with a full one.
	transport.mu.Lock()
	transport.failures = 1
	transport.mu.Unlock()

	resp, err = newRequest(client).get(context.Background(), "/batches/1", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRequest_RateLimitedPostResubmitted(t *testing.T) {
	var mu sync.Mutex
	var posts int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		posts++
		count := posts
		mu.Unlock()

		if count == 1 {
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			_, _ = w.Write([]byte(`{"info":{"retryIn":"1"}}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":"BATCH_UPLOADING"}`))
	}))
	defer server.Close()

	client := testClient(t, func(cfg *Config) {
		cfg.HostURL = server.URL
		cfg.RetryAttemptsRateLimit = 1
	})

	start := time.Now()
	resp, err := newRequest(client).post(context.Background(), "/batches", nil, nil, nil, nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.GreaterOrEqual(t, time.Since(start), time.Second)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, posts)
}

func TestRequest_RateLimitBudgetExhaustedReturnsResponse(t *testing.T) {
	var mu sync.Mutex
	var posts int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		posts++
		mu.Unlock()
		w.WriteHeader(http.StatusRequestEntityTooLarge)
		_, _ = w.Write([]byte(`{"info":{"retryIn":"1"}}`))
	}))
	defer server.Close()

	client := testClient(t, func(cfg *Config) {
		cfg.HostURL = server.URL
		cfg.RetryAttemptsRateLimit = 0
	})

	resp, err := newRequest(client).post(context.Background(), "/batches", nil, nil, nil, nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	// Callers must inspect the status code themselves at this point.
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, posts)
}

func TestRateLimitWait(t *testing.T) {
	tests := []struct {
		name string
		body string
		want time.Duration
	}{
		{"string seconds", `{"info":{"retryIn":"2"}}`, 2 * time.Second},
		{"numeric seconds", `{"info":{"retryIn":1.5}}`, 1500 * time.Millisecond},
		{"negative clamped to default", `{"info":{"retryIn":"-5"}}`, defaultRateLimitWait},
		{"zero clamped to default", `{"info":{"retryIn":0}}`, defaultRateLimitWait},
		{"unparseable", `{"info":{"retryIn":"soon"}}`, defaultRateLimitWait},
		{"missing hint", `{}`, defaultRateLimitWait},
		{"no body", ``, defaultRateLimitWait},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := &http.Response{Body: io.NopCloser(strings.NewReader(tt.body))}
			assert.Equal(t, tt.want, rateLimitWait(resp))
		})
	}
}

func TestRequest_PostCarriesSignedMultipartPayload(t *testing.T) {
	type captured struct {
		clientHeader string
		params       string
		signature    string
		extra        string
		fileContent  string
		fileName     string
	}
	var got captured

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		got.clientHeader = r.Header.Get("MediaForge-Client")
		got.params = r.FormValue("params")
		got.signature = r.FormValue("signature")
		got.extra = r.FormValue("resumable_num_expected_files")

		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		content, err := io.ReadAll(file)
		require.NoError(t, err)
		got.fileContent = string(content)
		got.fileName = header.Filename

		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	path := t.TempDir() + "/clip.mp4"
	require.NoError(t, writeFile(path, "fake video data"))

	client := testClient(t, func(cfg *Config) {
		cfg.HostURL = server.URL
	})

	resp, err := newRequest(client).post(context.Background(), "/batches",
		map[string]interface{}{"template_id": "tpl-1"},
		map[string]string{"resumable_num_expected_files": "1"},
		map[string]string{"file": path},
		nil)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "go-sdk:"+Version, got.clientHeader)
	assert.Contains(t, got.params, `"template_id":"tpl-1"`)
	assert.Contains(t, got.params, `"auth"`)
	assert.Len(t, got.signature, 40) // hex SHA-1
	assert.Equal(t, "1", got.extra)
	assert.Equal(t, "fake video data", got.fileContent)
	assert.Equal(t, "clip.mp4", got.fileName)
}
