package mediaforge

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// capturedCall records what the template endpoints received.
type capturedCall struct {
	method    string
	path      string
	params    map[string]interface{}
	signature string
}

func newTemplateServer(t *testing.T, status int, body string) (*httptest.Server, *capturedCall) {
	t.Helper()
	call := &capturedCall{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		call.method = r.Method
		call.path = r.URL.Path

		var rawParams string
		switch r.Method {
		case http.MethodGet:
			rawParams = r.URL.Query().Get("params")
			call.signature = r.URL.Query().Get("signature")
		default:
			require.NoError(t, r.ParseMultipartForm(1<<20))
			rawParams = r.FormValue("params")
			call.signature = r.FormValue("signature")
		}
		if rawParams != "" {
			require.NoError(t, json.Unmarshal([]byte(rawParams), &call.params))
		}

		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server, call
}

func TestCreateTemplate(t *testing.T) {
	server, call := newTemplateServer(t, http.StatusOK, `{"ok":"TEMPLATE_CREATED","template_id":"tpl-1","name":"encode-preset"}`)
	client := testClient(t, func(cfg *Config) { cfg.HostURL = server.URL })

	steps := NewSteps()
	steps.Add("encode", "/video/encode", map[string]interface{}{"preset": "web"})

	info, err := client.CreateTemplate(context.Background(), "encode-preset", steps)
	require.NoError(t, err)

	assert.Equal(t, "tpl-1", info.ID)
	assert.Equal(t, "TEMPLATE_CREATED", info.OK)
	assert.Equal(t, http.StatusOK, info.StatusCode)

	assert.Equal(t, http.MethodPost, call.method)
	assert.Equal(t, "/templates", call.path)
	assert.Len(t, call.signature, 40)
	assert.Equal(t, "encode-preset", call.params["name"])

	template, ok := call.params["template"].(map[string]interface{})
	require.True(t, ok)
	templateSteps, ok := template["steps"].(map[string]interface{})
	require.True(t, ok)
	require.Contains(t, templateSteps, "encode")
}

func TestGetTemplate(t *testing.T) {
	server, call := newTemplateServer(t, http.StatusOK, `{"ok":"TEMPLATE_FOUND","template_id":"tpl-1","name":"encode-preset","content":{"steps":{}}}`)
	client := testClient(t, func(cfg *Config) { cfg.HostURL = server.URL })

	info, err := client.GetTemplate(context.Background(), "tpl-1")
	require.NoError(t, err)

	assert.Equal(t, http.MethodGet, call.method)
	assert.Equal(t, "/templates/tpl-1", call.path)
	require.Contains(t, call.params, "auth")
	assert.Equal(t, "encode-preset", info.Name)
	assert.NotNil(t, info.Content)
}

func TestUpdateTemplate(t *testing.T) {
	server, call := newTemplateServer(t, http.StatusOK, `{"ok":"TEMPLATE_UPDATED","template_id":"tpl-1"}`)
	client := testClient(t, func(cfg *Config) { cfg.HostURL = server.URL })

	steps := NewSteps()
	steps.Add("encode", "/video/encode", map[string]interface{}{"preset": "mobile"})

	info, err := client.UpdateTemplate(context.Background(), "tpl-1", "encode-preset-v2", steps)
	require.NoError(t, err)

	assert.Equal(t, http.MethodPut, call.method)
	assert.Equal(t, "/templates/tpl-1", call.path)
	assert.Equal(t, "encode-preset-v2", call.params["name"])
	assert.Equal(t, "TEMPLATE_UPDATED", info.OK)
}

func TestDeleteTemplate(t *testing.T) {
	server, call := newTemplateServer(t, http.StatusOK, `{"ok":"TEMPLATE_DELETED"}`)
	client := testClient(t, func(cfg *Config) { cfg.HostURL = server.URL })

	require.NoError(t, client.DeleteTemplate(context.Background(), "tpl-1"))
	assert.Equal(t, http.MethodDelete, call.method)
	assert.Equal(t, "/templates/tpl-1", call.path)
}

func TestDeleteTemplate_NotFound(t *testing.T) {
	server, _ := newTemplateServer(t, http.StatusNotFound, `{"error":"TEMPLATE_NOT_FOUND","message":"no such template"}`)
	client := testClient(t, func(cfg *Config) { cfg.HostURL = server.URL })

	err := client.DeleteTemplate(context.Background(), "tpl-404")
	require.Error(t, err)
	var reqErr *RequestError
	assert.ErrorAs(t, err, &reqErr)
	assert.Contains(t, err.Error(), fmt.Sprintf("HTTP %d", http.StatusNotFound))
}
