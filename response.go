package mediaforge

import (
	"encoding/json"
	"io"
	"net/http"
)

type apiResponse interface {
	setStatusCode(code int)
}

func (i *BatchInfo) setStatusCode(code int) {
	i.StatusCode = code
}

// decodeResponse drains and closes the response body into v and records the
// status code. Bodies of error responses are decoded too; callers decide
// what a non-2xx status means.
func decodeResponse(resp *http.Response, v apiResponse) error {
	defer func() {
		_ = resp.Body.Close()
	}()

	v.setStatusCode(resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return requestError("read response body", err)
	}
	if len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return requestError("decode response body", err)
	}
	return nil
}
