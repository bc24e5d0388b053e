package mediaforge

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"time"
)

// expiresFormat is the wall-clock format the API expects in auth blocks.
const expiresFormat = "2006/01/02 15:04:05+00:00"

// signedPayload serializes request params into the multipart fields the API
// expects: a "params" field holding the JSON tree plus an auth block, and,
// when signing is enabled, a "signature" field with a hex HMAC-SHA1 over the
// exact params JSON. Identical params signed at the same instant produce an
// identical signature.
func (c *Client) signedPayload(params map[string]interface{}, now time.Time) (map[string]string, error) {
	tree := make(map[string]interface{}, len(params)+1)
	for k, v := range params {
		tree[k] = v
	}
	tree["auth"] = map[string]string{
		"key":     c.config.AuthKey,
		"expires": now.UTC().Add(c.config.AuthExpiry).Format(expiresFormat),
	}

	paramsJSON, err := json.Marshal(tree)
	if err != nil {
		return nil, localError("serialize request params", err)
	}

	payload := map[string]string{"params": string(paramsJSON)}
	if c.config.SignRequests {
		payload["signature"] = signParams(paramsJSON, c.config.AuthSecret)
	}
	return payload, nil
}

func signParams(paramsJSON []byte, secret string) string {
	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write(paramsJSON)
	return hex.EncodeToString(mac.Sum(nil))
}
