// Package resumable implements the client side of the resumable upload
// protocol: an upload is created with a POST that returns its Location, data
// is appended chunk by chunk with PATCH requests carrying the current offset,
// and an interrupted upload can be re-established later through a fingerprint
// lookup and a HEAD request for the last acknowledged offset.
package resumable

import (
	"errors"
	"fmt"
)

// ErrResumingDisabled is returned by resume operations when the client was
// constructed without resuming support.
var ErrResumingDisabled = errors.New("resuming is disabled for this client")

// ErrFingerprintNotFound is returned when no stored upload matches the
// fingerprint of the upload being resumed.
var ErrFingerprintNotFound = errors.New("no stored upload matches the fingerprint")

// ProtocolError is an unexpected response from the upload endpoint.
type ProtocolError struct {
	StatusCode int
	Message    string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("resumable protocol error (HTTP %d): %s", e.StatusCode, e.Message)
}

// SourceError is a failure reading or positioning the upload's local data
// source. It never involves the network, so callers should not treat it as
// a transport failure.
type SourceError struct {
	Err error
}

func (e *SourceError) Error() string {
	return e.Err.Error()
}

func (e *SourceError) Unwrap() error {
	return e.Err
}
