package mediaforge

import "fmt"

// LocalOperationError signals a failure that happened entirely on the client
// side (serialization, signing, file handling, an interrupted wait). It is
// never the result of a server response and is never retried automatically.
type LocalOperationError struct {
	Message string
	Cause   error
}

func (e *LocalOperationError) Error() string {
	if e.Cause != nil {
		if e.Message == "" {
			return e.Cause.Error()
		}
		return fmt.Sprintf("%s: %s", e.Message, e.Cause)
	}
	return e.Message
}

func (e *LocalOperationError) Unwrap() error {
	return e.Cause
}

// RequestError signals a failure at or after the network boundary once any
// qualifying retries are exhausted. Callers can decide whether a higher-level
// retry makes sense.
type RequestError struct {
	Message string
	Cause   error
}

func (e *RequestError) Error() string {
	if e.Cause != nil {
		if e.Message == "" {
			return e.Cause.Error()
		}
		return fmt.Sprintf("%s: %s", e.Message, e.Cause)
	}
	return e.Message
}

func (e *RequestError) Unwrap() error {
	return e.Cause
}

func localError(message string, cause error) error {
	return &LocalOperationError{Message: message, Cause: cause}
}

func requestError(message string, cause error) error {
	return &RequestError{Message: message, Cause: cause}
}
