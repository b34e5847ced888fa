package providers

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Kind classifies a failed model call for the orchestration layer.
type Kind string

// Error kinds.
const (
	// KindOffline means the backend was unreachable after exhausting
	// retries. Recoverable via the cloud fallback path given user consent.
	KindOffline Kind = "SERVICE_OFFLINE"

	// KindInvalidResponse means the model returned unusable content
	// (empty, unparseable, or schema-invalid). Never retried.
	KindInvalidResponse Kind = "INVALID_RESPONSE"

	// KindServiceError means retries were exhausted for a retryable fault,
	// or the failure could not be classified.
	KindServiceError Kind = "SERVICE_ERROR"
)

// Error is a classified model-call failure.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind carried by err, or KindServiceError for
// unclassified errors.
func KindOf(err error) Kind {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Kind
	}
	return KindServiceError
}

// ConnectionError is a transport-level failure to reach the backend.
// Retryable; exhaustion is reported as KindOffline so the caller can offer
// the cloud fallback.
type ConnectionError struct {
	Err error
}

// Error implements the error interface.
func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection error: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// StatusError is a server-side error response from the backend. Retryable.
type StatusError struct {
	Code    int
	Message string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("status error (HTTP %d): %s", e.Code, e.Message)
}

// isConnectionClass reports whether the error is a connectivity failure, the
// class whose exhaustion maps to KindOffline.
func isConnectionClass(err error) bool {
	var connErr *ConnectionError
	if errors.As(err, &connErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// isRetryable reports whether the error should be retried. Connectivity,
// status, and timeout errors are retryable, as is anything unclassified;
// only an invalid-response error fails immediately.
func isRetryable(err error) bool {
	var perr *Error
	if errors.As(err, &perr) && perr.Kind == KindInvalidResponse {
		return false
	}
	return true
}

// isTimeout reports whether the error is a timeout, for logging.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
