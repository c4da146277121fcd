package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrTimeout is returned when an upstream call exceeds its deadline.
	ErrTimeout = errors.New("upstream timeout")

	// ErrRejected is returned when the upstream refuses the session
	// (handshake failure, 401/403).
	ErrRejected = errors.New("upstream rejected request")

	// ErrSchema is returned when a response body cannot be decoded into the
	// expected envelope.
	ErrSchema = errors.New("upstream schema error")

	// ErrCircuitOpen is returned while the circuit breaker is open.
	ErrCircuitOpen = errors.New("upstream circuit open")
)

// APIError represents a non-2xx response from the upstream.
type APIError struct {
	StatusCode int
	Message    string
	Body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("upstream api error %d: %s", e.StatusCode, e.Message)
}

// IsRetryable returns true if the error should trigger a retry.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// IsRejected returns true when the upstream refused the session.
func (e *APIError) IsRejected() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// Is lets errors.Is(err, ErrRejected) match rejected responses.
func (e *APIError) Is(target error) bool {
	return target == ErrRejected && e.IsRejected()
}

// breakerSuccess decides what counts against the circuit breaker. Client-side
// statuses (404, rejected session) and caller cancellation do not.
func breakerSuccess(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return !apiErr.IsRetryable()
	}
	return false
}
