package client

import (
	"errors"
	"fmt"
)

// Common errors returned by the client. Every *APIError matches the sentinel
// of its class with errors.Is.
var (
	// ErrPrecondition is returned for invalid input detected before any network call.
	ErrPrecondition = errors.New("precondition failed")

	// ErrAuth is returned for missing credentials or a 401/403 response.
	ErrAuth = errors.New("authentication failed")

	// ErrRateLimited is returned for 429 responses.
	ErrRateLimited = errors.New("rate limited")

	// ErrServer is returned for 5xx responses.
	ErrServer = errors.New("server error")

	// ErrNetwork is returned for transport failures and timeouts.
	ErrNetwork = errors.New("network error")

	// ErrNotFound is returned for 404 responses.
	ErrNotFound = errors.New("not found")

	// ErrClientStatus is returned for any other 4xx response.
	ErrClientStatus = errors.New("client error")

	// ErrShapeMismatch is returned when a response body does not match the expected model.
	ErrShapeMismatch = errors.New("response shape mismatch")

	// ErrResponseTooLarge is returned when a response body exceeds the read limit.
	ErrResponseTooLarge = errors.New("response body too large")

	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the caller's context ends mid-request.
	ErrContextCancelled = errors.New("context cancelled")
)

// APIError represents an Audisto request failure with its classification.
type APIError struct {
	StatusCode int
	Class      ErrorClass
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		if e.Err != nil {
			return fmt.Sprintf("audisto %s error: %s: %v", e.Class, e.Message, e.Err)
		}
		return fmt.Sprintf("audisto %s error: %s", e.Class, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("audisto %s error (status %d): %s: %v",
			e.Class, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("audisto %s error (status %d): %s",
		e.Class, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *APIError) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for this error's class.
func (e *APIError) Is(target error) bool {
	return target != nil && target == e.Class.sentinel()
}

// ExhaustedError wraps the last retryable failure once the attempt budget is spent.
type ExhaustedError struct {
	Attempts int
	Last     error
}

// Error implements the error interface.
func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%v after %d attempts: %v", ErrRetryExhausted, e.Attempts, e.Last)
}

// Unwrap returns the last observed failure.
func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

// Is matches ErrRetryExhausted.
func (e *ExhaustedError) Is(target error) bool {
	return target == ErrRetryExhausted
}

// Precondition builds an ErrPrecondition error for input rejected before any request.
func Precondition(format string, args ...any) error {
	return &APIError{Class: ErrorClassPrecondition, Message: fmt.Sprintf(format, args...)}
}

// StatusCode extracts the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// Classify returns the ErrorClass carried by err, or "" for foreign errors.
func Classify(err error) ErrorClass {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Class
	}
	return ""
}
