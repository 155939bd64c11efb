package client

import (
	"net/http"
	"time"
)

// ErrorClass represents a classification of request failures.
type ErrorClass string

const (
	// ErrorClassPrecondition represents input rejected before any request.
	ErrorClassPrecondition ErrorClass = "precondition"

	// ErrorClassAuth represents 401/403 responses.
	ErrorClassAuth ErrorClass = "auth"

	// ErrorClassNotFound represents 404 responses.
	ErrorClassNotFound ErrorClass = "not_found"

	// ErrorClassClient represents all other 4xx responses.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassRateLimit represents 429 responses.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassServer represents 5xx responses.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassNetwork represents transport errors and timeouts.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassShape represents bodies that fail model validation.
	ErrorClassShape ErrorClass = "shape_mismatch"

	// ErrorClassCancelled represents a caller context that ended mid-request.
	ErrorClassCancelled ErrorClass = "cancelled"
)

func (c ErrorClass) sentinel() error {
	switch c {
	case ErrorClassPrecondition:
		return ErrPrecondition
	case ErrorClassAuth:
		return ErrAuth
	case ErrorClassNotFound:
		return ErrNotFound
	case ErrorClassClient:
		return ErrClientStatus
	case ErrorClassRateLimit:
		return ErrRateLimited
	case ErrorClassServer:
		return ErrServer
	case ErrorClassNetwork:
		return ErrNetwork
	case ErrorClassShape:
		return ErrShapeMismatch
	case ErrorClassCancelled:
		return ErrContextCancelled
	default:
		return nil
	}
}

// Retryable reports whether failures of this class are expected to be transient.
func (c ErrorClass) Retryable() bool {
	switch c {
	case ErrorClassRateLimit, ErrorClassServer, ErrorClassNetwork:
		return true
	default:
		return false
	}
}

// classifyStatus maps an HTTP status code to its ErrorClass. Statuses below
// 400 classify as "".
func classifyStatus(status int) ErrorClass {
	switch {
	case status == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return ErrorClassAuth
	case status == http.StatusNotFound:
		return ErrorClassNotFound
	case status >= 400 && status < 500:
		return ErrorClassClient
	case status >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}

// MaxRetries is the upper bound on retries for one logical request (4 attempts).
const MaxRetries = 3

// BackoffPolicy decides whether a failed attempt is retried and how long to wait.
// It holds no state; Decide is a pure function of its arguments.
type BackoffPolicy struct {
	// MaxRetries is the number of retries after the first attempt (capped at MaxRetries).
	MaxRetries int

	// InitialBackoff is the delay before the first retry.
	InitialBackoff time.Duration

	// MaxBackoff caps every delay, including server Retry-After hints.
	MaxBackoff time.Duration
}

// DefaultBackoffPolicy returns the default policy: 3 retries, 500ms doubling, 30s cap.
func DefaultBackoffPolicy() BackoffPolicy {
	return BackoffPolicy{
		MaxRetries:     MaxRetries,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     30 * time.Second,
	}
}

// Decide returns whether to retry after the given 1-based attempt failed with
// class, and the delay to wait first. retryAfter is the server's hint (0 if none).
func (p BackoffPolicy) Decide(attempt int, class ErrorClass, retryAfter time.Duration) (bool, time.Duration) {
	if !class.Retryable() || attempt < 1 || attempt > p.maxRetries() {
		return false, 0
	}

	delay := p.InitialBackoff
	for i := 1; i < attempt; i++ {
		delay *= 2
		if p.MaxBackoff > 0 && delay >= p.MaxBackoff {
			break
		}
	}
	if retryAfter > delay {
		delay = retryAfter
	}
	if p.MaxBackoff > 0 && delay > p.MaxBackoff {
		delay = p.MaxBackoff
	}
	return true, delay
}

func (p BackoffPolicy) maxRetries() int {
	if p.MaxRetries < 0 {
		return 0
	}
	if p.MaxRetries > MaxRetries {
		return MaxRetries
	}
	return p.MaxRetries
}

// MaxAttempts returns the total attempt budget of the policy.
func (p BackoffPolicy) MaxAttempts() int {
	return p.maxRetries() + 1
}
