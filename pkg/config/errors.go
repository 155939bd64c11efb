package config

import (
	"errors"
	"fmt"

	"github.com/audisto-mcp/audisto-mcp/pkg/client"
)

// Configuration validation errors returned by Config.Validate and Load.
var (
	// ErrMissingCredentials is returned when AUDISTO_API_KEY or AUDISTO_PASSWORD is unset.
	// This is a fatal startup condition; no request is attempted without credentials.
	// It matches client.ErrAuth with errors.Is.
	ErrMissingCredentials = fmt.Errorf("%w: missing credentials: set AUDISTO_API_KEY and AUDISTO_PASSWORD", client.ErrAuth)

	// ErrInvalidBaseURL is returned when the base URL is empty or not absolute.
	ErrInvalidBaseURL = errors.New("invalid base url: must be an absolute http(s) url")

	// ErrInvalidAPIVersion is returned when the API version is empty.
	ErrInvalidAPIVersion = errors.New("invalid api version: must not be empty")

	// ErrInvalidTimeout is returned when the timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidMaxRetries is returned when max retries is outside 0..3.
	ErrInvalidMaxRetries = errors.New("invalid max retries: must be between 0 and 3")

	// ErrInvalidBackoff is returned when a backoff duration is negative or
	// the initial backoff exceeds the maximum.
	ErrInvalidBackoff = errors.New("invalid backoff: durations must be non-negative and initial <= max")

	// ErrConfigNotFound is returned when an explicitly named config file does not exist.
	ErrConfigNotFound = errors.New("configuration file not found")
)
