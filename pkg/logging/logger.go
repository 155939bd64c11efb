// Package logging provides structured logging configuration using zerolog.
//
// Logs always go to a writer other than stdout when serving MCP over stdio,
// since stdout carries the protocol.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs debug messages and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs info messages and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs warning messages and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs error messages only.
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer
}

// ParseLevel converts a user-supplied level name, falling back to info.
func ParseLevel(name string) LogLevel {
	switch lvl := LogLevel(strings.ToLower(strings.TrimSpace(name))); lvl {
	case LevelDebug, LevelInfo, LevelWarn, LevelError:
		return lvl
	case "warning":
		return LevelWarn
	default:
		return LevelInfo
	}
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger.
func Setup(cfg Config) zerolog.Logger {
	// Set global log level
	level := parseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)

	// Configure output
	var output io.Writer = cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output}
	}

	// Create logger with timestamp
	logger := zerolog.New(output).With().Timestamp().Logger()

	// Set as global logger
	log.Logger = logger

	return logger
}

// parseLevel converts LogLevel to zerolog.Level.
func parseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(string(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: Detailed information for debugging
//   - Request start and completion (method, path, status, duration)
//   - Error classification and fatal failures
//   - Chunk page progress and gate acquisition
//
// Info: Normal operation events
//   - Successful crawl status / summary fetches
//   - Requests that succeeded after a retry
//   - Server startup/shutdown
//
// Warn: Warning conditions that don't prevent operation
//   - Retry attempts and their backoff
//   - Responses returned raw after failing validation (degraded mode)
//   - Unknown crawl identifiers (404)
//
// Error: Error conditions requiring attention
//   - Exhausted retries
//   - Validation failures without fallback
//   - Missing credentials and other configuration errors
//
// Never log credential material (use the client.Credential fingerprint) or
// response bodies.
//
// Context Fields:
//   - component: emitting component (audisto-client, mcp-server, ...)
//   - endpoint: Audisto path template, e.g. /crawls/{id}
//   - path: concrete request path
//   - status: HTTP status code
//   - duration: request duration
//   - error_class: precondition, auth, not_found, client, rate_limit, server, network, shape_mismatch
//   - attempt: 1-based attempt number
//   - backoff: delay before the next attempt
