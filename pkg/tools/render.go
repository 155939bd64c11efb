package tools

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/audisto-mcp/audisto-mcp/pkg/client"
	"github.com/mark3labs/mcp-go/mcp"
)

// maxExactFloat is the largest integer a JSON number decoded as float64 holds exactly.
const maxExactFloat = 1 << 53

// PositiveInt reads an integer argument that must be > 0. JSON numbers with
// a fractional part, non-numeric strings and values <= 0 are rejected with
// client.ErrPrecondition. A missing optional argument yields def.
func PositiveInt(args map[string]any, name string, required bool, def int64) (int64, error) {
	raw, ok := args[name]
	if !ok || raw == nil {
		if required {
			return 0, client.Precondition("%s is required", name)
		}
		return def, nil
	}

	var n int64
	switch v := raw.(type) {
	case float64:
		if v != math.Trunc(v) || math.IsInf(v, 0) || math.Abs(v) > maxExactFloat {
			return 0, client.Precondition("%s must be a positive integer (got %v)", name, v)
		}
		n = int64(v)
	case int:
		n = int64(v)
	case int64:
		n = v
	case json.Number:
		parsed, err := strconv.ParseInt(v.String(), 10, 64)
		if err != nil {
			return 0, client.Precondition("%s must be a positive integer (got %s)", name, v)
		}
		n = parsed
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, client.Precondition("%s must be a positive integer (got %q)", name, v)
		}
		n = parsed
	default:
		return 0, client.Precondition("%s must be a positive integer", name)
	}

	if n <= 0 {
		return 0, client.Precondition("%s must be a positive integer (got %d)", name, n)
	}
	return n, nil
}

// RenderError turns any error into one short line for the agent. It never
// includes credential material or response bodies: only the status class and
// a brief cause.
func RenderError(err error) string {
	if err == nil {
		return ""
	}

	var apiErr *client.APIError
	var exhausted *client.ExhaustedError

	switch {
	case errors.As(err, &exhausted):
		return fmt.Sprintf("Error: Audisto API still failing after %d attempts (%s).",
			exhausted.Attempts, cause(exhausted.Last))
	case errors.Is(err, client.ErrPrecondition) && errors.As(err, &apiErr):
		return "Error: Invalid input: " + apiErr.Message + "."
	case errors.Is(err, client.ErrAuth):
		return "Error: Missing or invalid credentials."
	case errors.Is(err, client.ErrNotFound):
		return "Error: The requested resource was not found."
	case errors.Is(err, client.ErrResponseTooLarge):
		return "Error: Audisto response exceeds the size limit."
	case errors.Is(err, client.ErrShapeMismatch):
		return "Error: Invalid data format in Audisto response."
	case errors.Is(err, client.ErrContextCancelled):
		return "Error: Request cancelled."
	case errors.Is(err, client.ErrRateLimited), errors.Is(err, client.ErrServer),
		errors.Is(err, client.ErrNetwork), errors.Is(err, client.ErrClientStatus):
		return "Error: " + capitalize(cause(err)) + "."
	default:
		return "Error: An unexpected error occurred."
	}
}

func cause(err error) string {
	switch {
	case errors.Is(err, client.ErrRateLimited):
		return "rate limited, status 429"
	case errors.Is(err, client.ErrServer):
		return fmt.Sprintf("server error, status %d", client.StatusCode(err))
	case errors.Is(err, client.ErrNetwork):
		var apiErr *client.APIError
		if errors.As(err, &apiErr) && apiErr.Message == "timeout" {
			return "request timeout, Audisto API is not responding"
		}
		return "failed to connect to Audisto API"
	case errors.Is(err, client.ErrClientStatus):
		return fmt.Sprintf("Audisto API returned status %d", client.StatusCode(err))
	default:
		return "unexpected failure"
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// ResultText joins the text content of a tool result.
func ResultText(res *mcp.CallToolResult) string {
	if res == nil {
		return ""
	}
	var parts []string
	for _, c := range res.Content {
		switch tc := c.(type) {
		case mcp.TextContent:
			parts = append(parts, tc.Text)
		case *mcp.TextContent:
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}
