package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	// DefaultTimeout matches the upstream API's own processing budget.
	DefaultTimeout = 120 * time.Second
)

// maxBodyBytes bounds how much of a response body is read.
var maxBodyBytes int64 = 32 << 20

// Request describes one read-only call. Method is always GET.
type Request struct {
	// Endpoint is the path template used for metrics, e.g. "/crawls/{id}".
	Endpoint string

	// Path is the concrete path below the versioned base URL, e.g. "/crawls/42".
	Path string

	// Query holds query parameters, including pagination.
	Query url.Values
}

func (r Request) endpoint() string {
	if r.Endpoint != "" {
		return r.Endpoint
	}
	return r.Path
}

// Response is a successful upstream response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Outcome is the tri-state result of one attempt.
type Outcome int

const (
	// OutcomeSuccess means a 2xx response with a readable body.
	OutcomeSuccess Outcome = iota

	// OutcomeRetryable means a transient failure (429, 5xx, network).
	OutcomeRetryable

	// OutcomeFatal means a failure that must not be retried.
	OutcomeFatal
)

// String implements fmt.Stringer.
func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeRetryable:
		return "retryable"
	default:
		return "fatal"
	}
}

// ExecResult is what the Executor reports for one attempt.
type ExecResult struct {
	Outcome  Outcome
	Class    ErrorClass
	Response *Response
	Err      error

	// RetryAfter is the server's Retry-After hint, 0 if absent.
	RetryAfter time.Duration
}

// Executor issues single authenticated requests against the Audisto API.
type Executor struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	logger     zerolog.Logger
}

// NewExecutor creates an executor for the versioned base URL
// (e.g. "https://api.audisto.com/2.0").
func NewExecutor(httpClient *http.Client, baseURL, userAgent string, logger zerolog.Logger) *Executor {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	return &Executor{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		userAgent:  userAgent,
		logger:     logger,
	}
}

// URL returns the full URL for req without credentials.
func (e *Executor) URL(req Request) string {
	u := e.baseURL + req.Path
	if len(req.Query) > 0 {
		u += "?" + req.Query.Encode()
	}
	return u
}

// Execute performs one GET request and classifies the result.
func (e *Executor) Execute(ctx context.Context, req Request, cred Credential) ExecResult {
	endpoint := req.endpoint()
	start := time.Now()
	defer func() {
		requestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	}()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, e.URL(req), nil)
	if err != nil {
		return fatal(ErrorClassPrecondition, 0, "build request", err)
	}
	httpReq.SetBasicAuth(cred.key, cred.password)
	httpReq.Header.Set("Accept", "application/json")
	if e.userAgent != "" {
		httpReq.Header.Set("User-Agent", e.userAgent)
	}

	e.logger.Debug().
		Str("method", http.MethodGet).
		Str("path", req.Path).
		Msg("Executing Audisto request")

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return e.transportFailure(ctx, endpoint, start, err)
	}
	defer resp.Body.Close()

	status := strconv.Itoa(resp.StatusCode)
	requestsTotal.WithLabelValues(endpoint, status).Inc()

	if resp.StatusCode >= 400 {
		class := classifyStatus(resp.StatusCode)
		errorsTotal.WithLabelValues(string(class)).Inc()
		// Drain a bounded amount so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

		e.logger.Debug().
			Str("path", req.Path).
			Int("status", resp.StatusCode).
			Str("error_class", string(class)).
			Dur("duration", time.Since(start)).
			Msg("Audisto request failed")

		result := ExecResult{
			Outcome: OutcomeFatal,
			Class:   class,
			Err: &APIError{
				StatusCode: resp.StatusCode,
				Class:      class,
				Message:    http.StatusText(resp.StatusCode),
			},
		}
		if class.Retryable() {
			result.Outcome = OutcomeRetryable
			result.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
		}
		return result
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return e.transportFailure(ctx, endpoint, start, fmt.Errorf("read body: %w", err))
	}
	if int64(len(body)) > maxBodyBytes {
		e.logger.Debug().
			Str("path", req.Path).
			Int("status", resp.StatusCode).
			Str("error_class", string(ErrorClassShape)).
			Dur("duration", time.Since(start)).
			Msg("Audisto response too large")
		return fatal(ErrorClassShape, resp.StatusCode, "response body too large",
			fmt.Errorf("%w: limit is %d bytes", ErrResponseTooLarge, maxBodyBytes))
	}

	e.logger.Debug().
		Str("path", req.Path).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("Audisto request completed")

	return ExecResult{
		Outcome: OutcomeSuccess,
		Response: &Response{
			StatusCode: resp.StatusCode,
			Header:     resp.Header.Clone(),
			Body:       body,
		},
	}
}

// transportFailure classifies errors that produced no HTTP status. A caller
// whose context has ended gets a fatal result; anything else is a retryable
// network failure, including the client's own timeout.
func (e *Executor) transportFailure(ctx context.Context, endpoint string, start time.Time, err error) ExecResult {
	if ctxErr := ctx.Err(); ctxErr != nil {
		requestsTotal.WithLabelValues(endpoint, "cancelled").Inc()
		e.logger.Debug().
			Str("error_class", string(ErrorClassCancelled)).
			Dur("duration", time.Since(start)).
			Msg("Audisto request cancelled")
		return fatal(ErrorClassCancelled, 0, "request abandoned", ctxErr)
	}

	requestsTotal.WithLabelValues(endpoint, "network_error").Inc()
	errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()

	msg := "transport failure"
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		msg = "timeout"
		err = urlErr.Err
	} else if urlErr != nil {
		err = urlErr.Err
	}

	e.logger.Debug().
		Err(err).
		Str("error_class", string(ErrorClassNetwork)).
		Dur("duration", time.Since(start)).
		Msg("Audisto request failed")

	return ExecResult{
		Outcome: OutcomeRetryable,
		Class:   ErrorClassNetwork,
		Err:     &APIError{Class: ErrorClassNetwork, Message: msg, Err: err},
	}
}

func fatal(class ErrorClass, status int, msg string, err error) ExecResult {
	errorsTotal.WithLabelValues(string(class)).Inc()
	return ExecResult{
		Outcome: OutcomeFatal,
		Class:   class,
		Err:     &APIError{StatusCode: status, Class: class, Message: msg, Err: err},
	}
}

// parseRetryAfter accepts delta-seconds or an HTTP date.
func parseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
