// Package client provides the Audisto API v2 client with single-flight
// request gating, bounded retries and response validation.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/audisto-mcp/audisto-mcp/pkg/gate"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultBaseURL is the Audisto API host.
	DefaultBaseURL = "https://api.audisto.com"

	// DefaultAPIVersion is the API version path segment.
	DefaultAPIVersion = "2.0"

	// MaxChunkSize is the largest page size the API accepts.
	MaxChunkSize = 10000
)

// Client is the Audisto API client. All requests made through one Client
// share its gate, so at most one is in flight per credential.
type Client struct {
	executor *Executor
	gate     gate.Gate
	cred     Credential
	config   Config
	logger   zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// Credential for Basic auth (REQUIRED).
	Credential Credential

	// BaseURL and APIVersion form the request root: BaseURL/APIVersion/path.
	BaseURL    string
	APIVersion string

	// UserAgent header sent with every request.
	UserAgent string

	// Timeout per attempt.
	Timeout time.Duration

	// Backoff decides retries.
	Backoff BackoffPolicy

	// RawFallback returns unvalidated bodies when model validation fails
	// instead of ErrShapeMismatch. Chunk pages never fall back.
	RawFallback bool

	// Gate serializes requests. Nil means an in-process gate.
	Gate gate.Gate

	// HTTPClient overrides the transport (tests). Its Timeout is replaced by Timeout.
	HTTPClient *http.Client
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(cred Credential) Config {
	return Config{
		Credential:  cred,
		BaseURL:     DefaultBaseURL,
		APIVersion:  DefaultAPIVersion,
		UserAgent:   "audisto-mcp",
		Timeout:     DefaultTimeout,
		Backoff:     DefaultBackoffPolicy(),
		RawFallback: true,
	}
}

// New creates a new Audisto client.
func New(cfg Config) (*Client, error) {
	if cfg.Credential.IsZero() {
		return nil, fmt.Errorf("credential is required: %w", ErrAuth)
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if cfg.APIVersion == "" {
		return nil, fmt.Errorf("api version is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Gate == nil {
		cfg.Gate = gate.NewLocal()
	}

	httpClient := &http.Client{Timeout: cfg.Timeout}
	if cfg.HTTPClient != nil {
		clone := *cfg.HTTPClient
		clone.Timeout = cfg.Timeout
		httpClient = &clone
	}

	logger := log.With().Str("component", "audisto-client").Logger()
	root := strings.TrimRight(cfg.BaseURL, "/") + "/" + strings.Trim(cfg.APIVersion, "/")

	return &Client{
		executor: NewExecutor(httpClient, root, cfg.UserAgent, logger),
		gate:     cfg.Gate,
		cred:     cfg.Credential,
		config:   cfg,
		logger:   logger,
	}, nil
}

// Do performs one logical GET request: it holds the gate for the whole
// attempt loop and retries transient failures per the backoff policy.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	release, err := c.gate.Acquire(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &APIError{Class: ErrorClassCancelled, Message: "waiting for request slot", Err: err}
		}
		return nil, fmt.Errorf("acquire request slot: %w", err)
	}
	defer release()

	endpoint := req.endpoint()
	policy := c.config.Backoff
	var last ExecResult

	for attempt := 1; ; attempt++ {
		last = c.executor.Execute(ctx, req, c.cred)

		switch last.Outcome {
		case OutcomeSuccess:
			if attempt > 1 {
				c.logger.Info().
					Str("endpoint", endpoint).
					Int("attempt", attempt).
					Msg("Request succeeded after retry")
			}
			return last.Response, nil
		case OutcomeFatal:
			c.logger.Debug().
				Str("endpoint", endpoint).
				Str("error_class", string(last.Class)).
				Int("attempt", attempt).
				Msg("Fatal failure, not retrying")
			return nil, last.Err
		}

		retry, delay := policy.Decide(attempt, last.Class, last.RetryAfter)
		if !retry {
			retryExhaustedTotal.WithLabelValues(string(last.Class)).Inc()
			c.logger.Error().
				Str("endpoint", endpoint).
				Str("error_class", string(last.Class)).
				Int("attempts", attempt).
				Msg("Retry attempts exhausted")
			return nil, &ExhaustedError{Attempts: attempt, Last: last.Err}
		}

		retriesTotal.WithLabelValues(string(last.Class)).Inc()
		retryBackoffSeconds.WithLabelValues(string(last.Class)).Observe(delay.Seconds())
		c.logger.Warn().
			Str("endpoint", endpoint).
			Str("error_class", string(last.Class)).
			Int("attempt", attempt).
			Dur("backoff", delay).
			Msg("Retrying request after backoff")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			c.logger.Warn().
				Str("endpoint", endpoint).
				Int("attempt", attempt).
				Msg("Context cancelled during retry backoff")
			return nil, &APIError{Class: ErrorClassCancelled, Message: "cancelled during backoff", Err: ctx.Err()}
		case <-timer.C:
		}
	}
}

// GetCrawlStatus retrieves the list of recent crawls.
func (c *Client) GetCrawlStatus(ctx context.Context) (Result[CrawlList], error) {
	resp, err := c.Do(ctx, Request{Endpoint: "/status/crawls", Path: "/status/crawls"})
	if err != nil {
		return Result[CrawlList]{}, err
	}

	list, err := decodeCrawlList(resp.Body)
	if err != nil {
		return fallback[CrawlList](c, "crawl_list", resp.Body, err)
	}
	c.logger.Info().Int("crawls", len(list.Items)).Msg("Fetched crawl status")
	return Result[CrawlList]{Value: list}, nil
}

// GetCrawlSummary retrieves the details of one crawl. crawlID must be positive.
func (c *Client) GetCrawlSummary(ctx context.Context, crawlID int64) (Result[CrawlSummary], error) {
	if crawlID <= 0 {
		return Result[CrawlSummary]{}, Precondition("crawl id must be a positive integer (got %d)", crawlID)
	}

	path := "/crawls/" + strconv.FormatInt(crawlID, 10)
	resp, err := c.Do(ctx, Request{Endpoint: "/crawls/{id}", Path: path})
	if err != nil {
		return Result[CrawlSummary]{}, err
	}

	summary, err := decodeSummary(resp.Body)
	if err != nil {
		return fallback[CrawlSummary](c, "crawl_summary", resp.Body, err)
	}
	c.logger.Info().Int64("crawl_id", crawlID).Msg("Fetched crawl summary")
	return Result[CrawlSummary]{Value: summary}, nil
}

// fallback applies the degraded mode for a body that failed validation.
func fallback[T any](c *Client, model string, body []byte, shapeErr error) (Result[T], error) {
	if !c.config.RawFallback {
		c.logger.Error().Err(shapeErr).Str("model", model).Msg("Response failed validation")
		return Result[T]{}, shapeErr
	}

	raw, err := decodeRaw(body)
	if err != nil {
		c.logger.Error().Err(err).Str("model", model).Msg("Response is not valid JSON")
		return Result[T]{}, shapeErr
	}

	ShapeFallbackTotal.WithLabelValues(model).Inc()
	c.logger.Warn().
		Err(shapeErr).
		Str("model", model).
		Msg("Response failed validation, returning raw data")
	return Result[T]{Raw: raw, ShapeErr: shapeErr}, nil
}

// ChunkRequest identifies one page of a chunked endpoint.
type ChunkRequest struct {
	// Path of the chunked endpoint, e.g. "/crawls/42/pages".
	Path string

	// Endpoint is the metrics label; defaults to Path.
	Endpoint string

	// Query holds extra parameters; chunk and chunksize are set by FetchChunk.
	Query url.Values

	// Chunk is the zero-based page index.
	Chunk int

	// Size is the page size, 0 < Size <= MaxChunkSize.
	Size int
}

// Page is one chunk of records.
type Page struct {
	Records []json.RawMessage

	// Total is the upstream record count when reported.
	Total *int

	// Index is the zero-based page index, Offset the index of the first record.
	Index  int
	Offset int
	Size   int
}

// ValidateChunkSize checks the API page size limit.
func ValidateChunkSize(size int) error {
	if size < 1 || size > MaxChunkSize {
		return Precondition("chunk size must be between 1 and %d (got %d)", MaxChunkSize, size)
	}
	return nil
}

// FetchChunk retrieves one page of a chunked endpoint.
func (c *Client) FetchChunk(ctx context.Context, req ChunkRequest) (*Page, error) {
	if err := ValidateChunkSize(req.Size); err != nil {
		return nil, err
	}
	if req.Chunk < 0 {
		return nil, Precondition("chunk index must not be negative (got %d)", req.Chunk)
	}

	query := url.Values{}
	for k, v := range req.Query {
		query[k] = append([]string(nil), v...)
	}
	query.Set("chunk", strconv.Itoa(req.Chunk))
	query.Set("chunksize", strconv.Itoa(req.Size))

	resp, err := c.Do(ctx, Request{Endpoint: req.Endpoint, Path: req.Path, Query: query})
	if err != nil {
		return nil, err
	}

	body, err := decodeChunk(resp.Body)
	if err != nil {
		c.logger.Error().Err(err).Str("path", req.Path).Msg("Chunk page failed validation")
		return nil, err
	}

	page := &Page{
		Records: body.Items,
		Index:   req.Chunk,
		Offset:  req.Chunk * req.Size,
		Size:    req.Size,
	}
	if body.Chunk != nil {
		page.Total = body.Chunk.Total
	}
	return page, nil
}

// Credential returns the client's credential.
func (c *Client) Credential() Credential {
	return c.cred
}

// URL returns the full request URL for path, for diagnostics.
func (c *Client) URL(path string) string {
	return c.executor.URL(Request{Path: path})
}

// Close releases resources held by the client.
func (c *Client) Close() error {
	c.executor.httpClient.CloseIdleConnections()
	return nil
}
