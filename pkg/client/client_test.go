package client

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/audisto-mcp/audisto-mcp/internal/testutil"
	"github.com/audisto-mcp/audisto-mcp/pkg/gate"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"golang.org/x/sync/errgroup"
)

// newTestClient creates a client against the mock with millisecond backoffs.
func newTestClient(t *testing.T, mock *testutil.MockAudisto, mutate ...func(*Config)) *Client {
	t.Helper()

	cred, err := NewCredential(testutil.TestAPIKey, testutil.TestPassword)
	if err != nil {
		t.Fatal(err)
	}
	cfg := DefaultConfig(cred)
	cfg.BaseURL = mock.URL()
	cfg.Timeout = 2 * time.Second
	cfg.Backoff = BackoffPolicy{MaxRetries: 3, InitialBackoff: time.Millisecond, MaxBackoff: 10 * time.Millisecond}
	for _, m := range mutate {
		m(&cfg)
	}

	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestNew_Validation(t *testing.T) {
	cred, _ := NewCredential("k", "p")

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"missing credential", func(c *Config) { c.Credential = Credential{} }, true},
		{"missing base url", func(c *Config) { c.BaseURL = "" }, true},
		{"invalid base url", func(c *Config) { c.BaseURL = "://bad" }, true},
		{"missing api version", func(c *Config) { c.APIVersion = "" }, true},
		{"zero timeout uses default", func(c *Config) { c.Timeout = 0 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig(cred)
			tt.mutate(&cfg)
			_, err := New(cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestClient_URL(t *testing.T) {
	cred, _ := NewCredential("k", "p")
	cfg := DefaultConfig(cred)
	cfg.BaseURL = "https://api.audisto.com/"

	c, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if got := c.URL("/crawls/7"); got != "https://api.audisto.com/2.0/crawls/7" {
		t.Errorf("URL() = %q", got)
	}
}

func TestGetCrawlSummary_RetriesRateLimit(t *testing.T) {
	mock := testutil.NewMockAudisto()
	defer mock.Close()
	mock.Script("/crawls/42",
		testutil.RateLimited(),
		testutil.RateLimited(),
		testutil.OK(`{"id": 42, "domain": "example.com", "crawled_pages": 1200}`),
	)

	c := newTestClient(t, mock)
	res, err := c.GetCrawlSummary(context.Background(), 42)
	if err != nil {
		t.Fatalf("GetCrawlSummary() error = %v", err)
	}

	if res.Value == nil || res.Value.ID == nil || *res.Value.ID != 42 {
		t.Fatalf("unexpected summary: %+v", res)
	}
	if *res.Value.Domain != "example.com" {
		t.Errorf("Domain = %q", *res.Value.Domain)
	}
	if got := mock.RequestCount("/crawls/42"); got != 3 {
		t.Errorf("requests = %d, want 3", got)
	}
	if !mock.AuthOK() {
		t.Error("request without valid basic auth")
	}
}

func TestGetCrawlSummary_NotFoundIsNotRetried(t *testing.T) {
	mock := testutil.NewMockAudisto()
	defer mock.Close()
	mock.Script("/crawls/99", testutil.Status(http.StatusNotFound))

	c := newTestClient(t, mock)
	_, err := c.GetCrawlSummary(context.Background(), 99)

	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if errors.Is(err, ErrRetryExhausted) {
		t.Error("not found must not be reported as exhausted")
	}
	if got := mock.RequestCount("/crawls/99"); got != 1 {
		t.Errorf("requests = %d, want 1", got)
	}
}

func TestGetCrawlSummary_AuthIsNotRetried(t *testing.T) {
	mock := testutil.NewMockAudisto()
	defer mock.Close()
	mock.Script("/crawls/1", testutil.Status(http.StatusUnauthorized))

	c := newTestClient(t, mock)
	_, err := c.GetCrawlSummary(context.Background(), 1)

	if !errors.Is(err, ErrAuth) {
		t.Fatalf("err = %v, want ErrAuth", err)
	}
	if got := mock.TotalRequests(); got != 1 {
		t.Errorf("requests = %d, want 1", got)
	}
}

func TestGetCrawlSummary_InvalidID(t *testing.T) {
	mock := testutil.NewMockAudisto()
	defer mock.Close()

	c := newTestClient(t, mock)
	for _, id := range []int64{0, -1} {
		_, err := c.GetCrawlSummary(context.Background(), id)
		if !errors.Is(err, ErrPrecondition) {
			t.Errorf("GetCrawlSummary(%d) err = %v, want ErrPrecondition", id, err)
		}
	}
	if got := mock.TotalRequests(); got != 0 {
		t.Errorf("requests = %d, want 0", got)
	}
}

func TestDo_ExhaustsAfterFourAttempts(t *testing.T) {
	mock := testutil.NewMockAudisto()
	defer mock.Close()
	mock.Script("/crawls/5", testutil.Status(http.StatusServiceUnavailable))

	c := newTestClient(t, mock)
	_, err := c.GetCrawlSummary(context.Background(), 5)

	if !errors.Is(err, ErrRetryExhausted) {
		t.Fatalf("err = %v, want ErrRetryExhausted", err)
	}
	if !errors.Is(err, ErrServer) {
		t.Errorf("err = %v, want last failure ErrServer", err)
	}
	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) || exhausted.Attempts != 4 {
		t.Errorf("unexpected exhausted error: %v", err)
	}
	if got := mock.RequestCount("/crawls/5"); got != 4 {
		t.Errorf("requests = %d, want 4", got)
	}
}

func TestDo_ContextCancelledDuringBackoff(t *testing.T) {
	mock := testutil.NewMockAudisto()
	defer mock.Close()
	mock.Script("/crawls/6", testutil.Status(http.StatusBadGateway))

	c := newTestClient(t, mock, func(cfg *Config) {
		cfg.Backoff = BackoffPolicy{MaxRetries: 3, InitialBackoff: time.Minute, MaxBackoff: time.Minute}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := c.GetCrawlSummary(ctx, 6)

	if !errors.Is(err, ErrContextCancelled) {
		t.Fatalf("err = %v, want ErrContextCancelled", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("backoff ignored context cancellation")
	}
	if got := mock.RequestCount("/crawls/6"); got != 1 {
		t.Errorf("requests = %d, want 1", got)
	}
}

// countingGate records acquisitions and releases around a local gate.
type countingGate struct {
	inner    gate.Gate
	mu       sync.Mutex
	acquired int
	released int
}

func (g *countingGate) Acquire(ctx context.Context) (func(), error) {
	release, err := g.inner.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	g.mu.Lock()
	g.acquired++
	g.mu.Unlock()
	return func() {
		g.mu.Lock()
		g.released++
		g.mu.Unlock()
		release()
	}, nil
}

func TestDo_ReleasesGateOnEveryPath(t *testing.T) {
	mock := testutil.NewMockAudisto()
	defer mock.Close()
	mock.Script("/crawls/1", testutil.OK(`{"id": 1}`))
	mock.Script("/crawls/2", testutil.Status(http.StatusNotFound))
	mock.Script("/crawls/3", testutil.Status(http.StatusInternalServerError))
	mock.Script("/crawls/4", testutil.OK(`"not an object"`))
	mock.Script("/crawls/5",
		testutil.RateLimited(),
		testutil.RateLimited(),
		testutil.OK(`{"id": 5}`),
	)

	g := &countingGate{inner: gate.NewLocal()}
	c := newTestClient(t, mock, func(cfg *Config) {
		cfg.Gate = g
		cfg.RawFallback = false
	})

	for id := int64(1); id <= 5; id++ {
		c.GetCrawlSummary(context.Background(), id)
	}

	if g.acquired != 5 || g.released != 5 {
		t.Errorf("acquired = %d, released = %d, want 5 and 5", g.acquired, g.released)
	}
	if got := mock.RequestCount("/crawls/5"); got != 3 {
		t.Errorf("requests for retried call = %d, want 3", got)
	}
}

func TestDo_SerializesConcurrentCallers(t *testing.T) {
	mock := testutil.NewMockAudisto()
	defer mock.Close()
	for _, path := range []string{"/crawls/1", "/crawls/2", "/crawls/3", "/crawls/4"} {
		mock.Script(path, testutil.MockResponse{
			StatusCode: http.StatusOK,
			Body:       `{"id": 1}`,
			Delay:      20 * time.Millisecond,
		})
	}

	c := newTestClient(t, mock)

	var g errgroup.Group
	for i := 0; i < 8; i++ {
		id := int64(i%4 + 1)
		g.Go(func() error {
			_, err := c.GetCrawlSummary(context.Background(), id)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent calls failed: %v", err)
	}

	if got := mock.Overlaps(); got != 0 {
		t.Errorf("overlapping requests = %d, want 0", got)
	}
	if got := mock.MaxInFlight(); got != 1 {
		t.Errorf("max in flight = %d, want 1", got)
	}
	if got := mock.TotalRequests(); got != 8 {
		t.Errorf("requests = %d, want 8", got)
	}
}

func TestGetCrawlStatus_Shapes(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantItems int
	}{
		{"items object", `{"items": [{"id": 1, "status": "finished"}, {"id": 2}]}`, 2},
		{"bare array", `[{"id": 1}, {"id": 2}, {"id": 3}]`, 3},
		{"empty items", `{"items": []}`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := testutil.NewMockAudisto()
			defer mock.Close()
			mock.Script("/status/crawls", testutil.OK(tt.body))

			c := newTestClient(t, mock)
			res, err := c.GetCrawlStatus(context.Background())
			if err != nil {
				t.Fatalf("GetCrawlStatus() error = %v", err)
			}
			if res.Degraded() {
				t.Fatalf("unexpected degraded result: %v", res.ShapeErr)
			}
			if got := len(res.Value.Items); got != tt.wantItems {
				t.Errorf("items = %d, want %d", got, tt.wantItems)
			}
		})
	}
}

func TestGetCrawlStatus_RawFallback(t *testing.T) {
	mock := testutil.NewMockAudisto()
	defer mock.Close()
	mock.Script("/status/crawls", testutil.OK(`{"crawls": [{"id": 7}]}`))

	before := promtest.ToFloat64(ShapeFallbackTotal.WithLabelValues("crawl_list"))

	c := newTestClient(t, mock)
	res, err := c.GetCrawlStatus(context.Background())
	if err != nil {
		t.Fatalf("GetCrawlStatus() error = %v", err)
	}
	if !res.Degraded() {
		t.Fatal("expected degraded result")
	}
	if !errors.Is(res.ShapeErr, ErrShapeMismatch) {
		t.Errorf("ShapeErr = %v, want ErrShapeMismatch", res.ShapeErr)
	}
	raw, ok := res.Raw.(map[string]any)
	if !ok || raw["crawls"] == nil {
		t.Errorf("Raw = %#v", res.Raw)
	}

	after := promtest.ToFloat64(ShapeFallbackTotal.WithLabelValues("crawl_list"))
	if after-before != 1 {
		t.Errorf("shape fallback counter delta = %v, want 1", after-before)
	}
}

func TestGetCrawlSummary_ShapeMismatchWithoutFallback(t *testing.T) {
	mock := testutil.NewMockAudisto()
	defer mock.Close()
	mock.Script("/crawls/8", testutil.OK(`[1, 2, 3]`))

	c := newTestClient(t, mock, func(cfg *Config) { cfg.RawFallback = false })
	_, err := c.GetCrawlSummary(context.Background(), 8)

	if !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("err = %v, want ErrShapeMismatch", err)
	}
	if got := mock.RequestCount("/crawls/8"); got != 1 {
		t.Errorf("requests = %d, want 1", got)
	}
}

func TestFetchChunk(t *testing.T) {
	mock := testutil.NewMockAudisto()
	defer mock.Close()
	mock.Script("/crawls/42/pages", testutil.OK(testutil.ChunkBody(201, 100, 2, 100, 250)))

	c := newTestClient(t, mock)
	page, err := c.FetchChunk(context.Background(), ChunkRequest{
		Path:     "/crawls/42/pages",
		Endpoint: "/crawls/{id}/pages",
		Chunk:    2,
		Size:     100,
	})
	if err != nil {
		t.Fatalf("FetchChunk() error = %v", err)
	}

	if len(page.Records) != 100 {
		t.Errorf("records = %d, want 100", len(page.Records))
	}
	if page.Total == nil || *page.Total != 250 {
		t.Errorf("Total = %v, want 250", page.Total)
	}
	if page.Offset != 200 || page.Index != 2 {
		t.Errorf("Offset = %d, Index = %d, want 200 and 2", page.Offset, page.Index)
	}

	queries := mock.Queries()
	if len(queries) != 1 || !strings.Contains(queries[0], "chunk=2") || !strings.Contains(queries[0], "chunksize=100") {
		t.Errorf("queries = %v", queries)
	}
}

func TestFetchChunk_InvalidSize(t *testing.T) {
	mock := testutil.NewMockAudisto()
	defer mock.Close()

	c := newTestClient(t, mock)
	for _, size := range []int{0, -1, MaxChunkSize + 1} {
		_, err := c.FetchChunk(context.Background(), ChunkRequest{Path: "/crawls/1/pages", Size: size})
		if !errors.Is(err, ErrPrecondition) {
			t.Errorf("size %d: err = %v, want ErrPrecondition", size, err)
		}
	}
	if got := mock.TotalRequests(); got != 0 {
		t.Errorf("requests = %d, want 0", got)
	}
}

func TestFetchChunk_NeverFallsBack(t *testing.T) {
	mock := testutil.NewMockAudisto()
	defer mock.Close()
	mock.Script("/crawls/1/pages", testutil.OK(`[{"id": 1}]`))

	c := newTestClient(t, mock)
	_, err := c.FetchChunk(context.Background(), ChunkRequest{Path: "/crawls/1/pages", Size: 10})

	if !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("err = %v, want ErrShapeMismatch", err)
	}
}
