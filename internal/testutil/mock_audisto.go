// Package testutil provides testing utilities for the Audisto client.
package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"
)

// Credentials accepted by the mock server by default.
const (
	TestAPIKey   = "test-key"
	TestPassword = "test-password"
)

// MockResponse defines the behavior for one scripted response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockAudisto is a configurable mock Audisto API server for testing.
// Responses are scripted per path: each request consumes the next response
// in the path's queue, and the last one repeats once the queue is drained.
type MockAudisto struct {
	server *httptest.Server
	mu     sync.Mutex

	// Version is the API version prefix stripped from request paths.
	Version string

	scripts  map[string][]MockResponse
	counts   map[string]int
	queries  []string
	authOK   bool
	inFlight int
	overlaps int
	maxSeen  int
	total    int
}

// NewMockAudisto creates a mock server expecting the "2.0" path prefix.
func NewMockAudisto() *MockAudisto {
	mock := &MockAudisto{
		Version: "2.0",
		scripts: make(map[string][]MockResponse),
		counts:  make(map[string]int),
		authOK:  true,
	}
	mock.server = httptest.NewServer(http.HandlerFunc(mock.serve))
	return mock
}

// URL returns the mock server base URL (without version).
func (m *MockAudisto) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockAudisto) Close() {
	m.server.Close()
}

// Script queues responses for a path such as "/crawls/42".
func (m *MockAudisto) Script(path string, responses ...MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripts[path] = append(m.scripts[path], responses...)
}

// RequestCount returns the number of requests made to path.
func (m *MockAudisto) RequestCount(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[path]
}

// TotalRequests returns the number of requests across all paths.
func (m *MockAudisto) TotalRequests() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.total
}

// Queries returns the raw query strings received, in order.
func (m *MockAudisto) Queries() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.queries...)
}

// Overlaps returns how many requests started while another was in flight.
func (m *MockAudisto) Overlaps() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.overlaps
}

// MaxInFlight returns the highest number of concurrent requests observed.
func (m *MockAudisto) MaxInFlight() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxSeen
}

// AuthOK reports whether every request so far carried the test credentials.
func (m *MockAudisto) AuthOK() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.authOK
}

func (m *MockAudisto) serve(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/"+m.Version)

	m.mu.Lock()
	m.total++
	m.counts[path]++
	m.queries = append(m.queries, r.URL.RawQuery)
	if key, pass, ok := r.BasicAuth(); !ok || key != TestAPIKey || pass != TestPassword {
		m.authOK = false
	}
	m.inFlight++
	if m.inFlight > 1 {
		m.overlaps++
	}
	if m.inFlight > m.maxSeen {
		m.maxSeen = m.inFlight
	}
	resp, ok := m.next(path)
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.inFlight--
		m.mu.Unlock()
	}()

	if !ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprintf(w, `{"error": "no script for %s"}`, path)
		return
	}

	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}
	w.Header().Set("Content-Type", "application/json")
	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		_, _ = w.Write([]byte(resp.Body))
	}
}

// next pops the path's next response; the last one is sticky. Callers hold m.mu.
func (m *MockAudisto) next(path string) (MockResponse, bool) {
	queue := m.scripts[path]
	if len(queue) == 0 {
		return MockResponse{}, false
	}
	resp := queue[0]
	if len(queue) > 1 {
		m.scripts[path] = queue[1:]
	}
	return resp, true
}

// OK creates a 200 response with a JSON body.
func OK(body string) MockResponse {
	return MockResponse{StatusCode: http.StatusOK, Body: body}
}

// Status creates a response with the given status and a short JSON error body.
func Status(code int) MockResponse {
	return MockResponse{
		StatusCode: code,
		Body:       fmt.Sprintf(`{"error": %q}`, http.StatusText(code)),
	}
}

// RateLimited creates a 429 Too Many Requests response.
func RateLimited() MockResponse {
	return Status(http.StatusTooManyRequests)
}

// ChunkBody renders a chunk page with n records whose ids start at first.
// A negative total omits the total.
func ChunkBody(first, n, page, size, total int) string {
	items := make([]string, n)
	for i := range items {
		items[i] = fmt.Sprintf(`{"id": %d}`, first+i)
	}
	totalJSON := "null"
	if total >= 0 {
		totalJSON = fmt.Sprint(total)
	}
	return fmt.Sprintf(`{"chunk": {"total": %s, "page": %d, "size": %d}, "items": [%s]}`,
		totalJSON, page, size, strings.Join(items, ","))
}
