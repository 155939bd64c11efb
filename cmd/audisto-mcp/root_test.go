package main

import (
	"bytes"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/audisto-mcp/audisto-mcp/internal/testutil"
	"github.com/audisto-mcp/audisto-mcp/pkg/config"
)

// withEnv points the commands at env instead of the process environment and
// isolates config file discovery.
func withEnv(t *testing.T, env map[string]string) {
	t.Helper()
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())

	orig := getenv
	getenv = func(key string) string { return env[key] }
	t.Cleanup(func() { getenv = orig })
}

func mockEnv(mock *testutil.MockAudisto) map[string]string {
	return map[string]string{
		config.EnvAPIKey:   testutil.TestAPIKey,
		config.EnvPassword: testutil.TestPassword,
		config.EnvBaseURL:  mock.URL(),
		config.EnvLogLevel: "error",
	}
}

func run(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestVersionCmd(t *testing.T) {
	stdout, _, err := run(t, "", "version")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if !strings.HasPrefix(stdout, "audisto-mcp ") {
		t.Errorf("stdout = %q", stdout)
	}
}

func TestCrawlsCmd(t *testing.T) {
	mock := testutil.NewMockAudisto()
	defer mock.Close()
	mock.Script("/status/crawls", testutil.OK(`{"items": [{"id": 12345, "domain": "example.com", "status": "finished"}]}`))
	withEnv(t, mockEnv(mock))

	stdout, _, err := run(t, "", "crawls")
	if err != nil {
		t.Fatalf("crawls failed: %v", err)
	}
	if !strings.Contains(stdout, "[OK] ID: 12345 | Domain: example.com | Status: finished") {
		t.Errorf("stdout = %q", stdout)
	}
	if !mock.AuthOK() {
		t.Error("request without valid basic auth")
	}
}

func TestCrawlCmd_NotFound(t *testing.T) {
	mock := testutil.NewMockAudisto()
	defer mock.Close()
	mock.Script("/crawls/42", testutil.Status(http.StatusNotFound))
	withEnv(t, mockEnv(mock))

	stdout, stderr, err := run(t, "", "crawl", "42")
	if !errors.Is(err, errToolFailed) {
		t.Fatalf("err = %v, want errToolFailed", err)
	}
	if stdout != "" {
		t.Errorf("stdout = %q, want empty", stdout)
	}
	if !strings.Contains(stderr, "Error: Crawl ID 42 not found.") {
		t.Errorf("stderr = %q", stderr)
	}
	if got := mock.RequestCount("/crawls/42"); got != 1 {
		t.Errorf("requests = %d, want 1", got)
	}
}

func TestCrawlCmd_InvalidID(t *testing.T) {
	mock := testutil.NewMockAudisto()
	defer mock.Close()
	withEnv(t, mockEnv(mock))

	_, stderr, err := run(t, "", "crawl", "abc")
	if !errors.Is(err, errToolFailed) {
		t.Fatalf("err = %v, want errToolFailed", err)
	}
	if !strings.Contains(stderr, "Error: Invalid input:") {
		t.Errorf("stderr = %q", stderr)
	}
	if mock.TotalRequests() != 0 {
		t.Error("request issued for invalid input")
	}
}

func TestPagesCmd(t *testing.T) {
	mock := testutil.NewMockAudisto()
	defer mock.Close()
	mock.Script("/crawls/7/pages", testutil.OK(testutil.ChunkBody(1, 3, 0, 10, 3)))
	withEnv(t, mockEnv(mock))

	stdout, _, err := run(t, "", "pages", "7", "--limit", "10", "--chunksize", "10")
	if err != nil {
		t.Fatalf("pages failed: %v", err)
	}
	if !strings.Contains(stdout, "Pages of crawl 7 (showing 3 of 3):") {
		t.Errorf("stdout = %q", stdout)
	}
	queries := mock.Queries()
	if len(queries) != 1 || !strings.Contains(queries[0], "chunksize=10") {
		t.Errorf("queries = %v", queries)
	}
}

func TestMissingCredentials(t *testing.T) {
	mock := testutil.NewMockAudisto()
	defer mock.Close()
	env := mockEnv(mock)
	delete(env, config.EnvPassword)
	withEnv(t, env)

	_, _, err := run(t, "", "crawls")
	if !errors.Is(err, config.ErrMissingCredentials) {
		t.Fatalf("err = %v, want ErrMissingCredentials", err)
	}
	if mock.TotalRequests() != 0 {
		t.Error("request issued without credentials")
	}
}

func TestServeCmd_Stdio(t *testing.T) {
	mock := testutil.NewMockAudisto()
	defer mock.Close()
	mock.Script("/crawls/42", testutil.OK(`{"id": 42, "domain": "example.com", "crawled_pages": 1200}`))
	withEnv(t, mockEnv(mock))

	stdin := `{"jsonrpc": "2.0", "id": 1, "method": "tools/call", "params": {"name": "get_crawl_summary", "arguments": {"crawl_id": 42}}}` + "\n"
	stdout, stderr, err := run(t, stdin, "serve")
	if err != nil {
		t.Fatalf("serve failed: %v", err)
	}

	if !strings.Contains(stdout, "Pages Crawled: 1200") {
		t.Errorf("stdout = %q", stdout)
	}
	if strings.Contains(stdout+stderr, testutil.TestPassword) {
		t.Error("password leaked into output")
	}
}
