// Package main provides the audisto-mcp command.
//
// audisto-mcp connects AI agents to Audisto technical SEO data over the
// Model Context Protocol. It is read-only: it never starts, stops or
// modifies crawls.
//
// Usage:
//
//	audisto-mcp serve
//	audisto-mcp crawls
//	audisto-mcp crawl <crawl-id>
//	audisto-mcp pages <crawl-id> --limit 50
//
// Credentials are read from AUDISTO_API_KEY and AUDISTO_PASSWORD.
package main

func main() {
	Execute()
}
