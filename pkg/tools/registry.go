// Package tools exposes the Audisto client to agents as read-only MCP tools
// and renders every result and error as short human-readable text.
package tools

import (
	"context"
	"errors"

	"github.com/audisto-mcp/audisto-mcp/pkg/client"
	"github.com/audisto-mcp/audisto-mcp/pkg/pagination"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
)

// ServerName is the MCP server name announced to agents.
const ServerName = "Audisto SEO Agent"

// Service is the subset of the Audisto client the tools use.
type Service interface {
	GetCrawlStatus(ctx context.Context) (client.Result[client.CrawlList], error)
	GetCrawlSummary(ctx context.Context, crawlID int64) (client.Result[client.CrawlSummary], error)
	pagination.ChunkFetcher
}

// ToolSpec defines a tool's metadata for declarative registration.
type ToolSpec struct {
	// Name is the MCP tool name.
	Name string

	// Title is the human-readable title for annotations.
	Title string

	// Description is shown to the agent.
	Description string

	// Params declares the tool's numeric parameters.
	Params []ParamSpec

	handler func(h *Handlers) server.ToolHandlerFunc
}

// ParamSpec declares one integer parameter.
type ParamSpec struct {
	Name        string
	Description string
	Required    bool
	Min, Max    float64
}

// Specs lists every tool. All of them are read-only, non-destructive,
// idempotent and talk to an external API.
var Specs = []ToolSpec{
	{
		Name:        "get_help",
		Title:       "Audisto help",
		Description: "Display available commands and usage examples for the Audisto MCP server. Use this if you're unsure what queries you can send.",
		handler:     func(h *Handlers) server.ToolHandlerFunc { return h.help },
	},
	{
		Name:        "get_crawl_status",
		Title:       "Recent crawls",
		Description: "Check the status of recent Audisto crawls. Returns the ID, status, and domain of the last 5 crawls.",
		handler:     func(h *Handlers) server.ToolHandlerFunc { return h.crawlStatus },
	},
	{
		Name:        "get_crawl_summary",
		Title:       "Crawl summary",
		Description: "Get the high-level summary of a specific crawl: domain, pages crawled, maximum depth and start time.",
		Params: []ParamSpec{
			{Name: "crawl_id", Description: "The numeric ID of the crawl (found via get_crawl_status)", Required: true, Min: 1},
		},
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.crawlSummary },
	},
	{
		Name:        "get_crawl_pages",
		Title:       "Crawled pages",
		Description: "List pages found by a crawl, one JSON record per line, fetched in chunks.",
		Params: []ParamSpec{
			{Name: "crawl_id", Description: "The numeric ID of the crawl (found via get_crawl_status)", Required: true, Min: 1},
			{Name: "limit", Description: "Maximum number of records to return (default 20)", Min: 1, Max: MaxPageLimit},
			{Name: "chunksize", Description: "Records per upstream request (default 100)", Min: 1, Max: client.MaxChunkSize},
		},
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.crawlPages },
	},
}

// Tool builds the MCP tool definition for a spec.
func (s ToolSpec) Tool() mcp.Tool {
	opts := []mcp.ToolOption{
		mcp.WithDescription(s.Description),
		mcp.WithTitleAnnotation(s.Title),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(true),
	}
	for _, p := range s.Params {
		propOpts := []mcp.PropertyOption{mcp.Description(p.Description)}
		if p.Required {
			propOpts = append(propOpts, mcp.Required())
		}
		if p.Min > 0 {
			propOpts = append(propOpts, mcp.Min(p.Min))
		}
		if p.Max > 0 {
			propOpts = append(propOpts, mcp.Max(p.Max))
		}
		opts = append(opts, mcp.WithNumber(p.Name, propOpts...))
	}
	return mcp.NewTool(s.Name, opts...)
}

// NewServer creates the MCP server with every tool registered.
func NewServer(svc Service, version string, logger zerolog.Logger) *server.MCPServer {
	s := server.NewMCPServer(ServerName, version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)

	h := NewHandlers(svc, logger)
	for _, spec := range Specs {
		s.AddTool(spec.Tool(), spec.handler(h))
	}
	return s
}

// Handler returns the tool handler for name, for callers outside MCP (CLI).
func (h *Handlers) Handler(name string) (server.ToolHandlerFunc, error) {
	for _, spec := range Specs {
		if spec.Name == name {
			return spec.handler(h), nil
		}
	}
	return nil, errors.New("unknown tool: " + name)
}
