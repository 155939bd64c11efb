package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/audisto-mcp/audisto-mcp/pkg/client"
	"github.com/audisto-mcp/audisto-mcp/pkg/pagination"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog"
)

const (
	// RecentCrawls is how many crawls get_crawl_status lists.
	RecentCrawls = 5

	// DefaultPageLimit and MaxPageLimit bound get_crawl_pages output.
	DefaultPageLimit = 20
	MaxPageLimit     = 1000

	// DefaultChunkSize is the page size used when none is given.
	DefaultChunkSize = 100
)

const helpText = `Available Audisto MCP Commands:

1. get_crawl_status()
   - Lists the 5 most recent Audisto crawls
   - Shows: Crawl ID, domain, status (finished or in progress)
   - Example: "Show me my recent crawls"

2. get_crawl_summary(crawl_id)
   - Retrieves details for a specific crawl
   - Shows: pages crawled, max depth, start time, domain
   - Parameter: crawl_id (numeric ID from get_crawl_status)
   - Example: "How many pages were crawled in crawl 67890?"

3. get_crawl_pages(crawl_id, limit, chunksize)
   - Lists pages found by a crawl, one JSON record per line
   - limit defaults to 20 (max 1000), chunksize to 100 (max 10000)
   - Example: "Show me the first 50 pages of crawl 12345"

Example Usage Flow:
  1. Ask: "Show me my recent Audisto crawls"
  2. Ask: "Get the summary for crawl [ID]"

Tips:
- Use get_crawl_status() first to find crawl IDs
- All data comes from the Audisto API; these tools never start, stop or modify crawls`

// Handlers implements the tool handlers on top of a Service.
type Handlers struct {
	svc    Service
	logger zerolog.Logger
}

// NewHandlers creates tool handlers.
func NewHandlers(svc Service, logger zerolog.Logger) *Handlers {
	return &Handlers{svc: svc, logger: logger}
}

func (h *Handlers) help(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(helpText), nil
}

func (h *Handlers) crawlStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := h.CrawlStatus(ctx)
	if err != nil {
		h.logger.Error().Err(err).Str("tool", "get_crawl_status").Msg("Tool failed")
		return mcp.NewToolResultError(RenderError(err)), nil
	}
	return mcp.NewToolResultText(text), nil
}

func (h *Handlers) crawlSummary(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	id, err := PositiveInt(args, "crawl_id", true, 0)
	if err == nil {
		var text string
		text, err = h.CrawlSummary(ctx, id)
		if err == nil {
			return mcp.NewToolResultText(text), nil
		}
	}

	if errors.Is(err, client.ErrNotFound) {
		h.logger.Warn().Int64("crawl_id", id).Msg("Crawl not found")
		return mcp.NewToolResultError(fmt.Sprintf("Error: Crawl ID %d not found.", id)), nil
	}
	h.logger.Error().Err(err).Str("tool", "get_crawl_summary").Msg("Tool failed")
	return mcp.NewToolResultError(RenderError(err)), nil
}

func (h *Handlers) crawlPages(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	text, id, err := h.pagesFromArgs(ctx, args)
	if err != nil {
		if errors.Is(err, client.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("Error: Crawl ID %d not found.", id)), nil
		}
		h.logger.Error().Err(err).Str("tool", "get_crawl_pages").Msg("Tool failed")
		return mcp.NewToolResultError(RenderError(err)), nil
	}
	return mcp.NewToolResultText(text), nil
}

func (h *Handlers) pagesFromArgs(ctx context.Context, args map[string]any) (string, int64, error) {
	id, err := PositiveInt(args, "crawl_id", true, 0)
	if err != nil {
		return "", 0, err
	}
	limit, err := PositiveInt(args, "limit", false, DefaultPageLimit)
	if err != nil {
		return "", id, err
	}
	if limit > MaxPageLimit {
		return "", id, client.Precondition("limit must be at most %d (got %d)", MaxPageLimit, limit)
	}
	defaultSize := int64(DefaultChunkSize)
	if limit < defaultSize {
		defaultSize = limit
	}
	size, err := PositiveInt(args, "chunksize", false, defaultSize)
	if err != nil {
		return "", id, err
	}
	if size > client.MaxChunkSize {
		return "", id, client.Precondition("chunksize must be between 1 and %d (got %d)", client.MaxChunkSize, size)
	}
	text, err := h.CrawlPages(ctx, id, int(limit), int(size))
	return text, id, err
}

// CrawlStatus renders the most recent crawls.
func (h *Handlers) CrawlStatus(ctx context.Context) (string, error) {
	res, err := h.svc.GetCrawlStatus(ctx)
	if err != nil {
		return "", err
	}

	var crawls []crawlView
	if res.Degraded() {
		crawls = rawCrawls(res.Raw)
	} else if res.Value != nil {
		for _, item := range res.Value.Items {
			crawls = append(crawls, viewOf(item))
		}
	}

	if len(crawls) == 0 {
		if res.Degraded() {
			return "", res.ShapeErr
		}
		h.logger.Info().Msg("No recent crawls found in Audisto")
		return "No recent crawls found.", nil
	}
	if len(crawls) > RecentCrawls {
		crawls = crawls[:RecentCrawls]
	}

	lines := []string{fmt.Sprintf("Here are the latest %d Audisto crawls:", len(crawls))}
	for _, c := range crawls {
		icon := "IN_PROGRESS"
		if c.status == "finished" {
			icon = "OK"
		}
		lines = append(lines, fmt.Sprintf("[%s] ID: %s | Domain: %s | Status: %s",
			icon, c.id, c.domain, c.status))
	}
	if res.Degraded() {
		lines = append(lines, degradedNote)
	}
	return strings.Join(lines, "\n"), nil
}

// CrawlSummary renders one crawl's details.
func (h *Handlers) CrawlSummary(ctx context.Context, crawlID int64) (string, error) {
	res, err := h.svc.GetCrawlSummary(ctx, crawlID)
	if err != nil {
		return "", err
	}

	var v crawlView
	switch {
	case res.Degraded():
		obj, ok := res.Raw.(map[string]any)
		if !ok {
			return "", res.ShapeErr
		}
		v = rawCrawl(obj)
	case res.Value != nil:
		v = viewOf(*res.Value)
	default:
		return "", client.Precondition("empty crawl summary")
	}

	text := fmt.Sprintf("Crawl Summary for ID %d:\n"+
		"- Domain: %s\n"+
		"- Pages Crawled: %s\n"+
		"- Max Depth Reached: %s\n"+
		"- Start Time: %s",
		crawlID, v.domain, v.crawledPages, v.maxDepth, v.startTime)
	if res.Degraded() {
		text += "\n" + degradedNote
	}
	return text, nil
}

// CrawlPages renders up to limit page records of a crawl, fetched lazily in
// chunks of size. No request is issued past the one that reaches limit.
func (h *Handlers) CrawlPages(ctx context.Context, crawlID int64, limit, size int) (string, error) {
	path := fmt.Sprintf("/crawls/%d/pages", crawlID)
	pager, err := pagination.New(h.svc, path, nil, size, pagination.WithEndpoint("/crawls/{id}/pages"))
	if err != nil {
		return "", err
	}

	var (
		lines []string
		total *int
	)
	for page, err := range pager.Pages(ctx) {
		if err != nil {
			return "", err
		}
		if page.Total != nil {
			total = page.Total
		}
		for _, record := range page.Records {
			var buf bytes.Buffer
			if err := json.Compact(&buf, record); err != nil {
				buf.Reset()
				buf.Write(record)
			}
			lines = append(lines, buf.String())
			if len(lines) == limit {
				break
			}
		}
		if len(lines) >= limit {
			break
		}
	}

	if len(lines) == 0 {
		return fmt.Sprintf("No pages found for crawl %d.", crawlID), nil
	}
	header := fmt.Sprintf("Pages of crawl %d (showing %d", crawlID, len(lines))
	if total != nil {
		header += fmt.Sprintf(" of %d", *total)
	}
	header += "):"
	return header + "\n" + strings.Join(lines, "\n"), nil
}

const degradedNote = "Note: the Audisto response did not match the expected format; values are shown unvalidated."

type crawlView struct {
	id, domain, status                string
	crawledPages, maxDepth, startTime string
}

func viewOf(s client.CrawlSummary) crawlView {
	return crawlView{
		id:           deref(s.ID),
		domain:       deref(s.Domain),
		status:       deref(s.Status),
		crawledPages: deref(s.CrawledPages),
		maxDepth:     deref(s.MaxDepth),
		startTime:    deref(s.StartTime),
	}
}

func deref[T any](p *T) string {
	if p == nil {
		return "N/A"
	}
	return fmt.Sprint(*p)
}

func rawCrawls(raw any) []crawlView {
	var items []any
	switch v := raw.(type) {
	case []any:
		items = v
	case map[string]any:
		items, _ = v["items"].([]any)
	}

	var out []crawlView
	for _, item := range items {
		if obj, ok := item.(map[string]any); ok {
			out = append(out, rawCrawl(obj))
		}
	}
	return out
}

func rawCrawl(obj map[string]any) crawlView {
	field := func(name string) string {
		v, ok := obj[name]
		if !ok || v == nil {
			return "N/A"
		}
		return fmt.Sprint(v)
	}
	return crawlView{
		id:           field("id"),
		domain:       field("domain"),
		status:       field("status"),
		crawledPages: field("crawled_pages"),
		maxDepth:     field("max_depth"),
		startTime:    field("start_time"),
	}
}
