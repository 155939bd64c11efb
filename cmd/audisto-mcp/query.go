package main

import (
	"errors"
	"fmt"

	"github.com/audisto-mcp/audisto-mcp/pkg/tools"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/spf13/cobra"
)

// errToolFailed signals that the tool already printed its error text.
var errToolFailed = errors.New("tool reported an error")

// NewCrawlsCmd creates the crawls command.
func NewCrawlsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "crawls",
		Short: "List the most recent crawls",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTool(cmd, "get_crawl_status", nil)
		},
	}
}

// NewCrawlCmd creates the crawl command.
func NewCrawlCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "crawl <crawl-id>",
		Short: "Show the summary of one crawl",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTool(cmd, "get_crawl_summary", map[string]any{"crawl_id": args[0]})
		},
	}
}

// NewPagesCmd creates the pages command.
func NewPagesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pages <crawl-id>",
		Short: "List pages found by a crawl",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			size, _ := cmd.Flags().GetInt("chunksize")
			return runTool(cmd, "get_crawl_pages", map[string]any{
				"crawl_id":  args[0],
				"limit":     limit,
				"chunksize": size,
			})
		},
	}
	cmd.Flags().Int("limit", tools.DefaultPageLimit, "Maximum number of records to print")
	cmd.Flags().Int("chunksize", tools.DefaultChunkSize, "Records per request (1-10000)")
	return cmd
}

// runTool invokes a tool handler and prints its text, so the shell sees
// exactly what an agent would.
func runTool(cmd *cobra.Command, name string, args map[string]any) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	handler, err := tools.NewHandlers(a.client, a.logger).Handler(name)
	if err != nil {
		return err
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	res, err := handler(cmd.Context(), req)
	if err != nil {
		return err
	}

	text := tools.ResultText(res)
	if res.IsError {
		fmt.Fprintln(cmd.ErrOrStderr(), text)
		return errToolFailed
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), text)
	return err
}
