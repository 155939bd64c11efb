package main

import (
	"context"
	"errors"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/audisto-mcp/audisto-mcp/pkg/metrics"
	"github.com/audisto-mcp/audisto-mcp/pkg/tools"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
)

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the Audisto tools over MCP on stdio",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	cmd.Flags().String("metrics-addr", "", "Listen address for /metrics and /health (e.g. :9090)")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
	if metricsAddr == "" {
		metricsAddr = a.cfg.MetricsAddr
	}
	if metricsAddr != "" {
		srv := &http.Server{
			Addr:              metricsAddr,
			Handler:           metrics.NewMux(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			a.logger.Info().Str("addr", metricsAddr).Msg("Serving metrics")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error().Err(err).Msg("Metrics server failed")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	mcpServer := tools.NewServer(a.client, getVersion(), a.logger.With().Str("component", "mcp-server").Logger())
	stdio := server.NewStdioServer(mcpServer)
	stdio.SetErrorLogger(stdlog.New(a.logger, "", 0))

	a.logger.Info().Str("version", getVersion()).Msg("Starting Audisto MCP server")
	err = stdio.Listen(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	a.logger.Info().Msg("Audisto MCP server stopped")
	return nil
}
