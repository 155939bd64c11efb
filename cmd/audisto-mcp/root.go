package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/audisto-mcp/audisto-mcp/pkg/client"
	"github.com/audisto-mcp/audisto-mcp/pkg/config"
	"github.com/audisto-mcp/audisto-mcp/pkg/gate"
	"github.com/audisto-mcp/audisto-mcp/pkg/logging"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// getenv is swapped in tests.
var getenv = os.Getenv

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audisto-mcp",
		Short: "Read-only MCP server for the Audisto crawl API",
		Long: `audisto-mcp exposes Audisto crawl data to AI agents over the Model Context
Protocol (stdio). The query commands run the same tools from the shell.

Credentials are read from AUDISTO_API_KEY and AUDISTO_PASSWORD. Other settings
come from --config (default .audisto-mcp.yaml in the working or home
directory) and AUDISTO_* environment variables.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().String("config", "", "Path to the YAML configuration file")
	cmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")
	cmd.PersistentFlags().Bool("pretty", false, "Human-readable log output")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewCrawlsCmd())
	cmd.AddCommand(NewCrawlCmd())
	cmd.AddCommand(NewPagesCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		if !errors.Is(err, errToolFailed) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

// app bundles what every command needs.
type app struct {
	cfg    config.Config
	client *client.Client
	logger zerolog.Logger
	redis  *redis.Client
}

// newApp loads configuration, sets up logging and builds the client. Missing
// credentials fail here, before any request is attempted.
func newApp(cmd *cobra.Command) (*app, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path, getenv)
	if err != nil {
		return nil, err
	}

	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.LogLevel = lvl
	}
	if pretty, _ := cmd.Flags().GetBool("pretty"); pretty {
		cfg.LogPretty = true
	}
	logging.Setup(logging.Config{
		Level:  logging.ParseLevel(cfg.LogLevel),
		Pretty: cfg.LogPretty,
		Output: cmd.ErrOrStderr(),
	})
	logger := logging.NewLogger("audisto-mcp")

	cred, err := cfg.Credential()
	if err != nil {
		logger.Error().Err(err).Msg("Startup validation failed")
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger}
	clientCfg := cfg.ClientConfig(cred, userAgent())

	if cfg.RedisAddr != "" {
		a.redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
		defer cancel()
		if err := a.redis.Ping(ctx).Err(); err != nil {
			a.redis.Close()
			return nil, fmt.Errorf("connect to redis at %s: %w", cfg.RedisAddr, err)
		}
		g, err := gate.NewRedis(a.redis, gate.RedisConfig{
			Fingerprint: cred.Fingerprint(),
			LeaseTTL:    cfg.Timeout + 30*time.Second,
		}, logging.NewLogger("gate"))
		if err != nil {
			a.redis.Close()
			return nil, err
		}
		clientCfg.Gate = g
		logger.Info().Str("redis", cfg.RedisAddr).Msg("Using redis single-flight gate")
	}

	a.client, err = client.New(clientCfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	logger.Info().Object("credential", cred).Msg("Credentials validated")
	return a, nil
}

// Close releases the client and redis connection.
func (a *app) Close() {
	if a.client != nil {
		_ = a.client.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
}
