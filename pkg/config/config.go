// Package config loads the adapter configuration from defaults, an optional
// YAML file and the environment, in that order of precedence (lowest first).
package config

import (
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/audisto-mcp/audisto-mcp/pkg/client"
)

// Environment variables read by Load.
const (
	EnvAPIKey      = "AUDISTO_API_KEY"
	EnvPassword    = "AUDISTO_PASSWORD"
	EnvBaseURL     = "AUDISTO_BASE_URL"
	EnvAPIVersion  = "AUDISTO_API_VERSION"
	EnvLogLevel    = "AUDISTO_LOG_LEVEL"
	EnvRedisAddr   = "AUDISTO_REDIS_ADDR"
	EnvMetricsAddr = "AUDISTO_METRICS_ADDR"
	EnvRawFallback = "AUDISTO_RAW_FALLBACK"
)

// Config holds all adapter settings. Credentials are only ever read from the
// environment and are excluded from YAML.
type Config struct {
	APIKey   string `yaml:"-"`
	Password string `yaml:"-"`

	BaseURL        string        `yaml:"base_url"`
	APIVersion     string        `yaml:"api_version"`
	Timeout        time.Duration `yaml:"timeout"`
	MaxRetries     int           `yaml:"max_retries"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`

	// RawFallback returns unvalidated bodies when validation fails.
	RawFallback bool `yaml:"raw_fallback"`

	LogLevel  string `yaml:"log_level"`
	LogPretty bool   `yaml:"log_pretty"`

	// RedisAddr enables the cross-process gate when set.
	RedisAddr string `yaml:"redis_addr"`

	// MetricsAddr enables the /metrics and /health listener when set.
	MetricsAddr string `yaml:"metrics_addr"`
}

// Default returns the built-in defaults.
func Default() Config {
	policy := client.DefaultBackoffPolicy()
	return Config{
		BaseURL:        client.DefaultBaseURL,
		APIVersion:     client.DefaultAPIVersion,
		Timeout:        client.DefaultTimeout,
		MaxRetries:     policy.MaxRetries,
		InitialBackoff: policy.InitialBackoff,
		MaxBackoff:     policy.MaxBackoff,
		RawFallback:    true,
		LogLevel:       "info",
	}
}

// ApplyEnv overrides fields from environment variables looked up by getenv.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if getenv == nil {
		getenv = os.Getenv
	}
	c.APIKey = getenv(EnvAPIKey)
	c.Password = getenv(EnvPassword)

	if v := getenv(EnvBaseURL); v != "" {
		c.BaseURL = v
	}
	if v := getenv(EnvAPIVersion); v != "" {
		c.APIVersion = v
	}
	if v := getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	if v := getenv(EnvRedisAddr); v != "" {
		c.RedisAddr = v
	}
	if v := getenv(EnvMetricsAddr); v != "" {
		c.MetricsAddr = v
	}
	if v := getenv(EnvRawFallback); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.RawFallback = b
		}
	}
}

// Validate checks settings other than credentials.
func (c Config) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if c.BaseURL == "" || err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") {
		return ErrInvalidBaseURL
	}
	if strings.Trim(c.APIVersion, "/ ") == "" {
		return ErrInvalidAPIVersion
	}
	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.MaxRetries < 0 || c.MaxRetries > client.MaxRetries {
		return ErrInvalidMaxRetries
	}
	if c.InitialBackoff < 0 || c.MaxBackoff < 0 || c.InitialBackoff > c.MaxBackoff {
		return ErrInvalidBackoff
	}
	return nil
}

// Credential returns the configured credential or ErrMissingCredentials.
func (c Config) Credential() (client.Credential, error) {
	if c.APIKey == "" || c.Password == "" {
		return client.Credential{}, ErrMissingCredentials
	}
	return client.NewCredential(c.APIKey, c.Password)
}

// ClientConfig maps the settings onto a client configuration. The gate is
// left for the caller to choose.
func (c Config) ClientConfig(cred client.Credential, userAgent string) client.Config {
	cfg := client.DefaultConfig(cred)
	cfg.BaseURL = c.BaseURL
	cfg.APIVersion = c.APIVersion
	cfg.Timeout = c.Timeout
	cfg.RawFallback = c.RawFallback
	cfg.Backoff = client.BackoffPolicy{
		MaxRetries:     c.MaxRetries,
		InitialBackoff: c.InitialBackoff,
		MaxBackoff:     c.MaxBackoff,
	}
	if userAgent != "" {
		cfg.UserAgent = userAgent
	}
	return cfg
}
