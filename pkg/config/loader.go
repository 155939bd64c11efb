package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the configuration file name searched for when no
// path is given.
const DefaultConfigFile = ".audisto-mcp.yaml"

// Load builds the configuration: defaults, then the YAML file at path (or
// the first DefaultConfigFile found in the working or home directory), then
// the environment. An explicit path that does not exist is an error.
func Load(path string, getenv func(string) string) (Config, error) {
	cfg := Default()

	file := FindConfigFile(path)
	if path != "" && file == "" {
		return cfg, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
	}
	if file != "" {
		if err := LoadFile(file, &cfg); err != nil {
			return cfg, fmt.Errorf("load %s: %w", file, err)
		}
	}

	cfg.ApplyEnv(getenv)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadFile overlays the YAML file onto cfg.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path) //nolint:gosec // config path comes from the operator
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrConfigNotFound
		}
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// FindConfigFile returns path if it exists, otherwise the first
// DefaultConfigFile in the working directory or the home directory. It
// returns "" when nothing is found.
func FindConfigFile(path string) string {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return path
		}
		return ""
	}

	if cwd, err := os.Getwd(); err == nil {
		candidate := filepath.Join(cwd, DefaultConfigFile)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}

	if home, err := os.UserHomeDir(); err == nil {
		candidate := filepath.Join(home, DefaultConfigFile)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}
