package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the resolved configuration record for one workspace. The core
// treats it as immutable input for the lifetime of a Session.
type Config struct {
	// Path is the manifest location relative to the workspace root. Empty
	// means "discover it" via DiscoverPath.
	Path string `yaml:"path"`

	// Individual is the owner token "take ownership as individual" uses.
	Individual string `yaml:"individual"`
	// Team is the owner token "take ownership as team" uses.
	Team string `yaml:"team"`

	// ValidateOwners enables the background validator.
	ValidateOwners bool `yaml:"validate_owners"`

	// Diagnostics holds per-code severity overrides, e.g.
	// {"no-owners": "error", "file-not-owned": "warning"}.
	Diagnostics map[string]string `yaml:"diagnostics"`

	Cache CacheConfig `yaml:"cache"`
	Forge ForgeConfig `yaml:"forge"`
	Log   LogConfig   `yaml:"log"`
}

// CacheConfig tunes the validator's refresh worker. Interval and TTL are
// passed to the worker; RefreshConcurrency is loaded but not read by it,
// since the worker's concurrency limit is a fixed constant of 5.
type CacheConfig struct {
	Interval           time.Duration `yaml:"interval"`
	TTL                time.Duration `yaml:"ttl"`
	RefreshConcurrency int           `yaml:"refresh_concurrency"`
}

// ForgeConfig addresses the owner-validation collaborator.
type ForgeConfig struct {
	BaseURL string        `yaml:"base_url"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// candidatePaths is the discovery order for an unconfigured manifest path.
var candidatePaths = []string{
	".github/CODEOWNERS",
	"CODEOWNERS",
	"docs/CODEOWNERS",
}

// DefaultConfig returns the built-in defaults every config layer starts
// from, before file and environment overrides are applied.
func DefaultConfig() *Config {
	return &Config{
		Diagnostics: map[string]string{},
		Cache: CacheConfig{
			Interval:           2 * time.Minute,
			TTL:                60 * time.Minute,
			RefreshConcurrency: 5,
		},
		Forge: ForgeConfig{
			Timeout: 15 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// CandidatePaths returns the discovery order DiscoverPath searches, for
// callers (the session's "manifest missing" diagnostic) that need to name
// every path that was tried.
func CandidatePaths() []string {
	out := make([]string, len(candidatePaths))
	copy(out, candidatePaths)
	return out
}

// DiscoverPath returns the first candidate manifest path that exists under
// root, or "" if none do.
func DiscoverPath(root string) string {
	for _, candidate := range candidatePaths {
		if _, err := os.Stat(filepath.Join(root, candidate)); err == nil {
			return candidate
		}
	}
	return ""
}

// Load loads configuration using the real environment.
func Load() (*Config, error) {
	return LoadWithEnv(os.Getenv)
}

// LoadWithEnv loads configuration using the provided environment lookup
// function, so tests can supply isolated environment values.
func LoadWithEnv(getenv func(string) string) (*Config, error) {
	cfg := DefaultConfig()

	configPath := getConfigPathWithEnv(getenv)
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if token := getenv("CODEOWNERSLS_FORGE_TOKEN"); token != "" {
		cfg.Forge.Token = token
	}
	if path := getenv("CODEOWNERSLS_PATH"); path != "" {
		cfg.Path = path
	}

	return cfg, nil
}

func getConfigPathWithEnv(getenv func(string) string) string {
	if xdgConfig := getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "codeownersls", "config.yaml")
	}

	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "codeownersls", "config.yaml")
}
