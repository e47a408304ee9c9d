// Package config loads agentmaild's runtime configuration: defaults, then
// an optional TOML file, then environment variable overrides, in that
// order (env > file > default), matching the teacher's own layering.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/kelseyhightower/envconfig"
)

// HTTPConfig groups the streamable-HTTP MCP listener's settings.
type HTTPConfig struct {
	Host                          string `toml:"host" envconfig:"HOST"`
	Port                          int    `toml:"port" envconfig:"PORT"`
	BearerToken                   string `toml:"bearer_token" envconfig:"BEARER_TOKEN"`
	AllowLocalhostUnauthenticated bool   `toml:"allow_localhost_unauthenticated" envconfig:"ALLOW_LOCALHOST_UNAUTHENTICATED"`
}

// LLMConfig groups the optional key_points/action_items collaborator.
type LLMConfig struct {
	Enabled      bool   `toml:"enabled" envconfig:"ENABLED"`
	DefaultModel string `toml:"default_model" envconfig:"DEFAULT_MODEL"`
}

// PolicyConfig groups contact-authorization enforcement toggles.
type PolicyConfig struct {
	ContactEnforcementEnabled bool `toml:"contact_enforcement_enabled" envconfig:"CONTACT_ENFORCEMENT_ENABLED"`
}

// Config is agentmaild's root configuration.
type Config struct {
	StorageRoot string       `toml:"storage_root"`
	HTTP        HTTPConfig   `toml:"http"`
	LLM         LLMConfig    `toml:"llm"`
	Policy      PolicyConfig `toml:"policy"`
}

// Default returns the built-in configuration a fresh install starts from.
func Default() *Config {
	return &Config{
		StorageRoot: DefaultStorageRoot(),
		HTTP: HTTPConfig{
			Host:                        "127.0.0.1",
			Port:                        8765,
			AllowLocalhostUnauthenticated: true,
		},
		LLM: LLMConfig{
			Enabled:      false,
			DefaultModel: "",
		},
		Policy: PolicyConfig{
			ContactEnforcementEnabled: true,
		},
	}
}

// DefaultStorageRoot mirrors the teacher's XDG-aware default-path lookup,
// falling back to the system temp dir when no home directory is available
// (e.g. inside a minimal container).
func DefaultStorageRoot() string {
	if env := os.Getenv("AGENTMAILD_STORAGE_ROOT"); env != "" {
		return env
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "agentmaild")
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = os.TempDir()
	}
	return filepath.Join(home, ".local", "share", "agentmaild")
}

// DefaultPath returns the config file path used when none is given
// explicitly, honoring AGENTMAILD_CONFIG the way the teacher honors
// NTM_CONFIG.
func DefaultPath() string {
	if env := os.Getenv("AGENTMAILD_CONFIG"); env != "" {
		return env
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "agentmaild", "config.toml")
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = os.TempDir()
	}
	return filepath.Join(home, ".config", "agentmaild", "config.toml")
}

// Load builds a Config by layering defaults, an optional TOML file at
// path (DefaultPath() if empty; a missing file is not an error), and
// finally STORAGE_ROOT / HTTP_* / LLM_* / CONTACT_ENFORCEMENT_ENABLED
// environment variables, then validates the result.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}

	cfg := Default()

	if data, err := os.ReadFile(path); err == nil {
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	if root := os.Getenv("STORAGE_ROOT"); root != "" {
		cfg.StorageRoot = root
	}
	if err := envconfig.Process("HTTP", &cfg.HTTP); err != nil {
		return nil, fmt.Errorf("applying HTTP_* env overrides: %w", err)
	}
	if err := envconfig.Process("LLM", &cfg.LLM); err != nil {
		return nil, fmt.Errorf("applying LLM_* env overrides: %w", err)
	}
	if enforce := os.Getenv("CONTACT_ENFORCEMENT_ENABLED"); enforce != "" {
		cfg.Policy.ContactEnforcementEnabled = enforce == "1" || enforce == "true"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects a config that would make the server unusable or unsafe
// to start (spec.md's "server refuses to start" startup-validation
// requirement).
func (c *Config) Validate() error {
	if c.StorageRoot == "" {
		return fmt.Errorf("storage_root must not be empty")
	}
	if c.HTTP.Host == "" {
		return fmt.Errorf("http.host must not be empty")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if !c.HTTP.AllowLocalhostUnauthenticated && c.HTTP.BearerToken == "" {
		return fmt.Errorf("http.bearer_token is required when allow_localhost_unauthenticated is false")
	}
	if c.LLM.Enabled && c.LLM.DefaultModel == "" {
		return fmt.Errorf("llm.default_model is required when llm.enabled is true")
	}
	return nil
}
