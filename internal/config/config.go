package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config models taskhub.yml.
type Config struct {
	Server struct {
		Listen   string `yaml:"listen"`
		BasePath string `yaml:"base_path"`
	} `yaml:"server"`
	Auth struct {
		JWTSecret      string `yaml:"jwt_secret"`
		TokenTTLHours  int    `yaml:"token_ttl_hours"`
		AllowDevHeader bool   `yaml:"allow_dev_header"`
	} `yaml:"auth"`
	Notifications struct {
		// DefaultPageSize bounds notification list queries when the caller
		// does not pass a limit.
		DefaultPageSize int `yaml:"default_page_size"`
		MaxPageSize     int `yaml:"max_page_size"`
	} `yaml:"notifications"`
}

// Default returns the default configuration.
func Default() *Config {
	var cfg Config
	cfg.Server.Listen = "127.0.0.1:8080"
	cfg.Server.BasePath = "/v1"
	cfg.Auth.TokenTTLHours = 24
	cfg.Notifications.DefaultPageSize = 20
	cfg.Notifications.MaxPageSize = 100
	return &cfg
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Server.Listen) == "" {
		return fmt.Errorf("config.server.listen is required")
	}
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	if c.Auth.TokenTTLHours <= 0 {
		return fmt.Errorf("config.auth.token_ttl_hours must be positive")
	}
	if c.Notifications.DefaultPageSize <= 0 {
		return fmt.Errorf("config.notifications.default_page_size must be positive")
	}
	if c.Notifications.MaxPageSize < c.Notifications.DefaultPageSize {
		return fmt.Errorf("config.notifications.max_page_size must be >= default_page_size")
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "taskhub.yml")
}

// Load reads config from the workspace, falling back to defaults when the
// file does not exist.
func Load(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses and validates config from raw YAML bytes. Absent fields
// keep their defaults.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
