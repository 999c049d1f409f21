package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config models fastodo.yml.
type Config struct {
	Backend struct {
		URL            string `yaml:"url"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
	} `yaml:"backend"`
	User struct {
		ID    string `yaml:"id"`
		Email string `yaml:"email"`
	} `yaml:"user"`
	Sync struct {
		RetryLimit      int `yaml:"retry_limit"`
		IntervalSeconds int `yaml:"interval_seconds"`
	} `yaml:"sync"`
}

// Default returns the stock configuration.
func Default() *Config {
	var cfg Config
	cfg.Backend.URL = "http://127.0.0.1:8080"
	cfg.Backend.TimeoutSeconds = 10
	cfg.Sync.RetryLimit = 3
	cfg.Sync.IntervalSeconds = 30
	return &cfg
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Backend.URL == "" {
		return fmt.Errorf("config.backend.url is required")
	}
	if c.Backend.TimeoutSeconds <= 0 {
		return fmt.Errorf("config.backend.timeout_seconds must be positive")
	}
	if c.Sync.RetryLimit <= 0 {
		return fmt.Errorf("config.sync.retry_limit must be positive")
	}
	if c.Sync.IntervalSeconds <= 0 {
		return fmt.Errorf("config.sync.interval_seconds must be positive")
	}
	return nil
}

// Timeout returns the backend request timeout.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Backend.TimeoutSeconds) * time.Second
}

// SyncInterval returns the background drain interval.
func (c *Config) SyncInterval() time.Duration {
	return time.Duration(c.Sync.IntervalSeconds) * time.Second
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "fastodo.yml")
}

// Load reads and validates config from the workspace, falling back to
// defaults when no file exists.
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

// FromYAML parses and validates config from raw YAML bytes. Unset fields
// take defaults.
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

// Write persists the config to the workspace.
func (c *Config) Write(workspace string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(Path(workspace), data, 0o644)
}
