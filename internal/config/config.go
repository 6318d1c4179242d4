// Package config loads the optional YAML settings file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Nao-Mk2/aws-log-browser/internal/model"
	"github.com/Nao-Mk2/aws-log-browser/internal/store"
)

// Config holds server, backend and presentation settings.
type Config struct {
	Listen      string       `yaml:"listen"`
	AWS         AWSConfig    `yaml:"aws"`
	Store       store.Config `yaml:"store"`
	DebounceMs  int          `yaml:"debounce_ms"`
	SearchLimit int          `yaml:"search_limit"`
	Window      WindowConfig `yaml:"window"`
	// AllowedOrigins feeds the CORS handler.
	AllowedOrigins []string `yaml:"allowed_origins"`
	// RequestTimeoutSec bounds each HTTP request, including group aggregation.
	RequestTimeoutSec int `yaml:"request_timeout_sec"`
}

type AWSConfig struct {
	Region      string `yaml:"region"`
	Profile     string `yaml:"profile"`
	GroupPrefix string `yaml:"group_prefix"`
}

// WindowConfig sizes the virtualized lists. Sizes are in pixels.
type WindowConfig struct {
	RowSize  int `yaml:"row_size"`
	Overscan int `yaml:"overscan"`
	Extent   int `yaml:"extent"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Listen:            "127.0.0.1:8080",
		Store:             store.Config{Driver: "bolt", Path: "exports.db"},
		DebounceMs:        300,
		SearchLimit:       model.DefaultSearchLimit,
		Window:            WindowConfig{RowSize: 40, Overscan: 5, Extent: 400},
		AllowedOrigins:    []string{"http://localhost:*", "http://127.0.0.1:*"},
		RequestTimeoutSec: 60,
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config YAML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects settings the server cannot run with.
func (c Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen address is empty")
	}
	if c.DebounceMs < 0 {
		return fmt.Errorf("debounce_ms must not be negative: %d", c.DebounceMs)
	}
	if c.Window.RowSize <= 0 {
		return fmt.Errorf("window.row_size must be positive: %d", c.Window.RowSize)
	}
	if c.Window.Overscan < 0 || c.Window.Extent < 0 {
		return fmt.Errorf("window overscan and extent must not be negative")
	}
	if c.RequestTimeoutSec <= 0 {
		return fmt.Errorf("request_timeout_sec must be positive: %d", c.RequestTimeoutSec)
	}
	return nil
}

// Debounce is the settle delay for filter inputs.
func (c Config) Debounce() time.Duration {
	return time.Duration(c.DebounceMs) * time.Millisecond
}

// RequestTimeout is the per-request deadline.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSec) * time.Second
}
