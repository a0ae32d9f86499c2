// Package config provides configuration loading and management for metainf.
package config

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

// Config represents the complete metainf configuration
type Config struct {
	Source  SourceConfig  `yaml:"source"`
	Output  OutputConfig  `yaml:"output"`
	Watch   WatchConfig   `yaml:"watch"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
	Notify  NotifyConfig  `yaml:"notify"`
}

// SourceConfig configures which sources are scanned
type SourceConfig struct {
	// Base is the directory paths are resolved against (auto-detected if empty)
	Base string `yaml:"base"`
	// Paths are directories or glob patterns to scan (empty = Base)
	Paths []string `yaml:"paths,omitempty"`
	// Languages restricts scanning to these scanners (empty = all)
	Languages []string `yaml:"languages,omitempty"`
	// Excludes are doublestar patterns of skipped files and directories
	Excludes []string `yaml:"excludes"`
}

// OutputConfig configures where registry files are written
type OutputConfig struct {
	// Dir is the output root, relative to Source.Base unless absolute
	Dir string `yaml:"dir"`
	// Prefix is the directory under Dir holding one file per contract
	Prefix string `yaml:"prefix"`
	// DeferWrites holds all writes until processing is finalized
	DeferWrites bool `yaml:"defer_writes"`
}

// WatchConfig configures watch mode
type WatchConfig struct {
	// Debounce is how long to wait for more changes before a pass
	Debounce time.Duration `yaml:"debounce"`
}

// LogConfig configures logging
type LogConfig struct {
	// Level is one of debug, info, warn, error
	Level string `yaml:"level"`
}

// MetricsConfig configures metrics output
type MetricsConfig struct {
	// Textfile is where Prometheus metrics are written after each pass (empty = disabled)
	Textfile string `yaml:"textfile"`
}

// NotifyConfig configures registry change notifications
type NotifyConfig struct {
	// NATSURL is the NATS server URL (empty = notifications disabled)
	NATSURL string `yaml:"nats_url"`
	// Subject is the subject events are published on
	Subject string `yaml:"subject"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Source: SourceConfig{
			Base:     "", // Auto-detect
			Excludes: []string{"vendor", "node_modules", "testdata", "target"},
		},
		Output: OutputConfig{
			Dir:    ".",
			Prefix: "META-INF/services",
		},
		Watch: WatchConfig{
			Debounce: 200 * time.Millisecond,
		},
		Log: LogConfig{
			Level: "info",
		},
		Notify: NotifyConfig{
			Subject: "metainf.registry.written",
		},
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Output.Dir == "" {
		return fmt.Errorf("output.dir is required")
	}
	if c.Output.Prefix == "" {
		return fmt.Errorf("output.prefix is required")
	}
	if path.IsAbs(c.Output.Prefix) || strings.HasPrefix(path.Clean(c.Output.Prefix), "..") {
		return fmt.Errorf("output.prefix must be a relative path inside output.dir")
	}
	if c.Watch.Debounce < 0 {
		return fmt.Errorf("watch.debounce must not be negative")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error")
	}
	for _, lang := range c.Source.Languages {
		if lang == "" {
			return fmt.Errorf("source.languages must not contain empty names")
		}
	}
	for _, p := range c.Source.Excludes {
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("source.excludes: invalid pattern %q", p)
		}
	}
	if c.Notify.NATSURL != "" && c.Notify.Subject == "" {
		return fmt.Errorf("notify.subject is required when notify.nats_url is set")
	}
	return nil
}

// OutputRoot returns the absolute output directory.
func (c *Config) OutputRoot() string {
	if filepath.IsAbs(c.Output.Dir) {
		return c.Output.Dir
	}
	return filepath.Join(c.Source.Base, c.Output.Dir)
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(path string) (*Config, error) {
	config := DefaultConfig()
	if err := decodeFile(path, config); err != nil {
		return nil, err
	}
	return config, nil
}

// decodeFile decodes a YAML file over config.
func decodeFile(path string, config *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(path string) error {
	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Merge merges another config into this one (other takes precedence for non-zero values)
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	// Source
	if other.Source.Base != "" {
		c.Source.Base = other.Source.Base
	}
	if len(other.Source.Paths) > 0 {
		c.Source.Paths = other.Source.Paths
	}
	if len(other.Source.Languages) > 0 {
		c.Source.Languages = other.Source.Languages
	}
	if other.Source.Excludes != nil {
		c.Source.Excludes = other.Source.Excludes
	}

	// Output
	if other.Output.Dir != "" {
		c.Output.Dir = other.Output.Dir
	}
	if other.Output.Prefix != "" {
		c.Output.Prefix = other.Output.Prefix
	}
	if other.Output.DeferWrites {
		c.Output.DeferWrites = true
	}

	// Watch
	if other.Watch.Debounce != 0 {
		c.Watch.Debounce = other.Watch.Debounce
	}

	// Log
	if other.Log.Level != "" {
		c.Log.Level = other.Log.Level
	}

	// Metrics
	if other.Metrics.Textfile != "" {
		c.Metrics.Textfile = other.Metrics.Textfile
	}

	// Notify
	if other.Notify.NATSURL != "" {
		c.Notify.NATSURL = other.Notify.NATSURL
	}
	if other.Notify.Subject != "" {
		c.Notify.Subject = other.Notify.Subject
	}
}
