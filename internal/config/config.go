// Package config loads the YAML configuration for the OBD engine and CLI.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	CommandTimeoutMs      int             `yaml:"command_timeout_ms"`
	StreamingInactivityMs int             `yaml:"streaming_inactivity_ms"`
	ScanTimeoutMs         int             `yaml:"scan_timeout_ms"`
	LogLevel              string          `yaml:"log_level"`
	Profiles              []ProfileConfig `yaml:"profiles"`
}

// ProfileConfig is a user-supplied UUID profile for an adapter clone the
// built-in table does not know. Entries are tried after the built-ins.
type ProfileConfig struct {
	Name              string `yaml:"name"`
	Service           string `yaml:"service"`
	Write             string `yaml:"write"`
	Notify            string `yaml:"notify"`
	WriteWithResponse bool   `yaml:"write_with_response"`
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "gobd")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		CommandTimeoutMs:      4000,
		StreamingInactivityMs: 4000,
		ScanTimeoutMs:         10000,
		LogLevel:              "info",
	}
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return cfg, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if c.CommandTimeoutMs <= 0 {
		return fmt.Errorf("command_timeout_ms must be > 0")
	}

	if c.StreamingInactivityMs <= 0 {
		return fmt.Errorf("streaming_inactivity_ms must be > 0")
	}

	if c.ScanTimeoutMs <= 0 {
		return fmt.Errorf("scan_timeout_ms must be > 0")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	for i, p := range c.Profiles {
		if p.Service == "" || p.Write == "" || p.Notify == "" {
			return fmt.Errorf("profiles[%d]: service, write and notify are all required", i)
		}
		if p.Name != "" && strings.ContainsAny(p.Name, " \t") {
			return fmt.Errorf("profiles[%d]: name must not contain whitespace, got %q", i, p.Name)
		}
	}

	return nil
}

// CommandTimeout returns the command timeout as a duration.
func (c *Config) CommandTimeout() time.Duration {
	return time.Duration(c.CommandTimeoutMs) * time.Millisecond
}

// StreamingInactivity returns the streaming inactivity window as a duration.
func (c *Config) StreamingInactivity() time.Duration {
	return time.Duration(c.StreamingInactivityMs) * time.Millisecond
}

// ScanTimeout returns the scan timeout as a duration.
func (c *Config) ScanTimeout() time.Duration {
	return time.Duration(c.ScanTimeoutMs) * time.Millisecond
}
