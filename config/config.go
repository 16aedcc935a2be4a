// Package config provides YAML configuration parsing for the swec server.
//
// This package enables running swec as a standalone binary with a
// configuration file, as an alternative to the programmatic API.
//
// Example configuration:
//
//	data_dir: /var/lib/swec
//	history_limit: 3600
//
//	public_addr: ":8080"
//	private_addr: "127.0.0.1:8081"
//
//	snapshot_interval: 60s
//	snapshot_threshold: 4096
//	subscriber_buffer: 64
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// minSnapshotInterval is the minimum allowed time between periodic
// snapshots. This prevents accidental disk thrashing from overly
// aggressive schedules.
const minSnapshotInterval = 1 * time.Second

// Config is the root configuration structure for the swec server.
//
// It maps directly to the YAML configuration file structure.
// Use [Load] or [Parse] to create a Config from YAML.
type Config struct {
	// DataDir is the directory holding the journal and snapshot.
	// Supports environment variable substitution: ${VAR} or ${VAR:-default}.
	// Defaults to "data".
	DataDir string `yaml:"data_dir"`

	// HistoryLimit is the number of statuses retained per checker.
	// Defaults to 3600.
	HistoryLimit int `yaml:"history_limit"`

	// PublicAddr is the listen address of the read-only API.
	// Defaults to ":8080".
	PublicAddr string `yaml:"public_addr"`

	// PrivateAddr is the listen address of the read-write API. It also
	// serves /metrics. Defaults to "127.0.0.1:8081"; bind it to a
	// loopback or otherwise trusted interface.
	PrivateAddr string `yaml:"private_addr"`

	// SnapshotInterval is the time between periodic snapshots.
	// Accepts duration strings like "60s", "5m". Defaults to 60s.
	SnapshotInterval Duration `yaml:"snapshot_interval"`

	// SnapshotThreshold is the number of journal entries that triggers
	// an early snapshot between ticks. Defaults to 4096.
	SnapshotThreshold int `yaml:"snapshot_threshold"`

	// SubscriberBuffer is the default queue capacity for event
	// subscribers. A subscriber that falls this far behind is
	// disconnected. Defaults to 64.
	SubscriberBuffer int `yaml:"subscriber_buffer"`
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part (if present, indicates a default was specified)
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}

		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		hasDefault := len(submatches) > 2 && submatches[2] != ""
		defaultVal := ""
		if hasDefault && len(submatches) > 3 {
			defaultVal = submatches[3]
		}

		value, exists := os.LookupEnv(varName)
		if !exists {
			if hasDefault {
				return defaultVal
			}
			firstErr = fmt.Errorf("environment variable %q is not set", varName)
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// Load reads and parses a YAML configuration file.
//
// Environment variables in the file are expanded after parsing.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration data, applies defaults, and validates.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if cfg.DataDir == "" {
		cfg.DataDir = "data"
	}
	if cfg.HistoryLimit == 0 {
		cfg.HistoryLimit = 3600
	}
	if cfg.PublicAddr == "" {
		cfg.PublicAddr = ":8080"
	}
	if cfg.PrivateAddr == "" {
		cfg.PrivateAddr = "127.0.0.1:8081"
	}
	if cfg.SnapshotInterval == 0 {
		cfg.SnapshotInterval = Duration(60 * time.Second)
	}
	if cfg.SnapshotThreshold == 0 {
		cfg.SnapshotThreshold = 4096
	}
	if cfg.SubscriberBuffer == 0 {
		cfg.SubscriberBuffer = 64
	}

	if err := cfg.expandAndValidate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// expandAndValidate expands environment variables and validates the config.
func (c *Config) expandAndValidate() error {
	expanded, err := expandEnvVars(c.DataDir)
	if err != nil {
		return fmt.Errorf("data_dir: %w", err)
	}
	c.DataDir = expanded

	for _, addr := range []struct {
		key   string
		value *string
	}{
		{"public_addr", &c.PublicAddr},
		{"private_addr", &c.PrivateAddr},
	} {
		expanded, err := expandEnvVars(*addr.value)
		if err != nil {
			return fmt.Errorf("%s: %w", addr.key, err)
		}
		*addr.value = expanded
	}

	if c.HistoryLimit < 0 {
		return fmt.Errorf("history_limit cannot be negative, got %d", c.HistoryLimit)
	}
	if c.SnapshotInterval.Duration() < minSnapshotInterval {
		return fmt.Errorf("snapshot_interval must be at least %s, got %s",
			minSnapshotInterval, c.SnapshotInterval.Duration())
	}
	if c.SnapshotThreshold < 0 {
		return fmt.Errorf("snapshot_threshold cannot be negative, got %d", c.SnapshotThreshold)
	}
	if c.SubscriberBuffer < 0 {
		return fmt.Errorf("subscriber_buffer cannot be negative, got %d", c.SubscriberBuffer)
	}
	if c.PublicAddr == c.PrivateAddr {
		return fmt.Errorf("public_addr and private_addr must differ, both are %q", c.PublicAddr)
	}

	return nil
}
