package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultBaseURL is the backend address used when none is configured.
const DefaultBaseURL = "http://127.0.0.1:8000"

// Config represents a sluice.yaml configuration file.
// All values are optional and act as defaults for sluice flags.
// CLI flags always override config values.
type Config struct {
	Backend BackendConfig `yaml:"backend"`
	State   StateConfig   `yaml:"state"`
	Archive ArchiveConfig `yaml:"archive"`
	Adapter AdapterConfig `yaml:"adapter"`
}

// BackendConfig holds backend connection defaults from the config file.
type BackendConfig struct {
	BaseURL string            `yaml:"base_url"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
}

// StateConfig holds local state defaults from the config file.
type StateConfig struct {
	// Dir is the state directory for session snapshots and the archive.
	Dir string `yaml:"dir"`
	// FlushInterval is the coalescing window for async snapshot writes.
	FlushInterval Duration `yaml:"flush_interval,omitempty"`
}

// ArchiveConfig holds conversation archive defaults from the config file.
type ArchiveConfig struct {
	// Enabled archives each conversation when the chat session ends.
	Enabled bool `yaml:"enabled"`
	// S3 configures an optional sync target for archived conversations.
	S3 S3Config `yaml:"s3,omitempty"`
}

// S3Config holds the archive's S3 sync target.
type S3Config struct {
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix,omitempty"`
	Region    string `yaml:"region,omitempty"`
	Endpoint  string `yaml:"endpoint,omitempty"`
	PathStyle bool   `yaml:"path_style,omitempty"`
}

// AdapterConfig holds turn-completed notification defaults from the
// config file.
type AdapterConfig struct {
	Type    string            `yaml:"type"` // webhook or redis
	URL     string            `yaml:"url"`
	Channel string            `yaml:"channel,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// Normalize fills unset fields with defaults.
func (c *Config) Normalize() {
	if c.Backend.BaseURL == "" {
		c.Backend.BaseURL = DefaultBaseURL
	}
	if c.State.Dir == "" {
		c.State.Dir = DefaultStateDir()
	}
}

// DefaultStateDir returns the per-user state directory. Falls back to a
// relative .sluice directory when the home directory is unknown.
func DefaultStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".sluice"
	}
	return filepath.Join(home, ".sluice")
}
