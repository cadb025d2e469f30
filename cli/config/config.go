package config

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

// Config represents a sluice.yaml configuration file.
// All values are optional and act as defaults for sluice upload flags.
// CLI flags always override config values.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Upload UploadConfig `yaml:"upload"`
	Wait   WaitConfig   `yaml:"wait"`
	Report ReportConfig `yaml:"report"`
}

// ServerConfig identifies the backend and how to authenticate against it.
type ServerConfig struct {
	URL     string   `yaml:"url"`
	Token   string   `yaml:"token"`
	Org     string   `yaml:"org"`
	Project string   `yaml:"project"`
	Timeout Duration `yaml:"timeout"`
}

// UploadConfig holds upload tuning defaults from the config file.
// Zero values defer to the server's advertised options.
type UploadConfig struct {
	Concurrency int      `yaml:"concurrency"`
	ChunkSize   ByteSize `yaml:"chunk_size"`
	MaxFileSize ByteSize `yaml:"max_file_size"`
	MaxAttempts int      `yaml:"max_attempts"`
	NoDedup     bool     `yaml:"no_dedup"`
}

// WaitConfig holds wait-mode defaults from the config file.
type WaitConfig struct {
	Wait         bool     `yaml:"wait"`
	WaitFor      Duration `yaml:"wait_for"`
	Strict       bool     `yaml:"strict"`
	PollInterval Duration `yaml:"poll_interval"`
}

// ReportConfig holds report output defaults from the config file.
type ReportConfig struct {
	Path string `yaml:"path"`
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

// ByteSize wraps a byte count for YAML parsing of human-readable sizes
// ("8MiB", "512 kb") as well as plain integers.
type ByteSize struct {
	Bytes int64
}

// UnmarshalYAML parses a byte size from a string or integer node.
func (b *ByteSize) UnmarshalYAML(unmarshal func(any) error) error {
	var n int64
	if err := unmarshal(&n); err == nil {
		if n < 0 {
			return fmt.Errorf("invalid byte size %d", n)
		}
		b.Bytes = n
		return nil
	}

	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := humanize.ParseBytes(s)
	if err != nil {
		return fmt.Errorf("invalid byte size %q: %w", s, err)
	}
	b.Bytes = int64(parsed)
	return nil
}
