// Package config loads the piscale YAML configuration.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	"github.com/nats-io/nats.go"
	"gopkg.in/yaml.v3"

	"piscale/pkg/bench"
	"piscale/pkg/comm"
	"piscale/pkg/series"
)

// Config holds all piscale configuration.
type Config struct {
	// NATS transport used by `pi run`
	NATS NATSConfig `yaml:"nats"`

	// Benchmark mode
	Benchmark BenchmarkConfig `yaml:"benchmark"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`

	// Per-algorithm precision and workload overrides
	Algorithms map[series.ID]series.Override `yaml:"algorithms"`
}

// NATSConfig configures the NATS transport.
type NATSConfig struct {
	URL       string `yaml:"url"`
	RunID     string `yaml:"run_id"`
	Prefix    string `yaml:"prefix"`
	JoinRetry string `yaml:"join_retry"`
}

// BenchmarkConfig configures benchmark mode.
type BenchmarkConfig struct {
	Iterations int `yaml:"iterations"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // console, json
}

var (
	validLevels  = []string{"debug", "info", "warn", "error"}
	validFormats = []string{"console", "json"}
)

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		NATS: NATSConfig{
			URL:       nats.DefaultURL,
			Prefix:    comm.DefaultPrefix,
			JoinRetry: "100ms",
		},
		Benchmark: BenchmarkConfig{
			Iterations: bench.DefaultIterations,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads the file at path over the defaults and applies environment
// overrides. An empty path or a missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := cfg.decode(data); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		}
	}
	cfg.applyEnvOverrides(os.LookupEnv)
	return cfg, nil
}

func (c *Config) decode(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides(lookup func(string) (string, bool)) {
	if url, ok := lookup("NATS_URL"); ok && url != "" {
		c.NATS.URL = url
	}
	if url, ok := lookup("PISCALE_NATS_URL"); ok && url != "" {
		c.NATS.URL = url
	}
	if id, ok := lookup("PISCALE_RUN_ID"); ok && id != "" {
		c.NATS.RunID = id
	}
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// JoinRetryInterval returns nats.join_retry as a duration.
func (c *Config) JoinRetryInterval() time.Duration {
	d, err := time.ParseDuration(c.NATS.JoinRetry)
	if err != nil || d <= 0 {
		return 100 * time.Millisecond
	}
	return d
}

// Registry builds the algorithm registry with the configured overrides.
func (c *Config) Registry() (*series.Registry, error) {
	return series.NewRegistry(c.Algorithms)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Benchmark.Iterations <= 0 {
		return fmt.Errorf("benchmark.iterations must be positive, got %d", c.Benchmark.Iterations)
	}
	if !slices.Contains(validLevels, c.Logging.Level) {
		return fmt.Errorf("invalid logging.level: %s (valid: %v)", c.Logging.Level, validLevels)
	}
	if !slices.Contains(validFormats, c.Logging.Format) {
		return fmt.Errorf("invalid logging.format: %s (valid: %v)", c.Logging.Format, validFormats)
	}
	if c.NATS.JoinRetry != "" {
		if _, err := time.ParseDuration(c.NATS.JoinRetry); err != nil {
			return fmt.Errorf("invalid nats.join_retry: %w", err)
		}
	}
	if _, err := c.Registry(); err != nil {
		return fmt.Errorf("invalid algorithms: %w", err)
	}
	return nil
}
