// Package config holds the configuration of the locksim contention
// simulator: how many reader and writer goroutines share a data set, how long
// they hold their locks, and where diagnostics go.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ErrNoWorkers is returned when a configuration starts neither readers nor writers.
var ErrNoWorkers = errors.New("at least one reader or writer is required")

var validate = validator.New()

// Config describes one simulation run.
type Config struct {
	// LockName names the data set and its lock in logs, metrics and the registry dump.
	LockName string `yaml:"lock_name" validate:"required"`

	// Readers is the number of reader goroutines.
	Readers int `yaml:"readers" validate:"gte=0,lte=4096"`

	// Writers is the number of writer goroutines.
	Writers int `yaml:"writers" validate:"gte=0,lte=4096"`

	// Duration is how long the simulation runs.
	Duration time.Duration `yaml:"duration" validate:"gt=0"`

	// ReadHold is how long a reader keeps its read lock per iteration.
	ReadHold time.Duration `yaml:"read_hold" validate:"gte=0"`

	// WriteHold is how long a writer keeps the write lock per iteration.
	WriteHold time.Duration `yaml:"write_hold" validate:"gte=0"`

	// ReentrantDepth is how many nested guards each iteration opens.
	ReentrantDepth int `yaml:"reentrant_depth" validate:"gte=1,lte=64"`

	// WarningTimeout enables slow-acquisition warnings; 0 disables them.
	WarningTimeout time.Duration `yaml:"warning_timeout" validate:"gte=0"`

	// MetricsAddr serves Prometheus metrics on /metrics when set, e.g. ":9090".
	MetricsAddr string `yaml:"metrics_addr" validate:"omitempty,hostname_port"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" validate:"oneof=debug info warn error"`
}

// DefaultConfig returns a small, quick simulation.
func DefaultConfig() Config {
	return Config{
		LockName:       "locksim",
		Readers:        4,
		Writers:        2,
		Duration:       2 * time.Second,
		ReadHold:       time.Millisecond,
		WriteHold:      2 * time.Millisecond,
		ReentrantDepth: 2,
		WarningTimeout: 0,
		LogLevel:       "info",
	}
}

// Validate checks field ranges and cross-field rules.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Readers+c.Writers == 0 {
		return fmt.Errorf("invalid config: %w", ErrNoWorkers)
	}
	return nil
}

// SlogLevel converts LogLevel for slog handlers.
func (c Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(c.LogLevel))); err != nil {
		return slog.LevelInfo
	}
	return level
}

// Load reads a YAML file on top of DefaultConfig and validates the result.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read the config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse the config file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// WriteDefault writes DefaultConfig as YAML to path, creating parent
// directories. An existing file is left alone.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file %s already exists", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create the config directory: %w", err)
	}
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return fmt.Errorf("failed to encode the default config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
