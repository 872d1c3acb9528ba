// Annalist - Store-and-Forward Telemetry Historian
// Copyright 2026 The Annalist Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/annalist-io/annalist

package historian

import "time"

// Config controls the bundled DuckDB historian backend.
type Config struct {
	// Path is the DuckDB database file.
	Path string

	// Threads caps DuckDB's worker threads. Zero means NumCPU.
	Threads int

	// MaxMemory bounds DuckDB's memory use, e.g. "512MB".
	MaxMemory string

	// PreserveInsertionOrder keeps result order stable at some memory cost.
	PreserveInsertionOrder bool

	// Breaker configures the insert-path circuit breaker.
	Breaker BreakerConfig
}

// BreakerConfig holds circuit breaker settings.
type BreakerConfig struct {
	MaxRequests      uint32        // Allowed in half-open state
	Interval         time.Duration // Reset interval for counts
	Timeout          time.Duration // Time to stay open
	FailureThreshold uint32        // Consecutive failures before opening
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Path:                   "/data/historian.duckdb",
		Threads:                0,
		MaxMemory:              "512MB",
		PreserveInsertionOrder: true,
		Breaker: BreakerConfig{
			MaxRequests:      3,
			Interval:         30 * time.Second,
			Timeout:          10 * time.Second,
			FailureThreshold: 5,
		},
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Path == "" {
		return &ConfigError{Field: "Path", Message: "database path is required"}
	}
	if c.MaxMemory == "" {
		return &ConfigError{Field: "MaxMemory", Message: "memory bound is required"}
	}
	if c.Threads < 0 {
		return &ConfigError{Field: "Threads", Message: "must not be negative"}
	}
	if c.Breaker.MaxRequests < 1 {
		return &ConfigError{Field: "Breaker.MaxRequests", Message: "must be at least 1"}
	}
	if c.Breaker.FailureThreshold < 1 {
		return &ConfigError{Field: "Breaker.FailureThreshold", Message: "must be at least 1"}
	}
	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "historian config error: " + e.Field + ": " + e.Message
}
