// Annalist - Store-and-Forward Telemetry Historian
// Copyright 2026 The Annalist Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/annalist-io/annalist

package publish

import (
	"time"
)

// Config holds publish scheduler configuration.
type Config struct {
	// SubmitSizeLimit caps how many records one publish attempt drains
	// from the spool. Anything beyond the cap stays spooled and surfaces
	// on the next drain.
	SubmitSizeLimit int

	// RetryPeriod is the pause after a failed attempt before the same
	// records are retried.
	RetryPeriod time.Duration

	// MaxTimePublishing bounds a single publish attempt. The sink runs
	// under a deadline context and the scheduler waits at most this long
	// for it to conclude.
	MaxTimePublishing time.Duration

	// PollInterval is the cadence of unsolicited drain checks. Capture
	// wakes the scheduler directly, so the poll only catches records left
	// behind by a previous run.
	PollInterval time.Duration
}

// DefaultConfig returns the scheduler defaults.
func DefaultConfig() Config {
	return Config{
		SubmitSizeLimit:   1000,
		RetryPeriod:       300 * time.Second,
		MaxTimePublishing: 30 * time.Second,
		PollInterval:      5 * time.Second,
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.SubmitSizeLimit < 1 {
		return &ConfigError{Field: "SubmitSizeLimit", Message: "must be at least 1"}
	}

	if c.RetryPeriod < time.Second {
		return &ConfigError{Field: "RetryPeriod", Message: "must be at least 1 second"}
	}

	if c.MaxTimePublishing < time.Second {
		return &ConfigError{Field: "MaxTimePublishing", Message: "must be at least 1 second"}
	}

	if c.PollInterval < 100*time.Millisecond {
		return &ConfigError{Field: "PollInterval", Message: "must be at least 100ms"}
	}

	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "publish config error: " + e.Field + ": " + e.Message
}
