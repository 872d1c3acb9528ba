// Annalist - Store-and-Forward Telemetry Historian
// Copyright 2026 The Annalist Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/annalist-io/annalist

package ops

import "time"

// Config controls the operational HTTP listener.
type Config struct {
	// Host is the listen address.
	Host string

	// Port is the listen port.
	Port int

	// RequestTimeout bounds the handling of a single request.
	RequestTimeout time.Duration
}

// DefaultConfig returns the listener defaults. The server binds to
// loopback; expose it deliberately, not by default.
func DefaultConfig() Config {
	return Config{
		Host:           "127.0.0.1",
		Port:           8337,
		RequestTimeout: 30 * time.Second,
	}
}

// ConfigError describes an invalid listener setting.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "ops config error: " + e.Field + ": " + e.Message
}

// Validate checks the listener configuration.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return &ConfigError{Field: "Port", Message: "must be between 1 and 65535"}
	}
	if c.RequestTimeout <= 0 {
		return &ConfigError{Field: "RequestTimeout", Message: "must be positive"}
	}
	return nil
}
