// Annalist - Store-and-Forward Telemetry Historian
// Copyright 2026 The Annalist Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/annalist-io/annalist

package spool

import (
	"time"
)

// Config holds spool storage configuration.
//
// Defaults prioritize durability over throughput: every insert is fsynced
// before it is acknowledged to the caller. Turn SyncWrites off only when
// losing the most recent records on power failure is acceptable.
type Config struct {
	// Path is the directory where BadgerDB stores its files.
	// Should be on a durable filesystem (not tmpfs).
	Path string

	// SyncWrites forces fsync after every insert.
	SyncWrites bool

	// GCInterval is the time between Compactor maintenance runs.
	// Maintenance reclaims value log space; it never touches live records.
	GCInterval time.Duration

	// GCRatio is the ratio for value log garbage collection.
	// Lower values reclaim more space but use more CPU.
	GCRatio float64

	// CloseTimeout is the maximum time to wait for graceful shutdown.
	// If the database doesn't close within this time, Close returns an error.
	CloseTimeout time.Duration

	// BadgerDB tuning options

	// MemTableSize is the size of each memtable in bytes.
	MemTableSize int64

	// ValueLogFileSize is the size of each value log file in bytes.
	ValueLogFileSize int64

	// NumCompactors is the number of BadgerDB compaction workers.
	NumCompactors int

	// NumMemtables is the number of memtables to keep in memory.
	NumMemtables int

	// BlockCacheSize is the size of the block cache in bytes.
	BlockCacheSize int64

	// IndexCacheSize is the size of the index cache in bytes.
	// Zero disables it; the block cache is used instead.
	IndexCacheSize int64

	// Compression enables Snappy compression for stored records.
	Compression bool
}

// DefaultConfig returns a Config with durability-first defaults.
func DefaultConfig() Config {
	return Config{
		Path:             "/data/spool",
		SyncWrites:       true,
		GCInterval:       1 * time.Hour,
		GCRatio:          0.5,
		CloseTimeout:     30 * time.Second,
		MemTableSize:     16 * 1024 * 1024,
		ValueLogFileSize: 64 * 1024 * 1024,
		NumCompactors:    2,
		NumMemtables:     5,
		BlockCacheSize:   64 * 1024 * 1024,
		IndexCacheSize:   0,
		Compression:      true,
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Path == "" {
		return &ConfigError{Field: "Path", Message: "spool path is required"}
	}

	if c.GCInterval < time.Minute {
		return &ConfigError{Field: "GCInterval", Message: "must be at least 1 minute"}
	}

	if c.GCRatio <= 0 || c.GCRatio > 1 {
		return &ConfigError{Field: "GCRatio", Message: "must be in (0, 1]"}
	}

	if c.CloseTimeout < time.Second {
		return &ConfigError{Field: "CloseTimeout", Message: "must be at least 1 second"}
	}

	if c.MemTableSize < 1024*1024 {
		return &ConfigError{Field: "MemTableSize", Message: "must be at least 1MB"}
	}

	if c.ValueLogFileSize < 1024*1024 {
		return &ConfigError{Field: "ValueLogFileSize", Message: "must be at least 1MB"}
	}

	if c.NumCompactors < 2 {
		return &ConfigError{Field: "NumCompactors", Message: "must be at least 2 (BadgerDB requirement)"}
	}

	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "spool config error: " + e.Field + ": " + e.Message
}
