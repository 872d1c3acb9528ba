// Annalist - Store-and-Forward Telemetry Historian
// Copyright 2026 The Annalist Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/annalist-io/annalist

package config

import (
	"fmt"
	"time"

	"github.com/annalist-io/annalist/internal/bus"
	"github.com/annalist-io/annalist/internal/historian"
	"github.com/annalist-io/annalist/internal/logging"
	"github.com/annalist-io/annalist/internal/ops"
	"github.com/annalist-io/annalist/internal/publish"
	"github.com/annalist-io/annalist/internal/spool"
	"github.com/annalist-io/annalist/internal/validation"
)

// Config is the root configuration for annalistd.
type Config struct {
	Logging   LoggingConfig   `koanf:"logging"`
	Spool     SpoolConfig     `koanf:"spool"`
	Publish   PublishConfig   `koanf:"publish"`
	Historian HistorianConfig `koanf:"historian"`
	Bus       BusConfig       `koanf:"bus"`
	Ops       OpsConfig       `koanf:"ops"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	// Level is the minimum log level.
	// Env: LOG_LEVEL (default: info)
	Level string `koanf:"level" validate:"oneof=trace debug info warn error"`

	// Format is json or console.
	// Env: LOG_FORMAT (default: json)
	Format string `koanf:"format" validate:"oneof=json console"`

	// Caller includes file:line in log output.
	// Env: LOG_CALLER (default: false)
	Caller bool `koanf:"caller"`
}

// SpoolConfig controls the durable record cache.
type SpoolConfig struct {
	// Path is the BadgerDB directory.
	// Env: SPOOL_PATH (default: /data/spool)
	Path string `koanf:"path" validate:"required"`

	// SyncWrites fsyncs every insert before acknowledging it.
	// Env: SPOOL_SYNC_WRITES (default: true)
	SyncWrites bool `koanf:"sync_writes"`

	// GCInterval is the time between value log maintenance runs.
	// Env: SPOOL_GC_INTERVAL (default: 1h)
	GCInterval time.Duration `koanf:"gc_interval"`

	// GCRatio is the value log garbage collection ratio.
	// Env: SPOOL_GC_RATIO (default: 0.5)
	GCRatio float64 `koanf:"gc_ratio" validate:"gt=0,lte=1"`

	// CloseTimeout bounds graceful shutdown.
	// Env: SPOOL_CLOSE_TIMEOUT (default: 30s)
	CloseTimeout time.Duration `koanf:"close_timeout"`

	// MemTableSize is the size of each memtable in bytes.
	// Env: SPOOL_MEMTABLE_SIZE (default: 16MB)
	MemTableSize int64 `koanf:"memtable_size"`

	// ValueLogFileSize is the size of each value log file in bytes.
	// Env: SPOOL_VALUE_LOG_FILE_SIZE (default: 64MB)
	ValueLogFileSize int64 `koanf:"value_log_file_size"`

	// NumCompactors is the number of BadgerDB compaction workers.
	// Env: SPOOL_NUM_COMPACTORS (default: 2)
	NumCompactors int `koanf:"num_compactors" validate:"min=2"`

	// NumMemtables is the number of memtables kept in memory.
	// Env: SPOOL_NUM_MEMTABLES (default: 5)
	NumMemtables int `koanf:"num_memtables" validate:"min=1"`

	// BlockCacheSize is the block cache size in bytes.
	// Env: SPOOL_BLOCK_CACHE_SIZE (default: 64MB)
	BlockCacheSize int64 `koanf:"block_cache_size"`

	// IndexCacheSize is the index cache size in bytes; zero disables it.
	// Env: SPOOL_INDEX_CACHE_SIZE (default: 0)
	IndexCacheSize int64 `koanf:"index_cache_size"`

	// Compression enables Snappy compression for stored records.
	// Env: SPOOL_COMPRESSION (default: true)
	Compression bool `koanf:"compression"`
}

// PublishConfig controls the publish scheduler.
type PublishConfig struct {
	// SubmitSizeLimit caps records per publish attempt.
	// Env: PUBLISH_SUBMIT_SIZE_LIMIT (default: 1000)
	SubmitSizeLimit int `koanf:"submit_size_limit" validate:"min=1"`

	// RetryPeriod is the pause after a failed attempt.
	// Env: PUBLISH_RETRY_PERIOD (default: 300s)
	RetryPeriod time.Duration `koanf:"retry_period"`

	// MaxTimePublishing bounds a single publish attempt.
	// Env: PUBLISH_MAX_TIME_PUBLISHING (default: 30s)
	MaxTimePublishing time.Duration `koanf:"max_time_publishing"`

	// PollInterval is the cadence of unsolicited drain checks.
	// Env: PUBLISH_POLL_INTERVAL (default: 5s)
	PollInterval time.Duration `koanf:"poll_interval"`
}

// HistorianConfig controls the DuckDB store.
type HistorianConfig struct {
	// Path is the DuckDB database file.
	// Env: DUCKDB_PATH (default: /data/historian.duckdb)
	Path string `koanf:"path" validate:"required"`

	// Threads is the DuckDB thread count; 0 means runtime.NumCPU().
	// Env: HISTORIAN_THREADS (default: 0)
	Threads int `koanf:"threads" validate:"min=0"`

	// MaxMemory is the DuckDB memory limit, e.g. "512MB".
	// Env: DUCKDB_MAX_MEMORY (default: 512MB)
	MaxMemory string `koanf:"max_memory" validate:"required"`

	// PreserveInsertionOrder keeps DuckDB's insertion-order guarantee.
	// Env: HISTORIAN_PRESERVE_ORDER (default: true)
	PreserveInsertionOrder bool `koanf:"preserve_insertion_order"`

	// BreakerMaxRequests is the half-open request allowance.
	// Env: HISTORIAN_BREAKER_MAX_REQUESTS (default: 3)
	BreakerMaxRequests uint32 `koanf:"breaker_max_requests" validate:"min=1"`

	// BreakerInterval is the closed-state count reset interval.
	// Env: HISTORIAN_BREAKER_INTERVAL (default: 30s)
	BreakerInterval time.Duration `koanf:"breaker_interval"`

	// BreakerTimeout is how long the breaker stays open.
	// Env: HISTORIAN_BREAKER_TIMEOUT (default: 10s)
	BreakerTimeout time.Duration `koanf:"breaker_timeout"`

	// BreakerFailureThreshold is consecutive failures before opening.
	// Env: HISTORIAN_BREAKER_FAILURE_THRESHOLD (default: 5)
	BreakerFailureThreshold uint32 `koanf:"breaker_failure_threshold" validate:"min=1"`
}

// BusConfig controls the optional NATS JetStream ingress.
// Validation is gated on Enabled; a disabled bus never fails Validate.
type BusConfig struct {
	// Enabled turns the bus on.
	// Env: NATS_ENABLED (default: false)
	Enabled bool `koanf:"enabled"`

	// URL is the NATS server connection URL.
	// Env: NATS_URL (default: nats://127.0.0.1:4222)
	URL string `koanf:"url"`

	// Embedded starts an in-process nats-server instead of dialing URL.
	// Env: NATS_EMBEDDED (default: false)
	Embedded bool `koanf:"embedded"`

	// Subject is the subscription subject for telemetry observations.
	// Env: NATS_SUBJECT (default: telemetry.>)
	Subject string `koanf:"subject"`

	// Host is the embedded server listen host.
	// Env: NATS_HOST (default: 127.0.0.1)
	Host string `koanf:"host"`

	// Port is the embedded server listen port.
	// Env: NATS_PORT (default: 4222)
	Port int `koanf:"port"`

	// StoreDir is the embedded server JetStream directory.
	// Env: NATS_STORE_DIR (default: /data/jetstream)
	StoreDir string `koanf:"store_dir"`

	// MaxMemory is the JetStream memory limit in bytes.
	// Env: NATS_MAX_MEMORY (default: 1GB)
	MaxMemory int64 `koanf:"max_memory"`

	// MaxStore is the JetStream disk limit in bytes.
	// Env: NATS_MAX_STORE (default: 10GB)
	MaxStore int64 `koanf:"max_store"`

	// StreamName is the telemetry stream name.
	// Env: NATS_STREAM_NAME (default: TELEMETRY)
	StreamName string `koanf:"stream_name"`

	// StreamMaxAge is how long the stream retains messages.
	// Env: NATS_STREAM_MAX_AGE (default: 168h)
	StreamMaxAge time.Duration `koanf:"stream_max_age"`

	// StreamMaxBytes is the stream size limit in bytes.
	// Env: NATS_STREAM_MAX_BYTES (default: 10GB)
	StreamMaxBytes int64 `koanf:"stream_max_bytes"`

	// DuplicateWindow is the JetStream publish dedup window.
	// Env: NATS_DUPLICATE_WINDOW (default: 2m)
	DuplicateWindow time.Duration `koanf:"duplicate_window"`

	// DurableName is the consumer durable name.
	// Env: NATS_DURABLE_NAME (default: annalist)
	DurableName string `koanf:"durable_name"`

	// QueueGroup is the queue group for load balancing.
	// Env: NATS_QUEUE_GROUP (default: historians)
	QueueGroup string `koanf:"queue_group"`

	// Subscribers is the number of concurrent message processors.
	// Env: NATS_SUBSCRIBERS (default: 1)
	Subscribers int `koanf:"subscribers"`

	// AckWait is how long JetStream waits for an ack before redelivery.
	// Env: NATS_ACK_WAIT (default: 30s)
	AckWait time.Duration `koanf:"ack_wait"`

	// MaxDeliver is the redelivery attempt cap.
	// Env: NATS_MAX_DELIVER (default: 5)
	MaxDeliver int `koanf:"max_deliver"`

	// MaxAckPending is the unacked in-flight message cap.
	// Env: NATS_MAX_ACK_PENDING (default: 1000)
	MaxAckPending int `koanf:"max_ack_pending"`
}

// OpsConfig controls the operational HTTP listener.
type OpsConfig struct {
	// Host is the listen address.
	// Env: HTTP_HOST (default: 127.0.0.1)
	Host string `koanf:"host"`

	// Port is the listen port.
	// Env: HTTP_PORT (default: 8337)
	Port int `koanf:"port" validate:"min=1,max=65535"`

	// RequestTimeout bounds request handling.
	// Env: HTTP_TIMEOUT (default: 30s)
	RequestTimeout time.Duration `koanf:"timeout"`
}

// LoggingOptions converts the logging section into the logging package
// config.
func (c *Config) LoggingOptions() logging.Config {
	opts := logging.DefaultConfig()
	opts.Level = c.Logging.Level
	opts.Format = c.Logging.Format
	opts.Caller = c.Logging.Caller
	return opts
}

// SpoolOptions converts the spool section into the spool package config.
func (c *Config) SpoolOptions() spool.Config {
	opts := spool.DefaultConfig()
	opts.Path = c.Spool.Path
	opts.SyncWrites = c.Spool.SyncWrites
	opts.GCInterval = c.Spool.GCInterval
	opts.GCRatio = c.Spool.GCRatio
	opts.CloseTimeout = c.Spool.CloseTimeout
	opts.MemTableSize = c.Spool.MemTableSize
	opts.ValueLogFileSize = c.Spool.ValueLogFileSize
	opts.NumCompactors = c.Spool.NumCompactors
	opts.NumMemtables = c.Spool.NumMemtables
	opts.BlockCacheSize = c.Spool.BlockCacheSize
	opts.IndexCacheSize = c.Spool.IndexCacheSize
	opts.Compression = c.Spool.Compression
	return opts
}

// PublishOptions converts the publish section into the scheduler config.
func (c *Config) PublishOptions() publish.Config {
	opts := publish.DefaultConfig()
	opts.SubmitSizeLimit = c.Publish.SubmitSizeLimit
	opts.RetryPeriod = c.Publish.RetryPeriod
	opts.MaxTimePublishing = c.Publish.MaxTimePublishing
	opts.PollInterval = c.Publish.PollInterval
	return opts
}

// HistorianOptions converts the historian section into the historian
// package config.
func (c *Config) HistorianOptions() historian.Config {
	opts := historian.DefaultConfig()
	opts.Path = c.Historian.Path
	opts.Threads = c.Historian.Threads
	opts.MaxMemory = c.Historian.MaxMemory
	opts.PreserveInsertionOrder = c.Historian.PreserveInsertionOrder
	opts.Breaker.MaxRequests = c.Historian.BreakerMaxRequests
	opts.Breaker.Interval = c.Historian.BreakerInterval
	opts.Breaker.Timeout = c.Historian.BreakerTimeout
	opts.Breaker.FailureThreshold = c.Historian.BreakerFailureThreshold
	return opts
}

// BusOptions converts the flat bus section into the bus package config.
// The stream covers exactly the subscription subject; knobs the section
// does not expose keep their package defaults.
func (c *Config) BusOptions() bus.Config {
	opts := bus.DefaultConfig()
	opts.Enabled = c.Bus.Enabled
	opts.URL = c.Bus.URL
	opts.EmbeddedServer = c.Bus.Embedded
	opts.Subject = c.Bus.Subject
	opts.Server.Host = c.Bus.Host
	opts.Server.Port = c.Bus.Port
	opts.Server.StoreDir = c.Bus.StoreDir
	opts.Server.JetStreamMaxMem = c.Bus.MaxMemory
	opts.Server.JetStreamMaxStore = c.Bus.MaxStore
	opts.Stream.Name = c.Bus.StreamName
	opts.Stream.Subjects = []string{c.Bus.Subject}
	opts.Stream.MaxAge = c.Bus.StreamMaxAge
	opts.Stream.MaxBytes = c.Bus.StreamMaxBytes
	opts.Stream.DuplicateWindow = c.Bus.DuplicateWindow
	opts.Subscriber.DurableName = c.Bus.DurableName
	opts.Subscriber.QueueGroup = c.Bus.QueueGroup
	opts.Subscriber.SubscribersCount = c.Bus.Subscribers
	opts.Subscriber.AckWaitTimeout = c.Bus.AckWait
	opts.Subscriber.MaxDeliver = c.Bus.MaxDeliver
	opts.Subscriber.MaxAckPending = c.Bus.MaxAckPending
	return opts
}

// OpsOptions converts the ops section into the ops package config.
func (c *Config) OpsOptions() ops.Config {
	opts := ops.DefaultConfig()
	opts.Host = c.Ops.Host
	opts.Port = c.Ops.Port
	opts.RequestTimeout = c.Ops.RequestTimeout
	return opts
}

// ConfigError describes an invalid configuration value that the struct
// tags cannot express.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error: " + e.Field + ": " + e.Message
}

// Validate checks the whole configuration: struct tags first, then the
// conditional bus rules.
func (c *Config) Validate() error {
	if verr := validation.ValidateStruct(c); verr != nil {
		return fmt.Errorf("configuration validation failed: %w", verr)
	}
	return c.validateBus()
}

// validateBus applies the bus rules that only matter when the bus is
// enabled.
func (c *Config) validateBus() error {
	if !c.Bus.Enabled {
		return nil
	}
	if !c.Bus.Embedded && c.Bus.URL == "" {
		return &ConfigError{Field: "bus.url", Message: "required unless the embedded server is enabled"}
	}
	if c.Bus.Embedded && c.Bus.StoreDir == "" {
		return &ConfigError{Field: "bus.store_dir", Message: "required for the embedded server"}
	}
	if c.Bus.Subject == "" {
		return &ConfigError{Field: "bus.subject", Message: "required"}
	}
	if c.Bus.StreamName == "" {
		return &ConfigError{Field: "bus.stream_name", Message: "required"}
	}
	if c.Bus.Subscribers < 1 {
		return &ConfigError{Field: "bus.subscribers", Message: "must be at least 1"}
	}
	if c.Bus.MaxDeliver < 1 {
		return &ConfigError{Field: "bus.max_deliver", Message: "must be at least 1"}
	}
	return nil
}
