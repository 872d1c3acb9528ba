// Annalist - Store-and-Forward Telemetry Historian
// Copyright 2026 The Annalist Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/annalist-io/annalist

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/annalist-io/annalist/internal/bus"
	"github.com/annalist-io/annalist/internal/historian"
	"github.com/annalist-io/annalist/internal/logging"
	"github.com/annalist-io/annalist/internal/ops"
	"github.com/annalist-io/annalist/internal/publish"
	"github.com/annalist-io/annalist/internal/spool"
)

// DefaultConfigPaths lists the paths where config files are searched in
// order of priority. The first file found wins.
var DefaultConfigPaths = []string{
	"annalist.yaml",
	"annalist.yml",
	"/etc/annalist/annalist.yaml",
	"/etc/annalist/annalist.yml",
}

// ConfigPathEnvVar overrides the config file search path.
const ConfigPathEnvVar = "ANNALIST_CONFIG"

// defaultConfig assembles the built-in defaults from the per-package
// DefaultConfig values so the two never drift apart.
func defaultConfig() *Config {
	logDefaults := logging.DefaultConfig()
	spoolDefaults := spool.DefaultConfig()
	publishDefaults := publish.DefaultConfig()
	historianDefaults := historian.DefaultConfig()
	busDefaults := bus.DefaultConfig()
	opsDefaults := ops.DefaultConfig()

	return &Config{
		Logging: LoggingConfig{
			Level:  logDefaults.Level,
			Format: logDefaults.Format,
			Caller: logDefaults.Caller,
		},
		Spool: SpoolConfig{
			Path:             spoolDefaults.Path,
			SyncWrites:       spoolDefaults.SyncWrites,
			GCInterval:       spoolDefaults.GCInterval,
			GCRatio:          spoolDefaults.GCRatio,
			CloseTimeout:     spoolDefaults.CloseTimeout,
			MemTableSize:     spoolDefaults.MemTableSize,
			ValueLogFileSize: spoolDefaults.ValueLogFileSize,
			NumCompactors:    spoolDefaults.NumCompactors,
			NumMemtables:     spoolDefaults.NumMemtables,
			BlockCacheSize:   spoolDefaults.BlockCacheSize,
			IndexCacheSize:   spoolDefaults.IndexCacheSize,
			Compression:      spoolDefaults.Compression,
		},
		Publish: PublishConfig{
			SubmitSizeLimit:   publishDefaults.SubmitSizeLimit,
			RetryPeriod:       publishDefaults.RetryPeriod,
			MaxTimePublishing: publishDefaults.MaxTimePublishing,
			PollInterval:      publishDefaults.PollInterval,
		},
		Historian: HistorianConfig{
			Path:                    historianDefaults.Path,
			Threads:                 historianDefaults.Threads,
			MaxMemory:               historianDefaults.MaxMemory,
			PreserveInsertionOrder:  historianDefaults.PreserveInsertionOrder,
			BreakerMaxRequests:      historianDefaults.Breaker.MaxRequests,
			BreakerInterval:         historianDefaults.Breaker.Interval,
			BreakerTimeout:          historianDefaults.Breaker.Timeout,
			BreakerFailureThreshold: historianDefaults.Breaker.FailureThreshold,
		},
		Bus: BusConfig{
			Enabled:         busDefaults.Enabled,
			URL:             busDefaults.URL,
			Embedded:        busDefaults.EmbeddedServer,
			Subject:         busDefaults.Subject,
			Host:            busDefaults.Server.Host,
			Port:            busDefaults.Server.Port,
			StoreDir:        busDefaults.Server.StoreDir,
			MaxMemory:       busDefaults.Server.JetStreamMaxMem,
			MaxStore:        busDefaults.Server.JetStreamMaxStore,
			StreamName:      busDefaults.Stream.Name,
			StreamMaxAge:    busDefaults.Stream.MaxAge,
			StreamMaxBytes:  busDefaults.Stream.MaxBytes,
			DuplicateWindow: busDefaults.Stream.DuplicateWindow,
			DurableName:     busDefaults.Subscriber.DurableName,
			QueueGroup:      busDefaults.Subscriber.QueueGroup,
			Subscribers:     busDefaults.Subscriber.SubscribersCount,
			AckWait:         busDefaults.Subscriber.AckWaitTimeout,
			MaxDeliver:      busDefaults.Subscriber.MaxDeliver,
			MaxAckPending:   busDefaults.Subscriber.MaxAckPending,
		},
		Ops: OpsConfig{
			Host:           opsDefaults.Host,
			Port:           opsDefaults.Port,
			RequestTimeout: opsDefaults.RequestTimeout,
		},
	}
}

// Load builds the configuration from layered sources:
//  1. Defaults: built-in per-package defaults
//  2. Config file: optional YAML file (if one exists)
//  3. Environment variables: override any setting
//
// Precedence is ENV > file > defaults.
func Load() (*Config, error) {
	k := koanf.New(".")

	// Layer 1: defaults from struct
	defaults := defaultConfig()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: config file (optional)
	configPath := findConfigFile()
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: environment variables (highest priority)
	// Variable names map to koanf paths:
	// SPOOL_PATH -> spool.path
	// NATS_ENABLED -> bus.enabled
	envProvider := env.Provider("", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// findConfigFile searches for a config file. The ANNALIST_CONFIG
// environment variable is checked first, then the default paths.
// Returns the first file found, or empty string if none exists.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// envTransformFunc maps environment variable names to koanf config
// paths.
//
// Examples:
//   - SPOOL_PATH -> spool.path
//   - NATS_ENABLED -> bus.enabled
//   - DUCKDB_PATH -> historian.path
//   - HTTP_PORT -> ops.port
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		// Logging mappings
		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",

		// Spool mappings
		"spool_path":                "spool.path",
		"spool_sync_writes":         "spool.sync_writes",
		"spool_gc_interval":         "spool.gc_interval",
		"spool_gc_ratio":            "spool.gc_ratio",
		"spool_close_timeout":       "spool.close_timeout",
		"spool_memtable_size":       "spool.memtable_size",
		"spool_value_log_file_size": "spool.value_log_file_size",
		"spool_num_compactors":      "spool.num_compactors",
		"spool_num_memtables":       "spool.num_memtables",
		"spool_block_cache_size":    "spool.block_cache_size",
		"spool_index_cache_size":    "spool.index_cache_size",
		"spool_compression":         "spool.compression",

		// Publish mappings
		"publish_submit_size_limit":   "publish.submit_size_limit",
		"publish_retry_period":        "publish.retry_period",
		"publish_max_time_publishing": "publish.max_time_publishing",
		"publish_poll_interval":       "publish.poll_interval",

		// Historian mappings (DUCKDB_ names kept for operators used to
		// pointing tools at the database file directly)
		"duckdb_path":                         "historian.path",
		"historian_path":                      "historian.path",
		"duckdb_max_memory":                   "historian.max_memory",
		"historian_max_memory":                "historian.max_memory",
		"historian_threads":                   "historian.threads",
		"historian_preserve_order":            "historian.preserve_insertion_order",
		"historian_breaker_max_requests":      "historian.breaker_max_requests",
		"historian_breaker_interval":          "historian.breaker_interval",
		"historian_breaker_timeout":           "historian.breaker_timeout",
		"historian_breaker_failure_threshold": "historian.breaker_failure_threshold",

		// Bus mappings
		"nats_enabled":          "bus.enabled",
		"nats_url":              "bus.url",
		"nats_embedded":         "bus.embedded",
		"nats_subject":          "bus.subject",
		"nats_host":             "bus.host",
		"nats_port":             "bus.port",
		"nats_store_dir":        "bus.store_dir",
		"nats_max_memory":       "bus.max_memory",
		"nats_max_store":        "bus.max_store",
		"nats_stream_name":      "bus.stream_name",
		"nats_stream_max_age":   "bus.stream_max_age",
		"nats_stream_max_bytes": "bus.stream_max_bytes",
		"nats_duplicate_window": "bus.duplicate_window",
		"nats_durable_name":     "bus.durable_name",
		"nats_queue_group":      "bus.queue_group",
		"nats_subscribers":      "bus.subscribers",
		"nats_ack_wait":         "bus.ack_wait",
		"nats_max_deliver":      "bus.max_deliver",
		"nats_max_ack_pending":  "bus.max_ack_pending",

		// Ops mappings
		"http_host":    "ops.host",
		"http_port":    "ops.port",
		"http_timeout": "ops.timeout",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}

	// Unmapped keys are skipped so random environment variables cannot
	// pollute the config.
	return ""
}
