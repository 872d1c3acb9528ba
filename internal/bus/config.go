// Annalist - Store-and-Forward Telemetry Historian
// Copyright 2026 The Annalist Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/annalist-io/annalist

package bus

import (
	"time"
)

// subjectPrefix is the root of the telemetry subject hierarchy. The
// token after it names the observation kind, as in
// "telemetry.device.campus.b1".
const subjectPrefix = "telemetry."

// Config holds message bus configuration.
type Config struct {
	// Enabled controls whether the bus runs at all. When false the
	// front door is only reachable through in-process capture calls.
	Enabled bool

	// URL is the NATS server connection URL. Ignored when
	// EmbeddedServer is set; the embedded server's client URL wins.
	URL string

	// EmbeddedServer starts an in-process nats-server instead of
	// dialing URL.
	EmbeddedServer bool

	// Subject is the subscription subject for telemetry observations.
	Subject string

	Server     ServerConfig
	Stream     StreamConfig
	Subscriber SubscriberConfig
}

// ServerConfig holds embedded NATS server configuration.
type ServerConfig struct {
	Host              string
	Port              int
	StoreDir          string
	JetStreamMaxMem   int64
	JetStreamMaxStore int64
}

// StreamConfig defines the telemetry stream settings.
type StreamConfig struct {
	Name            string
	Subjects        []string
	MaxAge          time.Duration
	MaxBytes        int64
	MaxMsgs         int64
	DuplicateWindow time.Duration
	Replicas        int
}

// SubscriberConfig holds subscriber configuration.
type SubscriberConfig struct {
	URL         string
	DurableName string
	QueueGroup  string

	// SubscribersCount is the number of concurrent message processors.
	// The cache assigns record ids in insert order and the duplicate
	// filter reads "first received" from those ids, so the default is
	// a single processor. Raise it only when throughput matters more
	// than strict arrival ordering.
	SubscribersCount int

	AckWaitTimeout time.Duration
	MaxDeliver     int
	MaxAckPending  int
	CloseTimeout   time.Duration
	MaxReconnects  int
	ReconnectWait  time.Duration

	// StreamName is the JetStream stream to bind to. When set,
	// AutoProvision is disabled and the subscriber binds to the
	// existing stream with nats.BindStream(). This is required for
	// wildcard subjects such as "telemetry.>" because stream names
	// cannot contain wildcards. Open fills it from Stream.Name when
	// left empty.
	StreamName string
}

// DefaultConfig returns production defaults. The bus is off until
// explicitly enabled.
func DefaultConfig() Config {
	return Config{
		Enabled:        false,
		URL:            "nats://127.0.0.1:4222",
		EmbeddedServer: false,
		Subject:        "telemetry.>",
		Server: ServerConfig{
			Host:              "127.0.0.1",
			Port:              4222,
			StoreDir:          "/data/jetstream",
			JetStreamMaxMem:   1 << 30,  // 1GB
			JetStreamMaxStore: 10 << 30, // 10GB
		},
		Stream: StreamConfig{
			Name:            "TELEMETRY",
			Subjects:        []string{"telemetry.>"},
			MaxAge:          7 * 24 * time.Hour,
			MaxBytes:        10 * 1024 * 1024 * 1024, // 10GB
			MaxMsgs:         -1,                      // Unlimited
			DuplicateWindow: 2 * time.Minute,
			Replicas:        1,
		},
		Subscriber: SubscriberConfig{
			DurableName:      "annalist",
			QueueGroup:       "historians",
			SubscribersCount: 1,
			AckWaitTimeout:   30 * time.Second,
			MaxDeliver:       5, // Redelivery attempts before JetStream gives up
			MaxAckPending:    1000,
			CloseTimeout:     30 * time.Second,
			MaxReconnects:    -1,
			ReconnectWait:    2 * time.Second,
		},
	}
}

// ConfigError describes an invalid bus configuration value.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "bus config error: " + e.Field + ": " + e.Message
}

// Validate checks the configuration for internal consistency. A
// disabled bus always validates.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if !c.EmbeddedServer && c.URL == "" {
		return &ConfigError{Field: "url", Message: "required unless the embedded server is enabled"}
	}
	if c.EmbeddedServer && c.Server.StoreDir == "" {
		return &ConfigError{Field: "server.store_dir", Message: "required for the embedded server"}
	}
	if c.Subject == "" {
		return &ConfigError{Field: "subject", Message: "required"}
	}
	if c.Stream.Name == "" {
		return &ConfigError{Field: "stream.name", Message: "required"}
	}
	if len(c.Stream.Subjects) == 0 {
		return &ConfigError{Field: "stream.subjects", Message: "at least one subject required"}
	}
	if c.Subscriber.SubscribersCount < 1 {
		return &ConfigError{Field: "subscriber.subscribers", Message: "must be at least 1"}
	}
	if c.Subscriber.AckWaitTimeout <= 0 {
		return &ConfigError{Field: "subscriber.ack_wait", Message: "must be positive"}
	}
	if c.Subscriber.MaxDeliver < 1 {
		return &ConfigError{Field: "subscriber.max_deliver", Message: "must be at least 1"}
	}
	return nil
}
