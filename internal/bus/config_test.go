// Annalist - Store-and-Forward Telemetry Historian
// Copyright 2026 The Annalist Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/annalist-io/annalist

package bus

import (
	"errors"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()

	if cfg.Enabled {
		t.Error("bus should be disabled by default")
	}
	if cfg.URL != "nats://127.0.0.1:4222" {
		t.Errorf("URL = %q", cfg.URL)
	}
	if cfg.Subject != "telemetry.>" {
		t.Errorf("Subject = %q", cfg.Subject)
	}
	if cfg.Stream.Name != "TELEMETRY" {
		t.Errorf("Stream.Name = %q", cfg.Stream.Name)
	}
	if len(cfg.Stream.Subjects) != 1 || cfg.Stream.Subjects[0] != "telemetry.>" {
		t.Errorf("Stream.Subjects = %v", cfg.Stream.Subjects)
	}
	if cfg.Stream.MaxMsgs != -1 {
		t.Errorf("Stream.MaxMsgs = %d, want -1", cfg.Stream.MaxMsgs)
	}
	if cfg.Stream.DuplicateWindow != 2*time.Minute {
		t.Errorf("Stream.DuplicateWindow = %v", cfg.Stream.DuplicateWindow)
	}
	if cfg.Subscriber.DurableName != "annalist" {
		t.Errorf("Subscriber.DurableName = %q", cfg.Subscriber.DurableName)
	}
	if cfg.Subscriber.QueueGroup != "historians" {
		t.Errorf("Subscriber.QueueGroup = %q", cfg.Subscriber.QueueGroup)
	}
	if cfg.Subscriber.SubscribersCount != 1 {
		t.Errorf("Subscriber.SubscribersCount = %d, want 1", cfg.Subscriber.SubscribersCount)
	}
	if cfg.Subscriber.MaxDeliver != 5 {
		t.Errorf("Subscriber.MaxDeliver = %d, want 5", cfg.Subscriber.MaxDeliver)
	}
	if cfg.Subscriber.AckWaitTimeout != 30*time.Second {
		t.Errorf("Subscriber.AckWaitTimeout = %v", cfg.Subscriber.AckWaitTimeout)
	}
	if cfg.Subscriber.MaxReconnects != -1 {
		t.Errorf("Subscriber.MaxReconnects = %d, want -1", cfg.Subscriber.MaxReconnects)
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		mutate    func(*Config)
		wantField string
	}{
		{
			name:   "disabled bus always validates",
			mutate: func(c *Config) { c.URL = ""; c.Stream.Name = "" },
		},
		{
			name:   "enabled defaults are valid",
			mutate: func(c *Config) { c.Enabled = true },
		},
		{
			name:      "url required without embedded server",
			mutate:    func(c *Config) { c.Enabled = true; c.URL = "" },
			wantField: "url",
		},
		{
			name: "embedded server needs a store dir",
			mutate: func(c *Config) {
				c.Enabled = true
				c.EmbeddedServer = true
				c.Server.StoreDir = ""
			},
			wantField: "server.store_dir",
		},
		{
			name: "embedded server tolerates empty url",
			mutate: func(c *Config) {
				c.Enabled = true
				c.EmbeddedServer = true
				c.URL = ""
			},
		},
		{
			name:      "subject required",
			mutate:    func(c *Config) { c.Enabled = true; c.Subject = "" },
			wantField: "subject",
		},
		{
			name:      "stream name required",
			mutate:    func(c *Config) { c.Enabled = true; c.Stream.Name = "" },
			wantField: "stream.name",
		},
		{
			name:      "stream subjects required",
			mutate:    func(c *Config) { c.Enabled = true; c.Stream.Subjects = nil },
			wantField: "stream.subjects",
		},
		{
			name:      "subscribers must be positive",
			mutate:    func(c *Config) { c.Enabled = true; c.Subscriber.SubscribersCount = 0 },
			wantField: "subscriber.subscribers",
		},
		{
			name:      "ack wait must be positive",
			mutate:    func(c *Config) { c.Enabled = true; c.Subscriber.AckWaitTimeout = 0 },
			wantField: "subscriber.ack_wait",
		},
		{
			name:      "max deliver must be positive",
			mutate:    func(c *Config) { c.Enabled = true; c.Subscriber.MaxDeliver = 0 },
			wantField: "subscriber.max_deliver",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := DefaultConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}

			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("Validate() = %v, want ConfigError", err)
			}
			if cfgErr.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", cfgErr.Field, tt.wantField)
			}
		})
	}
}
