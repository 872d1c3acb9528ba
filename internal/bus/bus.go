// Annalist - Store-and-Forward Telemetry Historian
// Copyright 2026 The Annalist Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/annalist-io/annalist

package bus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	natsgo "github.com/nats-io/nats.go"

	"github.com/annalist-io/annalist/internal/logging"
)

// Bus ties the embedded server, NATS connection, stream and subscriber
// together behind a single lifecycle.
type Bus struct {
	config   Config
	instance string
	server   *EmbeddedServer
	conn     *natsgo.Conn
	streams  *StreamManager
	sub      *Subscriber
	consumer *Consumer
}

// Open brings up the bus: the embedded server when configured, then
// the NATS connection, the telemetry stream and the durable
// subscriber. The consumer is not running yet; call Run.
func Open(cfg *Config, front CaptureSurface) (*Bus, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Instances sharing a queue group are told apart in logs by this id.
	b := &Bus{config: *cfg, instance: uuid.NewString()[:8]}

	url := cfg.URL
	if cfg.EmbeddedServer {
		srv, err := NewEmbeddedServer(&cfg.Server)
		if err != nil {
			return nil, fmt.Errorf("start embedded NATS server: %w", err)
		}
		b.server = srv
		url = srv.ClientURL()
		logging.Info().
			Str("client_url", url).
			Bool("jetstream", srv.JetStreamEnabled()).
			Msg("Embedded NATS server ready")
	}

	nc, err := natsgo.Connect(url,
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(cfg.Subscriber.MaxReconnects),
		natsgo.ReconnectWait(cfg.Subscriber.ReconnectWait),
	)
	if err != nil {
		_ = b.Close()
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	b.conn = nc

	streams, err := NewStreamManager(nc, &cfg.Stream)
	if err != nil {
		_ = b.Close()
		return nil, err
	}
	b.streams = streams

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := streams.EnsureStream(ctx); err != nil {
		_ = b.Close()
		return nil, fmt.Errorf("provision telemetry stream: %w", err)
	}

	subCfg := cfg.Subscriber
	subCfg.URL = url
	if subCfg.StreamName == "" {
		subCfg.StreamName = cfg.Stream.Name
	}
	sub, err := NewSubscriber(&subCfg, logging.NewWatermillAdapter())
	if err != nil {
		_ = b.Close()
		return nil, err
	}
	b.sub = sub

	consumer, err := NewConsumer(front, cfg.Subject)
	if err != nil {
		_ = b.Close()
		return nil, err
	}
	b.consumer = consumer

	logging.Info().
		Str("url", url).
		Str("stream", cfg.Stream.Name).
		Str("subject", cfg.Subject).
		Str("instance", b.instance).
		Bool("embedded", cfg.EmbeddedServer).
		Msg("Message bus ready")

	return b, nil
}

// Run processes messages until ctx is canceled.
func (b *Bus) Run(ctx context.Context) error {
	return b.consumer.Run(ctx, b.sub)
}

// Stats returns the consumer counters.
func (b *Bus) Stats() ConsumerStats {
	return b.consumer.Stats()
}

// Connected reports whether the NATS connection is currently up.
func (b *Bus) Connected() bool {
	return b.conn != nil && b.conn.IsConnected()
}

// StreamInfo returns the telemetry stream state.
func (b *Bus) StreamInfo(ctx context.Context) (uint64, error) {
	info, err := b.streams.GetStreamInfo(ctx)
	if err != nil {
		return 0, err
	}
	return info.State.Msgs, nil
}

// Close shuts the bus down: subscriber first so in-flight messages are
// nacked and redelivered later, then the connection, then the embedded
// server.
func (b *Bus) Close() error {
	var errs []error

	if b.sub != nil {
		if err := b.sub.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close subscriber: %w", err))
		}
		b.sub = nil
	}
	if b.conn != nil {
		b.conn.Close()
		b.conn = nil
	}
	if b.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := b.server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown embedded server: %w", err))
		}
		cancel()
		b.server = nil
	}

	return errors.Join(errs...)
}
