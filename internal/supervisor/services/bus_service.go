// Annalist - Store-and-Forward Telemetry Historian
// Copyright 2026 The Annalist Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/annalist-io/annalist

package services

import (
	"context"
	"errors"
	"fmt"
)

// BusRunner matches the consume loop of the message bus.
//
// Satisfied by *bus.Bus. Run blocks processing messages until the
// context is canceled.
type BusRunner interface {
	Run(ctx context.Context) error
}

// BusService wraps the bus consume loop as a supervised service.
//
// The bus itself is opened once in main and closed on the way out;
// only the loop is supervised. When the loop crashes the supervisor
// restarts it against the live subscriber, and the durable JetStream
// consumer resumes from the last acknowledged message.
type BusService struct {
	bus  BusRunner
	name string
}

// NewBusService creates a supervised wrapper for the bus consumer.
func NewBusService(bus BusRunner) *BusService {
	return &BusService{
		bus:  bus,
		name: "bus-consumer",
	}
}

// Serve implements suture.Service.
//
// Run already blocks until cancellation, so no translation is needed.
// Context errors pass through as the normal shutdown signal; anything
// else is wrapped and returned for the supervisor to restart on.
func (s *BusService) Serve(ctx context.Context) error {
	if err := s.bus.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return fmt.Errorf("bus consumer failed: %w", err)
	}
	return nil
}

// String implements fmt.Stringer for supervision logs.
func (s *BusService) String() string {
	return s.name
}
