// Annalist - Store-and-Forward Telemetry Historian
// Copyright 2026 The Annalist Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/annalist-io/annalist

package services

import (
	"context"
	"fmt"
)

// StartStopper matches the lifecycle shared by the pipeline's
// background loops.
//
// Satisfied by *publish.Scheduler and *spool.Compactor. Start spawns
// the component's goroutine and returns; Stop blocks until the
// goroutine has drained.
type StartStopper interface {
	Start(ctx context.Context) error
	Stop()
	IsRunning() bool
}

// SchedulerService wraps the publish scheduler as a supervised service.
//
// The scheduler drains the spool toward the historian sink on its
// retry cadence. A crash loses no records: the spool keeps everything
// until an acknowledged publish removes it, so the restarted scheduler
// simply picks up the backlog.
type SchedulerService struct {
	scheduler StartStopper
	name      string
}

// NewSchedulerService creates a supervised wrapper for the publish
// scheduler.
func NewSchedulerService(scheduler StartStopper) *SchedulerService {
	return &SchedulerService{
		scheduler: scheduler,
		name:      "publish-scheduler",
	}
}

// Serve implements suture.Service. Start failures are returned so the
// supervisor restarts the scheduler on its backoff policy; otherwise
// Serve blocks until cancellation and then stops the loop.
func (s *SchedulerService) Serve(ctx context.Context) error {
	if err := s.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("publish scheduler start failed: %w", err)
	}

	<-ctx.Done()

	// Stop blocks until the publish goroutine exits.
	s.scheduler.Stop()

	return ctx.Err()
}

// String implements fmt.Stringer for supervision logs.
func (s *SchedulerService) String() string {
	return s.name
}

// CompactorService wraps the spool compactor as a supervised service.
//
// The compactor runs periodic BadgerDB value-log garbage collection.
// It only reclaims space already freed by acknowledged removals, so a
// restart at any point is harmless.
type CompactorService struct {
	compactor StartStopper
	name      string
}

// NewCompactorService creates a supervised wrapper for the spool
// compactor.
func NewCompactorService(compactor StartStopper) *CompactorService {
	return &CompactorService{
		compactor: compactor,
		name:      "spool-compactor",
	}
}

// Serve implements suture.Service.
func (s *CompactorService) Serve(ctx context.Context) error {
	if err := s.compactor.Start(ctx); err != nil {
		return fmt.Errorf("spool compactor start failed: %w", err)
	}

	<-ctx.Done()

	// Stop blocks until the maintenance goroutine exits.
	s.compactor.Stop()

	return ctx.Err()
}

// String implements fmt.Stringer for supervision logs.
func (s *CompactorService) String() string {
	return s.name
}
