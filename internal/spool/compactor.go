// Annalist - Store-and-Forward Telemetry Historian
// Copyright 2026 The Annalist Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/annalist-io/annalist

package spool

import (
	"context"
	"sync"
	"time"

	"github.com/annalist-io/annalist/internal/logging"
)

// Compactor runs periodic BadgerDB maintenance for the spool: value log
// garbage collection to reclaim space freed by removed records. It never
// deletes records itself; only acknowledged removal does that.
type Compactor struct {
	spool *Spool

	// Control
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// State
	mu      sync.Mutex
	running bool

	// Stats
	lastRun time.Time
}

// NewCompactor creates a maintenance worker for the given spool.
func NewCompactor(spool *Spool) *Compactor {
	return &Compactor{
		spool: spool,
	}
}

// Start begins the background maintenance loop.
func (c *Compactor) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return nil
	}

	c.ctx, c.cancel = context.WithCancel(ctx)
	c.running = true
	c.mu.Unlock()

	c.wg.Add(1)
	go c.run()

	logging.Info().Dur("interval", c.spool.config.GCInterval).Msg("Spool compactor started")
	return nil
}

// Stop gracefully stops the maintenance loop.
func (c *Compactor) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.cancel()
	c.running = false
	c.mu.Unlock()

	c.wg.Wait()
	logging.Info().Msg("Spool compactor stopped")
}

// IsRunning returns whether the compactor is active.
func (c *Compactor) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// run is the main maintenance loop goroutine.
func (c *Compactor) run() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.spool.config.GCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.compact()
		}
	}
}

// compact runs garbage collection and refreshes the spool gauges.
func (c *Compactor) compact() {
	start := time.Now()

	if err := c.spool.RunGC(); err != nil {
		logging.Error().Err(err).Msg("Spool GC failed")
	}

	stats := c.spool.Stats()

	c.mu.Lock()
	c.lastRun = time.Now()
	c.mu.Unlock()

	duration := time.Since(start)
	RecordSpoolCompaction()
	RecordSpoolCompactionLatency(duration.Seconds())

	logging.Debug().
		Int64("depth", stats.Depth).
		Int64("db_size_bytes", stats.DBSizeBytes).
		Dur("duration", duration).
		Msg("Spool maintenance completed")
}

// RunNow triggers an immediate maintenance run.
func (c *Compactor) RunNow() error {
	c.compact()
	return nil
}

// LastRun returns the time of the most recent maintenance run.
func (c *Compactor) LastRun() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastRun
}
