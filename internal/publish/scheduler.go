// Annalist - Store-and-Forward Telemetry Historian
// Copyright 2026 The Annalist Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/annalist-io/annalist

package publish

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/annalist-io/annalist/internal/logging"
	"github.com/annalist-io/annalist/internal/record"
	"github.com/annalist-io/annalist/internal/spool"
)

// State identifies what the scheduler is currently doing.
type State int32

// Scheduler states.
const (
	// StateIdle means the scheduler is waiting for work.
	StateIdle State = iota

	// StateDraining means a batch is being read from the spool.
	StateDraining

	// StatePublishing means a publish attempt is in flight.
	StatePublishing

	// StateBackoff means the last attempt failed and the scheduler is
	// waiting RetryPeriod before retrying the same records.
	StateBackoff
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDraining:
		return "draining"
	case StatePublishing:
		return "publishing"
	case StateBackoff:
		return "backoff"
	default:
		return "unknown"
	}
}

// Scheduler is the single background worker that moves records from the
// spool to the historian backend. Exactly one publish attempt is in flight
// at any time; a failed attempt backs off and retries the same records,
// and nothing is ever dropped.
type Scheduler struct {
	spool  *spool.Spool
	sink   Sink
	config Config

	state atomic.Int32

	// wake coalesces capture nudges; it is buffered so Wake never blocks.
	wake chan struct{}

	// Control - all protected by mu
	ctx      context.Context
	cancel   context.CancelFunc
	mu       sync.Mutex
	running  bool
	stopping bool          // true while Stop() is waiting for goroutine
	stopDone chan struct{} // closed when Stop() completes

	// Statistics
	totalAttempts   atomic.Int64
	totalPublished  atomic.Int64
	totalSuppressed atomic.Int64
	totalFailures   atomic.Int64

	statsMu     sync.Mutex
	lastAttempt time.Time
	lastSuccess time.Time
	lastError   string
}

// NewScheduler creates a scheduler draining sp into sink. Zero config
// fields fall back to DefaultConfig values.
func NewScheduler(sp *spool.Spool, sink Sink, cfg Config) *Scheduler {
	defaults := DefaultConfig()
	if cfg.SubmitSizeLimit <= 0 {
		cfg.SubmitSizeLimit = defaults.SubmitSizeLimit
	}
	if cfg.RetryPeriod <= 0 {
		cfg.RetryPeriod = defaults.RetryPeriod
	}
	if cfg.MaxTimePublishing <= 0 {
		cfg.MaxTimePublishing = defaults.MaxTimePublishing
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaults.PollInterval
	}

	return &Scheduler{
		spool:  sp,
		sink:   sink,
		config: cfg,
		wake:   make(chan struct{}, 1),
	}
}

// Start begins the background publish loop.
// It will run until Stop is called or the context is canceled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()

	// Wait for any in-progress Stop() to complete
	for s.stopping {
		stopDone := s.stopDone
		s.mu.Unlock()
		<-stopDone
		s.mu.Lock()
	}

	if s.running {
		s.mu.Unlock()
		return nil
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running = true
	s.stopDone = make(chan struct{})

	// Capture context and done channel to avoid races
	loopCtx := s.ctx
	done := s.stopDone

	s.mu.Unlock()

	go s.runWithContext(loopCtx, done)

	logging.Info().
		Int("submit_size_limit", s.config.SubmitSizeLimit).
		Dur("retry_period", s.config.RetryPeriod).
		Dur("max_time_publishing", s.config.MaxTimePublishing).
		Msg("Publish scheduler started")
	return nil
}

// Stop gracefully stops the publish loop. An in-flight attempt is canceled
// at the next transition; unacknowledged records stay spooled for the next
// start.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running || s.stopping {
		s.mu.Unlock()
		return
	}

	s.cancel()
	s.running = false
	s.stopping = true
	stopDone := s.stopDone
	s.mu.Unlock()

	// Wait for the goroutine to signal completion
	<-stopDone

	s.mu.Lock()
	s.stopping = false
	s.mu.Unlock()

	logging.Info().Msg("Publish scheduler stopped")
}

// IsRunning returns whether the publish loop is active.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Wake nudges the scheduler to drain now instead of waiting for the next
// poll tick. It never blocks; concurrent wakes coalesce into one drain.
func (s *Scheduler) Wake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// State returns the current scheduler state.
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

func (s *Scheduler) setState(st State) {
	s.state.Store(int32(st))
	UpdateSchedulerState(int(st))
}

// runWithContext is the main publish loop goroutine.
// The context is passed as a parameter to avoid race conditions with Stop().
func (s *Scheduler) runWithContext(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer s.setState(StateIdle)

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	for {
		s.setState(StateIdle)
		select {
		case <-ctx.Done():
			return
		case <-s.wake:
		case <-ticker.C:
		}

		s.processBacklog(ctx)
	}
}

// processBacklog publishes batches until the spool has nothing left or the
// context is canceled. A failed attempt sleeps RetryPeriod and then drains
// again; nothing was purged, so the identical records are retried.
func (s *Scheduler) processBacklog(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		drained, err := s.publishOnce(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.setState(StateBackoff)
			logging.Warn().
				Err(err).
				Dur("retry_period", s.config.RetryPeriod).
				Msg("Publish attempt failed, backing off")
			if !s.sleepRetryPeriod(ctx) {
				return
			}
			continue
		}
		if !drained {
			return
		}
	}
}

// publishOnce drains one batch and attempts to publish it.
// drained is false when the spool had nothing to publish.
func (s *Scheduler) publishOnce(ctx context.Context) (drained bool, err error) {
	s.setState(StateDraining)

	batch, err := s.spool.NextBatch(ctx, s.config.SubmitSizeLimit)
	if err != nil {
		logging.Error().Err(err).Msg("Publish drain failed")
		s.recordFailure(err)
		return false, err
	}
	if len(batch) == 0 {
		return false, nil
	}

	survivors, duplicateOf := FilterDuplicates(batch)
	if n := len(duplicateOf); n > 0 {
		s.totalSuppressed.Add(int64(n))
		RecordDuplicatesSuppressed(n)
	}

	s.setState(StatePublishing)
	s.totalAttempts.Add(1)
	RecordPublishAttempt()
	s.statsMu.Lock()
	s.lastAttempt = time.Now().UTC()
	s.statsMu.Unlock()

	receipt := NewReceipt()
	start := time.Now()
	err = s.attempt(ctx, survivors, receipt)
	receipt.seal()
	RecordPublishDuration(time.Since(start).Seconds())

	if err != nil {
		s.recordFailure(err)
		logging.Error().
			Err(err).
			Int("batch", len(batch)).
			Uint64("first_id", batch[0].ID).
			Uint64("last_id", batch[len(batch)-1].ID).
			Msg("Publish attempt failed")
		return true, err
	}

	// The sink concluded cleanly; its acknowledgments decide the purge set.
	if receipt.AllHandled() {
		ids := make([]uint64, len(batch))
		for i, rec := range batch {
			ids[i] = rec.ID
		}
		if err := s.spool.Remove(ctx, ids); err != nil {
			logging.Error().Err(err).Msg("Publish purge failed")
			s.recordFailure(err)
			return true, err
		}

		s.recordSuccess(len(survivors))
		logging.Debug().
			Int("published", len(survivors)).
			Int("suppressed", len(duplicateOf)).
			Dur("duration", time.Since(start)).
			Msg("Publish attempt succeeded")
		return true, nil
	}

	handled := receipt.HandledIDs()
	if len(handled) == 0 {
		err := ErrNoAcknowledgment
		s.recordFailure(err)
		logging.Error().
			Int("batch", len(batch)).
			Msg("Sink concluded without acknowledging any records")
		return true, err
	}

	acked, purge := expandAcked(handled, batch, duplicateOf)
	if err := s.spool.Remove(ctx, purge); err != nil {
		logging.Error().Err(err).Msg("Publish purge failed")
		s.recordFailure(err)
		return true, err
	}

	s.recordSuccess(acked)
	logging.Debug().
		Int("published", acked).
		Int("purged", len(purge)).
		Int("batch", len(batch)).
		Msg("Publish attempt partially acknowledged")
	return true, nil
}

// attempt runs the sink under the MaxTimePublishing deadline. The sink is
// never waited on past the deadline; a late conclusion is a timeout and the
// sealed receipt discards whatever it acknowledges afterwards.
func (s *Scheduler) attempt(ctx context.Context, survivors []*record.Record, receipt *Receipt) error {
	pubCtx, cancel := context.WithTimeout(ctx, s.config.MaxTimePublishing)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.sink.PublishToHistorian(pubCtx, survivors, receipt)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return ErrPublishTimeout
			}
			return &PublishError{Err: err}
		}
		return nil
	case <-pubCtx.Done():
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return ErrPublishTimeout
	}
}

// expandAcked maps sink acknowledgments to the purge set: the acknowledged
// ids present in the batch, plus every suppressed duplicate whose retained
// representative was acknowledged.
func expandAcked(handled []uint64, batch []*record.Record, duplicateOf map[uint64]uint64) (acked int, purge []uint64) {
	inBatch := make(map[uint64]bool, len(batch))
	for _, rec := range batch {
		inBatch[rec.ID] = true
	}

	ackedSet := make(map[uint64]bool, len(handled))
	purge = make([]uint64, 0, len(handled))
	for _, id := range handled {
		if !inBatch[id] || ackedSet[id] {
			continue
		}
		ackedSet[id] = true
		purge = append(purge, id)
	}
	acked = len(purge)

	for dupID, keeperID := range duplicateOf {
		if ackedSet[keeperID] && !ackedSet[dupID] {
			purge = append(purge, dupID)
		}
	}

	return acked, purge
}

// sleepRetryPeriod waits out the backoff. Returns false if the context was
// canceled first.
func (s *Scheduler) sleepRetryPeriod(ctx context.Context) bool {
	timer := time.NewTimer(s.config.RetryPeriod)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (s *Scheduler) recordSuccess(published int) {
	s.totalPublished.Add(int64(published))
	RecordRecordsPublished(published)

	s.statsMu.Lock()
	s.lastSuccess = time.Now().UTC()
	s.lastError = ""
	s.statsMu.Unlock()
}

func (s *Scheduler) recordFailure(err error) {
	s.totalFailures.Add(1)
	RecordPublishFailure(failureReason(err))

	s.statsMu.Lock()
	s.lastError = err.Error()
	s.statsMu.Unlock()
}

// failureReason classifies an attempt error for the failure counter.
func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrPublishTimeout):
		return "timeout"
	case errors.Is(err, ErrNoAcknowledgment):
		return "no_ack"
	default:
		var perr *PublishError
		if errors.As(err, &perr) {
			return "sink"
		}
		return "storage"
	}
}

// Stats returns current scheduler statistics.
func (s *Scheduler) Stats() SchedulerStats {
	s.statsMu.Lock()
	lastAttempt := s.lastAttempt
	lastSuccess := s.lastSuccess
	lastError := s.lastError
	s.statsMu.Unlock()

	return SchedulerStats{
		State:           s.State().String(),
		TotalAttempts:   s.totalAttempts.Load(),
		TotalPublished:  s.totalPublished.Load(),
		TotalSuppressed: s.totalSuppressed.Load(),
		TotalFailures:   s.totalFailures.Load(),
		LastAttempt:     lastAttempt,
		LastSuccess:     lastSuccess,
		LastError:       lastError,
	}
}

// SchedulerStats contains scheduler metrics for the ops surface.
type SchedulerStats struct {
	State           string    `json:"state"`
	TotalAttempts   int64     `json:"total_attempts"`
	TotalPublished  int64     `json:"total_published"`
	TotalSuppressed int64     `json:"total_suppressed"`
	TotalFailures   int64     `json:"total_failures"`
	LastAttempt     time.Time `json:"last_attempt"`
	LastSuccess     time.Time `json:"last_success"`
	LastError       string    `json:"last_error,omitempty"`
}
