// Annalist - Store-and-Forward Telemetry Historian
// Copyright 2026 The Annalist Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/annalist-io/annalist

package historian

import (
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/annalist-io/annalist/internal/logging"
	"github.com/annalist-io/annalist/internal/metrics"
)

// newBreaker creates the insert-path circuit breaker. While open, publish
// attempts fail immediately and the scheduler backs off instead of queueing
// work against a database that cannot accept it.
func newBreaker(cfg BreakerConfig) *gobreaker.CircuitBreaker[interface{}] {
	settings := gobreaker.Settings{
		Name:        "historian",
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Historian circuit breaker state changed")
			metrics.UpdateHistorianBreakerState(to.String())
		},
	}

	return gobreaker.NewCircuitBreaker[interface{}](settings)
}
