// Annalist - Store-and-Forward Telemetry Historian
// Copyright 2026 The Annalist Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/annalist-io/annalist

package publish

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for publish operations
var (
	// publishAttemptsTotal counts publish attempts.
	publishAttemptsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "publish_attempts_total",
		Help: "Total number of publish attempts",
	})

	// publishFailuresTotal counts failed attempts by reason.
	publishFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "publish_failures_total",
			Help: "Total number of failed publish attempts",
		},
		[]string{"reason"}, // "timeout", "sink", "no_ack", "storage"
	)

	// recordsPublishedTotal counts records acknowledged by the backend.
	recordsPublishedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "publish_records_total",
		Help: "Total number of records acknowledged by the historian backend",
	})

	// duplicatesSuppressedTotal counts records dropped by deduplication.
	duplicatesSuppressedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "publish_duplicates_suppressed_total",
		Help: "Total number of duplicate records suppressed before publishing",
	})

	// publishDuration measures publish attempt duration.
	publishDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "publish_duration_seconds",
		Help:    "Publish attempt duration in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// schedulerState is the current scheduler state
	// (0=idle, 1=draining, 2=publishing, 3=backoff).
	schedulerState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "publish_scheduler_state",
		Help: "Current publish scheduler state (0=idle, 1=draining, 2=publishing, 3=backoff)",
	})
)

// RecordPublishAttempt increments the attempt counter.
func RecordPublishAttempt() {
	publishAttemptsTotal.Inc()
}

// RecordPublishFailure increments the failure counter for a reason.
func RecordPublishFailure(reason string) {
	publishFailuresTotal.WithLabelValues(reason).Inc()
}

// RecordRecordsPublished adds to the published records counter.
func RecordRecordsPublished(count int) {
	recordsPublishedTotal.Add(float64(count))
}

// RecordDuplicatesSuppressed adds to the suppressed duplicates counter.
func RecordDuplicatesSuppressed(count int) {
	duplicatesSuppressedTotal.Add(float64(count))
}

// RecordPublishDuration records an attempt duration measurement.
func RecordPublishDuration(seconds float64) {
	publishDuration.Observe(seconds)
}

// UpdateSchedulerState sets the scheduler state gauge.
func UpdateSchedulerState(state int) {
	schedulerState.Set(float64(state))
}
