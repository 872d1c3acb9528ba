// Annalist - Store-and-Forward Telemetry Historian
// Copyright 2026 The Annalist Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/annalist-io/annalist

package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Cross-cutting Prometheus collectors. Pipeline packages carry their own
// metrics files (spool_*, publish_*, ingest_*, bus_*); this package holds
// the historian database and ops API instrumentation shared across them.

var (
	// Historian Metrics
	HistorianInsertDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "historian_insert_duration_seconds",
			Help:    "Duration of historian batch inserts in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	HistorianRecordsInserted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "historian_records_inserted_total",
			Help: "Total number of records inserted into the historian database",
		},
	)

	HistorianDuplicatesSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "historian_duplicates_skipped_total",
			Help: "Total number of records skipped by the historian as already stored",
		},
	)

	HistorianInsertErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "historian_insert_errors_total",
			Help: "Total number of failed historian batch inserts",
		},
	)

	// HistorianBreakerState encodes the circuit breaker state:
	// 0 closed, 1 half-open, 2 open.
	HistorianBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "historian_breaker_state",
			Help: "Historian circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
	)

	// API Endpoint Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of ops API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "Ops API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)
)

// RecordHistorianInsert records a committed historian batch.
func RecordHistorianInsert(duration time.Duration, inserted, duplicates int) {
	HistorianInsertDuration.Observe(duration.Seconds())
	HistorianRecordsInserted.Add(float64(inserted))
	HistorianDuplicatesSkipped.Add(float64(duplicates))
}

// RecordHistorianInsertError increments the historian failure counter.
func RecordHistorianInsertError() {
	HistorianInsertErrors.Inc()
}

// UpdateHistorianBreakerState sets the breaker state gauge from the
// gobreaker state string.
func UpdateHistorianBreakerState(state string) {
	var v float64
	switch state {
	case "half-open":
		v = 1
	case "open":
		v = 2
	}
	HistorianBreakerState.Set(v)
}

// RecordAPIRequest records an ops API request.
func RecordAPIRequest(method, endpoint string, statusCode int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}
