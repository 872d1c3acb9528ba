// Annalist - Store-and-Forward Telemetry Historian
// Copyright 2026 The Annalist Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/annalist-io/annalist

package ingest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for capture operations
var (
	// ingestCapturedTotal counts records captured into the spool by source.
	ingestCapturedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_captured_total",
		Help: "Total number of records captured into the spool",
	}, []string{"source"})

	// ingestCaptureFailures counts captures that failed before durability.
	ingestCaptureFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_capture_failures_total",
		Help: "Total number of capture attempts that failed",
	}, []string{"source"})

	// ingestTimeErrors counts records stored with a substituted timestamp.
	ingestTimeErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ingest_time_errors_total",
		Help: "Total number of records whose headers carried no usable timestamp",
	})
)

// RecordCaptured adds to the capture counter for a source.
func RecordCaptured(source string, count int) {
	ingestCapturedTotal.WithLabelValues(source).Add(float64(count))
}

// RecordCaptureFailure increments the capture failure counter for a source.
func RecordCaptureFailure(source string) {
	ingestCaptureFailures.WithLabelValues(source).Inc()
}

// RecordTimeError increments the substituted-timestamp counter.
func RecordTimeError() {
	ingestTimeErrors.Inc()
}
