// Annalist - Store-and-Forward Telemetry Historian
// Copyright 2026 The Annalist Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/annalist-io/annalist

package bus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for bus consumption
var (
	// busMessagesReceived counts messages delivered to the consumer.
	busMessagesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bus_messages_received_total",
		Help: "Total number of messages delivered to the bus consumer",
	})

	// busMessagesProcessed counts messages spooled and acknowledged.
	busMessagesProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bus_messages_processed_total",
		Help: "Total number of bus messages captured into the spool",
	})

	// busParseFailures counts messages dropped as undecodable.
	busParseFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bus_parse_failures_total",
		Help: "Total number of bus messages dropped as undecodable",
	})

	// busCaptureFailures counts messages nacked after a capture failure.
	busCaptureFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bus_capture_failures_total",
		Help: "Total number of bus messages nacked because the spool insert failed",
	})
)

// RecordMessageReceived increments the delivered-message counter.
func RecordMessageReceived() {
	busMessagesReceived.Inc()
}

// RecordMessageProcessed increments the processed-message counter.
func RecordMessageProcessed() {
	busMessagesProcessed.Inc()
}

// RecordParseFailure increments the undecodable-message counter.
func RecordParseFailure() {
	busParseFailures.Inc()
}

// RecordCaptureFailure increments the nacked-message counter.
func RecordCaptureFailure() {
	busCaptureFailures.Inc()
}
