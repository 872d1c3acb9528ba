// Annalist - Store-and-Forward Telemetry Historian
// Copyright 2026 The Annalist Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/annalist-io/annalist

package spool

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for spool operations
var (
	// spoolInsertsTotal counts records durably inserted.
	spoolInsertsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "spool_inserts_total",
		Help: "Total number of records inserted into the spool",
	})

	// spoolInsertFailures counts failed insert transactions.
	spoolInsertFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "spool_insert_failures_total",
		Help: "Total number of failed spool insert transactions",
	})

	// spoolRemovesTotal counts records removed after acknowledgment.
	spoolRemovesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "spool_removes_total",
		Help: "Total number of records removed from the spool",
	})

	// spoolDepth is the current number of spooled records.
	spoolDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "spool_depth",
		Help: "Current number of spooled records awaiting acknowledgment",
	})

	// spoolInsertLatency measures insert transaction latency.
	spoolInsertLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "spool_insert_latency_seconds",
		Help:    "Spool insert latency in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// spoolDBSizeBytes is the current BadgerDB database size.
	spoolDBSizeBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "spool_db_size_bytes",
		Help: "BadgerDB database size in bytes",
	})

	// spoolCompactionsTotal counts maintenance runs.
	spoolCompactionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "spool_compactions_total",
		Help: "Total number of spool maintenance runs",
	})

	// spoolCompactionLatency measures maintenance run latency.
	spoolCompactionLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "spool_compaction_latency_seconds",
		Help:    "Spool maintenance latency in seconds",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 0.1s to ~100s
	})

	// spoolGCLatency measures BadgerDB value log GC latency.
	spoolGCLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "spool_gc_latency_seconds",
		Help:    "BadgerDB value log GC latency in seconds",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 0.01s to ~40s
	})

	// spoolGCRuns counts total GC runs.
	spoolGCRuns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "spool_gc_runs_total",
		Help: "Total number of BadgerDB value log GC runs",
	})
)

// RecordSpoolInsert adds to the insert counter.
func RecordSpoolInsert(count int) {
	spoolInsertsTotal.Add(float64(count))
}

// RecordSpoolInsertFailure increments the insert failure counter.
func RecordSpoolInsertFailure() {
	spoolInsertFailures.Inc()
}

// RecordSpoolRemove adds to the remove counter.
func RecordSpoolRemove(count int) {
	spoolRemovesTotal.Add(float64(count))
}

// UpdateSpoolDepth sets the depth gauge.
func UpdateSpoolDepth(count int64) {
	spoolDepth.Set(float64(count))
}

// RecordSpoolInsertLatency records an insert latency measurement.
func RecordSpoolInsertLatency(seconds float64) {
	spoolInsertLatency.Observe(seconds)
}

// UpdateSpoolDBSize sets the database size gauge.
func UpdateSpoolDBSize(bytes int64) {
	spoolDBSizeBytes.Set(float64(bytes))
}

// RecordSpoolCompaction increments the maintenance run counter.
func RecordSpoolCompaction() {
	spoolCompactionsTotal.Inc()
}

// RecordSpoolCompactionLatency records a maintenance latency measurement.
func RecordSpoolCompactionLatency(seconds float64) {
	spoolCompactionLatency.Observe(seconds)
}

// RecordSpoolGCLatency records a GC latency measurement.
func RecordSpoolGCLatency(seconds float64) {
	spoolGCLatency.Observe(seconds)
}

// RecordSpoolGCRun increments the GC run counter.
func RecordSpoolGCRun() {
	spoolGCRuns.Inc()
}
