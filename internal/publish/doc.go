// Annalist - Store-and-Forward Telemetry Historian
// Copyright 2026 The Annalist Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/annalist-io/annalist

// Package publish drains the spool and delivers records to a historian
// backend, with duplicate suppression and ack-driven purging.
//
// # Lifecycle
//
// A single Scheduler goroutine owns the publish path:
//
//	Idle → Draining → Publishing → Idle
//	                      ↓ (failure)
//	                   Backoff → Draining (same records)
//
// The scheduler wakes on a poll tick or a Wake nudge from capture, drains
// up to SubmitSizeLimit records oldest-first, suppresses duplicates
// (first occurrence wins), and hands the survivors to the Sink together
// with a per-attempt Receipt. Records leave the spool only when the sink
// acknowledges them through the receipt; a failed or timed-out attempt
// purges nothing and the identical records are retried after RetryPeriod.
// Records are never dropped, no matter how many attempts fail.
//
// # Acknowledgment
//
// ReportAllHandled purges every drained record, suppressed duplicates
// included. ReportHandled purges the named records plus any suppressed
// duplicate whose retained representative was acknowledged. A sink that
// returns success without acknowledging anything is treated as a failure.
package publish
