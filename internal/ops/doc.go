// Annalist - Store-and-Forward Telemetry Historian
// Copyright 2026 The Annalist Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/annalist-io/annalist

// Package ops serves the operational HTTP surface: health probes, a
// pipeline status snapshot, and Prometheus metrics. The listener is
// read-only and binds to loopback by default.
package ops
