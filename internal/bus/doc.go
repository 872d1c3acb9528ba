// Annalist - Store-and-Forward Telemetry Historian
// Copyright 2026 The Annalist Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/annalist-io/annalist

// Package bus consumes telemetry observations from NATS JetStream and
// feeds them into the ingest front door.
//
// The bus is optional and disabled by default; in-process callers reach
// the front door directly. When enabled it either dials an external
// NATS server or starts an embedded one, provisions a durable stream
// over the telemetry subjects, and runs a queue-group subscriber whose
// handler spools every decoded observation.
//
// Messages are acknowledged only after the spool insert succeeds. A
// crash between delivery and insert causes a redelivery, which lands in
// the cache as one more record and is suppressed by the duplicate
// filter on the way out. Messages that cannot be decoded at all are
// acknowledged and dropped, since redelivering them can never help.
package bus
