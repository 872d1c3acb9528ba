// Annalist - Store-and-Forward Telemetry Historian
// Copyright 2026 The Annalist Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/annalist-io/annalist

package record

import (
	"fmt"
	"strings"
	"time"
)

// Well-known header keys consulted when stamping an incoming record.
const (
	// HeaderTimeStamp is the primary device-time header.
	HeaderTimeStamp = "TimeStamp"

	// HeaderDate is the legacy device-time header, consulted when
	// HeaderTimeStamp is absent or unparsable.
	HeaderDate = "Date"

	// HeaderSyncTimestamp marks a bulk backfill publish; records carrying
	// it are stored but not treated as live readings.
	HeaderSyncTimestamp = "SyncTimestamp"
)

// timestampLayouts are tried in order by ParseTimestamp. Publishers on the
// bus emit RFC 3339 as well as the space-separated ISO form with and
// without a zone suffix ("2015-11-17 21:24:10.189393+00:00").
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
}

// ParseTimestamp parses a device timestamp string into UTC. Strings
// without a zone are taken as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("timestamp: empty string")
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("timestamp: unparsable %q", s)
}

// TimestampFromHeaders resolves the timestamp for an incoming record.
// It tries the TimeStamp header first, then Date. If neither is present
// and parsable it falls back to now() and reports timeError true, so the
// record still carries a usable timestamp but is flagged as locally
// stamped.
func TimestampFromHeaders(h Headers, now func() time.Time) (ts time.Time, timeError bool) {
	for _, key := range []string{HeaderTimeStamp, HeaderDate} {
		if raw, ok := h.Get(key); ok {
			if t, err := ParseTimestamp(raw); err == nil {
				return t, false
			}
		}
	}
	return now().UTC(), true
}
