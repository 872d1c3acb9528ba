// Annalist - Store-and-Forward Telemetry Historian
// Copyright 2026 The Annalist Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/annalist-io/annalist

package record

import (
	"fmt"

	"github.com/goccy/go-json"
)

// Encode serializes a record to JSON for storage or transport.
// The record is validated first so malformed records never reach the
// spool or the wire.
func Encode(r *Record) ([]byte, error) {
	if r == nil {
		return nil, fmt.Errorf("encode record: nil record")
	}
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return data, nil
}

// Decode deserializes a record from JSON and validates it.
func Decode(data []byte) (*Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return &r, nil
}
