// Annalist - Store-and-Forward Telemetry Historian
// Copyright 2026 The Annalist Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/annalist-io/annalist

// Package record defines the canonical telemetry record moving through the
// pipeline: captured by ingest, spooled durably, deduplicated and published
// to the historian backend.
package record

import (
	"strconv"
	"time"

	"github.com/goccy/go-json"
)

// Source classifies where an observation originated.
type Source string

// Observation origins. The source determines which capture entry point
// produced the record and how the historian files it downstream.
const (
	// SourceRecord is an ad-hoc observation published directly to the bus.
	SourceRecord Source = "record"

	// SourceDevice is a scraped device reading, one record per point.
	SourceDevice Source = "device"

	// SourceAnalysis is a derived result produced by an analysis agent.
	SourceAnalysis Source = "analysis"

	// SourceLog is a datalogger observation.
	SourceLog Source = "log"

	// SourceMeta is a point metadata announcement accompanying device data.
	SourceMeta Source = "meta"
)

// Valid reports whether s is a known source.
func (s Source) Valid() bool {
	switch s {
	case SourceRecord, SourceDevice, SourceAnalysis, SourceLog, SourceMeta:
		return true
	}
	return false
}

// Record is the immutable unit of ingested telemetry.
//
// ID is zero until the spool assigns one at insert; after that the record
// never changes until it is purged. Timestamp is always UTC. TimeError is
// set when no header-derived timestamp was usable and the capture instant
// was substituted.
type Record struct {
	ID        uint64            `json:"id,omitempty"`
	Topic     string            `json:"topic"`
	Timestamp time.Time         `json:"timestamp"`
	TimeError bool              `json:"time_error"`
	Value     json.RawMessage   `json:"value,omitempty"`
	Headers   Headers           `json:"headers,omitempty"`
	Meta      map[string]string `json:"meta,omitempty"`
	Source    Source            `json:"source"`
}

// New creates a record for the given source and topic, stamped with the
// current UTC instant. Callers normally overwrite Timestamp with the
// header-derived instant before spooling.
func New(source Source, topic string) *Record {
	return &Record{
		Topic:     topic,
		Timestamp: time.Now().UTC(),
		Meta:      map[string]string{},
		Source:    source,
	}
}

// Validate checks required fields and returns an error if validation fails.
func (r *Record) Validate() error {
	if r.Topic == "" {
		return &ValidationError{Field: "topic", Message: "required"}
	}
	if r.Timestamp.IsZero() {
		return &ValidationError{Field: "timestamp", Message: "required"}
	}
	if !r.Source.Valid() {
		return &ValidationError{Field: "source", Message: "unknown source " + strconv.Quote(string(r.Source))}
	}
	return nil
}

// IdentityKey returns the duplicate-detection key for this record.
// Two records announce the same observation when they share a topic and
// a timestamp; payload differences do not make them distinct.
func (r *Record) IdentityKey() string {
	return r.Topic + "\x00" + strconv.FormatInt(r.Timestamp.UTC().UnixNano(), 10)
}

// ValidationError represents a field validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return "invalid record: " + e.Field + ": " + e.Message
}
