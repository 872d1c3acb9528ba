// Annalist - Store-and-Forward Telemetry Historian
// Copyright 2026 The Annalist Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/annalist-io/annalist

// Package ingest is the capture surface of the pipeline. One entry point per
// observation kind, all converging on the same path: normalize the timestamp
// from the headers, build a record, insert it durably into the spool, then
// nudge the publish scheduler. The spool insert is the only synchronous
// effect; once Capture* returns nil the observation survives a crash.
package ingest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"

	"github.com/annalist-io/annalist/internal/logging"
	"github.com/annalist-io/annalist/internal/record"
)

// Spooler is the durable store captures are written through to.
// This allows the front door to work with any storage implementation.
type Spooler interface {
	// Insert durably stores one record and returns its assigned id.
	Insert(ctx context.Context, rec *record.Record) (uint64, error)

	// InsertBatch durably stores several records in one transaction.
	InsertBatch(ctx context.Context, recs []*record.Record) ([]uint64, error)
}

// Waker is nudged after every successful capture so spooled records drain
// promptly instead of waiting for the next scheduler poll tick.
type Waker interface {
	Wake()
}

// FrontDoor converts incoming observations into spooled records.
// Safe for concurrent use.
type FrontDoor struct {
	spool Spooler
	waker Waker
	now   func() time.Time

	// Statistics
	totalCaptured   atomic.Int64
	totalTimeErrors atomic.Int64
	totalFailures   atomic.Int64
}

// NewFrontDoor creates the capture surface. The waker is optional; without
// one, records wait for the scheduler's poll tick.
func NewFrontDoor(spool Spooler, waker Waker) (*FrontDoor, error) {
	if spool == nil {
		return nil, fmt.Errorf("spool required")
	}
	return &FrontDoor{
		spool: spool,
		waker: waker,
		now:   time.Now,
	}, nil
}

// CaptureRecord stores an ad-hoc observation published directly to the bus.
func (f *FrontDoor) CaptureRecord(ctx context.Context, topic string, headers record.Headers, value any) (uint64, error) {
	return f.captureOne(ctx, record.SourceRecord, topic, headers, value)
}

// CaptureLog stores a datalogger observation.
func (f *FrontDoor) CaptureLog(ctx context.Context, topic string, headers record.Headers, value any) (uint64, error) {
	return f.captureOne(ctx, record.SourceLog, topic, headers, value)
}

// CaptureDevice stores a device scrape, one record per point. The point
// records share the scrape's timestamp and headers; each gets topic
// "<device topic>/<point>" (a trailing "/all" on the device topic is
// stripped) and its own metadata. The batch is inserted atomically:
// either every point of the scrape is durable or none is.
func (f *FrontDoor) CaptureDevice(ctx context.Context, topic string, headers record.Headers, points map[string]any, meta map[string]map[string]string) ([]uint64, error) {
	return f.captureScrape(ctx, record.SourceDevice, topic, headers, points, meta)
}

// CaptureAnalysis stores derived results from an analysis agent, with the
// same per-point fan-out as CaptureDevice.
func (f *FrontDoor) CaptureAnalysis(ctx context.Context, topic string, headers record.Headers, points map[string]any, meta map[string]map[string]string) ([]uint64, error) {
	return f.captureScrape(ctx, record.SourceAnalysis, topic, headers, points, meta)
}

func (f *FrontDoor) captureOne(ctx context.Context, source record.Source, topic string, headers record.Headers, value any) (uint64, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		f.fail(source)
		return 0, fmt.Errorf("encode %s value: %w", source, err)
	}

	rec := record.New(source, topic)
	rec.Headers = headers
	rec.Value = raw
	rec.Timestamp, rec.TimeError = record.TimestampFromHeaders(headers, f.now)
	if rec.TimeError {
		f.timeError(topic)
	}

	id, err := f.spool.Insert(ctx, rec)
	if err != nil {
		f.fail(source)
		return 0, err
	}

	f.captured(source, 1)
	return id, nil
}

func (f *FrontDoor) captureScrape(ctx context.Context, source record.Source, topic string, headers record.Headers, points map[string]any, meta map[string]map[string]string) ([]uint64, error) {
	if len(points) == 0 {
		return nil, nil
	}

	base := strings.TrimSuffix(topic, "/all")

	// One timestamp per scrape; every point record shares it.
	ts, timeError := record.TimestampFromHeaders(headers, f.now)
	if timeError {
		f.timeError(topic)
	}

	// Point order within the batch is deterministic.
	names := make([]string, 0, len(points))
	for name := range points {
		names = append(names, name)
	}
	sort.Strings(names)

	recs := make([]*record.Record, 0, len(names))
	for _, name := range names {
		raw, err := json.Marshal(points[name])
		if err != nil {
			f.fail(source)
			return nil, fmt.Errorf("encode point %q: %w", name, err)
		}

		rec := record.New(source, base+"/"+name)
		rec.Headers = headers
		rec.Timestamp = ts
		rec.TimeError = timeError
		rec.Value = raw
		if m := meta[name]; len(m) > 0 {
			rec.Meta = m
		}
		recs = append(recs, rec)
	}

	ids, err := f.spool.InsertBatch(ctx, recs)
	if err != nil {
		f.fail(source)
		return nil, err
	}

	f.captured(source, len(ids))
	return ids, nil
}

func (f *FrontDoor) captured(source record.Source, count int) {
	f.totalCaptured.Add(int64(count))
	RecordCaptured(string(source), count)
	if f.waker != nil {
		f.waker.Wake()
	}
}

func (f *FrontDoor) fail(source record.Source) {
	f.totalFailures.Add(1)
	RecordCaptureFailure(string(source))
}

func (f *FrontDoor) timeError(topic string) {
	f.totalTimeErrors.Add(1)
	RecordTimeError()
	logging.Warn().
		Str("topic", topic).
		Msg("No usable timestamp header, capture instant substituted")
}

// Stats returns capture counters for the ops surface.
func (f *FrontDoor) Stats() Stats {
	return Stats{
		TotalCaptured:   f.totalCaptured.Load(),
		TotalTimeErrors: f.totalTimeErrors.Load(),
		TotalFailures:   f.totalFailures.Load(),
	}
}

// Stats contains capture counters.
type Stats struct {
	TotalCaptured   int64 `json:"total_captured"`
	TotalTimeErrors int64 `json:"total_time_errors"`
	TotalFailures   int64 `json:"total_failures"`
}
