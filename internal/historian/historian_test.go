// Annalist - Store-and-Forward Telemetry Historian
// Copyright 2026 The Annalist Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/annalist-io/annalist

package historian

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/annalist-io/annalist/internal/publish"
	"github.com/annalist-io/annalist/internal/record"
)

func testConfig(t *testing.T) Config {
	t.Helper()

	cfg := DefaultConfig()
	cfg.Path = filepath.Join(t.TempDir(), "historian.duckdb")
	cfg.MaxMemory = "256MB"
	cfg.Threads = 2
	return cfg
}

func openTestHistorian(t *testing.T) *Historian {
	t.Helper()

	cfg := testConfig(t)
	h, err := Open(&cfg)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func histRecord(id uint64, topic string, ts time.Time, value string) *record.Record {
	return &record.Record{
		ID:        id,
		Topic:     topic,
		Timestamp: ts,
		Value:     json.RawMessage(value),
		Source:    record.SourceRecord,
	}
}

func countRecords(t *testing.T, h *Historian) int64 {
	t.Helper()

	count, err := h.Count(context.Background())
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	return count
}

func TestOpen_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Path = ""
	if _, err := Open(&cfg); err == nil {
		t.Error("Expected error for empty path")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid defaults", func(c *Config) {}, false},
		{"empty path", func(c *Config) { c.Path = "" }, true},
		{"empty max memory", func(c *Config) { c.MaxMemory = "" }, true},
		{"negative threads", func(c *Config) { c.Threads = -1 }, true},
		{"zero breaker max requests", func(c *Config) { c.Breaker.MaxRequests = 0 }, true},
		{"zero failure threshold", func(c *Config) { c.Breaker.FailureThreshold = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				var cfgErr *ConfigError
				if !errors.As(err, &cfgErr) {
					t.Errorf("Expected ConfigError, got %T", err)
				}
			}
		})
	}
}

func TestHistorian_PublishReportsAllHandled(t *testing.T) {
	h := openTestHistorian(t)
	ts := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	batch := []*record.Record{
		histRecord(1, "devices/b1/ahu1/temperature", ts, `72.5`),
		histRecord(2, "devices/b1/ahu1/humidity", ts, `45`),
		histRecord(3, "devices/b1/ahu1/status", ts, `"ok"`),
	}

	receipt := publish.NewReceipt()
	if err := h.PublishToHistorian(context.Background(), batch, receipt); err != nil {
		t.Fatalf("PublishToHistorian failed: %v", err)
	}
	if !receipt.AllHandled() {
		t.Error("Receipt should report all handled after commit")
	}
	if got := countRecords(t, h); got != 3 {
		t.Errorf("Count = %d, want 3", got)
	}
}

// TestHistorian_IdempotentRepublish verifies that re-publishing a batch the
// scheduler timed out on does not duplicate rows.
func TestHistorian_IdempotentRepublish(t *testing.T) {
	h := openTestHistorian(t)
	ts := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	batch := []*record.Record{
		histRecord(1, "topic/a", ts, `1`),
		histRecord(2, "topic/b", ts, `2`),
	}

	for attempt := 0; attempt < 2; attempt++ {
		receipt := publish.NewReceipt()
		if err := h.PublishToHistorian(context.Background(), batch, receipt); err != nil {
			t.Fatalf("Attempt %d failed: %v", attempt+1, err)
		}
		if !receipt.AllHandled() {
			t.Errorf("Attempt %d did not report all handled", attempt+1)
		}
	}

	if got := countRecords(t, h); got != 2 {
		t.Errorf("Count = %d, want 2 after idempotent republish", got)
	}
}

// TestHistorian_CrossBatchDuplicate verifies that the same observation
// arriving through separate publishes collapses into one row.
func TestHistorian_CrossBatchDuplicate(t *testing.T) {
	h := openTestHistorian(t)
	ts := time.Date(2015, 11, 17, 21, 24, 10, 189393000, time.UTC)

	first := []*record.Record{histRecord(1, "duplicate_topic", ts, `"last_duplicate_40"`)}
	second := []*record.Record{histRecord(9, "duplicate_topic", ts, `"last_duplicate_41"`)}

	if err := h.PublishToHistorian(context.Background(), first, publish.NewReceipt()); err != nil {
		t.Fatalf("First publish failed: %v", err)
	}
	if err := h.PublishToHistorian(context.Background(), second, publish.NewReceipt()); err != nil {
		t.Fatalf("Second publish failed: %v", err)
	}

	if got := countRecords(t, h); got != 1 {
		t.Fatalf("Count = %d, want 1", got)
	}

	// First write wins; the later value is discarded.
	var value sql.NullString
	err := h.conn.QueryRowContext(context.Background(),
		"SELECT value FROM records WHERE topic = ?", "duplicate_topic").Scan(&value)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if value.String != `"last_duplicate_40"` {
		t.Errorf("value = %s, want first occurrence", value.String)
	}
}

func TestHistorian_EmptyBatch(t *testing.T) {
	h := openTestHistorian(t)

	receipt := publish.NewReceipt()
	if err := h.PublishToHistorian(context.Background(), nil, receipt); err != nil {
		t.Fatalf("PublishToHistorian failed: %v", err)
	}
	if !receipt.AllHandled() {
		t.Error("Empty batch should report all handled")
	}
}

func TestHistorian_StoresRecordFields(t *testing.T) {
	h := openTestHistorian(t)
	ts := time.Date(2015, 11, 17, 21, 24, 10, 189393000, time.UTC)

	rec := histRecord(7, "devices/b1/ahu1/temperature", ts, `72.5`)
	rec.Source = record.SourceDevice
	rec.TimeError = true
	rec.Headers = record.NewHeaders(
		"Date", "2015-11-17 21:24:10.189393+00:00",
		"TimeStamp", "2015-11-17 21:24:10.189393+00:00",
	)
	rec.Meta = map[string]string{"units": "F"}

	if err := h.PublishToHistorian(context.Background(), []*record.Record{rec}, publish.NewReceipt()); err != nil {
		t.Fatalf("PublishToHistorian failed: %v", err)
	}

	var (
		cacheID   uint64
		storedTS  time.Time
		source    string
		timeError bool
		value     sql.NullString
		headers   sql.NullString
		meta      sql.NullString
	)
	err := h.conn.QueryRowContext(context.Background(),
		"SELECT cache_id, ts, source, time_error, value, headers, meta FROM records WHERE topic = ?",
		"devices/b1/ahu1/temperature").
		Scan(&cacheID, &storedTS, &source, &timeError, &value, &headers, &meta)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}

	if cacheID != 7 {
		t.Errorf("cache_id = %d, want 7", cacheID)
	}
	if !storedTS.Equal(ts) {
		t.Errorf("ts = %v, want %v", storedTS, ts)
	}
	if source != "device" {
		t.Errorf("source = %q, want device", source)
	}
	if !timeError {
		t.Error("time_error not stored")
	}
	if value.String != "72.5" {
		t.Errorf("value = %q", value.String)
	}
	if headers.String != `{"Date":"2015-11-17 21:24:10.189393+00:00","TimeStamp":"2015-11-17 21:24:10.189393+00:00"}` {
		t.Errorf("headers = %s", headers.String)
	}
	if meta.String != `{"units":"F"}` {
		t.Errorf("meta = %s", meta.String)
	}
}

func TestHistorian_NullAttachments(t *testing.T) {
	h := openTestHistorian(t)
	ts := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	rec := histRecord(1, "bare/topic", ts, `1`)
	if err := h.PublishToHistorian(context.Background(), []*record.Record{rec}, publish.NewReceipt()); err != nil {
		t.Fatalf("PublishToHistorian failed: %v", err)
	}

	var headers, meta sql.NullString
	err := h.conn.QueryRowContext(context.Background(),
		"SELECT headers, meta FROM records WHERE topic = ?", "bare/topic").Scan(&headers, &meta)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if headers.Valid || meta.Valid {
		t.Errorf("Expected NULL attachments, got headers=%v meta=%v", headers, meta)
	}
}

func TestHistorian_PersistsAcrossReopen(t *testing.T) {
	cfg := testConfig(t)
	ts := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	h, err := Open(&cfg)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	batch := []*record.Record{
		histRecord(1, "topic/a", ts, `1`),
		histRecord(2, "topic/b", ts, `2`),
	}
	if err := h.PublishToHistorian(context.Background(), batch, publish.NewReceipt()); err != nil {
		t.Fatalf("PublishToHistorian failed: %v", err)
	}
	if err := h.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := Open(&cfg)
	if err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	defer func() {
		if err := reopened.Close(); err != nil {
			t.Errorf("Close after reopen failed: %v", err)
		}
	}()

	if got := countRecords(t, reopened); got != 2 {
		t.Errorf("Count after reopen = %d, want 2", got)
	}
}

func TestHistorian_BreakerOpensAfterFailures(t *testing.T) {
	cfg := testConfig(t)
	cfg.Breaker.FailureThreshold = 2

	h, err := Open(&cfg)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = h.Close() })

	// Kill the connection so every insert fails.
	if err := h.conn.Close(); err != nil {
		t.Fatalf("Closing raw connection failed: %v", err)
	}

	ts := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	batch := []*record.Record{histRecord(1, "topic/a", ts, `1`)}

	for i := 0; i < 2; i++ {
		receipt := publish.NewReceipt()
		err := h.PublishToHistorian(context.Background(), batch, receipt)
		if err == nil {
			t.Fatalf("Attempt %d should have failed", i+1)
		}
		if errors.Is(err, gobreaker.ErrOpenState) {
			t.Fatalf("Breaker opened after %d failures, threshold is 2", i)
		}
		if receipt.AllHandled() {
			t.Errorf("Failed attempt %d reported all handled", i+1)
		}
	}

	err = h.PublishToHistorian(context.Background(), batch, publish.NewReceipt())
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("Expected ErrOpenState after threshold, got %v", err)
	}
	if got := h.BreakerState(); got != "open" {
		t.Errorf("BreakerState = %q, want open", got)
	}
}

func TestHistorian_Ping(t *testing.T) {
	h := openTestHistorian(t)
	if err := h.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestHistorian_CountLargeBatch(t *testing.T) {
	h := openTestHistorian(t)
	ts := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	batch := make([]*record.Record, 0, 500)
	for i := 0; i < 500; i++ {
		batch = append(batch, histRecord(uint64(i+1), fmt.Sprintf("topic/%d", i), ts, `1`))
	}
	if err := h.PublishToHistorian(context.Background(), batch, publish.NewReceipt()); err != nil {
		t.Fatalf("PublishToHistorian failed: %v", err)
	}
	if got := countRecords(t, h); got != 500 {
		t.Errorf("Count = %d, want 500", got)
	}
}
