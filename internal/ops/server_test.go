// Annalist - Store-and-Forward Telemetry Historian
// Copyright 2026 The Annalist Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/annalist-io/annalist

package ops

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/annalist-io/annalist/internal/bus"
	"github.com/annalist-io/annalist/internal/ingest"
	"github.com/annalist-io/annalist/internal/publish"
	"github.com/annalist-io/annalist/internal/spool"
)

type fakeSpool struct {
	depth    int64
	depthErr error
	stats    spool.Stats
}

func (f *fakeSpool) Depth(ctx context.Context) (int64, error) {
	return f.depth, f.depthErr
}

func (f *fakeSpool) Stats() spool.Stats {
	return f.stats
}

type fakeIngest struct {
	stats ingest.Stats
}

func (f *fakeIngest) Stats() ingest.Stats {
	return f.stats
}

type fakeScheduler struct {
	running bool
	stats   publish.SchedulerStats
}

func (f *fakeScheduler) IsRunning() bool {
	return f.running
}

func (f *fakeScheduler) Stats() publish.SchedulerStats {
	return f.stats
}

type fakeHistorian struct {
	pingErr  error
	count    int64
	countErr error
	breaker  string
}

func (f *fakeHistorian) Ping(ctx context.Context) error {
	return f.pingErr
}

func (f *fakeHistorian) Count(ctx context.Context) (int64, error) {
	return f.count, f.countErr
}

func (f *fakeHistorian) BreakerState() string {
	return f.breaker
}

type fakeBus struct {
	connected bool
	stats     bus.ConsumerStats
	stream    uint64
	streamErr error
}

func (f *fakeBus) Connected() bool {
	return f.connected
}

func (f *fakeBus) Stats() bus.ConsumerStats {
	return f.stats
}

func (f *fakeBus) StreamInfo(ctx context.Context) (uint64, error) {
	return f.stream, f.streamErr
}

// newTestServer builds a server over fakes, filling in healthy defaults
// for any dependency the test does not care about.
func newTestServer(t *testing.T, deps Dependencies) *Server {
	t.Helper()

	if deps.Spool == nil {
		deps.Spool = &fakeSpool{depth: 3, stats: spool.Stats{Depth: 3}}
	}
	if deps.Ingest == nil {
		deps.Ingest = &fakeIngest{}
	}
	if deps.Scheduler == nil {
		deps.Scheduler = &fakeScheduler{running: true}
	}
	if deps.Historian == nil {
		deps.Historian = &fakeHistorian{breaker: "closed"}
	}

	srv, err := NewServer(DefaultConfig(), deps)
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	return srv
}

// doRequest performs a request against the router and decodes the
// envelope.
func doRequest(t *testing.T, h http.Handler, method, path string) (*httptest.ResponseRecorder, *Response) {
	t.Helper()

	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	resp := &Response{}
	if err := json.Unmarshal(rec.Body.Bytes(), resp); err != nil {
		t.Fatalf("Failed to decode response %q: %v", rec.Body.String(), err)
	}
	return rec, resp
}

// dataMap asserts the envelope data is a JSON object and returns it.
func dataMap(t *testing.T, resp *Response) map[string]interface{} {
	t.Helper()

	m, ok := resp.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("Response.Data = %T, want map", resp.Data)
	}
	return m
}

func TestNewServerRequiresDependencies(t *testing.T) {
	t.Parallel()

	full := Dependencies{
		Spool:     &fakeSpool{},
		Ingest:    &fakeIngest{},
		Scheduler: &fakeScheduler{},
		Historian: &fakeHistorian{},
	}

	tests := []struct {
		name   string
		mutate func(*Dependencies)
	}{
		{"missing spool", func(d *Dependencies) { d.Spool = nil }},
		{"missing ingest", func(d *Dependencies) { d.Ingest = nil }},
		{"missing scheduler", func(d *Dependencies) { d.Scheduler = nil }},
		{"missing historian", func(d *Dependencies) { d.Historian = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			deps := full
			tt.mutate(&deps)
			if _, err := NewServer(DefaultConfig(), deps); err == nil {
				t.Fatalf("NewServer() = nil error, want error")
			}
		})
	}

	// The bus is optional.
	if _, err := NewServer(DefaultConfig(), full); err != nil {
		t.Fatalf("NewServer() without bus error = %v", err)
	}
}

func TestNewServerValidatesConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Port = 0

	_, err := NewServer(cfg, Dependencies{
		Spool:     &fakeSpool{},
		Ingest:    &fakeIngest{},
		Scheduler: &fakeScheduler{},
		Historian: &fakeHistorian{},
	})
	if err == nil {
		t.Fatalf("NewServer() = nil error, want config error")
	}
}

func TestRouterUnknownEndpoint(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, Dependencies{})
	rec, resp := doRequest(t, srv.Handler(), http.MethodGet, "/nope")

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
	if resp.Status != "error" {
		t.Errorf("Response.Status = %q, want error", resp.Status)
	}
	if resp.Error == nil || resp.Error.Code != "NOT_FOUND" {
		t.Errorf("Response.Error = %+v, want NOT_FOUND", resp.Error)
	}
}

func TestRouterMethodNotAllowed(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, Dependencies{})
	rec, resp := doRequest(t, srv.Handler(), http.MethodPost, "/health")

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
	if resp.Error == nil || resp.Error.Code != "METHOD_NOT_ALLOWED" {
		t.Errorf("Response.Error = %+v, want METHOD_NOT_ALLOWED", resp.Error)
	}
}

func TestRouterMetricsEndpoint(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, Dependencies{})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "# HELP") {
		t.Errorf("metrics body missing exposition text")
	}
}

func TestHTTPServer(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, Dependencies{})
	hs := srv.HTTPServer()

	if hs.Addr != "127.0.0.1:8337" {
		t.Errorf("Addr = %q, want 127.0.0.1:8337", hs.Addr)
	}
	if hs.ReadTimeout != 30*time.Second {
		t.Errorf("ReadTimeout = %v, want 30s", hs.ReadTimeout)
	}
	if hs.Handler == nil {
		t.Errorf("Handler is nil")
	}
}
