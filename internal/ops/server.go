// Annalist - Store-and-Forward Telemetry Historian
// Copyright 2026 The Annalist Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/annalist-io/annalist

package ops

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/annalist-io/annalist/internal/bus"
	"github.com/annalist-io/annalist/internal/ingest"
	"github.com/annalist-io/annalist/internal/publish"
	"github.com/annalist-io/annalist/internal/spool"
)

// SpoolDepther reports the durable cache state. Depth doubles as the
// openness probe: a closed spool returns an error.
type SpoolDepther interface {
	Depth(ctx context.Context) (int64, error)
	Stats() spool.Stats
}

// IngestCounter reports front door counters.
type IngestCounter interface {
	Stats() ingest.Stats
}

// SchedulerReporter reports the publish scheduler state.
type SchedulerReporter interface {
	IsRunning() bool
	Stats() publish.SchedulerStats
}

// SinkProber reports the downstream database state.
type SinkProber interface {
	Ping(ctx context.Context) error
	Count(ctx context.Context) (int64, error)
	BreakerState() string
}

// BusReporter reports the optional message bus state.
type BusReporter interface {
	Connected() bool
	Stats() bus.ConsumerStats
	StreamInfo(ctx context.Context) (uint64, error)
}

// Dependencies are the pipeline components the endpoints read from.
// Bus is nil when the bus is disabled.
type Dependencies struct {
	Spool     SpoolDepther
	Ingest    IngestCounter
	Scheduler SchedulerReporter
	Historian SinkProber
	Bus       BusReporter
}

// Server exposes the operational endpoints over HTTP.
type Server struct {
	config    Config
	spool     SpoolDepther
	front     IngestCounter
	scheduler SchedulerReporter
	historian SinkProber
	bus       BusReporter
	startTime time.Time
}

// NewServer builds an ops server over the given pipeline components.
func NewServer(config Config, deps Dependencies) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if deps.Spool == nil {
		return nil, errors.New("ops: spool is required")
	}
	if deps.Ingest == nil {
		return nil, errors.New("ops: ingest front door is required")
	}
	if deps.Scheduler == nil {
		return nil, errors.New("ops: scheduler is required")
	}
	if deps.Historian == nil {
		return nil, errors.New("ops: historian is required")
	}

	return &Server{
		config:    config,
		spool:     deps.Spool,
		front:     deps.Ingest,
		scheduler: deps.Scheduler,
		historian: deps.Historian,
		bus:       deps.Bus,
		startTime: time.Now(),
	}, nil
}

// Handler configures the HTTP routes using the Chi router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(requestMetrics)

	r.Get("/health", s.handleHealth)
	r.Get("/health/live", s.handleHealthLive)
	r.Get("/health/ready", s.handleHealthReady)
	r.Get("/status", s.handleStatus)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "Unknown endpoint")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed")
	})

	return r
}

// HTTPServer wraps the handler in a configured http.Server.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.config.Host, s.config.Port),
		Handler:      s.Handler(),
		ReadTimeout:  s.config.RequestTimeout,
		WriteTimeout: s.config.RequestTimeout,
		IdleTimeout:  60 * time.Second,
	}
}
