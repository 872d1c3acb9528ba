// Annalist - Store-and-Forward Telemetry Historian
// Copyright 2026 The Annalist Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/annalist-io/annalist

package ops

import (
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/annalist-io/annalist/internal/bus"
	"github.com/annalist-io/annalist/internal/ingest"
	"github.com/annalist-io/annalist/internal/logging"
	"github.com/annalist-io/annalist/internal/publish"
)

// Response is the JSON envelope every endpoint returns.
type Response struct {
	Status   string       `json:"status"`
	Data     interface{}  `json:"data"`
	Metadata Metadata     `json:"metadata"`
	Error    *ErrorDetail `json:"error,omitempty"`
}

// Metadata carries response metadata.
type Metadata struct {
	Timestamp time.Time `json:"timestamp"`
}

// ErrorDetail describes an error response.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// HealthStatus is the /health payload.
type HealthStatus struct {
	Status             string  `json:"status"`
	Version            string  `json:"version"`
	SpoolOpen          bool    `json:"spool_open"`
	SpoolDepth         int64   `json:"spool_depth"`
	HistorianConnected bool    `json:"historian_connected"`
	SchedulerRunning   bool    `json:"scheduler_running"`
	BusEnabled         bool    `json:"bus_enabled"`
	BusConnected       bool    `json:"bus_connected"`
	Uptime             float64 `json:"uptime"`
}

// PipelineStatus is the /status payload.
type PipelineStatus struct {
	Scheduler publish.SchedulerStats `json:"scheduler"`
	Spool     SpoolStatus            `json:"spool"`
	Ingest    ingest.Stats           `json:"ingest"`
	Historian HistorianStatus        `json:"historian"`
	Bus       *BusStatus             `json:"bus,omitempty"`
	Uptime    float64                `json:"uptime"`
}

// SpoolStatus mirrors spool.Stats with wire names.
type SpoolStatus struct {
	Depth        int64  `json:"depth"`
	LastID       uint64 `json:"last_id"`
	TotalInserts int64  `json:"total_inserts"`
	TotalRemoves int64  `json:"total_removes"`
	DBSizeBytes  int64  `json:"db_size_bytes"`
}

// HistorianStatus reports the sink database.
type HistorianStatus struct {
	Connected    bool   `json:"connected"`
	Records      int64  `json:"records"`
	BreakerState string `json:"breaker_state"`
}

// BusStatus reports the message bus when it is enabled.
type BusStatus struct {
	Connected      bool              `json:"connected"`
	StreamMessages uint64            `json:"stream_messages"`
	Consumer       bus.ConsumerStats `json:"consumer"`
}

// handleHealth reports overall pipeline health. A closed spool makes the
// service unhealthy; an unreachable sink or disconnected bus only
// degrades it, the spool keeps absorbing records either way.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	depth, err := s.spool.Depth(ctx)
	spoolOpen := err == nil
	historianConnected := s.historian.Ping(ctx) == nil

	busEnabled := s.bus != nil
	busConnected := busEnabled && s.bus.Connected()

	status := "healthy"
	if !spoolOpen {
		status = "unhealthy"
	} else if !historianConnected {
		status = "degraded"
	} else if busEnabled && !busConnected {
		status = "degraded"
	}

	health := HealthStatus{
		Status:             status,
		Version:            "1.0.0",
		SpoolOpen:          spoolOpen,
		SpoolDepth:         depth,
		HistorianConnected: historianConnected,
		SchedulerRunning:   s.scheduler.IsRunning(),
		BusEnabled:         busEnabled,
		BusConnected:       busConnected,
		Uptime:             time.Since(s.startTime).Seconds(),
	}

	respondJSON(w, http.StatusOK, &Response{
		Status: "success",
		Data:   health,
		Metadata: Metadata{
			Timestamp: time.Now(),
		},
	})
}

// handleHealthLive answers liveness probes. Returns 200 OK if the
// process is alive, regardless of dependencies.
func (s *Server) handleHealthLive(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, &Response{
		Status: "success",
		Data: map[string]interface{}{
			"alive":  true,
			"uptime": time.Since(s.startTime).Seconds(),
		},
		Metadata: Metadata{
			Timestamp: time.Now(),
		},
	})
}

// handleHealthReady answers readiness probes. Ready means the spool is
// open and the sink is reachable; a degraded sink returns 503 so
// orchestrators can hold traffic until the backlog can drain.
func (s *Server) handleHealthReady(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	_, err := s.spool.Depth(ctx)
	spoolOpen := err == nil
	historianConnected := s.historian.Ping(ctx) == nil
	ready := spoolOpen && historianConnected

	statusCode := http.StatusOK
	status := "ready"
	if !ready {
		statusCode = http.StatusServiceUnavailable
		status = "not_ready"
	}

	respondJSON(w, statusCode, &Response{
		Status: status,
		Data: map[string]interface{}{
			"spool_open":          spoolOpen,
			"historian_connected": historianConnected,
			"ready_to_serve":      ready,
			"uptime":              time.Since(s.startTime).Seconds(),
		},
		Metadata: Metadata{
			Timestamp: time.Now(),
		},
	})
}

// handleStatus reports a full pipeline snapshot.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sp := s.spool.Stats()

	status := PipelineStatus{
		Scheduler: s.scheduler.Stats(),
		Spool: SpoolStatus{
			Depth:        sp.Depth,
			LastID:       sp.LastID,
			TotalInserts: sp.TotalInserts,
			TotalRemoves: sp.TotalRemoves,
			DBSizeBytes:  sp.DBSizeBytes,
		},
		Ingest: s.front.Stats(),
		Uptime: time.Since(s.startTime).Seconds(),
	}

	hist := HistorianStatus{
		BreakerState: s.historian.BreakerState(),
	}
	if s.historian.Ping(ctx) == nil {
		hist.Connected = true
		if n, err := s.historian.Count(ctx); err == nil {
			hist.Records = n
		}
	}
	status.Historian = hist

	if s.bus != nil {
		b := BusStatus{
			Connected: s.bus.Connected(),
			Consumer:  s.bus.Stats(),
		}
		if n, err := s.bus.StreamInfo(ctx); err == nil {
			b.StreamMessages = n
		}
		status.Bus = &b
	}

	respondJSON(w, http.StatusOK, &Response{
		Status: "success",
		Data:   status,
		Metadata: Metadata{
			Timestamp: time.Now(),
		},
	})
}

// respondJSON sends a JSON response with proper headers.
func respondJSON(w http.ResponseWriter, status int, response *Response) {
	w.Header().Set("Content-Type", "application/json")

	data, err := json.Marshal(response)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Error().Err(err).Msg("Failed to write JSON response")
	}
}

// respondError sends an error response in the same envelope.
func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, &Response{
		Status: "error",
		Metadata: Metadata{
			Timestamp: time.Now(),
		},
		Error: &ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}
