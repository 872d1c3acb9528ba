// Annalist - Store-and-Forward Telemetry Historian
// Copyright 2026 The Annalist Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/annalist-io/annalist

// Package main is the entry point for the annalistd agent.
//
// Annalist is a store-and-forward telemetry historian: observations are
// captured into a durable BadgerDB spool, deduplicated, and published in
// batches to a DuckDB historian backend. Records survive process crashes
// and sink outages; the spool keeps absorbing while the downstream is
// away and drains once it returns.
//
// # Application Architecture
//
// The agent initializes components in the following order:
//
//  1. Configuration: layered load from defaults, YAML file, environment (koanf v2)
//  2. Spool: durable BadgerDB record cache
//  3. Historian: DuckDB sink with circuit breaker
//  4. Scheduler: batch drain loop with dedup filter
//  5. Front door: capture surface feeding the spool
//  6. Bus (optional): NATS JetStream consumer, embedded server first if configured
//  7. Ops server: health, status and metrics endpoints
//  8. Supervisor tree: suture-managed lifecycles for everything above
//
// # Configuration
//
// Configuration is loaded via koanf with layered sources (highest
// priority wins):
//   - Environment variables (SPOOL_*, PUBLISH_*, HISTORIAN_*, NATS_*, HTTP_*, LOG_*)
//   - Config file (annalist.yaml, or the path in ANNALIST_CONFIG)
//   - Built-in defaults
//
// # Signal Handling
//
// The agent shuts down gracefully on SIGINT and SIGTERM:
//   - The supervisor tree stops its services, publish loop first
//   - The ops listener drains in-flight requests (10s timeout)
//   - The bus subscriber nacks in-flight messages for redelivery
//   - The spool and historian handles are closed last
//
// # Example Usage
//
// Minimal local deployment (spool plus DuckDB historian, no bus):
//
//	export SPOOL_PATH=/var/lib/annalist/spool
//	export DUCKDB_PATH=/var/lib/annalist/historian.db
//	./annalistd
//
// Consuming from an external NATS cluster:
//
//	export NATS_ENABLED=true
//	export NATS_URL=nats://nats:4222
//	./annalistd
//
// Single-binary deployment with the embedded JetStream server:
//
//	export NATS_ENABLED=true
//	export NATS_EMBEDDED=true
//	export NATS_STORE_DIR=/var/lib/annalist/jetstream
//	./annalistd
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/annalist-io/annalist/internal/bus"
	"github.com/annalist-io/annalist/internal/config"
	"github.com/annalist-io/annalist/internal/historian"
	"github.com/annalist-io/annalist/internal/ingest"
	"github.com/annalist-io/annalist/internal/logging"
	"github.com/annalist-io/annalist/internal/ops"
	"github.com/annalist-io/annalist/internal/publish"
	"github.com/annalist-io/annalist/internal/spool"
	"github.com/annalist-io/annalist/internal/supervisor"
	"github.com/annalist-io/annalist/internal/supervisor/services"
)

func main() {
	// Load configuration first to get logging settings
	cfg, err := config.Load()
	if err != nil {
		// Use default logger for config errors (config not yet available)
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(cfg.LoggingOptions())

	// Every log line of this process carries the same run id, so logs
	// from overlapping restarts can be told apart.
	runID := uuid.NewString()
	logging.SetLogger(logging.With().Str("run_id", runID).Logger())

	logging.Info().Msg("Starting Annalist with supervisor tree")

	// Log the effective pipeline configuration
	logging.Info().
		Str("spool_path", cfg.Spool.Path).
		Str("historian_path", cfg.Historian.Path).
		Int("submit_size_limit", cfg.Publish.SubmitSizeLimit).
		Dur("retry_period", cfg.Publish.RetryPeriod).
		Dur("max_time_publishing", cfg.Publish.MaxTimePublishing).
		Bool("bus_enabled", cfg.Bus.Enabled).
		Msg("Configuration loaded")

	// Open the durable spool
	spoolCfg := cfg.SpoolOptions()
	sp, err := spool.Open(&spoolCfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open spool")
	}
	defer func() {
		if err := sp.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing spool")
		}
	}()

	// Open the historian sink
	histCfg := cfg.HistorianOptions()
	hist, err := historian.Open(&histCfg)
	if err != nil {
		// Fatal exits before defers run, so release the spool here.
		if closeErr := sp.Close(); closeErr != nil {
			logging.Error().Err(closeErr).Msg("Error closing spool")
		}
		logging.Fatal().Err(err).Msg("Failed to open historian")
	}
	defer func() {
		if err := hist.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing historian")
		}
	}()

	// Scheduler drains the spool toward the sink; the front door nudges
	// it awake on every capture.
	scheduler := publish.NewScheduler(sp, hist, cfg.PublishOptions())

	front, err := ingest.NewFrontDoor(sp, scheduler)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create ingest front door")
	}

	// Bring up the bus when enabled (embedded server first, then
	// connection, stream and durable subscriber)
	var msgBus *bus.Bus
	if cfg.Bus.Enabled {
		busCfg := cfg.BusOptions()
		msgBus, err = bus.Open(&busCfg, front)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to open message bus")
		}
		defer func() {
			if err := msgBus.Close(); err != nil {
				logging.Error().Err(err).Msg("Error closing message bus")
			}
		}()
	} else {
		logging.Info().Msg("Message bus disabled (NATS_ENABLED=false)")
	}

	// Ops server reads pipeline state through its dependency interfaces
	deps := ops.Dependencies{
		Spool:     sp,
		Ingest:    front,
		Scheduler: scheduler,
		Historian: hist,
	}
	if msgBus != nil {
		// Assign only a live bus; a typed-nil *bus.Bus in the interface
		// would dodge the handlers' nil checks.
		deps.Bus = msgBus
	}
	opsServer, err := ops.NewServer(cfg.OpsOptions(), deps)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create ops server")
	}
	server := opsServer.HTTPServer()

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Bridge zerolog to slog for sutureslog
	slogLogger := logging.NewSlogLogger()

	tree, err := supervisor.NewSupervisorTree(slogLogger, supervisor.DefaultTreeConfig())
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}

	// Data layer: spool maintenance and the publish loop
	tree.AddDataService(services.NewCompactorService(spool.NewCompactor(sp)))
	tree.AddDataService(services.NewSchedulerService(scheduler))
	logging.Info().Msg("Compactor and scheduler added to supervisor tree")

	// Messaging layer: the bus consume loop
	if msgBus != nil {
		tree.AddMessagingService(services.NewBusService(msgBus))
		logging.Info().Str("subject", cfg.Bus.Subject).Msg("Bus consumer added to supervisor tree")
	}

	// API layer: the ops listener
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))
	logging.Info().Str("addr", server.Addr).Msg("Ops server added to supervisor tree")

	// Setup signal handling
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree...")
	errCh := tree.ServeBackground(ctx)

	// Wait for the supervisor to finish (either from signal or error)
	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish...")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	// Drain the error channel until the supervisor closes it
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	// Report any services that failed to stop within timeout
	unstopped, _ := tree.UnstoppedServiceReport()
	if len(unstopped) > 0 {
		logging.Warn().Int("count", len(unstopped)).Msg("Services failed to stop within timeout")
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
		}
	}

	logging.Info().Msg("Annalist stopped gracefully")
}
