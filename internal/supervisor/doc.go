// Annalist - Store-and-Forward Telemetry Historian
// Copyright 2026 The Annalist Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/annalist-io/annalist

/*
Package supervisor provides process supervision for Annalist using suture v4.

The package builds a hierarchical supervisor tree that manages the
lifecycle of every long-running component in the historian, with
Erlang/OTP-style automatic restart, failure isolation and graceful
shutdown.

# Overview

Services are organized into three layers:

	RootSupervisor ("annalist")
	├── DataSupervisor ("data-layer")
	│   ├── CompactorService (spool maintenance)
	│   └── SchedulerService (publish loop)
	├── MessagingSupervisor ("messaging-layer")
	│   └── BusService (if the bus is enabled)
	└── APISupervisor ("api-layer")
	    └── HTTPServerService (ops listener)

The hierarchy ensures that a crashing bus consumer does not disturb
the publish loop draining the spool, and that neither takes the ops
endpoints down with it. Each layer restarts its own children with
independent failure counting.

# Restart Behavior

Each service failure increments a counter that decays exponentially
over FailureDecay seconds. When the counter crosses FailureThreshold
the supervisor delays restarts by FailureBackoff. A service that
returns nil stopped deliberately and is not restarted; a service that
returns an error crashed and is.

# Usage

	logger := logging.NewSlogLogger()
	tree, err := supervisor.NewSupervisorTree(logger, supervisor.DefaultTreeConfig())
	if err != nil {
		return err
	}

	tree.AddDataService(services.NewCompactorService(compactor))
	tree.AddDataService(services.NewSchedulerService(scheduler))
	tree.AddAPIService(services.NewHTTPServerService(srv, 10*time.Second))

	errCh := tree.ServeBackground(ctx)
	// ... wait for shutdown ...
	if err := <-errCh; err != nil {
		logging.Warn().Err(err).Msg("Supervisor stopped")
	}

Supervision events (starts, stops, failures, backoff) are logged
through the sutureslog adapter, which feeds the slog handler backed by
the global zerolog logger.

# What Is Not Supervised

The spool and the historian sink are embedded stores, not long-running
services; their handles are opened in main and closed on the way out.
A crash inside BadgerDB or DuckDB would require a process restart
anyway.

# Debugging Shutdown

If services ignore cancellation, UnstoppedServiceReport names them:

	report, _ := tree.UnstoppedServiceReport()
	for _, svc := range report {
		logging.Warn().Str("service", fmt.Sprint(svc.Service)).Msg("Service did not stop")
	}
*/
package supervisor
