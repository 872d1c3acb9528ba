// Annalist - Store-and-Forward Telemetry Historian
// Copyright 2026 The Annalist Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/annalist-io/annalist

/*
Package services provides suture.Service wrappers for Annalist components.

Each wrapper translates a component's native lifecycle into suture's
context-aware Serve pattern:

	type Service interface {
		Serve(ctx context.Context) error
	}

Three lifecycle shapes appear in the historian, and each has a wrapper:

Start/Stop components (SchedulerService, CompactorService) spawn their
own goroutines. Serve starts the component, blocks on the context, then
stops it:

	if err := s.component.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	s.component.Stop()
	return ctx.Err()

Blocking runners (BusService) already block until cancellation, so
Serve delegates directly and only classifies the returned error.

Listeners (HTTPServerService) block in ListenAndServe and shut down
through a separate call, so Serve runs the listener in a goroutine and
drains it with Shutdown when the context ends.

Return values steer the supervisor: nil means a deliberate stop with no
restart, an error means a crash to restart with backoff, and ctx.Err()
marks a normal shutdown. Every wrapper implements fmt.Stringer so
supervision logs name the service.

The wrappers depend on small local interfaces rather than the concrete
component types, which keeps them testable with in-memory doubles and
free of import cycles.
*/
package services
