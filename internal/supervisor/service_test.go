// Annalist - Store-and-Forward Telemetry Historian
// Copyright 2026 The Annalist Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/annalist-io/annalist

package supervisor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/thejerf/suture/v4"
)

// TestMockService validates the test helper itself so the tree tests
// can rely on its behavior.
func TestMockService(t *testing.T) {
	t.Run("implements suture.Service", func(t *testing.T) {
		var _ suture.Service = (*MockService)(nil)
	})

	t.Run("runs until context canceled", func(t *testing.T) {
		svc := NewMockService("test")
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()

		err := svc.Serve(ctx)
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected context.DeadlineExceeded, got %v", err)
		}
		if svc.StartCount() != 1 {
			t.Errorf("expected 1 start, got %d", svc.StartCount())
		}
		if svc.StopCount() != 1 {
			t.Errorf("expected 1 stop, got %d", svc.StopCount())
		}
	})

	t.Run("returns configured error immediately", func(t *testing.T) {
		svc := NewMockService("test")
		wantErr := errors.New("boom")
		svc.SetError(wantErr)

		err := svc.Serve(context.Background())
		if !errors.Is(err, wantErr) {
			t.Errorf("expected configured error, got %v", err)
		}
	})

	t.Run("consumes fail budget before running", func(t *testing.T) {
		svc := NewMockService("test")
		svc.SetFailCount(2)

		if err := svc.Serve(context.Background()); err == nil {
			t.Error("first Serve should fail")
		}
		if err := svc.Serve(context.Background()); err == nil {
			t.Error("second Serve should fail")
		}

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		if err := svc.Serve(ctx); !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("third Serve should run until cancellation, got %v", err)
		}

		if svc.StartCount() != 3 {
			t.Errorf("expected 3 starts, got %d", svc.StartCount())
		}
	})

	t.Run("String returns service name", func(t *testing.T) {
		svc := NewMockService("spool-compactor")
		if svc.String() != "spool-compactor" {
			t.Errorf("expected 'spool-compactor', got %q", svc.String())
		}
	})
}
