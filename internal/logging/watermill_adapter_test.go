// Annalist - Store-and-Forward Telemetry Historian
// Copyright 2026 The Annalist Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/annalist-io/annalist

package logging

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/rs/zerolog"
)

func newCaptureWatermillAdapter(buf *bytes.Buffer) *WatermillAdapter {
	zl := zerolog.New(buf).Level(zerolog.TraceLevel)
	return NewWatermillAdapterWithLogger(zl)
}

func TestWatermillAdapterLevels(t *testing.T) {
	var buf bytes.Buffer
	adapter := newCaptureWatermillAdapter(&buf)

	tests := []struct {
		name    string
		logFunc func()
		level   string
	}{
		{"Trace", func() { adapter.Trace("trc", nil) }, "trace"},
		{"Debug", func() { adapter.Debug("dbg", nil) }, "debug"},
		{"Info", func() { adapter.Info("inf", nil) }, "info"},
		{"Error", func() { adapter.Error("err", errors.New("boom"), nil) }, "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf.Reset()
			tt.logFunc()
			if !strings.Contains(buf.String(), `"level":"`+tt.level+`"`) {
				t.Errorf("expected level %q, got: %s", tt.level, buf.String())
			}
		})
	}
}

func TestWatermillAdapterFields(t *testing.T) {
	var buf bytes.Buffer
	adapter := newCaptureWatermillAdapter(&buf)

	adapter.Info("subscribed", watermill.LogFields{
		"topic":     "telemetry.>",
		"consumers": 1,
	})

	output := buf.String()
	for _, want := range []string{`"topic":"telemetry.>"`, `"consumers":1`, `"message":"subscribed"`} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %s: %s", want, output)
		}
	}
}

func TestWatermillAdapterError(t *testing.T) {
	var buf bytes.Buffer
	adapter := newCaptureWatermillAdapter(&buf)

	adapter.Error("handler failed", errors.New("spool unavailable"), watermill.LogFields{
		"message_uuid": "abc",
	})

	output := buf.String()
	if !strings.Contains(output, `"error":"spool unavailable"`) {
		t.Errorf("output missing error field: %s", output)
	}
	if !strings.Contains(output, `"message_uuid":"abc"`) {
		t.Errorf("output missing message_uuid field: %s", output)
	}
}

func TestWatermillAdapterWith(t *testing.T) {
	var buf bytes.Buffer
	adapter := newCaptureWatermillAdapter(&buf)

	child := adapter.With(watermill.LogFields{"component": "subscriber"})
	child.Info("ready", nil)

	if !strings.Contains(buf.String(), `"component":"subscriber"`) {
		t.Errorf("With fields not carried: %s", buf.String())
	}

	buf.Reset()
	adapter.Info("plain", nil)
	if strings.Contains(buf.String(), `"component"`) {
		t.Errorf("parent adapter should not carry child fields: %s", buf.String())
	}
}
