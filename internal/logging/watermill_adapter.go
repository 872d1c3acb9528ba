// Annalist - Store-and-Forward Telemetry Historian
// Copyright 2026 The Annalist Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/annalist-io/annalist

package logging

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/rs/zerolog"
)

// WatermillAdapter implements watermill.LoggerAdapter on top of zerolog
// so the message bus logs through the global logger like everything else.
type WatermillAdapter struct {
	logger zerolog.Logger
}

// NewWatermillAdapter creates a watermill logger backed by the global
// zerolog logger.
func NewWatermillAdapter() *WatermillAdapter {
	return &WatermillAdapter{logger: Logger()}
}

// NewWatermillAdapterWithLogger creates a watermill logger with a specific
// zerolog logger.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewWatermillAdapterWithLogger(logger zerolog.Logger) *WatermillAdapter {
	return &WatermillAdapter{logger: logger}
}

// Error logs an error message.
func (a *WatermillAdapter) Error(msg string, err error, fields watermill.LogFields) {
	addLogFields(a.logger.Error().Err(err), fields).Msg(msg)
}

// Info logs an informational message.
func (a *WatermillAdapter) Info(msg string, fields watermill.LogFields) {
	addLogFields(a.logger.Info(), fields).Msg(msg)
}

// Debug logs a debug message.
func (a *WatermillAdapter) Debug(msg string, fields watermill.LogFields) {
	addLogFields(a.logger.Debug(), fields).Msg(msg)
}

// Trace logs a trace message.
func (a *WatermillAdapter) Trace(msg string, fields watermill.LogFields) {
	addLogFields(a.logger.Trace(), fields).Msg(msg)
}

// With returns a logger that always carries the given fields.
func (a *WatermillAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	ctx := a.logger.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &WatermillAdapter{logger: ctx.Logger()}
}

func addLogFields(event *zerolog.Event, fields watermill.LogFields) *zerolog.Event {
	for k, v := range fields {
		event = event.Interface(k, v)
	}
	return event
}
