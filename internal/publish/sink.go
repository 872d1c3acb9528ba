// Annalist - Store-and-Forward Telemetry Historian
// Copyright 2026 The Annalist Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/annalist-io/annalist

package publish

import (
	"context"
	"fmt"

	"github.com/annalist-io/annalist/internal/record"
)

// Sink delivers deduplicated batches to a historian backend.
type Sink interface {
	// PublishToHistorian stores the batch in the backend. Implementations
	// must honor ctx and acknowledge through the receipt before returning:
	// ReportAllHandled for a wholesale success, or ReportHandled for the
	// subset that was durably stored. Returning nil without any
	// acknowledgment is treated as a failure by the scheduler.
	PublishToHistorian(ctx context.Context, batch []*record.Record, receipt *Receipt) error
}

// PublishError wraps an error returned by a Sink. It marks the attempt as
// recoverable: the scheduler backs off and retries the same records.
type PublishError struct {
	Err error
}

func (e *PublishError) Error() string {
	return "publish: " + e.Err.Error()
}

func (e *PublishError) Unwrap() error {
	return e.Err
}

// Errors
var (
	// ErrPublishTimeout is returned when a publish attempt exceeds
	// MaxTimePublishing before the sink concludes.
	ErrPublishTimeout = fmt.Errorf("publish attempt timed out")

	// ErrNoAcknowledgment is returned when a sink reports success without
	// acknowledging any records.
	ErrNoAcknowledgment = fmt.Errorf("sink returned without acknowledgment")
)
