// Annalist - Store-and-Forward Telemetry Historian
// Copyright 2026 The Annalist Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/annalist-io/annalist

package bus

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"

	"github.com/annalist-io/annalist/internal/logging"
	"github.com/annalist-io/annalist/internal/record"
)

// Observation kinds carried on the bus. They mirror the capture
// surfaces of the ingest front door.
const (
	KindRecord   = "record"
	KindLog      = "log"
	KindDevice   = "device"
	KindAnalysis = "analysis"
)

// Metadata keys producers set on bus messages. The record topic always
// travels in metadata; the NATS subject only routes the message, and
// mapping it back to a slash topic would be lossy.
const (
	// MetadataKind names the observation kind.
	MetadataKind = "kind"
	// MetadataTopic carries the slash-separated record topic.
	MetadataTopic = "topic"
	// MetadataSubject optionally carries the NATS subject. When
	// MetadataKind is absent the kind is read from the token after
	// the telemetry prefix.
	MetadataSubject = "subject"
)

// ParseError marks a message that can never be processed. The consumer
// acks these instead of letting JetStream redeliver them forever.
type ParseError struct {
	Reason string
	Cause  error
}

func (e *ParseError) Error() string {
	if e.Cause != nil {
		return e.Reason + ": " + e.Cause.Error()
	}
	return e.Reason
}

func (e *ParseError) Unwrap() error {
	return e.Cause
}

func newParseError(reason string, cause error) *ParseError {
	return &ParseError{Reason: reason, Cause: cause}
}

// IsParseError reports whether err marks an undecodable message.
func IsParseError(err error) bool {
	var parseErr *ParseError
	return errors.As(err, &parseErr)
}

// scrapeEnvelope is the payload shape for device and analysis
// messages. Values maps point names to readings; Meta carries per-point
// metadata such as units.
type scrapeEnvelope struct {
	Values map[string]any               `json:"values"`
	Meta   map[string]map[string]string `json:"meta"`
}

// observation is a decoded bus message ready for capture.
type observation struct {
	kind    string
	topic   string
	headers record.Headers
	value   json.RawMessage
	points  map[string]any
	meta    map[string]map[string]string
}

// decodeObservation turns a bus message into an observation. All
// returned errors are ParseErrors: the message itself is defective and
// redelivery cannot fix it.
func decodeObservation(msg *message.Message) (*observation, error) {
	topic := msg.Metadata.Get(MetadataTopic)
	if topic == "" {
		return nil, newParseError("missing topic metadata", nil)
	}

	kind := msg.Metadata.Get(MetadataKind)
	if kind == "" {
		kind = kindFromSubject(msg.Metadata.Get(MetadataSubject))
	}

	obs := &observation{
		kind:    kind,
		topic:   topic,
		headers: headersFromMetadata(msg.Metadata),
	}

	switch kind {
	case KindRecord, KindLog:
		if !json.Valid(msg.Payload) {
			return nil, newParseError("payload is not valid JSON", nil)
		}
		obs.value = json.RawMessage(msg.Payload)
	case KindDevice, KindAnalysis:
		var env scrapeEnvelope
		if err := json.Unmarshal(msg.Payload, &env); err != nil {
			return nil, newParseError("decode scrape envelope", err)
		}
		if len(env.Values) == 0 {
			return nil, newParseError("scrape envelope has no values", nil)
		}
		obs.points = env.Values
		obs.meta = env.Meta
	default:
		return nil, newParseError(fmt.Sprintf("unknown observation kind %q", kind), nil)
	}

	return obs, nil
}

// kindFromSubject derives the observation kind from a subject like
// "telemetry.device.campus.b1".
func kindFromSubject(subject string) string {
	rest, ok := strings.CutPrefix(subject, subjectPrefix)
	if !ok {
		return ""
	}
	kind, _, _ := strings.Cut(rest, ".")
	return kind
}

// headersFromMetadata lifts the timestamp headers out of message
// metadata in their canonical order.
func headersFromMetadata(md message.Metadata) record.Headers {
	headers := record.Headers{}
	for _, key := range []string{record.HeaderDate, record.HeaderTimeStamp, record.HeaderSyncTimestamp} {
		if v := md.Get(key); v != "" {
			headers.Set(key, v)
		}
	}
	return headers
}

// CaptureSurface is the slice of the ingest front door the consumer
// drives.
type CaptureSurface interface {
	CaptureRecord(ctx context.Context, topic string, headers record.Headers, value any) (uint64, error)
	CaptureLog(ctx context.Context, topic string, headers record.Headers, value any) (uint64, error)
	CaptureDevice(ctx context.Context, topic string, headers record.Headers, points map[string]any, meta map[string]map[string]string) ([]uint64, error)
	CaptureAnalysis(ctx context.Context, topic string, headers record.Headers, points map[string]any, meta map[string]map[string]string) ([]uint64, error)
}

// Consumer decodes bus messages and feeds them into the front door.
type Consumer struct {
	front   CaptureSurface
	subject string

	messagesReceived  atomic.Int64
	messagesProcessed atomic.Int64
	parseErrors       atomic.Int64
	captureFailures   atomic.Int64
}

// NewConsumer creates a consumer that captures through front.
func NewConsumer(front CaptureSurface, subject string) (*Consumer, error) {
	if front == nil {
		return nil, fmt.Errorf("capture surface required")
	}
	if subject == "" {
		subject = "telemetry.>"
	}
	return &Consumer{front: front, subject: subject}, nil
}

// Run consumes messages from sub until ctx is canceled.
func (c *Consumer) Run(ctx context.Context, sub *Subscriber) error {
	return sub.NewMessageHandler(c.subject).Handle(c.HandleMessage).Run(ctx)
}

// HandleMessage decodes one message and spools the observations it
// carries. Undecodable messages are dropped; returning nil acks them.
// Capture failures are returned so the message is redelivered.
func (c *Consumer) HandleMessage(ctx context.Context, msg *message.Message) error {
	c.messagesReceived.Add(1)
	RecordMessageReceived()

	obs, err := decodeObservation(msg)
	if err != nil {
		c.parseErrors.Add(1)
		RecordParseFailure()
		logging.Warn().Err(err).
			Str("message_uuid", msg.UUID).
			Msg("Dropping undecodable bus message")
		return nil
	}

	if err := c.capture(ctx, obs); err != nil {
		c.captureFailures.Add(1)
		RecordCaptureFailure()
		return fmt.Errorf("capture %s observation: %w", obs.kind, err)
	}

	c.messagesProcessed.Add(1)
	RecordMessageProcessed()
	return nil
}

func (c *Consumer) capture(ctx context.Context, obs *observation) error {
	var err error
	switch obs.kind {
	case KindRecord:
		_, err = c.front.CaptureRecord(ctx, obs.topic, obs.headers, obs.value)
	case KindLog:
		_, err = c.front.CaptureLog(ctx, obs.topic, obs.headers, obs.value)
	case KindDevice:
		_, err = c.front.CaptureDevice(ctx, obs.topic, obs.headers, obs.points, obs.meta)
	case KindAnalysis:
		_, err = c.front.CaptureAnalysis(ctx, obs.topic, obs.headers, obs.points, obs.meta)
	}
	return err
}

// ConsumerStats is a point-in-time snapshot of consumer counters.
type ConsumerStats struct {
	MessagesReceived  int64 `json:"messages_received"`
	MessagesProcessed int64 `json:"messages_processed"`
	ParseErrors       int64 `json:"parse_errors"`
	CaptureFailures   int64 `json:"capture_failures"`
}

// Stats returns current counters.
func (c *Consumer) Stats() ConsumerStats {
	return ConsumerStats{
		MessagesReceived:  c.messagesReceived.Load(),
		MessagesProcessed: c.messagesProcessed.Load(),
		ParseErrors:       c.parseErrors.Load(),
		CaptureFailures:   c.captureFailures.Load(),
	}
}
