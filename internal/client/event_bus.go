package client

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// EventBus publishes and subscribes to request change events over NATS.
//
// Subject convention: hrops.requests.updated.<request_id>
//
// Publishing is non-fatal by design: the workflow mutation has already
// committed when an event goes out, so errors are logged and dropped.
// Subscriptions ride on the NATS client's automatic reconnect, which gives
// live views their silent resume across transient outages.
type EventBus struct {
	conn *nats.Conn
	log  zerolog.Logger
}

// RequestUpdatedEvent is the JSON payload of a change event.
type RequestUpdatedEvent struct {
	RequestID string    `json:"request_id"`
	At        time.Time `json:"at"`
}

// NewEventBus connects to NATS with unlimited reconnects.
func NewEventBus(url string, log zerolog.Logger) (*EventBus, error) {
	conn, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, err
	}
	return &EventBus{conn: conn, log: log}, nil
}

// Close drains and closes the connection.
func (b *EventBus) Close() {
	if b.conn != nil {
		_ = b.conn.Drain()
	}
}

// PublishRequestUpdated emits a change event for a request.
func (b *EventBus) PublishRequestUpdated(ctx context.Context, requestID string) {
	if b.conn == nil {
		return
	}

	data, err := json.Marshal(RequestUpdatedEvent{RequestID: requestID, At: time.Now()})
	if err != nil {
		b.log.Warn().Err(err).Msg("event bus: failed to marshal event")
		return
	}

	subject := "hrops.requests.updated." + requestID
	if err := b.conn.Publish(subject, data); err != nil {
		b.log.Warn().Err(err).
			Str("subject", subject).
			Msg("event bus: failed to publish change event (non-fatal)")
		return
	}

	b.log.Debug().Str("subject", subject).Msg("event bus: change event published")
}

// SubscribeRequestUpdates invokes fn for every request change event until the
// returned unsubscribe function is called. fn receives the request id.
func (b *EventBus) SubscribeRequestUpdates(fn func(requestID string)) (func(), error) {
	sub, err := b.conn.Subscribe("hrops.requests.updated.>", func(msg *nats.Msg) {
		var ev RequestUpdatedEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			b.log.Warn().Err(err).Msg("event bus: malformed change event")
			return
		}
		fn(ev.RequestID)
	})
	if err != nil {
		return nil, err
	}
	return func() { _ = sub.Unsubscribe() }, nil
}
