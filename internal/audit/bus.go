package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/medianamer-platform/medianamer/internal/config"
)

const (
	// StreamEvents holds audit events until the persister consumes them.
	StreamEvents = "MEDIANAMER_EVENTS"

	SubjectEvent = "medianamer.events.audit"

	// FetchTimeout is the max wait for batch fetching from the consumer.
	FetchTimeout = 2 * time.Second
)

// Event is one security- or billing-relevant occurrence published for
// persistence: rate-limit rejections, permission denials, credit
// mutations, fallback dispatches.
type Event struct {
	OwnerID    string    `json:"owner_id"`
	EventType  string    `json:"event_type"`
	Severity   string    `json:"severity"` // info, warn, error
	ResourceID string    `json:"resource_id,omitempty"`
	Details    string    `json:"details,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Bus wraps the NATS connection, the events stream, and typed publishing.
type Bus struct {
	conn *nats.Conn
	js   jetstream.JetStream
}

// NewBus connects to NATS and ensures the events stream exists.
func NewBus(ctx context.Context, cfg config.NATSConfig) (*Bus, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(10),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			slog.Info("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("creating JetStream context: %w", err)
	}

	b := &Bus{conn: nc, js: js}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      StreamEvents,
		Subjects:  []string{"medianamer.events.>"},
		Retention: jetstream.LimitsPolicy,
		MaxAge:    7 * 24 * time.Hour,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensuring events stream: %w", err)
	}

	slog.Info("connected to NATS", "url", cfg.URL)
	return b, nil
}

// Publish emits an audit event. Failures are logged by callers; audit
// publishing never blocks the operation that produced the event.
func (b *Bus) Publish(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling audit event: %w", err)
	}
	if _, err := b.js.Publish(ctx, SubjectEvent, payload); err != nil {
		return fmt.Errorf("publishing audit event: %w", err)
	}
	return nil
}

// PublishEvent is a convenience wrapper over Publish for callers that hold
// plain fields instead of an Event.
func (b *Bus) PublishEvent(ctx context.Context, ownerID, eventType, severity, resourceID, details string) error {
	return b.Publish(ctx, Event{
		OwnerID:    ownerID,
		EventType:  eventType,
		Severity:   severity,
		ResourceID: resourceID,
		Details:    details,
	})
}

// EnsureConsumer creates or updates the durable persister consumer.
func (b *Bus) EnsureConsumer(ctx context.Context, name string) (jetstream.Consumer, error) {
	consumer, err := b.js.CreateOrUpdateConsumer(ctx, StreamEvents, jetstream.ConsumerConfig{
		Durable:       name,
		FilterSubject: SubjectEvent,
		AckPolicy:     jetstream.AckExplicitPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("ensuring consumer %s: %w", name, err)
	}
	return consumer, nil
}

// Healthy returns true if the NATS connection is active.
func (b *Bus) Healthy() bool {
	return b.conn.IsConnected()
}

// Close drains and closes the NATS connection.
func (b *Bus) Close() {
	if err := b.conn.Drain(); err != nil {
		slog.Warn("draining NATS connection", "error", err)
	}
}
