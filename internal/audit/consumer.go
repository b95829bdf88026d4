package audit

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"
)

// Consumer listens on the audit subject and persists events to the database.
type Consumer struct {
	repo *Repository
	bus  *Bus
}

// NewConsumer creates a new audit event Consumer.
func NewConsumer(repo *Repository, bus *Bus) *Consumer {
	return &Consumer{repo: repo, bus: bus}
}

// Start begins the consume loop. Blocks until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	consumer, err := c.bus.EnsureConsumer(ctx, "audit-persister")
	if err != nil {
		return err
	}

	slog.Info("audit consumer started", "consumer", "audit-persister")

	for {
		msgs, err := consumer.Fetch(10, jetstream.FetchMaxWait(FetchTimeout))
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Debug("audit consumer: fetching events", "error", err)
			continue
		}

		for msg := range msgs.Messages() {
			c.handleEvent(ctx, msg)
		}

		if ctx.Err() != nil {
			return nil
		}
	}
}

func (c *Consumer) handleEvent(ctx context.Context, msg jetstream.Msg) {
	var event Event
	if err := json.Unmarshal(msg.Data(), &event); err != nil {
		slog.Error("audit consumer: unmarshaling event", "error", err)
		_ = msg.Nak()
		return
	}

	log := convertEventToLog(event)

	if err := c.repo.Insert(ctx, log); err != nil {
		slog.Error("audit consumer: persisting audit log", "error", err, "event_type", event.EventType)
		_ = msg.Nak()
		return
	}

	_ = msg.Ack()

	slog.Debug("audit consumer: persisted event",
		"event_type", event.EventType,
		"owner", event.OwnerID,
		"resource_id", event.ResourceID,
	)
}

func convertEventToLog(event Event) *Log {
	log := &Log{
		ID:         uuid.New(),
		OwnerID:    event.OwnerID,
		EventType:  event.EventType,
		Severity:   event.Severity,
		ResourceID: event.ResourceID,
		CreatedAt:  event.Timestamp,
	}

	detailsMap := map[string]string{"message": event.Details}
	if data, err := json.Marshal(detailsMap); err == nil {
		log.Details = data
	}

	return log
}
