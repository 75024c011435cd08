// Package audit records account events from the account.events stream into
// the account_audit_log table.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/eaglebank/identity-service/shared/events"
)

// Entry is one row of the audit log.
type Entry struct {
	StreamID   string
	EventType  string
	AccountID  string
	Payload    json.RawMessage
	OccurredAt time.Time
}

// Store appends entries. Recording the same StreamID twice must be a no-op so
// redelivered messages are harmless.
type Store interface {
	Record(ctx context.Context, entry Entry) error
}

// Consumer is the events.Handler side of the audit worker.
type Consumer struct {
	store Store
}

func NewConsumer(store Store) *Consumer {
	return &Consumer{store: store}
}

// HandleAccountEvent is the Redis stream subscriber handler.
func (c *Consumer) HandleAccountEvent(ctx context.Context, event events.Event) error {
	payload, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", event.Type, err)
	}
	var data events.AccountEvent
	if err := json.Unmarshal(payload, &data); err != nil {
		return fmt.Errorf("failed to unmarshal %s event: %w", event.Type, err)
	}
	if data.AccountID == "" {
		// Nothing to attribute it to; ack and move on.
		slog.WarnContext(ctx, "skipping account event without account id", "type", event.Type, "id", event.ID)
		return nil
	}

	occurred := event.Timestamp
	if occurred.IsZero() {
		occurred = time.Now().UTC()
	}

	if err := c.store.Record(ctx, Entry{
		StreamID:   event.ID,
		EventType:  event.Type,
		AccountID:  data.AccountID,
		Payload:    payload,
		OccurredAt: occurred,
	}); err != nil {
		return err
	}
	slog.DebugContext(ctx, "account event recorded", "type", event.Type, "account_id", data.AccountID)
	return nil
}
