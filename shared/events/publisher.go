package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// StreamAdder is the part of *redis.Client a Publisher writes through.
type StreamAdder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// Publisher appends events to one stream. Each entry carries the event type
// as its own field, so XRANGE readers can filter without decoding the body.
type Publisher struct {
	client StreamAdder
	stream string
	maxLen int64
	now    func() time.Time
}

// NewPublisher returns a Publisher for stream that trims it to roughly maxLen
// entries. Zero means unbounded.
func NewPublisher(client StreamAdder, stream string, maxLen int64) *Publisher {
	return &Publisher{
		client: client,
		stream: stream,
		maxLen: maxLen,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (p *Publisher) Publish(ctx context.Context, eventType string, data any) error {
	body, err := json.Marshal(Event{Type: eventType, Timestamp: p.now(), Data: data})
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", eventType, err)
	}

	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]any{
			"type":  eventType,
			"event": string(body),
		},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}

	if err := p.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("failed to publish %s to %s: %w", eventType, p.stream, err)
	}
	return nil
}
