package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrMalformedMessage marks stream entries that can never be decoded.
var ErrMalformedMessage = errors.New("malformed stream message")

type Handler func(ctx context.Context, event Event) error

type SubscriberConfig struct {
	Group    string
	Consumer string
	Stream   string
	Handler  Handler
	// BatchSize caps entries per read. Default 10.
	BatchSize int64
	// BlockDuration is how long one XREADGROUP waits. Default 5s.
	BlockDuration time.Duration
	// ClaimMinIdle is how long an entry must sit unacknowledged before this
	// consumer takes it over and retries it. Default 1m.
	ClaimMinIdle time.Duration
}

// Subscriber consumes a stream as one member of a consumer group. Entries
// whose handler fails stay pending and are reclaimed after ClaimMinIdle.
type Subscriber struct {
	client *redis.Client
	cfg    SubscriberConfig
}

func NewSubscriber(client *redis.Client, cfg SubscriberConfig) *Subscriber {
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 10
	}
	if cfg.BlockDuration == 0 {
		cfg.BlockDuration = 5 * time.Second
	}
	if cfg.ClaimMinIdle == 0 {
		cfg.ClaimMinIdle = time.Minute
	}
	return &Subscriber{client: client, cfg: cfg}
}

// Start blocks, consuming the stream until ctx is cancelled.
func (s *Subscriber) Start(ctx context.Context) error {
	err := s.client.XGroupCreateMkStream(ctx, s.cfg.Stream, s.cfg.Group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}
	slog.InfoContext(ctx, "subscriber started", "stream", s.cfg.Stream, "group", s.cfg.Group, "consumer", s.cfg.Consumer)

	nextClaim := time.Now()
	for {
		if ctx.Err() != nil {
			slog.InfoContext(ctx, "subscriber stopping", "stream", s.cfg.Stream)
			return ctx.Err()
		}

		if time.Now().After(nextClaim) {
			if err := s.reclaim(ctx); err != nil && ctx.Err() == nil {
				slog.ErrorContext(ctx, "pending reclaim failed", "stream", s.cfg.Stream, "error", err)
			}
			nextClaim = time.Now().Add(s.cfg.ClaimMinIdle)
		}

		if err := s.readNew(ctx); err != nil && ctx.Err() == nil {
			slog.ErrorContext(ctx, "stream read failed", "stream", s.cfg.Stream, "error", err)
			sleep(ctx, time.Second)
		}
	}
}

func (s *Subscriber) readNew(ctx context.Context) error {
	streams, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    s.cfg.Group,
		Consumer: s.cfg.Consumer,
		Streams:  []string{s.cfg.Stream, ">"},
		Count:    s.cfg.BatchSize,
		Block:    s.cfg.BlockDuration,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read from stream: %w", err)
	}

	for _, stream := range streams {
		s.process(ctx, stream.Messages)
	}
	return nil
}

// reclaim takes over entries other consumers (or an earlier run of this one)
// left unacknowledged for longer than ClaimMinIdle.
func (s *Subscriber) reclaim(ctx context.Context) error {
	start := "0-0"
	for {
		messages, next, err := s.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   s.cfg.Stream,
			Group:    s.cfg.Group,
			Consumer: s.cfg.Consumer,
			MinIdle:  s.cfg.ClaimMinIdle,
			Start:    start,
			Count:    s.cfg.BatchSize,
		}).Result()
		if err != nil {
			return fmt.Errorf("failed to claim pending entries: %w", err)
		}
		if len(messages) > 0 {
			slog.InfoContext(ctx, "retrying pending entries", "stream", s.cfg.Stream, "count", len(messages))
			s.process(ctx, messages)
		}
		if next == "0-0" || next == "" {
			return nil
		}
		start = next
	}
}

func (s *Subscriber) process(ctx context.Context, messages []redis.XMessage) {
	for _, message := range messages {
		event, err := DecodeMessage(message)
		if err != nil {
			// Retrying cannot fix a malformed entry.
			slog.ErrorContext(ctx, "discarding message", "id", message.ID, "error", err)
		} else if err := s.cfg.Handler(ctx, event); err != nil {
			slog.ErrorContext(ctx, "failed to process message", "id", message.ID, "error", err)
			continue
		}

		if err := s.client.XAck(ctx, s.cfg.Stream, s.cfg.Group, message.ID).Err(); err != nil {
			slog.ErrorContext(ctx, "failed to ack message", "id", message.ID, "error", err)
		}
	}
}

// DecodeMessage turns a raw stream entry into an Event carrying the entry ID.
func DecodeMessage(message redis.XMessage) (Event, error) {
	body, ok := message.Values["event"].(string)
	if !ok {
		return Event{}, fmt.Errorf("%w: %s has no event field", ErrMalformedMessage, message.ID)
	}

	var event Event
	if err := json.Unmarshal([]byte(body), &event); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	event.ID = message.ID
	return event, nil
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
