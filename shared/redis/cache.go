package redis

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// ViewCache stores JSON projections of type T under prefix+id. A zero TTL
// keeps entries until they are overwritten or deleted.
//
// Every method swallows Redis errors: the cache is an accelerator, and the
// caller always has the store to fall back on.
type ViewCache[T any] struct {
	client *goredis.Client
	prefix string
	ttl    time.Duration
}

func NewViewCache[T any](client *goredis.Client, prefix string, ttl time.Duration) *ViewCache[T] {
	return &ViewCache[T]{client: client, prefix: prefix, ttl: ttl}
}

// Get returns the cached view for id. Entries that no longer decode into T
// are dropped so the next read repopulates them.
func (c *ViewCache[T]) Get(ctx context.Context, id string) (*T, bool) {
	key := c.prefix + id
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			slog.WarnContext(ctx, "view cache read failed", "key", key, "error", err)
		}
		return nil, false
	}

	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		slog.WarnContext(ctx, "dropping undecodable cached view", "key", key, "error", err)
		c.Delete(ctx, id)
		return nil, false
	}
	return &v, true
}

func (c *ViewCache[T]) Set(ctx context.Context, id string, value *T) {
	key := c.prefix + id
	data, err := json.Marshal(value)
	if err != nil {
		slog.WarnContext(ctx, "view cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		slog.WarnContext(ctx, "view cache write failed", "key", key, "error", err)
	}
}

func (c *ViewCache[T]) Delete(ctx context.Context, id string) {
	key := c.prefix + id
	if err := c.client.Del(ctx, key).Err(); err != nil {
		slog.WarnContext(ctx, "view cache delete failed", "key", key, "error", err)
	}
}
