package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const (
	connectAttempts = 5
	connectBackoff  = 500 * time.Millisecond
)

// Client is the single Redis connection pool behind the token registry, the
// account view cache, the OTP rate counter and the account event stream.
type Client struct {
	*goredis.Client
}

// NewClient builds the pool and waits for Redis to answer PING, retrying with
// a doubling backoff so the service can start alongside a Redis container.
func NewClient(ctx context.Context, addr, password string, db int) (*Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	backoff := connectBackoff
	var err error
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		if err = ping(ctx, rdb); err == nil {
			return &Client{Client: rdb}, nil
		}
		slog.WarnContext(ctx, "redis not ready", "addr", addr, "attempt", attempt, "error", err)

		select {
		case <-ctx.Done():
			_ = rdb.Close()
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}

	_ = rdb.Close()
	return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
}

func ping(ctx context.Context, rdb *goredis.Client) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return rdb.Ping(ctx).Err()
}
