package token

import (
	"context"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const registryKeyPrefix = "tokens:account:"

// RedisRegistry keeps one set of live token IDs per account. The set expires
// together with the newest token, so it never outlives what it tracks.
type RedisRegistry struct {
	client *goredis.Client
}

func NewRedisRegistry(client *goredis.Client) *RedisRegistry {
	return &RedisRegistry{client: client}
}

func (r *RedisRegistry) Add(ctx context.Context, accountID, tokenID string, ttl time.Duration) error {
	key := registryKeyPrefix + accountID
	pipe := r.client.TxPipeline()
	pipe.SAdd(ctx, key, tokenID)
	pipe.Expire(ctx, key, ttl)
	_, err := pipe.Exec(ctx)
	return err
}

func (r *RedisRegistry) Contains(ctx context.Context, accountID, tokenID string) (bool, error) {
	return r.client.SIsMember(ctx, registryKeyPrefix+accountID, tokenID).Result()
}

func (r *RedisRegistry) RemoveAll(ctx context.Context, accountID string) error {
	return r.client.Del(ctx, registryKeyPrefix+accountID).Err()
}

// MemoryRegistry is an in-process Registry for tests and local runs.
type MemoryRegistry struct {
	mu   sync.Mutex
	m    map[string]map[string]time.Time
	nowF func() time.Time
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		m:    make(map[string]map[string]time.Time),
		nowF: time.Now,
	}
}

func (r *MemoryRegistry) Add(ctx context.Context, accountID, tokenID string, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.m[accountID]
	if !ok {
		set = make(map[string]time.Time)
		r.m[accountID] = set
	}
	set[tokenID] = r.nowF().Add(ttl)
	return nil
}

func (r *MemoryRegistry) Contains(ctx context.Context, accountID, tokenID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	expiresAt, ok := r.m[accountID][tokenID]
	if !ok {
		return false, nil
	}
	if !expiresAt.After(r.nowF()) {
		delete(r.m[accountID], tokenID)
		return false, nil
	}
	return true, nil
}

func (r *MemoryRegistry) RemoveAll(ctx context.Context, accountID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.m, accountID)
	return nil
}
