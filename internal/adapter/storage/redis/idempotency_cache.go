package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"pix-wallet-service/internal/core/domain"

	goredis "github.com/redis/go-redis/v9"
)

// IdempotencyCache implements ports.IdempotencyCache on Redis so every
// instance behind the balancer replays from the same store. Records are
// serialized JSON under pix:idemp:<scope>:<key>; expiry rides on the
// Redis TTL, the database row stays the arbiter.
type IdempotencyCache struct {
	client *goredis.Client
	prefix string
}

// NewIdempotencyCache creates a new Redis-backed idempotency cache.
func NewIdempotencyCache(client *goredis.Client) *IdempotencyCache {
	return &IdempotencyCache{
		client: client,
		prefix: "pix:idemp:",
	}
}

func (c *IdempotencyCache) recordKey(scope, key string) string {
	return c.prefix + scope + ":" + key
}

// GetRecord returns the cached record for (scope, key), nil on miss.
// A payload that no longer unmarshals is dropped and reported as a miss
// so the lookup falls through to the database.
func (c *IdempotencyCache) GetRecord(ctx context.Context, scope, key string) (*domain.IdempotencyRecord, error) {
	payload, err := c.client.Get(ctx, c.recordKey(scope, key)).Bytes()
	if err != nil {
		if err == goredis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("redis idempotency get: %w", err)
	}

	record := &domain.IdempotencyRecord{}
	if err := json.Unmarshal(payload, record); err != nil {
		c.client.Del(ctx, c.recordKey(scope, key))
		return nil, nil
	}
	return record, nil
}

// PutRecord caches the record under its (scope, key) for ttl.
func (c *IdempotencyCache) PutRecord(ctx context.Context, record *domain.IdempotencyRecord, ttl time.Duration) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal idempotency record: %w", err)
	}
	if err := c.client.Set(ctx, c.recordKey(record.Scope, record.Key), payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis idempotency set: %w", err)
	}
	return nil
}
