package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/romariotrain/media-pipeline/internal/media/domain"
)

type RedisLocker struct {
	client redis.UniversalClient
}

func NewRedisLocker(client redis.UniversalClient) *RedisLocker {
	return &RedisLocker{client: client}
}

func (l *RedisLocker) Acquire(ctx context.Context, owner string, ttl time.Duration) (bool, error) {
	if owner == "" || ttl <= 0 {
		return false, domain.ErrInvalidArgument
	}
	ok, err := l.client.SetNX(ctx, key(owner), uuid.NewString(), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("lock acquire %s: %w: %w", owner, domain.ErrTransportUnavailable, err)
	}
	return ok, nil
}

// Release deletes the key unconditionally. If the TTL already expired and
// another worker took the lock, that worker's lock is dropped too.
func (l *RedisLocker) Release(ctx context.Context, owner string) error {
	if owner == "" {
		return domain.ErrInvalidArgument
	}
	if err := l.client.Del(ctx, key(owner)).Err(); err != nil {
		return fmt.Errorf("lock release %s: %w: %w", owner, domain.ErrTransportUnavailable, err)
	}
	return nil
}
