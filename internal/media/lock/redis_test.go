package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/romariotrain/media-pipeline/internal/media/domain"
)

func newRedisLocker(t *testing.T) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisLocker(client), mr
}

func TestRedisLocker_AcquireRelease(t *testing.T) {
	ctx := context.Background()
	l, mr := newRedisLocker(t)

	ok, err := l.Acquire(ctx, "u1", DefaultTTL)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, mr.Exists("media:lock:owner:u1"))
	assert.Equal(t, DefaultTTL, mr.TTL("media:lock:owner:u1"))

	ok, err = l.Acquire(ctx, "u1", DefaultTTL)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, l.Release(ctx, "u1"))
	require.NoError(t, l.Release(ctx, "u1"))

	ok, err = l.Acquire(ctx, "u1", DefaultTTL)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLocker_TTLIsSafetyNet(t *testing.T) {
	ctx := context.Background()
	l, mr := newRedisLocker(t)

	ok, err := l.Acquire(ctx, "u1", DefaultTTL)
	require.NoError(t, err)
	require.True(t, ok)

	// Holder hangs and never releases.
	mr.FastForward(DefaultTTL + time.Second)

	ok, err = l.Acquire(ctx, "u1", DefaultTTL)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLocker_TransportDown(t *testing.T) {
	ctx := context.Background()
	l, mr := newRedisLocker(t)
	mr.Close()

	_, err := l.Acquire(ctx, "u1", DefaultTTL)
	require.ErrorIs(t, err, domain.ErrTransportUnavailable)
}
