// Package lock provides the per-owner mutual exclusion used by workers.
// A lock is a key with a TTL; expiry is the safety net for a worker that
// dies while holding it.
package lock

import (
	"context"
	"time"
)

const DefaultTTL = 60 * time.Second

type Locker interface {
	// Acquire tries once to take the lock for owner and never waits.
	Acquire(ctx context.Context, owner string, ttl time.Duration) (bool, error)
	// Release drops the lock for owner. Releasing a lock that is not held
	// is not an error.
	Release(ctx context.Context, owner string) error
}

func key(owner string) string {
	return "media:lock:owner:" + owner
}
