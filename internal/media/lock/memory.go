package lock

import (
	"context"
	"sync"
	"time"

	"github.com/romariotrain/media-pipeline/internal/media/domain"
)

// MemoryLocker is the single-process Locker. Expiry is evaluated lazily
// against the injected clock.
type MemoryLocker struct {
	mu      sync.Mutex
	expires map[string]time.Time
	clock   func() time.Time
}

func NewMemoryLocker() *MemoryLocker {
	return NewMemoryLockerWithClock(time.Now)
}

func NewMemoryLockerWithClock(clock func() time.Time) *MemoryLocker {
	return &MemoryLocker{
		expires: make(map[string]time.Time),
		clock:   clock,
	}
}

func (l *MemoryLocker) Acquire(ctx context.Context, owner string, ttl time.Duration) (bool, error) {
	if owner == "" || ttl <= 0 {
		return false, domain.ErrInvalidArgument
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	k := key(owner)
	if exp, held := l.expires[k]; held && now.Before(exp) {
		return false, nil
	}
	l.expires[k] = now.Add(ttl)
	return true, nil
}

func (l *MemoryLocker) Release(ctx context.Context, owner string) error {
	if owner == "" {
		return domain.ErrInvalidArgument
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	delete(l.expires, key(owner))
	l.mu.Unlock()
	return nil
}

// Held reports whether owner currently holds an unexpired lock.
func (l *MemoryLocker) Held(owner string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	exp, ok := l.expires[key(owner)]
	return ok && l.clock().Before(exp)
}
