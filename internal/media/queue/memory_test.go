package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/romariotrain/media-pipeline/internal/media/models"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func msg(jobID, owner string) models.Message {
	return models.Message{JobID: jobID, OwnerID: owner, JobKind: models.Thumbnail, MediaKind: models.Image}
}

func dequeueSoon(t *testing.T, q Queue) *Delivery {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	d, err := q.Dequeue(ctx)
	require.NoError(t, err)
	return d
}

func requireEmpty(t *testing.T, q Queue) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := q.Dequeue(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMemoryQueue_FIFOAndAck(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(models.ThumbnailQueue, Options{PollInterval: 5 * time.Millisecond})

	require.NoError(t, q.Enqueue(ctx, msg("j1", "u1")))
	require.NoError(t, q.Enqueue(ctx, msg("j2", "u2")))

	d1 := dequeueSoon(t, q)
	d2 := dequeueSoon(t, q)
	assert.Equal(t, "j1", d1.Message.JobID)
	assert.Equal(t, "j2", d2.Message.JobID)
	assert.Equal(t, models.ThumbnailQueue, d1.Queue)

	_, _, inFlight := q.Len()
	assert.Equal(t, 2, inFlight)

	require.NoError(t, q.Ack(ctx, d1))
	require.NoError(t, q.Ack(ctx, d2))
	require.NoError(t, q.Ack(ctx, d2), "double ack is harmless")

	_, _, inFlight = q.Len()
	assert.Zero(t, inFlight)
	requireEmpty(t, q)
}

func TestMemoryQueue_DelayedNotDeliveredEarly(t *testing.T) {
	ctx := context.Background()
	clk := newFakeClock()
	q := NewMemoryQueueWithClock(models.ThumbnailQueue, Options{PollInterval: 5 * time.Millisecond}, clk.Now)

	require.NoError(t, q.EnqueueDelayed(ctx, msg("j1", "u1"), clk.Now().Add(2*time.Second)))
	requireEmpty(t, q)

	clk.Advance(2 * time.Second)
	d := dequeueSoon(t, q)
	assert.Equal(t, "j1", d.Message.JobID)
	require.NotNil(t, d.Message.RetryAfter)
	assert.Zero(t, d.Message.Deferrals)
}

func TestMemoryQueue_DeferReschedules(t *testing.T) {
	ctx := context.Background()
	clk := newFakeClock()
	q := NewMemoryQueueWithClock(models.ThumbnailQueue, Options{PollInterval: 5 * time.Millisecond}, clk.Now)

	require.NoError(t, q.Enqueue(ctx, msg("j1", "u1")))
	d := dequeueSoon(t, q)

	notBefore := clk.Now().Add(2 * time.Second)
	require.NoError(t, q.Defer(ctx, d, notBefore))

	ready, delayedN, inFlight := q.Len()
	assert.Equal(t, 0, ready)
	assert.Equal(t, 1, delayedN)
	assert.Equal(t, 0, inFlight)
	requireEmpty(t, q)

	clk.Advance(2 * time.Second)
	again := dequeueSoon(t, q)
	assert.Equal(t, "j1", again.Message.JobID)
	assert.Equal(t, 1, again.Message.Deferrals)
	assert.True(t, notBefore.Equal(*again.Message.RetryAfter))
}

func TestMemoryQueue_DelayedInterleavesWithNewer(t *testing.T) {
	ctx := context.Background()
	clk := newFakeClock()
	q := NewMemoryQueueWithClock(models.ThumbnailQueue, Options{PollInterval: 5 * time.Millisecond}, clk.Now)

	require.NoError(t, q.EnqueueDelayed(ctx, msg("old", "u1"), clk.Now().Add(time.Second)))
	require.NoError(t, q.Enqueue(ctx, msg("new", "u2")))
	clk.Advance(time.Second)
	require.NoError(t, q.Enqueue(ctx, msg("newer", "u3")))

	var got []string
	for i := 0; i < 3; i++ {
		got = append(got, dequeueSoon(t, q).Message.JobID)
	}
	assert.ElementsMatch(t, []string{"old", "new", "newer"}, got)
	assert.Equal(t, "new", got[0])
}

func TestMemoryQueue_RedeliversAfterVisibility(t *testing.T) {
	ctx := context.Background()
	clk := newFakeClock()
	q := NewMemoryQueueWithClock(models.ThumbnailQueue, Options{Visibility: time.Minute, PollInterval: 5 * time.Millisecond}, clk.Now)

	require.NoError(t, q.Enqueue(ctx, msg("j1", "u1")))
	first := dequeueSoon(t, q)

	// Worker crashes without acking.
	clk.Advance(time.Minute + time.Second)
	n, err := q.Promote(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	second := dequeueSoon(t, q)
	assert.Equal(t, first.Message.JobID, second.Message.JobID)

	// Late ack from the crashed delivery does not touch the new one.
	require.NoError(t, q.Ack(ctx, first))
	_, _, inFlight := q.Len()
	assert.Equal(t, 1, inFlight)
	require.NoError(t, q.Ack(ctx, second))
}

func TestMemoryQueue_DequeueWakesOnEnqueue(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(models.ThumbnailQueue, Options{PollInterval: time.Hour})

	got := make(chan *Delivery, 1)
	go func() {
		d, err := q.Dequeue(ctx)
		if err == nil {
			got <- d
		}
	}()

	require.NoError(t, q.Enqueue(ctx, msg("j1", "u1")))
	select {
	case d := <-got:
		assert.Equal(t, "j1", d.Message.JobID)
	case <-time.After(time.Second):
		t.Fatal("dequeue did not wake up")
	}
}

func TestMemoryQueue_RejectsEmptyJobID(t *testing.T) {
	q := NewMemoryQueue(models.ThumbnailQueue, Options{})
	require.Error(t, q.Enqueue(context.Background(), models.Message{}))
}
