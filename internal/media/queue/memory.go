package queue

import (
	"container/list"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/romariotrain/media-pipeline/internal/media/domain"
	"github.com/romariotrain/media-pipeline/internal/media/models"
)

type scheduled struct {
	at  time.Time
	seq uint64
	msg models.Message
}

type inflight struct {
	deadline time.Time
	msg      models.Message
}

// MemoryQueue is the single-process Queue with the same ready, delayed and
// in-flight semantics as the Redis one.
type MemoryQueue struct {
	name  string
	opts  Options
	clock func() time.Time

	mu       sync.Mutex
	ready    *list.List
	delayed  []scheduled
	inflight map[string]inflight
	seq      uint64
	notify   chan struct{}
}

func NewMemoryQueue(name string, opts Options) *MemoryQueue {
	return NewMemoryQueueWithClock(name, opts, time.Now)
}

func NewMemoryQueueWithClock(name string, opts Options, clock func() time.Time) *MemoryQueue {
	return &MemoryQueue{
		name:     name,
		opts:     opts.withDefaults(),
		clock:    clock,
		ready:    list.New(),
		inflight: make(map[string]inflight),
		notify:   make(chan struct{}, 1),
	}
}

func (q *MemoryQueue) Name() string { return q.name }

func (q *MemoryQueue) Enqueue(ctx context.Context, msg models.Message) error {
	if msg.JobID == "" {
		return domain.ErrInvalidArgument
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	q.mu.Lock()
	q.ready.PushBack(msg)
	q.mu.Unlock()
	q.wake()
	return nil
}

func (q *MemoryQueue) EnqueueDelayed(ctx context.Context, msg models.Message, notBefore time.Time) error {
	if msg.JobID == "" {
		return domain.ErrInvalidArgument
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	q.mu.Lock()
	q.schedule(delayed(msg, notBefore), notBefore)
	q.mu.Unlock()
	q.wake()
	return nil
}

func (q *MemoryQueue) Dequeue(ctx context.Context) (*Delivery, error) {
	for {
		q.mu.Lock()
		now := q.clock()
		q.promoteLocked(now)

		if front := q.ready.Front(); front != nil {
			msg := q.ready.Remove(front).(models.Message)
			d := &Delivery{
				Message:  msg,
				Queue:    q.name,
				Deadline: now.Add(q.opts.Visibility),
				token:    uuid.NewString(),
			}
			q.inflight[d.token] = inflight{deadline: d.Deadline, msg: msg}
			q.mu.Unlock()
			return d, nil
		}
		wait := q.opts.PollInterval
		if len(q.delayed) > 0 {
			if until := q.delayed[0].at.Sub(now); until < wait {
				wait = until
			}
		}
		q.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-q.notify:
			timer.Stop()
		case <-timer.C:
		}
	}
}

func (q *MemoryQueue) Ack(ctx context.Context, d *Delivery) error {
	if d == nil {
		return domain.ErrInvalidArgument
	}
	q.mu.Lock()
	delete(q.inflight, d.token)
	q.mu.Unlock()
	return nil
}

func (q *MemoryQueue) Defer(ctx context.Context, d *Delivery, notBefore time.Time) error {
	if d == nil {
		return domain.ErrInvalidArgument
	}
	q.mu.Lock()
	delete(q.inflight, d.token)
	q.schedule(deferred(d.Message, notBefore), notBefore)
	q.mu.Unlock()
	q.wake()
	return nil
}

// Promote moves due delayed and expired in-flight messages to ready.
// Dequeue does this on its own; Promote lets a Promoter drive it too.
func (q *MemoryQueue) Promote(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	q.mu.Lock()
	n := q.promoteLocked(q.clock())
	q.mu.Unlock()
	if n > 0 {
		q.wake()
	}
	return n, nil
}

// Len reports ready, delayed and in-flight counts.
func (q *MemoryQueue) Len() (ready, delayed, inFlight int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.ready.Len(), len(q.delayed), len(q.inflight)
}

func (q *MemoryQueue) schedule(msg models.Message, at time.Time) {
	q.seq++
	q.delayed = append(q.delayed, scheduled{at: at, seq: q.seq, msg: msg})
	sort.Slice(q.delayed, func(i, k int) bool {
		if q.delayed[i].at.Equal(q.delayed[k].at) {
			return q.delayed[i].seq < q.delayed[k].seq
		}
		return q.delayed[i].at.Before(q.delayed[k].at)
	})
}

func (q *MemoryQueue) promoteLocked(now time.Time) int {
	n := 0
	for len(q.delayed) > 0 && !q.delayed[0].at.After(now) {
		q.ready.PushBack(q.delayed[0].msg)
		q.delayed = q.delayed[1:]
		n++
	}
	for token, f := range q.inflight {
		if now.After(f.deadline) {
			delete(q.inflight, token)
			q.ready.PushBack(f.msg)
			n++
		}
	}
	return n
}

func (q *MemoryQueue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
