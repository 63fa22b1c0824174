package events

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/romariotrain/media-pipeline/internal/media/models"
)

const DefaultSubscriberBuffer = 16

// Hub is the in-process Bus. The distributed buses publish remotely and
// deliver locally through a Hub.
type Hub struct {
	mu      sync.RWMutex
	subs    map[uint64]chan models.Event
	next    uint64
	buffer  int
	dropped atomic.Int64
	logger  zerolog.Logger
}

func NewHub(buffer int, logger zerolog.Logger) *Hub {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	return &Hub{
		subs:   make(map[uint64]chan models.Event),
		buffer: buffer,
		logger: logger.With().Str("component", "event_hub").Logger(),
	}
}

func (h *Hub) Publish(ctx context.Context, e models.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.broadcast(e)
	return nil
}

func (h *Hub) broadcast(e models.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for id, ch := range h.subs {
		select {
		case ch <- e:
		default:
			h.dropped.Add(1)
			h.logger.Warn().
				Uint64("subscriber", id).
				Str("job_id", e.JobID).
				Str("event", e.Name).
				Msg("subscriber too slow, event dropped")
		}
	}
}

func (h *Hub) Subscribe(ctx context.Context) (<-chan models.Event, func()) {
	ch := make(chan models.Event, h.buffer)

	h.mu.Lock()
	h.next++
	id := h.next
	h.subs[id] = ch
	h.mu.Unlock()

	done := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			close(ch)
			h.mu.Unlock()
			close(done)
		})
	}

	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-done:
		}
	}()

	return ch, cancel
}

// Subscribers reports how many receivers are registered.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped reports how many deliveries were skipped for slow subscribers.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}
