package queue

import (
	"context"
	"fmt"

	"github.com/romariotrain/media-pipeline/internal/media/domain"
	"github.com/romariotrain/media-pipeline/internal/media/models"
)

// Router sends a message to the queue that carries its job kind.
type Router struct {
	queues map[string]Queue
}

func NewRouter(queues ...Queue) *Router {
	r := &Router{queues: make(map[string]Queue, len(queues))}
	for _, q := range queues {
		r.queues[q.Name()] = q
	}
	return r
}

func (r *Router) For(kind models.JobKind) (Queue, error) {
	name := kind.QueueName()
	if name == "" {
		return nil, fmt.Errorf("%w: job kind %q", domain.ErrInvalidArgument, kind)
	}
	q, ok := r.queues[name]
	if !ok {
		return nil, fmt.Errorf("no queue registered for %s", name)
	}
	return q, nil
}

func (r *Router) Enqueue(ctx context.Context, msg models.Message) error {
	q, err := r.For(msg.JobKind)
	if err != nil {
		return err
	}
	return q.Enqueue(ctx, msg)
}
