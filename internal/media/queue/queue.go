// Package queue is the at-least-once job queue between the orchestrator and
// the worker pools. A dequeued message stays in flight until it is acked or
// deferred; if neither happens before its visibility deadline it becomes
// ready again.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/romariotrain/media-pipeline/internal/media/models"
)

const (
	DefaultVisibility   = 5 * time.Minute
	DefaultPollInterval = 250 * time.Millisecond
)

// ErrMalformedMessage is returned by Dequeue for a payload that could not be
// decoded. The payload has already been dropped; the caller may keep going.
var ErrMalformedMessage = errors.New("malformed queue message")

type Queue interface {
	Name() string
	Enqueue(ctx context.Context, msg models.Message) error
	// EnqueueDelayed makes msg ready no earlier than notBefore.
	EnqueueDelayed(ctx context.Context, msg models.Message, notBefore time.Time) error
	// Dequeue blocks until a message is ready or ctx is done.
	Dequeue(ctx context.Context) (*Delivery, error)
	Ack(ctx context.Context, d *Delivery) error
	// Defer acks d and schedules its message again for notBefore.
	Defer(ctx context.Context, d *Delivery, notBefore time.Time) error
}

// Delivery is one handout of a message. The token identifies it for Ack and
// Defer; a delivery that outlived its deadline may already be redelivered.
type Delivery struct {
	Message  models.Message
	Queue    string
	Deadline time.Time
	token    string
}

// Options shared by the queue implementations.
type Options struct {
	Visibility   time.Duration
	PollInterval time.Duration
}

func (o Options) withDefaults() Options {
	if o.Visibility <= 0 {
		o.Visibility = DefaultVisibility
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	return o
}

func deferred(msg models.Message, notBefore time.Time) models.Message {
	at := notBefore.UTC()
	msg.RetryAfter = &at
	msg.Deferrals++
	return msg
}

func delayed(msg models.Message, notBefore time.Time) models.Message {
	at := notBefore.UTC()
	msg.RetryAfter = &at
	return msg
}
