package events

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/romariotrain/media-pipeline/internal/media/domain"
	"github.com/romariotrain/media-pipeline/internal/media/kafka"
	"github.com/romariotrain/media-pipeline/internal/media/models"
)

// fakeTopic stands in for a topic that every consumer group reads in full.
type fakeTopic struct {
	mu      sync.Mutex
	readers []chan kafka.Message
	err     error
}

func (f *fakeTopic) Publish(_ context.Context, key string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	for _, r := range f.readers {
		r <- kafka.Message{Key: key, Value: value}
	}
	return nil
}

func (f *fakeTopic) reader() *fakeReader {
	ch := make(chan kafka.Message, 8)
	f.mu.Lock()
	f.readers = append(f.readers, ch)
	f.mu.Unlock()
	return &fakeReader{ch: ch}
}

type fakeReader struct {
	ch chan kafka.Message
}

func (r *fakeReader) Run(ctx context.Context, handle func(ctx context.Context, m kafka.Message) error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m := <-r.ch:
			_ = handle(ctx, m)
		}
	}
}

func TestKafkaBus_CrossInstanceFanOut(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	topic := &fakeTopic{}

	api := NewKafkaBus(topic, topic.reader(), NewHub(4, zerolog.Nop()), zerolog.Nop())
	worker := NewKafkaBus(topic, topic.reader(), NewHub(4, zerolog.Nop()), zerolog.Nop())

	sub, unsub := api.Subscribe(ctx)
	defer unsub()
	go func() { _ = api.Run(ctx) }()
	go func() { _ = worker.Run(ctx) }()

	require.NoError(t, worker.Publish(ctx, models.NewJobCompleted("j1", "/artifacts/results/j1/thumbnail.png")))

	e := receive(t, sub)
	assert.Equal(t, models.EventJobCompleted, e.Name)
	assert.Equal(t, "/artifacts/results/j1/thumbnail.png", e.ResultURL)
}

func TestKafkaBus_PublishError(t *testing.T) {
	topic := &fakeTopic{err: errors.New("connection refused")}
	bus := NewKafkaBus(topic, topic.reader(), NewHub(1, zerolog.Nop()), zerolog.Nop())

	err := bus.Publish(context.Background(), models.NewJobFailed("j1", "x"))
	require.ErrorIs(t, err, domain.ErrTransportUnavailable)
}

func TestKafkaBus_DeliverRejectsGarbage(t *testing.T) {
	bus := NewKafkaBus(&fakeTopic{}, nil, NewHub(1, zerolog.Nop()), zerolog.Nop())
	require.Error(t, bus.deliver(context.Background(), kafka.Message{Value: []byte("{}")}))
}
