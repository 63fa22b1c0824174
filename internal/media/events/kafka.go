package events

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/romariotrain/media-pipeline/internal/media/domain"
	"github.com/romariotrain/media-pipeline/internal/media/kafka"
	"github.com/romariotrain/media-pipeline/internal/media/models"
)

type producer interface {
	Publish(ctx context.Context, key string, value []byte) error
}

type subscriber interface {
	Run(ctx context.Context, handle func(ctx context.Context, m kafka.Message) error) error
}

// KafkaBus broadcasts through a Kafka topic. Each process reads the topic in
// its own consumer group, so every process sees every event.
type KafkaBus struct {
	producer   producer
	subscriber subscriber
	hub        *Hub
	logger     zerolog.Logger
}

func NewKafkaBus(p producer, s subscriber, hub *Hub, logger zerolog.Logger) *KafkaBus {
	return &KafkaBus{
		producer:   p,
		subscriber: s,
		hub:        hub,
		logger:     logger.With().Str("component", "kafka_event_bus").Logger(),
	}
}

func (b *KafkaBus) Publish(ctx context.Context, e models.Event) error {
	raw, err := encodeEvent(e)
	if err != nil {
		return err
	}
	if err := b.producer.Publish(ctx, e.JobID, raw); err != nil {
		return fmt.Errorf("publish event %s: %w: %w", e.Name, domain.ErrTransportUnavailable, err)
	}
	return nil
}

func (b *KafkaBus) Subscribe(ctx context.Context) (<-chan models.Event, func()) {
	return b.hub.Subscribe(ctx)
}

func (b *KafkaBus) Run(ctx context.Context) error {
	b.logger.Info().Msg("event relay started")
	err := b.subscriber.Run(ctx, b.deliver)
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("kafka event relay: %w: %w", domain.ErrTransportUnavailable, err)
	}
	return err
}

func (b *KafkaBus) deliver(_ context.Context, m kafka.Message) error {
	e, err := decodeEvent(m.Value)
	if err != nil {
		return err
	}
	b.hub.broadcast(e)
	return nil
}
