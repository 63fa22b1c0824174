package events

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/romariotrain/media-pipeline/internal/media/domain"
	"github.com/romariotrain/media-pipeline/internal/media/models"
)

const DefaultRedisChannel = "media:events"

// RedisBus broadcasts through a Redis pub/sub channel. Every process runs one
// relay subscription and re-publishes what it receives into its local hub.
type RedisBus struct {
	client  redis.UniversalClient
	channel string
	hub     *Hub
	logger  zerolog.Logger
}

func NewRedisBus(client redis.UniversalClient, channel string, hub *Hub, logger zerolog.Logger) *RedisBus {
	if channel == "" {
		channel = DefaultRedisChannel
	}
	return &RedisBus{
		client:  client,
		channel: channel,
		hub:     hub,
		logger:  logger.With().Str("component", "redis_event_bus").Str("channel", channel).Logger(),
	}
}

func (b *RedisBus) Publish(ctx context.Context, e models.Event) error {
	raw, err := encodeEvent(e)
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, b.channel, raw).Err(); err != nil {
		return fmt.Errorf("publish event %s: %w: %w", e.Name, domain.ErrTransportUnavailable, err)
	}
	return nil
}

func (b *RedisBus) Subscribe(ctx context.Context) (<-chan models.Event, func()) {
	return b.hub.Subscribe(ctx)
}

// Run holds the channel subscription until ctx is done.
func (b *RedisBus) Run(ctx context.Context) error {
	ps := b.client.Subscribe(ctx, b.channel)
	defer ps.Close()

	// Wait for the subscription to be confirmed so nothing published after
	// Run returns from here is missed.
	if _, err := ps.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("subscribe %s: %w: %w", b.channel, domain.ErrTransportUnavailable, err)
	}
	b.logger.Info().Msg("event relay started")

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			b.logger.Info().Msg("event relay stopped")
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("subscribe %s: %w: channel closed", b.channel, domain.ErrTransportUnavailable)
			}
			e, err := decodeEvent([]byte(msg.Payload))
			if err != nil {
				b.logger.Warn().Err(err).Msg("skipping malformed event")
				continue
			}
			b.hub.broadcast(e)
		}
	}
}
