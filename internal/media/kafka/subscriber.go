package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	kafkago "github.com/segmentio/kafka-go"
)

type SubscriberConfig struct {
	Brokers []string
	Topic   string
	// GroupID should be unique per process when every process must see
	// every message.
	GroupID string
	MaxWait time.Duration
	Logger  zerolog.Logger
}

// Subscriber reads a topic from the latest offset and hands each message to
// a callback.
type Subscriber struct {
	reader *kafkago.Reader
	logger zerolog.Logger
}

func NewSubscriber(cfg SubscriberConfig) (*Subscriber, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("brokers list is empty")
	}
	if cfg.Topic == "" {
		return nil, errors.New("topic is empty")
	}
	if cfg.GroupID == "" {
		return nil, errors.New("group id is empty")
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = 500 * time.Millisecond
	}

	return &Subscriber{
		reader: kafkago.NewReader(kafkago.ReaderConfig{
			Brokers:     cfg.Brokers,
			Topic:       cfg.Topic,
			GroupID:     cfg.GroupID,
			StartOffset: kafkago.LastOffset,
			MaxWait:     cfg.MaxWait,
		}),
		logger: cfg.Logger.With().Str("component", "kafka_subscriber").Str("topic", cfg.Topic).Logger(),
	}, nil
}

// Run blocks until ctx is done or the reader fails.
func (s *Subscriber) Run(ctx context.Context, handle func(ctx context.Context, m Message) error) error {
	s.logger.Info().Msg("kafka subscriber started")
	for {
		msg, err := s.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				s.logger.Info().Msg("kafka subscriber stopped")
				return ctx.Err()
			}
			return fmt.Errorf("kafka read: %w", err)
		}
		if err := handle(ctx, Message{Key: string(msg.Key), Value: msg.Value}); err != nil {
			s.logger.Warn().
				Err(err).
				Int64("offset", msg.Offset).
				Msg("failed to handle message")
		}
	}
}

func (s *Subscriber) Close() error {
	return s.reader.Close()
}
