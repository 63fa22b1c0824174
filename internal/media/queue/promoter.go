package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Promotable is a queue whose delayed and expired in-flight messages must be
// moved back to ready by someone outside the dequeue path.
type Promotable interface {
	Name() string
	Promote(ctx context.Context) (int, error)
}

// Promoter периодически возвращает отложенные и просроченные сообщения в ready.
type Promoter struct {
	queues   []Promotable
	interval time.Duration
	logger   zerolog.Logger
}

type PromoterConfig struct {
	Queues   []Promotable
	Interval time.Duration
	Logger   zerolog.Logger
}

func NewPromoter(cfg PromoterConfig) (*Promoter, error) {
	if len(cfg.Queues) == 0 {
		return nil, fmt.Errorf("at least one queue is required")
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("interval must be positive, got: %v", cfg.Interval)
	}

	return &Promoter{
		queues:   cfg.Queues,
		interval: cfg.Interval,
		logger:   cfg.Logger.With().Str("component", "queue_promoter").Logger(),
	}, nil
}

// Start блокирует до отмены контекста. Ошибки отдельного прохода логируются,
// цикл продолжает работать.
func (p *Promoter) Start(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info().
		Dur("interval", p.interval).
		Int("queues", len(p.queues)).
		Msg("queue promoter started")

	for {
		select {
		case <-ctx.Done():
			p.logger.Info().
				Err(ctx.Err()).
				Msg("queue promoter stopped")
			return ctx.Err()

		case <-ticker.C:
			p.promoteAll(ctx)
		}
	}
}

func (p *Promoter) promoteAll(ctx context.Context) {
	for _, q := range p.queues {
		n, err := q.Promote(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Error().
				Err(err).
				Str("queue", q.Name()).
				Msg("failed to promote messages")
			continue
		}
		if n > 0 {
			p.logger.Debug().
				Str("queue", q.Name()).
				Int("count", n).
				Msg("messages returned to ready")
		}
	}
}
