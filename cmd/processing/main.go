package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/romariotrain/media-pipeline/internal/app"
	"github.com/romariotrain/media-pipeline/internal/config"
)

func main() {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	logger := app.NewLogger(cfg.LogLevel, cfg.LogFormat)

	code := app.Run("processing", logger, func(ctx context.Context) error {
		return run(ctx, cfg, logger)
	})
	os.Exit(code)
}

func run(ctx context.Context, cfg config.Config, logger zerolog.Logger) error {
	if !cfg.Distributed() {
		// Jobs submitted by the API process never reach this one.
		logger.Warn().
			Str("store", cfg.Store).
			Str("queue", cfg.QueueBackend).
			Msg("in-memory backends are not shared between processes")
	}

	infra, err := app.Build(ctx, cfg, logger, app.Options{})
	if err != nil {
		return err
	}
	defer infra.Close()

	pools, err := infra.Pools()
	if err != nil {
		return err
	}
	if len(pools) == 0 {
		return errors.New("no worker pools configured")
	}

	g, gctx := errgroup.WithContext(ctx)
	infra.Start(gctx, g)
	for _, p := range pools {
		g.Go(func() error { return p.Run(gctx) })
	}
	return g.Wait()
}
