package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/romariotrain/media-pipeline/internal/app"
	"github.com/romariotrain/media-pipeline/internal/config"
	"github.com/romariotrain/media-pipeline/internal/media/httpapi"
	"github.com/romariotrain/media-pipeline/internal/media/service"
)

func run(ctx context.Context, cfg config.Config, logger zerolog.Logger) error {
	infra, err := app.Build(ctx, cfg, logger, app.Options{Subscribe: true})
	if err != nil {
		return err
	}
	defer infra.Close()

	// Dependencies
	svc := service.New(infra.Jobs, infra.Router)
	h := httpapi.New(svc, infra.Blobs, infra.Bus, logger)
	router := httpapi.NewRouter(h, httpapi.RouterConfig{
		ArtifactsDir:   infra.ArtifactsDir,
		MaxUploadBytes: cfg.MaxUploadBytes,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	infra.Start(gctx, g)

	if cfg.InlineWorkers {
		pools, err := infra.Pools()
		if err != nil {
			return err
		}
		for _, p := range pools {
			g.Go(func() error { return p.Run(gctx) })
		}
	}

	g.Go(func() error {
		logger.Info().Str("addr", cfg.HTTPAddr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen and serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}
