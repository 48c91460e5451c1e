package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"telegram-access-subscription/internal/infra/api"
	"telegram-access-subscription/internal/infra/metrics"
	red "telegram-access-subscription/internal/infra/redis"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the periodic reconciler",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func runServe(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	metrics.MustRegister()
	metrics.SetBuildInfo(Version, GitCommit)

	app, err := buildApplication(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	deps := api.Deps{
		Subscriptions: app.lifecycle,
		Payments:      app.payments,
		Promos:        app.pricing,
		Checkout:      app.purchase,
		Scheduler:     app.worker,
		Health: func(ctx context.Context) error {
			if err := app.pool.Ping(ctx); err != nil {
				return err
			}
			if app.redis != nil {
				return app.redis.Ping(ctx)
			}
			return nil
		},
	}
	if app.redis != nil {
		deps.Limiter = red.NewRateLimiter(app.redis)
	}
	server := api.NewServer(deps, cfg.HTTP, api.WebhookRateLimit{
		Limit:  cfg.HTTP.WebhookRateLimit,
		Window: cfg.HTTP.WebhookRateWindow,
	}, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.ListenAndServe(gctx) })
	g.Go(func() error { return app.worker.Run(gctx) })
	g.Go(func() error { return app.refreshDNS(gctx, 5*time.Minute) })
	g.Go(func() error {
		t := time.NewTicker(15 * time.Second)
		defer t.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-t.C:
				metrics.ObservePool(app.pool)
			}
		}
	})

	logger.Info().Str("version", Version).Msg("service started")
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("service stopped with error")
		return err
	}
	logger.Info().Msg("service stopped")
	return nil
}
