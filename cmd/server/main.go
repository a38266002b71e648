package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"memberportal/internal/platform/config"
	"memberportal/internal/platform/httpserver"
	"memberportal/internal/platform/logger"
)

// main wires dependencies and runs the HTTP server, the audit consumer and
// the expiry sweep until SIGINT or SIGTERM. Business logic lives in
// internal/journey.
func main() {
	if err := run(); err != nil {
		slog.Error("memberportal exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.New(cfg.Environment, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	infra, err := openInfra(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer infra.Close()

	auditing, err := buildAudit(cfg, infra, log)
	if err != nil {
		return err
	}
	defer auditing.Close()

	app := buildApp(cfg, infra, auditing.publisher, log, prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
	srv := httpserver.New(cfg.Server, app.router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting memberportal",
			"addr", cfg.Server.Addr,
			"environment", cfg.Environment,
			"journey_store", cfg.Journey.Store,
		)
		err := httpserver.Run(gctx, srv, cfg.Server.ShutdownTimeout)
		log.Info("http server stopped")
		return err
	})
	if auditing.consumer != nil {
		g.Go(func() error {
			return auditing.consumer.Run(gctx)
		})
	}
	if cfg.Journey.PurgeInterval > 0 {
		g.Go(func() error {
			sweepExpired(gctx, cfg.Journey.PurgeInterval, app.purgers, log)
			return nil
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// sweepExpired purges expired journeys of every type on each tick.
func sweepExpired(ctx context.Context, interval time.Duration, purgers []purger, log *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, p := range purgers {
				if _, err := p.PurgeExpired(ctx); err != nil {
					log.ErrorContext(ctx, "expired journey sweep failed", "error", err)
				}
			}
		}
	}
}
