package main

import (
	"context"
	"database/sql"
	"fmt"

	"memberportal/internal/journey/graph"
	"memberportal/internal/journey/handler"
	"memberportal/internal/journey/models"
	"memberportal/internal/journey/service"
	journeystore "memberportal/internal/journey/store/journey"
	"memberportal/internal/platform/config"
	"memberportal/internal/platform/logger"
	"memberportal/internal/platform/postgres"
	"memberportal/internal/platform/redis"
	id "memberportal/pkg/domain"
	auditpublisher "memberportal/pkg/platform/audit/publisher"
	auditpostgres "memberportal/pkg/platform/audit/store/postgres"
)

// view is everything the read commands can print about one journey.
type view struct {
	response any
	markdown string
	mermaid  string
}

// journeyOps erases the payload type so commands can dispatch on --type.
type journeyOps struct {
	load  func(ctx context.Context, member id.Member) (*view, error)
	prune func(ctx context.Context, member id.Member) (int, error)
	purge func(ctx context.Context) (int, error)
}

type backend struct {
	ops   map[id.JourneyType]journeyOps
	close func()
}

func opsFor[T models.Payload](svc *service.Service[T]) journeyOps {
	return journeyOps{
		load: func(ctx context.Context, member id.Member) (*view, error) {
			j, err := svc.Get(ctx, member)
			if err != nil {
				return nil, err
			}
			return &view{
				response: handler.FromJourney(j),
				markdown: renderMarkdown(j),
				mermaid:  graph.GenerateMermaid(j),
			}, nil
		},
		prune: func(ctx context.Context, member id.Member) (int, error) {
			_, n, err := svc.RemoveInactiveBranches(ctx, member)
			return n, err
		},
		purge: svc.PurgeExpired,
	}
}

// openBackend connects to the configured journey store. Operator changes are
// audited to Postgres when it is configured.
func openBackend(ctx context.Context) (*backend, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log := logger.New(cfg.Environment, cfg.LogLevel)
	b := &backend{close: func() {}}

	var db *sql.DB
	if cfg.Postgres.DSN != "" {
		db, err = postgres.Open(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
	}
	rc, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		closeDB(db)
		return nil, err
	}
	b.close = func() {
		if rc != nil {
			_ = rc.Close()
		}
		closeDB(db)
	}

	opts := []service.Option{
		service.WithLogger(log),
		service.WithExpiryPolicy(models.ExpiryPolicy{
			ProcessingWindowDays: cfg.Journey.ProcessingWindowDays,
			MinimumWindowDays:    cfg.Journey.MinimumWindowDays,
			MaximumWindowDays:    cfg.Journey.MaximumWindowDays,
		}),
	}
	if db != nil {
		opts = append(opts, service.WithAuditPublisher(auditpublisher.NewPublisher(auditpostgres.New(db))))
	}

	switch cfg.Journey.Store {
	case config.StorePostgres:
		b.ops = map[id.JourneyType]journeyOps{
			id.JourneyTypeRetirement:     opsFor(service.New[models.RetirementPayload](journeystore.NewPostgres[models.RetirementPayload](db), opts...)),
			id.JourneyTypeTransfer:       opsFor(service.New[models.TransferPayload](journeystore.NewPostgres[models.TransferPayload](db), opts...)),
			id.JourneyTypeQuoteSelection: opsFor(service.New[models.QuoteSelectionPayload](journeystore.NewPostgres[models.QuoteSelectionPayload](db), opts...)),
		}
	case config.StoreRedis:
		b.ops = map[id.JourneyType]journeyOps{
			id.JourneyTypeRetirement:     opsFor(service.New[models.RetirementPayload](journeystore.NewRedis[models.RetirementPayload](rc.Client), opts...)),
			id.JourneyTypeTransfer:       opsFor(service.New[models.TransferPayload](journeystore.NewRedis[models.TransferPayload](rc.Client), opts...)),
			id.JourneyTypeQuoteSelection: opsFor(service.New[models.QuoteSelectionPayload](journeystore.NewRedis[models.QuoteSelectionPayload](rc.Client), opts...)),
		}
	default:
		b.close()
		return nil, fmt.Errorf("journey store %q is process-local; configure postgres or redis", cfg.Journey.Store)
	}
	return b, nil
}

func closeDB(db *sql.DB) {
	if db != nil {
		_ = db.Close()
	}
}
