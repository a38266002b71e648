package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"memberportal/internal/platform/config"
	"memberportal/internal/platform/kafka"
	"memberportal/internal/platform/postgres"
	"memberportal/internal/platform/redis"
)

// infra holds the optional backing services. Each field is nil when not configured.
type infra struct {
	db       *sql.DB
	redis    *redis.Client
	producer *kgo.Client
}

func openInfra(ctx context.Context, cfg config.Config, log *slog.Logger) (*infra, error) {
	in := &infra{}
	if cfg.Postgres.DSN != "" {
		db, err := postgres.Open(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		in.db = db
		if cfg.Postgres.AutoMigrate {
			if err := postgres.Migrate(db); err != nil {
				in.Close()
				return nil, err
			}
			log.Info("database migrations applied")
		}
	}

	client, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		in.Close()
		return nil, err
	}
	in.redis = client

	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := kafka.NewProducer(cfg.Kafka)
		if err != nil {
			in.Close()
			return nil, err
		}
		in.producer = producer
		if cfg.Kafka.CreateTopic {
			if err := kafka.EnsureTopic(ctx, producer, cfg.Kafka.AuditTopic, cfg.Kafka.Partitions, cfg.Kafka.Replication); err != nil {
				in.Close()
				return nil, fmt.Errorf("ensure audit topic: %w", err)
			}
		}
	}
	return in, nil
}

// Health reports the first failing backing service.
func (in *infra) Health(ctx context.Context) error {
	var errs []error
	if in.db != nil {
		errs = append(errs, postgres.Health(ctx, in.db))
	}
	if in.redis != nil {
		errs = append(errs, in.redis.Health(ctx))
	}
	if in.producer != nil {
		errs = append(errs, kafka.Health(ctx, in.producer))
	}
	return errors.Join(errs...)
}

func (in *infra) Close() {
	if in.producer != nil {
		in.producer.Close()
	}
	if in.redis != nil {
		_ = in.redis.Close()
	}
	if in.db != nil {
		_ = in.db.Close()
	}
}
