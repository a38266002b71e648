package main

import (
	"context"
	"log/slog"

	"memberportal/internal/platform/config"
	kafkaconsumer "memberportal/internal/platform/kafka/consumer"
	"memberportal/pkg/platform/audit"
	auditconsumer "memberportal/pkg/platform/audit/consumer"
	auditpublisher "memberportal/pkg/platform/audit/publisher"
	kafkapublisher "memberportal/pkg/platform/audit/publishers/kafka"
	auditmemory "memberportal/pkg/platform/audit/store/memory"
	auditpostgres "memberportal/pkg/platform/audit/store/postgres"
)

const auditBufferSize = 1024

type auditing struct {
	publisher interface {
		Emit(ctx context.Context, event audit.Event) error
	}
	local    *auditpublisher.Publisher
	consumer *kafkaconsumer.Consumer
}

// buildAudit chains the audit publishers: Kafka when brokers are configured,
// falling back to the buffered store publisher. The consumer copies Kafka
// events into Postgres when both are available.
func buildAudit(cfg config.Config, in *infra, log *slog.Logger) (*auditing, error) {
	var store audit.Store = auditmemory.NewInMemoryStore()
	if in.db != nil {
		store = auditpostgres.New(in.db)
	}
	local := auditpublisher.NewPublisher(store,
		auditpublisher.WithAsyncBuffer(auditBufferSize),
		auditpublisher.WithLogger(log),
	)
	a := &auditing{publisher: local, local: local}

	if in.producer == nil {
		return a, nil
	}
	a.publisher = kafkapublisher.New(in.producer, cfg.Kafka.AuditTopic, local,
		kafkapublisher.WithLogger(log),
		kafkapublisher.WithMetrics(kafkapublisher.NewMetrics()),
	)

	if in.db == nil {
		return a, nil
	}
	router := auditconsumer.NewRouter(log).
		Route(cfg.Kafka.AuditTopic, auditconsumer.NewEventHandler(store, log))
	consumer, err := kafkaconsumer.New(cfg.Kafka.Brokers, cfg.Kafka.ConsumerGroup, router.Topics(), router, log)
	if err != nil {
		local.Close()
		return nil, err
	}
	a.consumer = consumer
	return a, nil
}

func (a *auditing) Close() {
	if a.consumer != nil {
		a.consumer.Close(context.Background())
	}
	a.local.Close()
}
