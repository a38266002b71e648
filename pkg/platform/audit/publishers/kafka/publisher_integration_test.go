//go:build integration

package kafka

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memberportal/internal/platform/config"
	platformkafka "memberportal/internal/platform/kafka"
	"memberportal/internal/platform/kafka/consumer"
	"memberportal/internal/platform/logger"
	id "memberportal/pkg/domain"
	audit "memberportal/pkg/platform/audit"
	auditconsumer "memberportal/pkg/platform/audit/consumer"
	"memberportal/pkg/platform/audit/publisher"
	"memberportal/pkg/platform/audit/store/memory"
	"memberportal/pkg/platform/audit/store/postgres"
	"memberportal/pkg/testutil/containers"
)

// TestRoundTrip publishes through Redpanda and reads the event back from
// Postgres after the consumer materializes it.
func TestRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := containers.GetManager().GetRedpanda(t).Broker
	pg := containers.GetManager().GetPostgres(t)
	require.NoError(t, pg.TruncateTables(ctx, "audit_events"))

	topic := "memberportal.audit." + uuid.NewString()[:8]
	cfg := config.KafkaConfig{Brokers: []string{broker}, AuditTopic: topic}
	producer, err := platformkafka.NewProducer(cfg)
	require.NoError(t, err)
	defer producer.Close()
	require.NoError(t, platformkafka.EnsureTopic(ctx, producer, topic, 1, 1))
	require.NoError(t, platformkafka.EnsureTopic(ctx, producer, topic, 1, 1), "existing topic is not an error")

	fallback := memory.NewInMemoryStore()
	metrics := NewMetricsWith(prometheus.NewRegistry())
	p := New(producer, topic, publisher.NewPublisher(fallback), WithMetrics(metrics), WithLogger(logger.NewNop()))

	member := id.Member{BusinessGroup: "RBS", ReferenceNumber: "0304442"}
	event := audit.Event{
		ID:          uuid.New(),
		Action:      string(audit.EventJourneySubmitted),
		Member:      member,
		JourneyType: id.JourneyTypeTransfer,
		Timestamp:   time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC),
	}
	require.NoError(t, p.Emit(ctx, event))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Published))

	store := postgres.New(pg.DB)
	c, err := consumer.New([]string{broker}, "memberportal-it-"+topic, []string{topic},
		auditconsumer.NewEventHandler(store, logger.NewNop()), logger.NewNop())
	require.NoError(t, err)

	runCtx, stop := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- c.Run(runCtx) }()

	require.Eventually(t, func() bool {
		events, err := store.ListByMember(ctx, member)
		return err == nil && len(events) == 1 && events[0].ID == event.ID
	}, time.Minute, 250*time.Millisecond)

	stop()
	require.NoError(t, <-done)
	c.Close(ctx)

	fallen, err := fallback.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, fallen)
}
