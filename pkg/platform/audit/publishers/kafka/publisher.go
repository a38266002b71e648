// Package kafka publishes audit events to a Kafka topic. When the broker
// misbehaves a circuit breaker routes events to a fallback emitter, usually
// the store-backed publisher, so no event is lost while Kafka is down.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	audit "memberportal/pkg/platform/audit"
	"memberportal/pkg/platform/circuit"
)

// Producer is the part of *kgo.Client the publisher needs.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// Emitter receives events Kafka could not take.
type Emitter interface {
	Emit(ctx context.Context, event audit.Event) error
}

type Publisher struct {
	producer Producer
	topic    string
	fallback Emitter
	breaker  *circuit.Breaker
	logger   *slog.Logger
	metrics  *Metrics
	timeout  time.Duration
	now      func() time.Time
}

type Option func(*Publisher)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(p *Publisher) {
		p.metrics = m
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(p *Publisher) {
		p.breaker = b
	}
}

// WithProduceTimeout bounds each synchronous produce.
func WithProduceTimeout(d time.Duration) Option {
	return func(p *Publisher) {
		if d > 0 {
			p.timeout = d
		}
	}
}

func New(producer Producer, topic string, fallback Emitter, opts ...Option) *Publisher {
	p := &Publisher{
		producer: producer,
		topic:    topic,
		fallback: fallback,
		breaker:  circuit.New("audit-kafka", circuit.WithFailureThreshold(3), circuit.WithSuccessThreshold(2)),
		logger:   slog.Default(),
		timeout:  5 * time.Second,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Emit produces the event keyed by its ID. While the breaker is open every
// event also goes to the fallback; a produce that fails while the breaker is
// still closed is retried on the fallback too.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	event = audit.Prepare(event, p.now())
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	produceCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	record := &kgo.Record{
		Topic:     p.topic,
		Key:       []byte(event.ID.String()),
		Value:     value,
		Timestamp: event.Timestamp,
	}
	produceErr := p.producer.ProduceSync(produceCtx, record).FirstErr()

	if produceErr == nil {
		p.metrics.IncPublished()
		usePrimary, change := p.breaker.RecordSuccess()
		if change.Closed {
			p.logger.InfoContext(ctx, "audit kafka circuit closed", "breaker", p.breaker.Name())
			p.metrics.SetCircuitBreakerState(false)
		}
		if usePrimary {
			return nil
		}
		return p.emitFallback(ctx, event)
	}

	p.metrics.IncPublishFailures()
	_, change := p.breaker.RecordFailure()
	if change.Opened {
		p.logger.WarnContext(ctx, "audit kafka circuit opened",
			"breaker", p.breaker.Name(),
			"error", produceErr,
		)
		p.metrics.SetCircuitBreakerState(true)
	}
	if p.fallback == nil {
		return fmt.Errorf("produce audit event: %w", produceErr)
	}
	return p.emitFallback(ctx, event)
}

func (p *Publisher) emitFallback(ctx context.Context, event audit.Event) error {
	if p.fallback == nil {
		return nil
	}
	p.metrics.IncFallback()
	if err := p.fallback.Emit(ctx, event); err != nil {
		return fmt.Errorf("fallback audit emit: %w", err)
	}
	return nil
}
