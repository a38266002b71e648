package kafka

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for audit delivery to Kafka.
type Metrics struct {
	Published           prometheus.Counter
	Fallback            prometheus.Counter
	PublishFailures     prometheus.Counter
	CircuitBreakerState prometheus.Gauge
}

// NewMetrics registers the audit delivery metrics with the default registry.
func NewMetrics() *Metrics {
	return newMetrics(promauto.With(prometheus.DefaultRegisterer))
}

// NewMetricsWith registers on reg. Tests pass a fresh registry.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	return newMetrics(promauto.With(reg))
}

func newMetrics(f promauto.Factory) *Metrics {
	return &Metrics{
		Published: f.NewCounter(prometheus.CounterOpts{
			Name: "memberportal_audit_kafka_published_total",
			Help: "Total number of audit events acknowledged by Kafka",
		}),
		Fallback: f.NewCounter(prometheus.CounterOpts{
			Name: "memberportal_audit_kafka_fallback_total",
			Help: "Total number of audit events written to the fallback store",
		}),
		PublishFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "memberportal_audit_kafka_publish_failures_total",
			Help: "Total number of failed Kafka produce attempts",
		}),
		CircuitBreakerState: f.NewGauge(prometheus.GaugeOpts{
			Name: "memberportal_audit_kafka_circuit_breaker_state",
			Help: "Current circuit breaker state (0=closed/healthy, 1=open/unhealthy)",
		}),
	}
}

func (m *Metrics) IncPublished() {
	if m != nil {
		m.Published.Inc()
	}
}

func (m *Metrics) IncFallback() {
	if m != nil {
		m.Fallback.Inc()
	}
}

func (m *Metrics) IncPublishFailures() {
	if m != nil {
		m.PublishFailures.Inc()
	}
}

func (m *Metrics) SetCircuitBreakerState(open bool) {
	if m == nil {
		return
	}
	if open {
		m.CircuitBreakerState.Set(1)
	} else {
		m.CircuitBreakerState.Set(0)
	}
}
