package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the journey module. One instance is
// shared by every journey type; the journey_type label tells them apart.
type Metrics struct {
	// Journeys created by type
	JourneysStarted *prometheus.CounterVec

	// Submitted steps by type and outcome: "appended", "resubmitted", "forked", "rejected"
	StepsSubmitted *prometheus.CounterVec

	// Journeys submitted by type
	JourneysSubmitted *prometheus.CounterVec

	// Inactive branches discarded by type
	BranchesPruned *prometheus.CounterVec

	// Optimistic concurrency conflicts by type
	Conflicts *prometheus.CounterVec

	// Service operation latency by type and operation
	OperationLatency *prometheus.HistogramVec
}

// New registers the journey metrics with the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers on reg. Tests pass a fresh registry.
func NewWith(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		JourneysStarted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "memberportal_journeys_started_total",
			Help: "Total number of journeys started",
		}, []string{"journey_type"}),

		StepsSubmitted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "memberportal_journey_steps_submitted_total",
			Help: "Total number of submitted steps by outcome",
		}, []string{"journey_type", "outcome"}),

		JourneysSubmitted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "memberportal_journeys_submitted_total",
			Help: "Total number of journeys submitted for processing",
		}, []string{"journey_type"}),

		BranchesPruned: f.NewCounterVec(prometheus.CounterOpts{
			Name: "memberportal_journey_branches_pruned_total",
			Help: "Total number of inactive branches discarded",
		}, []string{"journey_type"}),

		Conflicts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "memberportal_journey_write_conflicts_total",
			Help: "Total number of journey writes rejected by a concurrent update",
		}, []string{"journey_type"}),

		OperationLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "memberportal_journey_operation_duration_seconds",
			Help:    "Duration of journey service operations including persistence",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"journey_type", "operation"}),
	}
}

func (m *Metrics) IncrementStarted(journeyType string) {
	if m != nil {
		m.JourneysStarted.WithLabelValues(journeyType).Inc()
	}
}

func (m *Metrics) IncrementStepSubmitted(journeyType, outcome string) {
	if m != nil {
		m.StepsSubmitted.WithLabelValues(journeyType, outcome).Inc()
	}
}

func (m *Metrics) IncrementSubmitted(journeyType string) {
	if m != nil {
		m.JourneysSubmitted.WithLabelValues(journeyType).Inc()
	}
}

func (m *Metrics) AddBranchesPruned(journeyType string, n int) {
	if m != nil && n > 0 {
		m.BranchesPruned.WithLabelValues(journeyType).Add(float64(n))
	}
}

func (m *Metrics) IncrementConflict(journeyType string) {
	if m != nil {
		m.Conflicts.WithLabelValues(journeyType).Inc()
	}
}

// ObserveOperation records how long a service operation took.
func (m *Metrics) ObserveOperation(journeyType, operation string, d time.Duration) {
	if m != nil {
		m.OperationLatency.WithLabelValues(journeyType, operation).Observe(d.Seconds())
	}
}
