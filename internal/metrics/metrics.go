package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/felixgeelhaar/docflow/internal/status"
)

// Metrics holds all Prometheus metrics for docflow
type Metrics struct {
	// Command execution metrics
	CommandExecutions *prometheus.CounterVec
	CommandDuration   *prometheus.HistogramVec

	// Status store metrics
	Transitions  *prometheus.CounterVec
	UnitDuration *prometheus.HistogramVec

	// Runner metrics
	Batches   prometheus.Counter
	BatchSize prometheus.Histogram

	// Resume detection metrics
	StaleKinds *prometheus.CounterVec

	// Error metrics (by error code from structured errors)
	Errors *prometheus.CounterVec

	mu      sync.Mutex
	started map[string]time.Time
}

// NewMetrics creates a new Metrics instance with all metrics registered
func NewMetrics(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		CommandExecutions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docflow_command_executions_total",
				Help: "Total number of command executions",
			},
			[]string{"command", "success"},
		),
		CommandDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "docflow_command_duration_seconds",
				Help:    "Command execution duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"command"},
		),

		Transitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docflow_transitions_total",
				Help: "Total number of committed unit state transitions",
			},
			[]string{"from", "to"},
		),
		UnitDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "docflow_unit_duration_seconds",
				Help:    "Time a unit spent running, by outcome",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
			},
			[]string{"outcome"},
		),

		Batches: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "docflow_batches_total",
				Help: "Total number of dispatched batches",
			},
		),
		BatchSize: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "docflow_batch_size",
				Help:    "Number of units per dispatched batch",
				Buckets: []float64{1, 2, 4, 8, 16, 32, 64},
			},
		),

		StaleKinds: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docflow_stale_kinds_total",
				Help: "Total number of artifact kinds found stale, by reason",
			},
			[]string{"kind", "reason"},
		),

		Errors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docflow_errors_total",
				Help: "Total number of errors by error code",
			},
			[]string{"error_code"},
		),

		started: make(map[string]time.Time),
	}
}

// ObserveTransition implements status.Observer. Run time is measured from
// the Running event to the following Succeeded or Failed event.
func (m *Metrics) ObserveTransition(ev status.Event) {
	m.Transitions.WithLabelValues(ev.From.String(), ev.To.String()).Inc()

	m.mu.Lock()
	defer m.mu.Unlock()
	switch ev.To {
	case status.Running:
		m.started[ev.Unit] = ev.At
	case status.Succeeded, status.Failed:
		if start, ok := m.started[ev.Unit]; ok {
			m.UnitDuration.WithLabelValues(ev.To.String()).Observe(ev.At.Sub(start).Seconds())
			delete(m.started, ev.Unit)
		}
	}
}

// RecordCommand records a CLI command execution
func (m *Metrics) RecordCommand(command string, success bool, duration time.Duration) {
	m.CommandExecutions.WithLabelValues(command, boolToString(success)).Inc()
	m.CommandDuration.WithLabelValues(command).Observe(duration.Seconds())
}

// RecordBatch records a dispatched batch
func (m *Metrics) RecordBatch(size int) {
	m.Batches.Inc()
	m.BatchSize.Observe(float64(size))
}

// RecordStaleKind records an artifact kind found stale
func (m *Metrics) RecordStaleKind(kind, reason string) {
	m.StaleKinds.WithLabelValues(kind, reason).Inc()
}

// RecordError records an error by code
func (m *Metrics) RecordError(errorCode string) {
	m.Errors.WithLabelValues(errorCode).Inc()
}

func boolToString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

var _ status.Observer = (*Metrics)(nil)
