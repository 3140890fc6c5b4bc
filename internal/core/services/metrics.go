package services

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/apache/stanbol-sub040/internal/core/domain"
)

const metricsNamespace = "yard"

// Outcome labels.
const (
	outcomeOK          = "ok"
	outcomeNotFound    = "not_found"
	outcomeUnsupported = "unsupported"
	outcomeError       = "error"
)

// Metrics instruments Yard and Indexer operations.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	upstream   *prometheus.CounterVec
	indexed    *prometheus.CounterVec
	entities   prometheus.Gauge
}

// NewMetrics creates the metrics and registers them with reg.
// A nil reg creates unregistered metrics, which is useful in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		operations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "operations_total",
				Help:      "Yard operations by operation and outcome",
			},
			[]string{"op", "outcome"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "operation_duration_seconds",
				Help:      "Yard operation latency in seconds",
				Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"op"},
		),
		upstream: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "upstream_fetches_total",
				Help:      "Entities fetched from the upstream source by outcome",
			},
			[]string{"outcome"},
		),
		indexed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "indexer",
				Name:      "entities_total",
				Help:      "Entities handled by the indexer by source and result",
			},
			[]string{"source", "result"},
		),
		entities: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "entities",
				Help:      "Entities stored at the last count",
			},
		),
	}
}

// observe records one operation. It takes the address of the operation's
// error so it can be deferred before the error is known.
func (m *Metrics) observe(op string, start time.Time, err *error) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(op, outcome(*err)).Inc()
	m.duration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (m *Metrics) upstreamFetch(err error) {
	if m == nil {
		return
	}
	m.upstream.WithLabelValues(outcome(err)).Inc()
}

func (m *Metrics) report(r *domain.IndexingReport) {
	if m == nil || r == nil {
		return
	}
	m.indexed.WithLabelValues(r.SourceID, "indexed").Add(float64(r.Indexed))
	m.indexed.WithLabelValues(r.SourceID, "excluded").Add(float64(r.Excluded))
	m.indexed.WithLabelValues(r.SourceID, "removed").Add(float64(r.Removed))
	m.indexed.WithLabelValues(r.SourceID, "skipped").Add(float64(r.Skipped))
}

func (m *Metrics) count(n int) {
	if m == nil {
		return
	}
	m.entities.Set(float64(n))
}

func outcome(err error) string {
	switch {
	case err == nil:
		return outcomeOK
	case errors.Is(err, domain.ErrNotFound):
		return outcomeNotFound
	case domain.IsUnsupportedConstraint(err):
		return outcomeUnsupported
	default:
		return outcomeError
	}
}
