// Package metric holds the Prometheus collectors of the read path. A nil
// *Metrics disables recording.
package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "sos"

// Metrics is the set of read path collectors.
type Metrics struct {
	fetches  *prometheus.CounterVec // by strategy
	values   *prometheus.CounterVec // by strategy
	failures *prometheus.CounterVec // by reason
	series   prometheus.Histogram
	duration prometheus.Histogram
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "fetches_total",
			Help:      "Value batches fetched from the store",
		}, []string{"strategy"}),
		values: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "values_total",
			Help:      "Observation values streamed to encoders",
		}, []string{"strategy"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "failures_total",
			Help:      "Streams that ended in the failed state",
		}, []string{"reason"}), // reason: storage, size_limit, canceled
		series: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "getobservation",
			Name:      "series",
			Help:      "Series resolved per GetObservation request",
			Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100, 250, 500},
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "getobservation",
			Name:      "duration_seconds",
			Help:      "Time to assemble a GetObservation response, excluding value streaming",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	for _, c := range []prometheus.Collector{m.fetches, m.values, m.failures, m.series, m.duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) Fetch(strategy string) {
	if m == nil {
		return
	}
	m.fetches.WithLabelValues(strategy).Inc()
}

func (m *Metrics) Values(strategy string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.values.WithLabelValues(strategy).Add(float64(n))
}

func (m *Metrics) Failure(reason string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(reason).Inc()
}

// Request records one assembled GetObservation response.
func (m *Metrics) Request(series int, took time.Duration) {
	if m == nil {
		return
	}
	m.series.Observe(float64(series))
	m.duration.Observe(took.Seconds())
}
