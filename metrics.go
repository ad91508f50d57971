package blit

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics provides Prometheus metrics for the blit pipeline.
// All methods are nil-safe: calls on a nil *Metrics are no-ops.
type Metrics struct {
	// JobsTotal counts retired jobs by terminal state.
	// Label values: "completed", "timed_out", "error".
	JobsTotal *prometheus.CounterVec

	// ReductionsTotal counts operator reductions by from/to operator.
	ReductionsTotal *prometheus.CounterVec

	// MapFailuresTotal counts binding failures by slot.
	MapFailuresTotal *prometheus.CounterVec

	// TimeoutsTotal counts jobs whose completion wait expired.
	TimeoutsTotal prometheus.Counter

	// ResetsTotal counts forced hardware resets.
	ResetsTotal prometheus.Counter

	// MissedInterruptsTotal counts timeouts where the hardware had in
	// fact finished.
	MissedInterruptsTotal prometheus.Counter

	// BoundRanges tracks the number of ranges currently bound in the IOMMU.
	BoundRanges prometheus.Gauge

	// JobDuration observes dequeue-to-retire latency.
	JobDuration prometheus.Histogram
}

// NewMetrics creates and registers the pipeline metrics with reg. If reg
// is nil, metrics are created but not registered (useful for testing).
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "blit"
	}
	m := &Metrics{
		JobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Total number of retired blit jobs by terminal state",
		}, []string{"state"}),
		ReductionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operator_reductions_total",
			Help:      "Total number of blend operator reductions",
		}, []string{"from", "to"}),
		MapFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "map_failures_total",
			Help:      "Total number of IOMMU binding failures by slot",
		}, []string{"slot"}),
		TimeoutsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "timeouts_total",
			Help:      "Total number of jobs that timed out waiting for completion",
		}),
		ResetsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hardware_resets_total",
			Help:      "Total number of forced hardware resets",
		}),
		MissedInterruptsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "missed_interrupts_total",
			Help:      "Total number of completions observed only after the wait timed out",
		}),
		BoundRanges: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "bound_ranges",
			Help:      "Number of buffer ranges currently bound in the IOMMU",
		}),
		JobDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Time from dequeue to retirement of a blit job",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.JobsTotal,
			m.ReductionsTotal,
			m.MapFailuresTotal,
			m.TimeoutsTotal,
			m.ResetsTotal,
			m.MissedInterruptsTotal,
			m.BoundRanges,
			m.JobDuration,
		)
	}

	return m
}

// RecordJob counts a retired job and observes its latency.
func (m *Metrics) RecordJob(state State, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.JobsTotal.WithLabelValues(state.String()).Inc()
	m.JobDuration.Observe(elapsed.Seconds())
}

// RecordReduction counts an operator reduction.
func (m *Metrics) RecordReduction(from, to Operator) {
	if m == nil {
		return
	}
	m.ReductionsTotal.WithLabelValues(from.String(), to.String()).Inc()
}

// RecordMapFailure counts a binding failure for slot.
func (m *Metrics) RecordMapFailure(slot Slot) {
	if m == nil {
		return
	}
	m.MapFailuresTotal.WithLabelValues(slot.String()).Inc()
}

// RecordTimeout counts a completion timeout.
func (m *Metrics) RecordTimeout() {
	if m == nil {
		return
	}
	m.TimeoutsTotal.Inc()
}

// RecordReset counts a forced hardware reset.
func (m *Metrics) RecordReset() {
	if m == nil {
		return
	}
	m.ResetsTotal.Inc()
}

// RecordMissedInterrupt counts a completion seen only after timeout.
func (m *Metrics) RecordMissedInterrupt() {
	if m == nil {
		return
	}
	m.MissedInterruptsTotal.Inc()
}

// AddBoundRanges adjusts the bound range gauge by delta.
func (m *Metrics) AddBoundRanges(delta int) {
	if m == nil {
		return
	}
	m.BoundRanges.Add(float64(delta))
}
