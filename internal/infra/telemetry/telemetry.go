package telemetry

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// VersionMetricsOptions configures the lifecycle collectors.
type VersionMetricsOptions struct {
	Registerer prometheus.Registerer
	Namespace  string
	Buckets    []float64
}

// VersionMetrics exposes Prometheus collectors for the version lifecycle and analytics services.
type VersionMetrics struct {
	Operations      *prometheus.CounterVec
	Retries         *prometheus.CounterVec
	CacheLookups    *prometheus.CounterVec
	DiffDuration    prometheus.Histogram
	DiffChanges     prometheus.Histogram
	AnalyticsEvents *prometheus.CounterVec
}

// NewVersionMetrics constructs the collectors and registers them with the provided registerer.
func NewVersionMetrics(opts VersionMetricsOptions) (*VersionMetrics, error) {
	namespace := opts.Namespace
	if namespace == "" {
		namespace = "catalog"
	}

	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	buckets := opts.Buckets
	if len(buckets) == 0 {
		buckets = []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1}
	}

	operations, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "versions",
		Name:      "operations_total",
		Help:      "Lifecycle operations partitioned by operation and outcome.",
	}, []string{"op", "outcome"}))
	if err != nil {
		return nil, err
	}

	retries, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "versions",
		Name:      "conflict_retries_total",
		Help:      "Retries caused by concurrent writers, partitioned by operation.",
	}, []string{"op"}))
	if err != nil {
		return nil, err
	}

	lookups, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "versions",
		Name:      "pointer_cache_lookups_total",
		Help:      "Active/published pointer cache lookups partitioned by flag and result.",
	}, []string{"flag", "result"}))
	if err != nil {
		return nil, err
	}

	diffDuration, err := register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "versions",
		Name:      "diff_duration_seconds",
		Help:      "Time spent comparing two snapshots.",
		Buckets:   buckets,
	}))
	if err != nil {
		return nil, err
	}

	diffChanges, err := register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "versions",
		Name:      "diff_changes",
		Help:      "Number of field changes found per comparison.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 8),
	}))
	if err != nil {
		return nil, err
	}

	analytics, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "analytics",
		Name:      "events_total",
		Help:      "Analytics updates partitioned by kind and outcome.",
	}, []string{"kind", "outcome"}))
	if err != nil {
		return nil, err
	}

	return &VersionMetrics{
		Operations:      operations,
		Retries:         retries,
		CacheLookups:    lookups,
		DiffDuration:    diffDuration,
		DiffChanges:     diffChanges,
		AnalyticsEvents: analytics,
	}, nil
}

// IncOperation counts a finished lifecycle operation.
func (m *VersionMetrics) IncOperation(op, outcome string) {
	if m == nil {
		return
	}
	m.Operations.WithLabelValues(op, outcome).Inc()
}

// IncRetry counts a retry after a concurrency conflict.
func (m *VersionMetrics) IncRetry(op string) {
	if m == nil {
		return
	}
	m.Retries.WithLabelValues(op).Inc()
}

// IncCacheHit counts a pointer cache hit.
func (m *VersionMetrics) IncCacheHit(flag string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(flag, "hit").Inc()
}

// IncCacheMiss counts a pointer cache miss.
func (m *VersionMetrics) IncCacheMiss(flag string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(flag, "miss").Inc()
}

// ObserveDiff records the cost and size of a comparison.
func (m *VersionMetrics) ObserveDiff(duration time.Duration, changes int) {
	if m == nil {
		return
	}
	m.DiffDuration.Observe(duration.Seconds())
	m.DiffChanges.Observe(float64(changes))
}

// IncAnalyticsEvent counts an analytics update.
func (m *VersionMetrics) IncAnalyticsEvent(kind, outcome string) {
	if m == nil {
		return
	}
	m.AnalyticsEvents.WithLabelValues(kind, outcome).Inc()
}

// register adds the collector or returns the one already registered under the same descriptor.
func register[C prometheus.Collector](reg prometheus.Registerer, collector C) (C, error) {
	if err := reg.Register(collector); err != nil {
		already, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return collector, fmt.Errorf("register collector: %w", err)
		}
		existing, ok := already.ExistingCollector.(C)
		if !ok {
			return collector, fmt.Errorf("existing collector has unexpected type %T", already.ExistingCollector)
		}
		return existing, nil
	}
	return collector, nil
}
