package monitoring

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors of the capture and reconciliation
// paths. A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Capture metrics
	EventsRecorded *prometheus.CounterVec
	BufferSeals    prometheus.Counter
	FlushDuration  prometheus.Histogram
	FlushBytes     prometheus.Histogram

	// Reconciliation metrics
	RanksReconciled   prometheus.Counter
	EventsCorrected   prometheus.Counter
	ReconcileFailures *prometheus.CounterVec
	ReconcileDuration prometheus.Histogram
	DriftRatio        *prometheus.GaugeVec

	// Timeline metrics
	MergedEvents prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics registers every collector with reg. A nil reg gets a fresh
// registry so that tests and repeated runs never collide on the default one.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		EventsRecorded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "interpol_capture_events_total",
				Help: "Events sealed into rank buffers, by call kind",
			},
			[]string{"kind"},
		),
		BufferSeals: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "interpol_capture_seals_total",
				Help: "Rank buffers sealed at Finalize",
			},
		),
		FlushDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "interpol_flush_duration_seconds",
				Help:    "Time spent writing one rank trace file",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
		),
		FlushBytes: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "interpol_flush_size_bytes",
				Help:    "Size of one written rank trace file",
				Buckets: prometheus.ExponentialBuckets(1024, 4, 10),
			},
		),

		RanksReconciled: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "interpol_reconcile_ranks_total",
				Help: "Rank traces rewritten with corrected timestamps",
			},
		),
		EventsCorrected: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "interpol_reconcile_events_total",
				Help: "Events whose tsc was rewritten",
			},
		),
		ReconcileFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "interpol_reconcile_failures_total",
				Help: "Reconciliation batches aborted, by error kind",
			},
			[]string{"error_kind"},
		),
		ReconcileDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "interpol_reconcile_duration_seconds",
				Help:    "Wall time of one reconciliation batch",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
		),
		DriftRatio: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "interpol_drift_ratio",
				Help: "Reference span divided by rank span, per rank",
			},
			[]string{"rank"},
		),

		MergedEvents: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "interpol_timeline_merged_events",
				Help: "Events in the last merged timeline",
			},
		),
	}
}

// Registry returns the registry the collectors live in.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordSeal adds the per-kind event counts of one sealed buffer.
func (m *Metrics) RecordSeal(counts map[string]int) {
	if m == nil {
		return
	}
	m.BufferSeals.Inc()
	for kind, n := range counts {
		m.EventsRecorded.WithLabelValues(kind).Add(float64(n))
	}
}

// RecordFlush records one trace file write.
func (m *Metrics) RecordFlush(duration time.Duration, size int64) {
	if m == nil {
		return
	}
	m.FlushDuration.Observe(duration.Seconds())
	m.FlushBytes.Observe(float64(size))
}

// RecordRank records the outcome of correcting one rank.
func (m *Metrics) RecordRank(rank int, ratio float64, events int) {
	if m == nil {
		return
	}
	m.RanksReconciled.Inc()
	m.EventsCorrected.Add(float64(events))
	m.DriftRatio.WithLabelValues(strconv.Itoa(rank)).Set(ratio)
}

// RecordFailure records an aborted reconciliation batch.
func (m *Metrics) RecordFailure(errorKind string) {
	if m == nil {
		return
	}
	m.ReconcileFailures.WithLabelValues(errorKind).Inc()
}

// SetMergedEvents records the size of a merged timeline.
func (m *Metrics) SetMergedEvents(n int) {
	if m == nil {
		return
	}
	m.MergedEvents.Set(float64(n))
}

// WriteTextfile writes every collector to path in the text exposition
// format, for the node exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}

// Timer measures operation duration
type Timer struct {
	start    time.Time
	observer prometheus.Observer
}

// NewTimer starts a timer that reports into observer. A nil observer is
// allowed.
func NewTimer(observer prometheus.Observer) *Timer {
	return &Timer{start: time.Now(), observer: observer}
}

// Stop records and returns the elapsed time.
func (t *Timer) Stop() time.Duration {
	duration := time.Since(t.start)
	if t.observer != nil {
		t.observer.Observe(duration.Seconds())
	}
	return duration
}
