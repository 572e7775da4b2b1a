package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "hotspot_etl"

// Metrics holds the Prometheus counters, histograms, and gauges for the ETL loop.
type Metrics struct {
	Cycles          *prometheus.CounterVec // labels: stage={fetch,transform,persist,done}, outcome={success,partial,failed}
	CycleOverruns   prometheus.Counter
	RowsWritten     prometheus.Counter
	RowsSkipped     prometheus.Counter
	PipelineRunning prometheus.Gauge
	LastSuccess     prometheus.Gauge

	FetchBytes    prometheus.Histogram
	FetchDuration prometheus.Histogram
	CycleDuration prometheus.Histogram

	ColumnSpecReloads *prometheus.CounterVec // labels: outcome={success,error}
	EventsPublished   *prometheus.CounterVec // labels: outcome={success,error}
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.Cycles,
		m.CycleOverruns,
		m.RowsWritten,
		m.RowsSkipped,
		m.PipelineRunning,
		m.LastSuccess,
		m.FetchBytes,
		m.FetchDuration,
		m.CycleDuration,
		m.ColumnSpecReloads,
		m.EventsPublished,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		Cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Ingestion cycles by the last stage reached and outcome.",
		}, []string{"stage", "outcome"}),
		CycleOverruns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycle_overruns_total",
			Help:      "Cycles that ran past the next scheduled tick.",
		}),
		RowsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_written_total",
			Help:      "Projected rows written to the output artifact.",
		}),
		RowsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_skipped_total",
			Help:      "Source rows skipped because they had too few fields.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 when the fetch loop is active, 0 when shut down.",
		}),
		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last cycle that replaced the output artifact.",
		}),
		FetchBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_bytes",
			Help:      "Size of the fetched payload in bytes.",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 10),
		}),
		FetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Duration of the remote fetch, including failures.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Duration of a complete fetch-transform-persist cycle.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		ColumnSpecReloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "column_spec_reloads_total",
			Help:      "Column spec file reloads by outcome.",
		}, []string{"outcome"}),
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Cycle events published to Kafka by outcome.",
		}, []string{"outcome"}),
	}
}
