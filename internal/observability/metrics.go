package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "agri_etl"

// Metrics holds the Prometheus counters, histograms, and gauges for the ETL pipeline.
type Metrics struct {
	RunsTotal       *prometheus.CounterVec // labels: outcome={success,extract_error,load_error}
	PipelineRunning prometheus.Gauge
	RunDuration     prometheus.Histogram
	LastSuccess     prometheus.Gauge

	// Row accounting.
	RowsExtracted *prometheus.CounterVec // labels: table={field,weather}
	RowsDropped   *prometheus.CounterVec // labels: table, reason
	Anomalies     *prometheus.CounterVec // labels: reading
	MergedRecords *prometheus.CounterVec // labels: matched={true,false}
}

func newMetrics() *Metrics {
	return &Metrics{
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Completed pipeline runs by outcome.",
		}, []string{"outcome"}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 when the pipeline is active, 0 when shut down.",
		}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete extract-clean-merge-load run.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last run whose batch was loaded.",
		}),
		RowsExtracted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_extracted_total",
			Help:      "Raw rows read from each source table.",
		}, []string{"table"}),
		RowsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_dropped_total",
			Help:      "Rows removed during cleaning by table and reason.",
		}, []string{"table", "reason"}),
		Anomalies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "anomalies_total",
			Help:      "Weather sub-readings filtered as out of range.",
		}, []string{"reading"}),
		MergedRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "merged_records_total",
			Help:      "Merged records emitted by match status.",
		}, []string{"matched"}),
	}
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	m := newMetrics()
	prometheus.NewRegistry().MustRegister(m.collectors()...)
	return m
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.RunsTotal,
		m.PipelineRunning,
		m.RunDuration,
		m.LastSuccess,
		m.RowsExtracted,
		m.RowsDropped,
		m.Anomalies,
		m.MergedRecords,
	}
}
