package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "ushcn_etl"

// Skip reasons for LinesSkipped.
const (
	ReasonParse          = "parse"
	ReasonUnknownElement = "unknown_element"
	ReasonFiltered       = "filtered"
)

// Metrics holds the Prometheus counters, histograms, and gauges for an ETL run.
type Metrics struct {
	LinesRead           *prometheus.CounterVec // labels: variant
	LinesSkipped        *prometheus.CounterVec // labels: variant, reason={parse,unknown_element,filtered}
	MeasurementsEmitted *prometheus.CounterVec // labels: variant
	JoinGaps            *prometheus.CounterVec // labels: variant

	// Batch and sink metrics.
	BatchesFlushed *prometheus.CounterVec // labels: variant
	BatchRows      prometheus.Histogram

	VariantDuration *prometheus.HistogramVec // labels: variant
	VariantSuccess  *prometheus.GaugeVec     // labels: variant

	DownloadBytes  *prometheus.CounterVec // labels: source
	StationsLoaded *prometheus.GaugeVec   // labels: table
	RunInProgress  prometheus.Gauge
}

func newMetrics() *Metrics {
	return &Metrics{
		LinesRead: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lines_read_total",
			Help:      "Data lines read from archive members.",
		}, []string{"variant"}),
		LinesSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lines_skipped_total",
			Help:      "Data lines or values not emitted, by reason.",
		}, []string{"variant", "reason"}),
		MeasurementsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "measurements_emitted_total",
			Help:      "Located measurements handed to the sink.",
		}, []string{"variant"}),
		JoinGaps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "join_gaps_total",
			Help:      "Measurements whose station id was absent from the station table.",
		}, []string{"variant"}),
		BatchesFlushed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_flushed_total",
			Help:      "Column batches written to the sink.",
		}, []string{"variant"}),
		BatchRows: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_rows",
			Help:      "Rows per flushed column batch.",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 6),
		}),
		VariantDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "variant_duration_seconds",
			Help:      "Wall time to produce one dataset variant.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}, []string{"variant"}),
		VariantSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "variant_success",
			Help:      "1 when the variant's last run produced output, 0 on failure.",
		}, []string{"variant"}),
		DownloadBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "download_bytes_total",
			Help:      "Bytes downloaded per source file.",
		}, []string{"source"}),
		StationsLoaded: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stations_loaded",
			Help:      "Stations held in each station table.",
		}, []string{"table"}),
		RunInProgress: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_in_progress",
			Help:      "1 while a run is active, 0 otherwise.",
		}),
	}
}

// NewMetrics creates and registers all run metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics that are not registered anywhere, so
// tests can build as many as they need.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

// NewMetricsWithRegistry creates Metrics registered with reg.
func NewMetricsWithRegistry(reg prometheus.Registerer) *Metrics {
	m := newMetrics()
	reg.MustRegister(m.collectors()...)
	return m
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.LinesRead,
		m.LinesSkipped,
		m.MeasurementsEmitted,
		m.JoinGaps,
		m.BatchesFlushed,
		m.BatchRows,
		m.VariantDuration,
		m.VariantSuccess,
		m.DownloadBytes,
		m.StationsLoaded,
		m.RunInProgress,
	}
}
