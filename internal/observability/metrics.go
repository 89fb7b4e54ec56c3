package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// ingestion service.
type Metrics struct {
	RunsTotal       *prometheus.CounterVec // labels: status={success,partial,error}
	RunDuration     prometheus.Histogram
	IngestRunning   prometheus.Gauge
	EventsIngested  *prometheus.CounterVec   // labels: source
	EventsDropped   *prometheus.CounterVec   // labels: source
	AdapterErrors   *prometheus.CounterVec   // labels: source, kind
	AdapterDuration *prometheus.HistogramVec // labels: source
	StoreUpserts    prometheus.Counter
	StoreRowErrors  prometheus.Counter
}

// NewMetrics creates and registers all ingestion metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.RunsTotal,
		m.RunDuration,
		m.IngestRunning,
		m.EventsIngested,
		m.EventsDropped,
		m.AdapterErrors,
		m.AdapterDuration,
		m.StoreUpserts,
		m.StoreRowErrors,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hazard_ingest",
			Name:      "runs_total",
			Help:      "Completed ingestion runs by final status.",
		}, []string{"status"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "hazard_ingest",
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete fan-out ingestion run.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		IngestRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "hazard_ingest",
			Name:      "running",
			Help:      "Number of ingestion runs currently in flight.",
		}),
		EventsIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hazard_ingest",
			Name:      "events_ingested_total",
			Help:      "Unified events upserted into the store, by source.",
		}, []string{"source"}),
		EventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hazard_ingest",
			Name:      "events_dropped_total",
			Help:      "Raw records dropped for missing mandatory fields, by source.",
		}, []string{"source"}),
		AdapterErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hazard_ingest",
			Name:      "adapter_errors_total",
			Help:      "Adapter fetch failures by source and error kind.",
		}, []string{"source", "kind"}),
		AdapterDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "hazard_ingest",
			Name:      "adapter_fetch_duration_seconds",
			Help:      "Upstream fetch duration by source.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"source"}),
		StoreUpserts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hazard_ingest",
			Name:      "store_upserts_total",
			Help:      "Event rows written through the store gateway.",
		}),
		StoreRowErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hazard_ingest",
			Name:      "store_row_errors_total",
			Help:      "Individual rows that failed to upsert within a batch.",
		}),
	}
}
