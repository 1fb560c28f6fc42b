package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for an
// archiving run.
type Metrics struct {
	FilesOpened    prometheus.Counter
	CyclesStored   prometheus.Counter
	StoreErrors    prometheus.Counter
	ArchiveRunning prometheus.Gauge

	// Store output metrics, labeled by target: data or coordinates.
	ArraysWritten *prometheus.CounterVec   // labels: target
	ChunksWritten *prometheus.CounterVec   // labels: target
	BytesWritten  *prometheus.CounterVec   // labels: target
	StoreDuration *prometheus.HistogramVec // labels: target

	CycleOpenDuration prometheus.Histogram
}

// NewMetrics creates and registers all archive metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		FilesOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ufs2arco",
			Name:      "files_opened_total",
			Help:      "Total source NetCDF files opened.",
		}),
		CyclesStored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ufs2arco",
			Name:      "cycles_stored_total",
			Help:      "Total DA cycles written to the archive.",
		}),
		StoreErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ufs2arco",
			Name:      "store_errors_total",
			Help:      "Total failed store attempts.",
		}),
		ArchiveRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ufs2arco",
			Name:      "archive_running",
			Help:      "1 while a run is active, 0 when shut down.",
		}),
		ArraysWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ufs2arco",
			Name:      "arrays_written_total",
			Help:      "Zarr arrays written, by store target.",
		}, []string{"target"}),
		ChunksWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ufs2arco",
			Name:      "chunks_written_total",
			Help:      "Zarr chunks written, by store target.",
		}, []string{"target"}),
		BytesWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ufs2arco",
			Name:      "bytes_written_total",
			Help:      "Compressed bytes written, by store target.",
		}, []string{"target"}),
		StoreDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ufs2arco",
			Name:      "store_duration_seconds",
			Help:      "Duration of one store write, by target.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 1200},
		}, []string{"target"}),
		CycleOpenDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ufs2arco",
			Name:      "cycle_open_duration_seconds",
			Help:      "Duration of resolving, fetching, and merging one cycle.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 1200},
		}),
	}

	prometheus.MustRegister(
		m.FilesOpened,
		m.CyclesStored,
		m.StoreErrors,
		m.ArchiveRunning,
		m.ArraysWritten,
		m.ChunksWritten,
		m.BytesWritten,
		m.StoreDuration,
		m.CycleOpenDuration,
	)

	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		FilesOpened:       prometheus.NewCounter(prometheus.CounterOpts{Namespace: "ufs2arco", Name: "files_opened_total"}),
		CyclesStored:      prometheus.NewCounter(prometheus.CounterOpts{Namespace: "ufs2arco", Name: "cycles_stored_total"}),
		StoreErrors:       prometheus.NewCounter(prometheus.CounterOpts{Namespace: "ufs2arco", Name: "store_errors_total"}),
		ArchiveRunning:    prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "ufs2arco", Name: "archive_running"}),
		ArraysWritten:     prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "ufs2arco", Name: "arrays_written_total"}, []string{"target"}),
		ChunksWritten:     prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "ufs2arco", Name: "chunks_written_total"}, []string{"target"}),
		BytesWritten:      prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "ufs2arco", Name: "bytes_written_total"}, []string{"target"}),
		StoreDuration:     prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: "ufs2arco", Name: "store_duration_seconds"}, []string{"target"}),
		CycleOpenDuration: prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "ufs2arco", Name: "cycle_open_duration_seconds"}),
	}
}
