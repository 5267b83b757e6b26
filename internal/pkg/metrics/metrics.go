package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"net/http"
	"time"
)

// Metrics holds the collectors recorded by the scan gate.
type Metrics struct {
	registry *prometheus.Registry

	Decisions    *prometheus.CounterVec
	CacheLookups *prometheus.CounterVec
	ScanRequests *prometheus.CounterVec
	ScanDuration *prometheus.HistogramVec
	Overrides    *prometheus.CounterVec
}

// New creates the collectors and registers them, together with the Go and process collectors, on a dedicated
// registry.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.Decisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scangate_decisions_total",
			Help: "Download decisions by ecosystem and outcome",
		},
		[]string{"ecosystem", "outcome"},
	)

	m.CacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scangate_cache_lookups_total",
			Help: "Test result lookups by how they were served",
		},
		[]string{"result"},
	)

	m.ScanRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scangate_scan_requests_total",
			Help: "Scan API calls by ecosystem and status",
		},
		[]string{"ecosystem", "status"},
	)

	m.ScanDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scangate_scan_duration_seconds",
			Help:    "Duration of scan API calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"ecosystem"},
	)

	m.Overrides = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scangate_override_changes_total",
			Help: "forceDownload property changes by key",
		},
		[]string{"key"},
	)

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Decisions,
		m.CacheLookups,
		m.ScanRequests,
		m.ScanDuration,
		m.Overrides,
	)
	return m
}

// ObserveScan records one scan API call.
func (m *Metrics) ObserveScan(ecosystem string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.ScanRequests.WithLabelValues(ecosystem, status).Inc()
	m.ScanDuration.WithLabelValues(ecosystem).Observe(time.Since(start).Seconds())
}

// Handler returns the Prometheus HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
