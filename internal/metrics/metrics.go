// Package metrics exposes the orchestrator's Prometheus gauges/counters:
// the opaque metric sink the aggregator pushes counters through.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ServicesOnline = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "orchestrator_services_online",
			Help: "Number of supervised services currently reporting pm2_status=online",
		},
	)

	WorkersConnected = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "orchestrator_workers_connected",
			Help: "Number of workers currently marked is_connected",
		},
	)

	StatusPublishTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_status_publish_total",
			Help: "Total number of status snapshots published, by update_type",
		},
		[]string{"update_type"},
	)

	ReadinessProbeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "orchestrator_readiness_probe_duration_seconds",
			Help:    "Duration of a single HTTP readiness/health probe",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service"},
	)

	StartupDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "orchestrator_startup_duration_seconds",
			Help:    "Wall-clock time from startup begin to the first ready publish",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
		},
	)

	ServiceRestartsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_service_restarts_total",
			Help: "Total number of service restarts, by service name",
		},
		[]string{"service"},
	)

	EventsDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "orchestrator_events_dropped_total",
			Help: "Total number of malformed worker events dropped by the aggregator",
		},
	)
)

func init() {
	prometheus.MustRegister(
		ServicesOnline,
		WorkersConnected,
		StatusPublishTotal,
		ReadinessProbeDuration,
		StartupDuration,
		ServiceRestartsTotal,
		EventsDroppedTotal,
	)
}

// Handler returns the Prometheus scrape handler, mounted at /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
