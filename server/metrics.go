package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the server's Prometheus instruments on a private registry so
// tests can construct servers without duplicate-registration panics.
type Metrics struct {
	registry *prometheus.Registry

	RunsTotal     *prometheus.CounterVec
	EventsTotal   *prometheus.CounterVec
	RejectedTotal prometheus.Counter
	RunDuration   prometheus.Histogram
}

// NewMetrics creates and registers the workflow instruments.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		RunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "datateam_runs_total",
				Help: "Total number of workflow runs by terminal status",
			},
			[]string{"status"},
		),
		EventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "datateam_events_total",
				Help: "Total number of streamed workflow events by type",
			},
			[]string{"type"},
		),
		RejectedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "datateam_queries_rejected_total",
				Help: "Total number of queries rejected by validation",
			},
		),
		RunDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "datateam_run_duration_seconds",
				Help:    "Wall-clock duration of workflow runs",
				Buckets: prometheus.DefBuckets,
			},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		m.RunsTotal,
		m.EventsTotal,
		m.RejectedTotal,
		m.RunDuration,
	)
	return m
}

// Handler exposes the registry in Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
