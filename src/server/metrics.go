package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// -----------------------------------------------------------------------------

// Metrics holds the relay's Prometheus collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	connections      prometheus.Gauge
	streaming        prometheus.Gauge
	framesForwarded  prometheus.Counter
	controlFrames    *prometheus.CounterVec
	upstreamFailures prometheus.Counter
	slowConsumers    prometheus.Counter
	apiRequests      *prometheus.CounterVec
}

func NewMetrics(namespace string) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "browser_connections",
			Help:      "Currently open browser connections",
		}),

		streaming: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "streaming_sessions",
			Help:      "Browser connections with a live upstream subscription",
		}),

		framesForwarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_forwarded_total",
			Help:      "Upstream frames queued for browser connections",
		}),

		controlFrames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "control_frames_total",
			Help:      "Browser control frames by kind",
		}, []string{"kind"}),

		upstreamFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_failures_total",
			Help:      "Upstream dial failures and unexpected disconnects",
		}),

		slowConsumers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slow_consumers_total",
			Help:      "Browser connections dropped for a full send queue",
		}),

		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_requests_total",
			Help:      "REST requests by route and status",
		}, []string{"route", "status"}),
	}

	registry.MustRegister(
		m.connections,
		m.streaming,
		m.framesForwarded,
		m.controlFrames,
		m.upstreamFailures,
		m.slowConsumers,
		m.apiRequests,
		collectors.NewGoCollector(),
	)

	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry (tests gather from it).
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
