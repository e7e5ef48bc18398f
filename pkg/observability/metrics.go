package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the process metrics exposed on /metrics. A private registry
// keeps the endpoint free of unrelated default collectors registered by
// dependencies.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequests    *prometheus.CounterVec
	EventsPublished prometheus.Counter
	WSConnections   prometheus.Gauge
	WSSubscriptions prometheus.Gauge
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Metrics{
		registry: registry,
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "swiftbase",
			Name:      "http_requests_total",
			Help:      "HTTP requests by method and status code.",
		}, []string{"method", "status"}),
		EventsPublished: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "swiftbase",
			Name:      "change_events_published_total",
			Help:      "Document change events published to the realtime hub.",
		}),
		WSConnections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "swiftbase",
			Name:      "websocket_connections",
			Help:      "Currently open websocket connections.",
		}),
		WSSubscriptions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "swiftbase",
			Name:      "websocket_subscriptions",
			Help:      "Currently active websocket subscriptions.",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
