package collectors

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewMetricsContainer initializes a container for storing all prometheus metrics.
func NewMetricsContainer(registry *prometheus.Registry) *MetricsContainer {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	return &MetricsContainer{
		registry: registry,
	}
}

type MetricsContainer struct {
	ClientMetrics *ClientMetricCollectors

	registry *prometheus.Registry
}

func (m *MetricsContainer) clientMetricsEnabled() bool {
	return m.ClientMetrics != nil
}

// AnyMetricsEnabled determines whether we have any prometheus metrics registered for exporting.
func (m *MetricsContainer) AnyMetricsEnabled() bool {
	return m.clientMetricsEnabled()
}

// Handler returns an HTTP handler with the necessary collectors registered,
// for test harnesses that want to export request metrics.
func (m *MetricsContainer) Handler() http.Handler {
	if m.clientMetricsEnabled() {
		m.registry.MustRegister(m.ClientMetrics.Collectors()...)
	}
	return promhttp.HandlerFor(
		m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
