package collectors

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "toxiproxy_client"

// ClientMetricCollectors observes control-plane requests issued by the
// client: a counter by method and status code, and a duration histogram by
// method.
type ClientMetricCollectors struct {
	collectors []prometheus.Collector

	RequestsTotal          *prometheus.CounterVec
	RequestDurationSeconds *prometheus.HistogramVec
}

func (c *ClientMetricCollectors) Collectors() []prometheus.Collector {
	return c.collectors
}

func NewClientMetricCollectors() *ClientMetricCollectors {
	var m ClientMetricCollectors
	m.RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "requests",
			Name:      "total",
		},
		[]string{"method", "code"})
	m.collectors = append(m.collectors, m.RequestsTotal)

	m.RequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "requests",
			Name:      "duration_seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method"})
	m.collectors = append(m.collectors, m.RequestDurationSeconds)

	return &m
}

// ObserveRequest records one completed control-plane request.
func (c *ClientMetricCollectors) ObserveRequest(method string, code int, elapsed time.Duration) {
	c.RequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	c.RequestDurationSeconds.WithLabelValues(method).Observe(elapsed.Seconds())
}
