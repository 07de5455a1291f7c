// file: internal/metrics/http.go

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Host-facing HTTP metrics, registered only when the server runs

var (
	httpInboundRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_inbound_requests_total",
			Help: "Total number of HTTP inbound requests",
		},
		[]string{"path", "method", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)
)

// RegisterHTTPMetrics registers the inbound HTTP collectors
func (m *Metrics) RegisterHTTPMetrics() error {
	for _, collector := range []prometheus.Collector{httpInboundRequestsTotal, httpRequestDuration} {
		if err := m.registry.Register(collector); err != nil {
			return err
		}
	}
	return nil
}

// IncHTTPInboundRequestsTotal increments HTTP inbound request counter
func (m *Metrics) IncHTTPInboundRequestsTotal(path, method, status string) {
	httpInboundRequestsTotal.WithLabelValues(path, method, status).Inc()
}

// ObserveHTTPRequestDuration observes HTTP request duration
func (m *Metrics) ObserveHTTPRequestDuration(path, method string, duration float64) {
	httpRequestDuration.WithLabelValues(path, method).Observe(duration)
}
