// file: internal/metrics/metrics.go

package metrics

import (
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels shared by the token and data collectors
const (
	OutcomeSuccess  = "success"
	OutcomeAbsent   = "absent"
	OutcomeFailure  = "failure"
	OutcomeEmpty    = "empty"
	OutcomeNotFound = "not_found"
)

// Metrics provides centralized metrics collection for the data source
type Metrics struct {
	registry *prometheus.Registry

	// Token lifecycle
	tokenAcquisitionsTotal   *prometheus.CounterVec
	tokenAcquisitionDuration prometheus.Histogram
	authClientsActive        prometheus.Gauge

	// Refresh scheduling
	refreshArmedTotal   prometheus.Counter
	refreshFiredTotal   *prometheus.CounterVec
	refreshJobsPending  prometheus.Gauge

	// Chained calls
	downstreamRequestsTotal *prometheus.CounterVec
	downstreamDuration      *prometheus.HistogramVec

	// Facade
	getDataTotal         *prometheus.CounterVec
	clientIDLookupsTotal *prometheus.CounterVec
	descriptorsActive    prometheus.Gauge
	configChangesTotal   *prometheus.CounterVec

	// System
	goroutines  prometheus.Gauge
	memoryBytes prometheus.Gauge
}

// NewMetrics creates a new metrics instance with all collectors registered
func NewMetrics(registry *prometheus.Registry) (*Metrics, error) {
	m := &Metrics{
		registry: registry,

		tokenAcquisitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "datasource_token_acquisitions_total",
				Help: "Total number of silent token acquisitions by outcome.",
			},
			[]string{"outcome"},
		),
		tokenAcquisitionDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "datasource_token_acquisition_duration_seconds",
				Help:    "Duration of silent token acquisitions.",
				Buckets: prometheus.DefBuckets,
			},
		),
		authClientsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "datasource_auth_clients_active",
				Help: "Number of auth client instances held by the registry.",
			},
		),

		refreshArmedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "datasource_refresh_armed_total",
				Help: "Total number of refresh jobs armed.",
			},
		),
		refreshFiredTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "datasource_refresh_fired_total",
				Help: "Total number of refresh jobs that ran, by outcome.",
			},
			[]string{"outcome"},
		),
		refreshJobsPending: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "datasource_refresh_jobs_pending",
				Help: "Number of refresh jobs currently armed.",
			},
		),

		downstreamRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "datasource_downstream_requests_total",
				Help: "Total number of chained HTTP calls by method and status.",
			},
			[]string{"method", "status"},
		),
		downstreamDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "datasource_downstream_duration_seconds",
				Help:    "Duration of chained HTTP calls.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method"},
		),

		getDataTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "datasource_get_data_total",
				Help: "Total number of GetData calls by final state.",
			},
			[]string{"state"},
		),
		clientIDLookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "datasource_client_id_lookups_total",
				Help: "Total number of client id lookups by outcome.",
			},
			[]string{"outcome"},
		),
		descriptorsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "datasource_descriptors_active",
				Help: "Number of configured resource descriptors.",
			},
		),
		configChangesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "datasource_config_changes_total",
				Help: "Total number of configuration-changed events by outcome.",
			},
			[]string{"outcome"},
		),

		goroutines: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "process_goroutines",
				Help: "Number of goroutines",
			},
		),
		memoryBytes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "process_memory_bytes",
				Help: "Process memory usage in bytes",
			},
		),
	}

	collectors := []prometheus.Collector{
		m.tokenAcquisitionsTotal,
		m.tokenAcquisitionDuration,
		m.authClientsActive,
		m.refreshArmedTotal,
		m.refreshFiredTotal,
		m.refreshJobsPending,
		m.downstreamRequestsTotal,
		m.downstreamDuration,
		m.getDataTotal,
		m.clientIDLookupsTotal,
		m.descriptorsActive,
		m.configChangesTotal,
		m.goroutines,
		m.memoryBytes,
	}

	for _, collector := range collectors {
		if err := registry.Register(collector); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// Registry returns the registry the collectors were registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) IncTokenAcquisition(outcome string) {
	m.tokenAcquisitionsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveTokenAcquisitionDuration(seconds float64) {
	m.tokenAcquisitionDuration.Observe(seconds)
}

func (m *Metrics) SetAuthClientsActive(count float64) {
	m.authClientsActive.Set(count)
}

func (m *Metrics) IncRefreshArmed() {
	m.refreshArmedTotal.Inc()
}

func (m *Metrics) IncRefreshFired(outcome string) {
	m.refreshFiredTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) SetRefreshJobsPending(count float64) {
	m.refreshJobsPending.Set(count)
}

func (m *Metrics) IncDownstreamRequest(method, status string) {
	m.downstreamRequestsTotal.WithLabelValues(method, status).Inc()
}

func (m *Metrics) ObserveDownstreamDuration(method string, seconds float64) {
	m.downstreamDuration.WithLabelValues(method).Observe(seconds)
}

func (m *Metrics) IncGetData(state string) {
	m.getDataTotal.WithLabelValues(state).Inc()
}

func (m *Metrics) IncClientIDLookup(outcome string) {
	m.clientIDLookupsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) SetDescriptorsActive(count float64) {
	m.descriptorsActive.Set(count)
}

func (m *Metrics) IncConfigChange(outcome string) {
	m.configChangesTotal.WithLabelValues(outcome).Inc()
}

// UpdateSystemMetrics samples goroutine count and heap usage
func (m *Metrics) UpdateSystemMetrics() {
	m.goroutines.Set(float64(runtime.NumGoroutine()))

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	m.memoryBytes.Set(float64(memStats.Alloc))
}
