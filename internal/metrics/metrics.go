package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the gateway
type Metrics struct {
	registry *prometheus.Registry

	// Invocation metrics
	InvocationsTotal   *prometheus.CounterVec
	InvocationDuration *prometheus.HistogramVec

	// Registry metrics
	ReloadsTotal           *prometheus.CounterVec
	CapabilitiesRegistered prometheus.Gauge

	// Adapter metrics
	HTTPRequestsTotal *prometheus.CounterVec
	MCPMessagesTotal  *prometheus.CounterVec
	MCPSessionsActive prometheus.Gauge
}

// NewMetrics creates and registers all metrics
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		InvocationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "toolgate_invocations_total",
				Help: "Total number of capability invocations by outcome",
			},
			[]string{"tool", "outcome"},
		),
		InvocationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "toolgate_invocation_duration_seconds",
				Help:    "Duration of capability invocations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"tool"},
		),

		ReloadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "toolgate_registry_reloads_total",
				Help: "Total number of discovery source rescans by status",
			},
			[]string{"status"},
		),
		CapabilitiesRegistered: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "toolgate_capabilities_registered",
				Help: "Number of capabilities currently listed",
			},
		),

		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "toolgate_http_requests_total",
				Help: "Total number of HTTP requests by route and status code",
			},
			[]string{"route", "code"},
		),
		MCPMessagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "toolgate_mcp_messages_total",
				Help: "Total number of message-stream requests by method",
			},
			[]string{"method"},
		),
		MCPSessionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "toolgate_mcp_sessions_active",
				Help: "Number of open message-stream sessions",
			},
		),
	}

	m.registry.MustRegister(
		m.InvocationsTotal,
		m.InvocationDuration,
		m.ReloadsTotal,
		m.CapabilitiesRegistered,
		m.HTTPRequestsTotal,
		m.MCPMessagesTotal,
		m.MCPSessionsActive,
	)

	return m
}

// RecordInvocation records one dispatched invocation
func (m *Metrics) RecordInvocation(tool, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.InvocationsTotal.WithLabelValues(tool, outcome).Inc()
	m.InvocationDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

// RecordReload records a rescan and the resulting table size
func (m *Metrics) RecordReload(total int, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.ReloadsTotal.WithLabelValues("error").Inc()
		return
	}
	m.ReloadsTotal.WithLabelValues("success").Inc()
	m.CapabilitiesRegistered.Set(float64(total))
}

// Handler returns an HTTP handler for the metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
