// Package metrics implements the monitoring core: a dedicated Prometheus
// registry carrying the gateway's instruments, text and JSON exposition for
// the system resources, and threshold alert evaluation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Registry owns the gateway instruments. A private prometheus.Registry keeps
// the exposition limited to gateway metrics regardless of other libraries
// touching the default registry.
type Registry struct {
	reg *prometheus.Registry

	// Protocol server
	RPCRequestsTotal *prometheus.CounterVec
	RPCLatency       *prometheus.HistogramVec
	ActiveSessions   prometheus.Gauge

	// NLP engine
	ParseConfidence prometheus.Histogram

	// Backend client
	BackendRequestsTotal *prometheus.CounterVec
	BackendLatency       *prometheus.HistogramVec

	// Security core
	SecurityEventsTotal *prometheus.CounterVec
	RateLimitRejections *prometheus.CounterVec
}

// NewRegistry creates the registry with all required instruments.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Registry{
		reg: reg,

		RPCRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rpc_requests_total",
				Help: "Total number of JSON-RPC requests",
			},
			[]string{"method", "status"},
		),
		RPCLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rpc_latency_seconds",
				Help:    "JSON-RPC request duration in seconds",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~16s
			},
			[]string{"method"},
		),
		ActiveSessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "active_sessions",
				Help: "Current number of connected peer sessions",
			},
		),

		ParseConfidence: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "nlp_parse_confidence",
				Help:    "Confidence score of natural language parses",
				Buckets: prometheus.LinearBuckets(0, 0.1, 11), // 0.0 to 1.0
			},
		),

		BackendRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backend_requests_total",
				Help: "Total number of drone API requests",
			},
			[]string{"endpoint", "status"},
		),
		BackendLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "backend_latency_seconds",
				Help:    "Drone API request duration in seconds",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
			},
			[]string{"endpoint"},
		),

		SecurityEventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "security_events_total",
				Help: "Total number of security events",
			},
			[]string{"kind", "severity"},
		),
		RateLimitRejections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rate_limit_rejections_total",
				Help: "Total number of requests rejected by rate limiting",
			},
			[]string{"principal_role"},
		),
	}
}

// Gather collects the current state of all instruments.
func (r *Registry) Gather() ([]*dto.MetricFamily, error) {
	return r.reg.Gather()
}
