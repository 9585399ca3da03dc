// Package metric defines the gateway's prometheus metrics and the
// operational HTTP server that exposes them.
package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains all gateway-level metrics
type Metrics struct {
	// API metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Flow bridge metrics
	FlowsAwaiting prometheus.Gauge
	FlowsTotal    *prometheus.CounterVec
	FlowDuration  *prometheus.HistogramVec

	// Node connection metrics
	NodeConnected prometheus.Gauge
	NodeRTT       prometheus.Gauge

	// Peer directory metrics
	DirectoryPeers prometheus.Gauge

	// Error metrics
	ErrorsTotal *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all gateway metrics
func NewMetrics() *Metrics {
	return &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ledgergate",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of API requests",
			},
			[]string{"route", "method", "status"},
		),

		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "ledgergate",
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "API request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route"},
		),

		FlowsAwaiting: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "ledgergate",
				Subsystem: "flows",
				Name:      "awaiting",
				Help:      "Number of flow invocations currently awaiting a terminal state",
			},
		),

		FlowsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ledgergate",
				Subsystem: "flows",
				Name:      "total",
				Help:      "Total number of flow invocations by terminal status",
			},
			[]string{"flow", "status"},
		),

		FlowDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "ledgergate",
				Subsystem: "flows",
				Name:      "duration_seconds",
				Help:      "Time from flow submission to terminal state in seconds",
				Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"flow"},
		),

		NodeConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "ledgergate",
				Subsystem: "node",
				Name:      "connected",
				Help:      "Node connection status (0=disconnected, 1=connected)",
			},
		),

		NodeRTT: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "ledgergate",
				Subsystem: "node",
				Name:      "rtt_milliseconds",
				Help:      "Round-trip time to the node transport in milliseconds",
			},
		),

		DirectoryPeers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "ledgergate",
				Subsystem: "directory",
				Name:      "peers",
				Help:      "Number of participants in the cached network map snapshot",
			},
		),

		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ledgergate",
				Subsystem: "errors",
				Name:      "total",
				Help:      "Total number of errors by component and class",
			},
			[]string{"component", "class"},
		),
	}
}
