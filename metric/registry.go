package metric

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registry owns the prometheus registry and the gateway metrics
type Registry struct {
	prometheusRegistry *prometheus.Registry
	metrics            *Metrics
}

// NewRegistry creates a registry with all gateway metrics plus Go runtime
// and process collectors registered.
func NewRegistry() *Registry {
	prometheusRegistry := prometheus.NewRegistry()

	registry := &Registry{
		prometheusRegistry: prometheusRegistry,
		metrics:            NewMetrics(),
	}

	prometheusRegistry.MustRegister(
		registry.metrics.RequestsTotal,
		registry.metrics.RequestDuration,
		registry.metrics.FlowsAwaiting,
		registry.metrics.FlowsTotal,
		registry.metrics.FlowDuration,
		registry.metrics.NodeConnected,
		registry.metrics.NodeRTT,
		registry.metrics.DirectoryPeers,
		registry.metrics.ErrorsTotal,
	)

	prometheusRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return registry
}

// PrometheusRegistry returns the underlying prometheus registry
func (r *Registry) PrometheusRegistry() *prometheus.Registry {
	return r.prometheusRegistry
}

// Metrics returns the gateway metrics
func (r *Registry) Metrics() *Metrics {
	return r.metrics
}
