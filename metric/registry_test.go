package metric

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corda/ledgergate/errors"
	"github.com/corda/ledgergate/health"
)

func TestNewRegistryRegistersAllMetrics(t *testing.T) {
	registry := NewRegistry()
	require.NotNil(t, registry.PrometheusRegistry())
	require.NotNil(t, registry.Metrics())

	m := registry.Metrics()
	m.RequestsTotal.WithLabelValues("/api/ious", "GET", "200").Inc()
	m.RequestDuration.WithLabelValues("/api/ious").Observe(0.01)
	m.FlowsAwaiting.Set(2)
	m.FlowsTotal.WithLabelValues("iou.issue", "committed").Inc()
	m.FlowDuration.WithLabelValues("iou.issue").Observe(1.5)
	m.NodeConnected.Set(1)
	m.NodeRTT.Set(3.2)
	m.DirectoryPeers.Set(2)
	m.ErrorsTotal.WithLabelValues("gateway", "invalid").Inc()

	families, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, family := range families {
		names[family.GetName()] = true
	}

	for _, want := range []string{
		"ledgergate_http_requests_total",
		"ledgergate_http_request_duration_seconds",
		"ledgergate_flows_awaiting",
		"ledgergate_flows_total",
		"ledgergate_flows_duration_seconds",
		"ledgergate_node_connected",
		"ledgergate_node_rtt_milliseconds",
		"ledgergate_directory_peers",
		"ledgergate_errors_total",
	} {
		assert.True(t, names[want], "missing metric family %s", want)
	}
}

func TestNewServerDefaults(t *testing.T) {
	server := NewServer(0, "", NewRegistry(), nil)
	assert.Equal(t, "http://localhost:9090/metrics", server.Address())
}

func TestServerStartRequiresRegistry(t *testing.T) {
	server := NewServer(19099, "/metrics", nil, nil)
	err := server.Start()
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))
}

func TestHandleHealthReportsStatus(t *testing.T) {
	tests := []struct {
		name       string
		healthFunc HealthFunc
		wantCode   int
	}{
		{
			name:       "no health func",
			healthFunc: nil,
			wantCode:   http.StatusOK,
		},
		{
			name:       "healthy",
			healthFunc: func() health.Status { return health.Healthy("gateway") },
			wantCode:   http.StatusOK,
		},
		{
			name:       "degraded is still serving",
			healthFunc: func() health.Status { return health.Degraded("gateway", "stale peer snapshot") },
			wantCode:   http.StatusOK,
		},
		{
			name:       "unhealthy",
			healthFunc: func() health.Status { return health.Unhealthy("gateway", "node unreachable") },
			wantCode:   http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := NewServer(0, "", NewRegistry(), tt.healthFunc)
			rec := httptest.NewRecorder()
			server.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
			assert.Equal(t, tt.wantCode, rec.Code)
		})
	}
}

func TestMetricsEndpointServesGatheredFamilies(t *testing.T) {
	registry := NewRegistry()
	registry.Metrics().NodeConnected.Set(1)

	handler := promhttp.HandlerFor(registry.PrometheusRegistry(), promhttp.HandlerOpts{})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ledgergate_node_connected 1")
}
