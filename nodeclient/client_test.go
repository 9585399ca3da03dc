package nodeclient

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corda/ledgergate/errors"
)

func TestNewRequiresURL(t *testing.T) {
	_, err := New("")
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestNewDefaults(t *testing.T) {
	c, err := New("nats://localhost:4222")
	require.NoError(t, err)

	assert.Equal(t, "node", c.SubjectPrefix())
	assert.Equal(t, StatusDisconnected, c.Status())
	assert.False(t, c.IsHealthy())
	assert.Equal(t, 5*time.Second, c.requestTimeout)
}

func TestOptions(t *testing.T) {
	c, err := New("nats://localhost:4222",
		WithSubjectPrefix("partya.node."),
		WithName("gateway-a"),
		WithRequestTimeout(2*time.Second),
		WithReconnectWait(time.Second),
		WithMaxReconnects(10),
	)
	require.NoError(t, err)

	assert.Equal(t, "partya.node", c.SubjectPrefix(), "trailing dot trimmed")
	assert.Equal(t, "gateway-a", c.clientName)
	assert.Equal(t, 2*time.Second, c.requestTimeout)
	assert.Equal(t, time.Second, c.reconnectWait)
	assert.Equal(t, 10, c.maxReconnects)
}

func TestOptionValidation(t *testing.T) {
	tests := []struct {
		name string
		opt  Option
	}{
		{"empty prefix", WithSubjectPrefix("")},
		{"wildcard prefix", WithSubjectPrefix("node.*")},
		{"full wildcard prefix", WithSubjectPrefix("node.>")},
		{"empty name", WithName("")},
		{"zero request timeout", WithRequestTimeout(0)},
		{"negative reconnect wait", WithReconnectWait(-time.Second)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New("nats://localhost:4222", tt.opt)
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err))
		})
	}
}

func TestSubjectBuilding(t *testing.T) {
	c, err := New("nats://localhost:4222", WithSubjectPrefix("partya.node"))
	require.NoError(t, err)

	assert.Equal(t, "partya.node.rpc.vault.query", c.subject("rpc.vault.query"))
	assert.Equal(t, "partya.node.flows.result.abc", c.subject("flows.result.abc"))
}

func TestConnectionStatusString(t *testing.T) {
	assert.Equal(t, "disconnected", StatusDisconnected.String())
	assert.Equal(t, "connecting", StatusConnecting.String())
	assert.Equal(t, "connected", StatusConnected.String())
	assert.Equal(t, "reconnecting", StatusReconnecting.String())
	assert.Equal(t, "unknown", ConnectionStatus(42).String())
}

func TestRPCWithoutConnection(t *testing.T) {
	c, err := New("nats://localhost:4222")
	require.NoError(t, err)

	_, err = c.NodeInfo(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))

	_, err = c.NetworkMap(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))

	_, _, err = c.SubscribeFlowResult("abc")
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))
}

func TestRemoteErrorClassification(t *testing.T) {
	assert.NoError(t, remoteError("C", "M", errorEnvelope{}))

	invalid := remoteError("C", "M", errorEnvelope{Error: "counterparty rejected"})
	require.Error(t, invalid)
	assert.True(t, errors.IsInvalid(invalid))
	assert.Contains(t, invalid.Error(), "counterparty rejected")

	fatal := remoteError("C", "M", errorEnvelope{Error: "vault index broken", ErrorClass: "fatal"})
	require.Error(t, fatal)
	assert.True(t, errors.IsFatal(fatal))

	transient := remoteError("C", "M", errorEnvelope{Error: "draining", ErrorClass: "transient"})
	require.Error(t, transient)
	assert.True(t, errors.IsTransient(transient))
}

func TestFlowResultCommitted(t *testing.T) {
	assert.True(t, FlowResult{Status: "committed"}.Committed())
	assert.False(t, FlowResult{Status: "failed"}.Committed())
}

func TestCloseWithoutConnect(t *testing.T) {
	c, err := New("nats://localhost:4222")
	require.NoError(t, err)
	require.NoError(t, c.Close(context.Background()))
	require.NoError(t, c.Close(context.Background()), "idempotent close")
}
