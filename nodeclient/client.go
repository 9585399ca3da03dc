// Package nodeclient provides the RPC client for the ledger node daemon.
//
// The gateway talks to its node over NATS: request/reply for synchronous RPC
// (node info, network map, vault queries, flow submission) and a plain
// subscription per invocation for the flow's terminal event. The client owns
// the single connection for the gateway's lifetime and is injected into every
// component that needs the node.
package nodeclient

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/corda/ledgergate/errors"
)

// ConnectionStatus represents the state of the node connection
type ConnectionStatus int

// Possible connection statuses
const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnecting
	StatusConnected
	StatusReconnecting
)

// String returns the string representation of ConnectionStatus
func (s ConnectionStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// Client manages the NATS connection to the node daemon
type Client struct {
	urls          string
	subjectPrefix string
	status        atomic.Value // stores ConnectionStatus

	conn *nats.Conn

	// Connection options
	clientName     string
	maxReconnects  int
	reconnectWait  time.Duration
	requestTimeout time.Duration
	drainTimeout   time.Duration

	// Callbacks
	onDisconnect func(error)
	onReconnect  func()

	mu      sync.RWMutex
	closeMu sync.Mutex
	closed  atomic.Bool
}

// New creates a node client with optional configuration
func New(urls string, opts ...Option) (*Client, error) {
	if urls == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Client", "New",
			"node URLs are required")
	}

	c := &Client{
		urls:          urls,
		subjectPrefix: "node",
		clientName:    "ledgergate",
		// Sensible defaults
		maxReconnects:  -1, // infinite
		reconnectWait:  2 * time.Second,
		requestTimeout: 5 * time.Second,
		drainTimeout:   30 * time.Second,
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, errors.WrapInvalid(err, "Client", "New", "apply option")
		}
	}

	c.status.Store(StatusDisconnected)

	return c, nil
}

// Connect establishes the NATS connection
func (c *Client) Connect(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return errors.WrapFatal(errors.ErrAlreadyStarted, "Client", "Connect",
			"already connected")
	}

	c.setStatus(StatusConnecting)

	conn, err := nats.Connect(c.urls,
		nats.Name(c.clientName),
		nats.MaxReconnects(c.maxReconnects),
		nats.ReconnectWait(c.reconnectWait),
		nats.DrainTimeout(c.drainTimeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			c.setStatus(StatusReconnecting)
			if c.onDisconnect != nil {
				c.onDisconnect(err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			c.setStatus(StatusConnected)
			if c.onReconnect != nil {
				c.onReconnect()
			}
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			c.setStatus(StatusDisconnected)
		}),
	)
	if err != nil {
		c.setStatus(StatusDisconnected)
		return errors.WrapTransient(err, "Client", "Connect", "dial node")
	}

	c.conn = conn
	c.setStatus(StatusConnected)

	return nil
}

// Close drains and closes the connection. Safe to call more than once.
func (c *Client) Close(_ context.Context) error {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()

	if c.closed.Load() {
		return nil
	}
	c.closed.Store(true)

	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn == nil {
		return nil
	}

	if err := conn.Drain(); err != nil {
		conn.Close()
		return errors.WrapTransient(err, "Client", "Close", "drain connection")
	}

	c.setStatus(StatusDisconnected)
	return nil
}

// Status returns the current connection status
func (c *Client) Status() ConnectionStatus {
	val := c.status.Load()
	if val == nil {
		return StatusDisconnected
	}
	return val.(ConnectionStatus)
}

// IsHealthy returns true if the connection is established
func (c *Client) IsHealthy() bool {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	return conn != nil && conn.IsConnected()
}

// RTT returns the round-trip time to the NATS server
func (c *Client) RTT() (time.Duration, error) {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil {
		return 0, errors.ErrNoConnection
	}
	rtt, err := conn.RTT()
	if err != nil {
		return 0, errors.WrapTransient(err, "Client", "RTT", "measure round-trip")
	}
	return rtt, nil
}

// SubjectPrefix returns the configured RPC subject prefix
func (c *Client) SubjectPrefix() string {
	return c.subjectPrefix
}

func (c *Client) setStatus(status ConnectionStatus) {
	c.status.Store(status)
}

// connection returns the live connection or a classified error
func (c *Client) connection() (*nats.Conn, error) {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil {
		return nil, errors.WrapTransient(errors.ErrNoConnection, "Client", "connection",
			"node connection")
	}
	return conn, nil
}
