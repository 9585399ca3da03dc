package nodeclient

import (
	"fmt"
	"strings"
	"time"
)

// Option configures the node client
type Option func(*Client) error

// WithSubjectPrefix namespaces the node's RPC subjects (e.g. "partya.node")
func WithSubjectPrefix(prefix string) Option {
	return func(c *Client) error {
		if prefix == "" {
			return fmt.Errorf("subject prefix cannot be empty")
		}
		if strings.ContainsAny(prefix, " \t*>") {
			return fmt.Errorf("subject prefix contains invalid characters: %q", prefix)
		}
		c.subjectPrefix = strings.TrimSuffix(prefix, ".")
		return nil
	}
}

// WithName sets the client connection name visible to the NATS server
func WithName(name string) Option {
	return func(c *Client) error {
		if name == "" {
			return fmt.Errorf("client name cannot be empty")
		}
		c.clientName = name
		return nil
	}
}

// WithRequestTimeout bounds individual RPC round-trips
func WithRequestTimeout(timeout time.Duration) Option {
	return func(c *Client) error {
		if timeout <= 0 {
			return fmt.Errorf("request timeout must be positive: %v", timeout)
		}
		c.requestTimeout = timeout
		return nil
	}
}

// WithReconnectWait sets the delay between reconnection attempts
func WithReconnectWait(wait time.Duration) Option {
	return func(c *Client) error {
		if wait <= 0 {
			return fmt.Errorf("reconnect wait must be positive: %v", wait)
		}
		c.reconnectWait = wait
		return nil
	}
}

// WithMaxReconnects limits reconnection attempts (-1 = infinite)
func WithMaxReconnects(max int) Option {
	return func(c *Client) error {
		c.maxReconnects = max
		return nil
	}
}

// WithDisconnectHandler registers a callback invoked on connection loss
func WithDisconnectHandler(fn func(error)) Option {
	return func(c *Client) error {
		c.onDisconnect = fn
		return nil
	}
}

// WithReconnectHandler registers a callback invoked after reconnection
func WithReconnectHandler(fn func()) Option {
	return func(c *Client) error {
		c.onReconnect = fn
		return nil
	}
}
