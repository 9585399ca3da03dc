// Package config loads and validates the gateway configuration file.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/corda/ledgergate/errors"
)

// Config is the root gateway configuration
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Node     NodeConfig     `yaml:"node"`
	Identity IdentityConfig `yaml:"identity"`
	Flows    FlowConfig     `yaml:"flows"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// HTTPConfig configures the API server
type HTTPConfig struct {
	// ListenAddr is the host:port the API server binds to
	ListenAddr string `yaml:"listen_addr"`

	// BasePath is the prefix all API routes are served under (default: /api)
	BasePath string `yaml:"base_path"`

	// MaxRequestSize limits request body size in bytes (default: 64KB)
	MaxRequestSize int64 `yaml:"max_request_size"`

	// RateLimit bounds POST /create-iou throughput; zero disables limiting
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig is a token bucket over the negotiation endpoint
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// NodeConfig configures the connection to the ledger node daemon
type NodeConfig struct {
	// URLs lists NATS server URLs for node RPC
	URLs []string `yaml:"urls"`

	// SubjectPrefix namespaces the node's RPC subjects (default: "node")
	SubjectPrefix string `yaml:"subject_prefix"`

	// RequestTimeoutStr bounds individual RPC round-trips (default: "5s")
	RequestTimeoutStr string `yaml:"request_timeout"`

	requestTimeout time.Duration
}

// RequestTimeout returns the parsed RPC timeout
func (n *NodeConfig) RequestTimeout() time.Duration {
	return n.requestTimeout
}

// IdentityConfig configures the peer directory cache
type IdentityConfig struct {
	// RefreshIntervalStr controls network map snapshot refresh (default: "30s")
	RefreshIntervalStr string `yaml:"refresh_interval"`

	// ReservedOrgs are organisation names never offered as counterparties
	ReservedOrgs []string `yaml:"reserved_orgs"`

	refreshInterval time.Duration
}

// RefreshInterval returns the parsed refresh interval
func (i *IdentityConfig) RefreshInterval() time.Duration {
	return i.refreshInterval
}

// FlowConfig configures flow invocation behaviour
type FlowConfig struct {
	// TimeoutStr bounds the await on a flow's terminal state (default: "60s").
	// A flow that has not committed or failed by then surfaces as a timeout.
	TimeoutStr string `yaml:"timeout"`

	timeout time.Duration
}

// Timeout returns the parsed flow await timeout
func (f *FlowConfig) Timeout() time.Duration {
	return f.timeout
}

// MetricsConfig configures the operational HTTP server
type MetricsConfig struct {
	// Port for /metrics and /health, 0 disables the server
	Port int `yaml:"port"`

	// Path for the prometheus handler (default: /metrics)
	Path string `yaml:"path"`
}

// DefaultReservedOrgs are the structural network participants excluded from
// the peers listing: they order and distribute transactions, they do not
// negotiate obligations.
var DefaultReservedOrgs = []string{"Notary", "Network Map Service"}

// Load reads and validates a configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapInvalid(err, "config", "Load", "read config file")
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.WrapInvalid(err, "config", "Load", "parse YAML")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the configuration and applies defaults
func (c *Config) Validate() error {
	if c.HTTP.ListenAddr == "" {
		c.HTTP.ListenAddr = ":8080"
	}

	if c.HTTP.BasePath == "" {
		c.HTTP.BasePath = "/api"
	}
	if !strings.HasPrefix(c.HTTP.BasePath, "/") {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			fmt.Sprintf("base_path must start with '/': %s", c.HTTP.BasePath))
	}
	c.HTTP.BasePath = strings.TrimSuffix(c.HTTP.BasePath, "/")

	if c.HTTP.MaxRequestSize < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"max_request_size cannot be negative")
	}
	if c.HTTP.MaxRequestSize == 0 {
		c.HTTP.MaxRequestSize = 64 * 1024
	}

	if c.HTTP.RateLimit.RequestsPerSecond < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"rate_limit.requests_per_second cannot be negative")
	}
	if c.HTTP.RateLimit.RequestsPerSecond > 0 && c.HTTP.RateLimit.Burst <= 0 {
		c.HTTP.RateLimit.Burst = 1
	}

	if len(c.Node.URLs) == 0 {
		c.Node.URLs = []string{"nats://localhost:4222"}
	}
	if c.Node.SubjectPrefix == "" {
		c.Node.SubjectPrefix = "node"
	}
	if strings.ContainsAny(c.Node.SubjectPrefix, " \t*>") {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			fmt.Sprintf("invalid subject_prefix: %q", c.Node.SubjectPrefix))
	}

	var err error
	if c.Node.requestTimeout, err = parseDuration(c.Node.RequestTimeoutStr, 5*time.Second); err != nil {
		return errors.WrapInvalid(err, "Config", "Validate", "parse node request_timeout")
	}
	if c.Identity.refreshInterval, err = parseDuration(c.Identity.RefreshIntervalStr, 30*time.Second); err != nil {
		return errors.WrapInvalid(err, "Config", "Validate", "parse identity refresh_interval")
	}
	if c.Flows.timeout, err = parseDuration(c.Flows.TimeoutStr, 60*time.Second); err != nil {
		return errors.WrapInvalid(err, "Config", "Validate", "parse flow timeout")
	}

	// A flow needs at least one node round-trip plus the consensus round
	if c.Flows.timeout < c.Node.requestTimeout {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"flows.timeout must be >= node.request_timeout")
	}

	if len(c.Identity.ReservedOrgs) == 0 {
		c.Identity.ReservedOrgs = append([]string(nil), DefaultReservedOrgs...)
	}

	if c.Metrics.Port < 0 || c.Metrics.Port > 65535 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			fmt.Sprintf("invalid metrics port: %d", c.Metrics.Port))
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}

	return nil
}

// Default returns a configuration with all defaults applied
func Default() *Config {
	cfg := &Config{}
	// Validate never fails on the zero value
	_ = cfg.Validate()
	return cfg
}

func parseDuration(s string, fallback time.Duration) (time.Duration, error) {
	if s == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration must be positive: %s", s)
	}
	return d, nil
}
