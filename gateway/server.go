// Package gateway is the HTTP surface of the ledger gateway. It exposes the
// node's identity, peer directory and vault over plain request/response
// endpoints, and bridges obligation issuance onto the node's asynchronous
// flow machinery.
package gateway

import (
	"context"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/corda/ledgergate/config"
	"github.com/corda/ledgergate/errors"
	"github.com/corda/ledgergate/flowbridge"
	"github.com/corda/ledgergate/identity"
	"github.com/corda/ledgergate/metric"
	"github.com/corda/ledgergate/vault"
)

// Directory is the peer directory surface the API serves from.
// Implemented by identity.Directory.
type Directory interface {
	Self() identity.PeerIdentity
	Counterparties() []identity.PeerIdentity
	Resolve(name identity.Name) (identity.PeerIdentity, error)
}

// VaultReader is the vault read surface. Implemented by vault.Service.
type VaultReader interface {
	IOUs(ctx context.Context, filter vault.QueryFilter) ([]vault.IOURecord, error)
	IOUsByLender(ctx context.Context, lender string) ([]vault.IOURecord, error)
}

// FlowRunner submits flows and awaits their terminal states.
// Implemented by flowbridge.Bridge.
type FlowRunner interface {
	Invoke(ctx context.Context, flow string, args []string) (*flowbridge.Handle, error)
	Await(ctx context.Context, handle *flowbridge.Handle) (flowbridge.CommitResult, error)
}

// Server is the gateway API server
type Server struct {
	config    config.HTTPConfig
	logger    *slog.Logger
	metrics   *metric.Metrics
	directory Directory
	vault     VaultReader
	flows     FlowRunner
	hub       *Hub
	limiter   *rate.Limiter

	running atomic.Bool
	server  *http.Server
}

// NewServer creates the API server. The hub may be nil when flow update
// streaming is not wired.
func NewServer(
	cfg config.HTTPConfig,
	directory Directory,
	vaultReader VaultReader,
	flows FlowRunner,
	hub *Hub,
	metrics *metric.Metrics,
	logger *slog.Logger,
) (*Server, error) {
	if directory == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Server", "NewServer",
			"directory is required")
	}
	if vaultReader == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Server", "NewServer",
			"vault reader is required")
	}
	if flows == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Server", "NewServer",
			"flow runner is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	var limiter *rate.Limiter
	if cfg.RateLimit.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit.RequestsPerSecond), cfg.RateLimit.Burst)
	}

	return &Server{
		config:    cfg,
		logger:    logger.With("component", "gateway"),
		metrics:   metrics,
		directory: directory,
		vault:     vaultReader,
		flows:     flows,
		hub:       hub,
		limiter:   limiter,
	}, nil
}

// Handler builds the route table. Exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	base := s.config.BasePath

	mux.HandleFunc(base+"/me", s.route("/me", http.MethodGet, s.handleMe))
	mux.HandleFunc(base+"/peers", s.route("/peers", http.MethodGet, s.handlePeers))
	mux.HandleFunc(base+"/ious", s.route("/ious", http.MethodGet, s.handleIOUs))
	mux.HandleFunc(base+"/my-ious", s.route("/my-ious", http.MethodGet, s.handleMyIOUs))
	mux.HandleFunc(base+"/create-iou", s.route("/create-iou", http.MethodPost, s.handleCreateIOU))

	if s.hub != nil {
		mux.HandleFunc(base+"/flow-updates", s.route("/flow-updates", http.MethodGet, s.hub.handleSubscribe))
	}

	return mux
}

// Start runs the API server until Stop is called. Blocks.
func (s *Server) Start() error {
	if !s.running.CompareAndSwap(false, true) {
		return errors.WrapFatal(errors.ErrAlreadyStarted, "Server", "Start",
			"server already running")
	}

	s.server = &http.Server{
		Addr:              s.config.ListenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.logger.Info("API server listening", "addr", s.config.ListenAddr, "base_path", s.config.BasePath)

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		s.running.Store(false)
		return errors.WrapFatal(err, "Server", "Start", "serve API")
	}
	return nil
}

// Stop drains in-flight requests and shuts the server down
func (s *Server) Stop(timeout time.Duration) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if s.hub != nil {
		s.hub.Close()
	}

	if err := s.server.Shutdown(ctx); err != nil {
		return errors.WrapTransient(err, "Server", "Stop", "drain API server")
	}
	return nil
}
