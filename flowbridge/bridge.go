// Package flowbridge converts the node's asynchronous flow machinery into
// the submit/await shape the HTTP layer needs. Submission and completion are
// split: Invoke returns a handle as soon as the node accepts the flow, and
// Await blocks until the invocation's terminal event arrives or a deadline
// passes. The result subscription is established before submission, so a
// flow that completes instantly cannot slip past its watcher.
package flowbridge

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/corda/ledgergate/errors"
	"github.com/corda/ledgergate/metric"
	"github.com/corda/ledgergate/nodeclient"
)

// Runner is the node's flow surface. Implemented by nodeclient.Client.
type Runner interface {
	StartFlow(ctx context.Context, req nodeclient.StartFlowRequest) error
	SubscribeFlowResult(invocationID string) (<-chan nodeclient.FlowResult, func(), error)
}

// Event is a terminal flow notification forwarded to observers
type Event struct {
	InvocationID string `json:"invocation_id"`
	Flow         string `json:"flow"`
	Status       string `json:"status"`
	TxID         string `json:"tx_id,omitempty"`
	Error        string `json:"error,omitempty"`
}

// Bridge submits flows to the node and tracks their terminal states
type Bridge struct {
	runner      Runner
	logger      *slog.Logger
	metrics     *metric.Metrics
	flowTimeout time.Duration
	onTerminal  func(Event)
}

// Option configures a Bridge
type Option func(*Bridge) error

// WithFlowTimeout bounds how long an invocation may stay unresolved. A flow
// still running when the timeout fires is abandoned and reported as timed
// out; the node keeps executing it regardless.
func WithFlowTimeout(timeout time.Duration) Option {
	return func(b *Bridge) error {
		if timeout <= 0 {
			return fmt.Errorf("flow timeout must be positive, got %v", timeout)
		}
		b.flowTimeout = timeout
		return nil
	}
}

// WithMetrics wires flow metrics
func WithMetrics(metrics *metric.Metrics) Option {
	return func(b *Bridge) error {
		b.metrics = metrics
		return nil
	}
}

// WithTerminalHook registers a callback invoked once per invocation when it
// reaches a terminal state. Called from the watch goroutine; keep it cheap.
func WithTerminalHook(hook func(Event)) Option {
	return func(b *Bridge) error {
		b.onTerminal = hook
		return nil
	}
}

// WithLogger sets the bridge logger
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bridge) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		b.logger = logger
		return nil
	}
}

// NewBridge creates a flow bridge
func NewBridge(runner Runner, opts ...Option) (*Bridge, error) {
	if runner == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Bridge", "NewBridge",
			"runner is required")
	}

	bridge := &Bridge{
		runner:      runner,
		logger:      slog.Default(),
		flowTimeout: 60 * time.Second,
	}

	for _, opt := range opts {
		if err := opt(bridge); err != nil {
			return nil, errors.WrapInvalid(err, "Bridge", "NewBridge", "apply option")
		}
	}

	bridge.logger = bridge.logger.With("component", "flowbridge")
	return bridge, nil
}

// Invoke submits a flow and returns a handle tracking it. The handle resolves
// when the node publishes the invocation's terminal event, or when the flow
// timeout passes, whichever comes first.
func (b *Bridge) Invoke(ctx context.Context, flow string, args []string) (*Handle, error) {
	if flow == "" {
		return nil, errors.WrapInvalid(stderrors.New("flow name is required"),
			"Bridge", "Invoke", "validate request")
	}

	handle := newHandle(flow)

	results, cancel, err := b.runner.SubscribeFlowResult(handle.id)
	if err != nil {
		return nil, errors.Wrap(err, "Bridge", "Invoke", "establish result subscription")
	}

	err = b.runner.StartFlow(ctx, nodeclient.StartFlowRequest{
		InvocationID: handle.id,
		Flow:         flow,
		Args:         args,
	})
	if err != nil {
		cancel()
		return nil, errors.Wrap(err, "Bridge", "Invoke", "flow submission")
	}

	b.logger.Info("flow submitted",
		"flow", flow,
		"invocation_id", handle.id)

	if b.metrics != nil {
		b.metrics.FlowsAwaiting.Inc()
	}
	go b.watch(handle, results, cancel)

	return handle, nil
}

// watch resolves the handle from the invocation's terminal event
func (b *Bridge) watch(handle *Handle, results <-chan nodeclient.FlowResult, cancel func()) {
	defer cancel()

	timer := time.NewTimer(b.flowTimeout)
	defer timer.Stop()

	select {
	case result := <-results:
		b.finish(handle, result)
	case <-timer.C:
		b.logger.Warn("flow invocation abandoned",
			"flow", handle.flow,
			"invocation_id", handle.id,
			"timeout", b.flowTimeout)
		handle.resolve(CommitResult{}, errors.WrapTransient(errors.ErrFlowTimeout,
			"Bridge", "watch", "await terminal event"))
		b.observe(handle, Event{
			InvocationID: handle.id,
			Flow:         handle.flow,
			Status:       "timeout",
			Error:        errors.ErrFlowTimeout.Error(),
		})
	}
}

// finish records a terminal event on the handle
func (b *Bridge) finish(handle *Handle, result nodeclient.FlowResult) {
	if result.Committed() {
		b.logger.Info("flow committed",
			"flow", handle.flow,
			"invocation_id", handle.id,
			"tx_id", result.TxID)
		handle.resolve(CommitResult{TxID: result.TxID}, nil)
		b.observe(handle, Event{
			InvocationID: handle.id,
			Flow:         handle.flow,
			Status:       "committed",
			TxID:         result.TxID,
		})
		return
	}

	b.logger.Warn("flow failed",
		"flow", handle.flow,
		"invocation_id", handle.id,
		"error", result.Error,
		"error_class", result.ErrorClass)
	handle.resolve(CommitResult{}, flowError(result))
	b.observe(handle, Event{
		InvocationID: handle.id,
		Flow:         handle.flow,
		Status:       "failed",
		Error:        result.Error,
	})
}

// observe updates metrics and fires the terminal hook
func (b *Bridge) observe(handle *Handle, event Event) {
	if b.metrics != nil {
		b.metrics.FlowsAwaiting.Dec()
		b.metrics.FlowsTotal.WithLabelValues(handle.flow, event.Status).Inc()
		b.metrics.FlowDuration.WithLabelValues(handle.flow).
			Observe(time.Since(handle.submitted).Seconds())
	}
	if b.onTerminal != nil {
		b.onTerminal(event)
	}
}

// Await blocks until the invocation reaches a terminal state or the context
// is done. Await is idempotent: every call for a resolved handle returns the
// same outcome.
func (b *Bridge) Await(ctx context.Context, handle *Handle) (CommitResult, error) {
	if handle == nil {
		return CommitResult{}, errors.WrapInvalid(stderrors.New("handle is required"),
			"Bridge", "Await", "validate request")
	}

	select {
	case <-handle.done:
		return handle.outcome()
	case <-ctx.Done():
		return CommitResult{}, errors.WrapTransient(ctx.Err(), "Bridge", "Await",
			"wait for terminal event")
	}
}

// NodeRejection carries the node's verbatim failure message for a flow the
// node refused to commit. The HTTP layer renders this message to the caller.
type NodeRejection struct {
	Message string
}

func (e *NodeRejection) Error() string {
	return "flow failed: " + e.Message
}

func (e *NodeRejection) Unwrap() error {
	return errors.ErrFlowFailed
}

// flowError converts a failed terminal event into a classified error. The
// node tags internal faults "fatal"; everything else is the flow refusing
// the request and renders as a client error.
func flowError(result nodeclient.FlowResult) error {
	remote := &NodeRejection{Message: result.Error}
	if result.ErrorClass == "fatal" {
		return errors.WrapFatal(remote, "Bridge", "finish", "flow execution")
	}
	return errors.WrapInvalid(remote, "Bridge", "finish", "flow execution")
}
