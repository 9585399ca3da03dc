package flowbridge

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// CommitResult is the successful outcome of a flow invocation
type CommitResult struct {
	TxID string
}

// Handle tracks one flow invocation from submission to its terminal state.
// A handle reaches exactly one terminal state; reading it is idempotent.
type Handle struct {
	id        string
	flow      string
	submitted time.Time

	once   sync.Once
	done   chan struct{}
	result CommitResult
	err    error
}

func newHandle(flow string) *Handle {
	return &Handle{
		id:        uuid.NewString(),
		flow:      flow,
		submitted: time.Now(),
		done:      make(chan struct{}),
	}
}

// ID returns the gateway-assigned invocation ID
func (h *Handle) ID() string {
	return h.id
}

// Flow returns the flow name this handle tracks
func (h *Handle) Flow() string {
	return h.flow
}

// Done returns a channel closed when the invocation reaches a terminal state
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Terminal reports whether the invocation has reached a terminal state
func (h *Handle) Terminal() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// resolve records the terminal state. Only the first call takes effect.
func (h *Handle) resolve(result CommitResult, err error) {
	h.once.Do(func() {
		h.result = result
		h.err = err
		close(h.done)
	})
}

// outcome returns the terminal state. Only valid after done is closed.
func (h *Handle) outcome() (CommitResult, error) {
	return h.result, h.err
}
