package nodeclient

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/corda/ledgergate/errors"
)

// Party is one network participant as reported by the node's network map.
// Name is the X.500 string form; OwningKey is an opaque key reference.
type Party struct {
	Name      string `json:"name"`
	OwningKey string `json:"owning_key"`
}

// VaultQueryRequest scopes a vault read on the node
type VaultQueryRequest struct {
	// RecordType names the state class to query (e.g. "iou")
	RecordType string `json:"record_type"`

	// Status is one of "ACTIVE", "CONSUMED", "ALL"
	Status string `json:"status"`

	// Constraints are field-equality predicates combined conjunctively
	Constraints map[string]string `json:"constraints,omitempty"`
}

// StartFlowRequest submits an asynchronous flow execution.
// The gateway assigns InvocationID before submission so the terminal event
// subscription can be established with no window for a missed result.
type StartFlowRequest struct {
	InvocationID string   `json:"invocation_id"`
	Flow         string   `json:"flow"`
	Args         []string `json:"args"`
}

// FlowResult is the terminal event the node publishes for one invocation
type FlowResult struct {
	InvocationID string `json:"invocation_id"`
	Status       string `json:"status"` // "committed" or "failed"
	TxID         string `json:"tx_id,omitempty"`
	Error        string `json:"error,omitempty"`
	ErrorClass   string `json:"error_class,omitempty"` // "invalid" or "fatal"
}

// Committed reports whether the flow reached the ledger
func (r FlowResult) Committed() bool {
	return r.Status == "committed"
}

// errorEnvelope is embedded in every RPC reply
type errorEnvelope struct {
	Error      string `json:"error,omitempty"`
	ErrorClass string `json:"error_class,omitempty"`
}

type nodeInfoResponse struct {
	errorEnvelope
	Identity Party `json:"identity"`
}

type networkMapResponse struct {
	errorEnvelope
	Identities []Party `json:"identities"`
}

type vaultQueryResponse struct {
	errorEnvelope
	Records []json.RawMessage `json:"records"`
}

type startFlowResponse struct {
	errorEnvelope
	Accepted bool `json:"accepted"`
}

// NodeInfo returns the node's own legal identity
func (c *Client) NodeInfo(ctx context.Context) (Party, error) {
	var resp nodeInfoResponse
	if err := c.request(ctx, "rpc.nodeinfo", nil, &resp); err != nil {
		return Party{}, errors.Wrap(err, "Client", "NodeInfo", "node info request")
	}
	if err := remoteError("Client", "NodeInfo", resp.errorEnvelope); err != nil {
		return Party{}, err
	}
	if resp.Identity.Name == "" {
		return Party{}, errors.WrapFatal(errors.ErrSelfIdentity, "Client", "NodeInfo",
			"empty identity in node reply")
	}
	return resp.Identity, nil
}

// NetworkMap returns a point-in-time snapshot of all known participants
func (c *Client) NetworkMap(ctx context.Context) ([]Party, error) {
	var resp networkMapResponse
	if err := c.request(ctx, "rpc.networkmap", nil, &resp); err != nil {
		return nil, errors.Wrap(err, "Client", "NetworkMap", "network map request")
	}
	if err := remoteError("Client", "NetworkMap", resp.errorEnvelope); err != nil {
		return nil, err
	}
	return resp.Identities, nil
}

// VaultQuery runs a filtered read against the node's vault. Records are
// returned raw; the caller owns the record schema.
func (c *Client) VaultQuery(ctx context.Context, req VaultQueryRequest) ([]json.RawMessage, error) {
	var resp vaultQueryResponse
	if err := c.request(ctx, "rpc.vault.query", req, &resp); err != nil {
		return nil, errors.WrapTransient(
			fmt.Errorf("%w: %w", errors.ErrStorageUnavailable, err),
			"Client", "VaultQuery", "vault query request")
	}
	if err := remoteError("Client", "VaultQuery", resp.errorEnvelope); err != nil {
		return nil, err
	}
	return resp.Records, nil
}

// StartFlow submits a flow invocation. The reply only acknowledges
// submission; the outcome arrives on the invocation's result subject.
func (c *Client) StartFlow(ctx context.Context, req StartFlowRequest) error {
	if req.InvocationID == "" {
		return errors.WrapInvalid(stderrors.New("invocation ID is required"),
			"Client", "StartFlow", "validate request")
	}
	var resp startFlowResponse
	if err := c.request(ctx, "rpc.flows.start", req, &resp); err != nil {
		return errors.Wrap(err, "Client", "StartFlow", "flow submission")
	}
	if err := remoteError("Client", "StartFlow", resp.errorEnvelope); err != nil {
		return err
	}
	if !resp.Accepted {
		return errors.WrapTransient(errors.ErrFlowFailed, "Client", "StartFlow",
			"node did not accept submission")
	}
	return nil
}

// SubscribeFlowResult subscribes to the terminal event for one invocation.
// Must be called before StartFlow for the same ID. The returned channel
// receives at most one result; the cancel func releases the subscription.
func (c *Client) SubscribeFlowResult(invocationID string) (<-chan FlowResult, func(), error) {
	conn, err := c.connection()
	if err != nil {
		return nil, nil, err
	}

	results := make(chan FlowResult, 1)
	subject := c.subject("flows.result." + invocationID)

	sub, err := conn.Subscribe(subject, func(msg *nats.Msg) {
		var result FlowResult
		if err := json.Unmarshal(msg.Data, &result); err != nil {
			result = FlowResult{
				InvocationID: invocationID,
				Status:       "failed",
				Error:        fmt.Sprintf("undecodable flow result: %v", err),
				ErrorClass:   "fatal",
			}
		}
		select {
		case results <- result:
		default: // terminal state is delivered once; drop duplicates
		}
	})
	if err != nil {
		return nil, nil, errors.WrapTransient(err, "Client", "SubscribeFlowResult",
			"subscribe to result subject")
	}

	cancel := func() { _ = sub.Unsubscribe() }
	return results, cancel, nil
}

// request performs one JSON request/reply round-trip
func (c *Client) request(ctx context.Context, suffix string, payload, reply any) error {
	conn, err := c.connection()
	if err != nil {
		return err
	}

	var data []byte
	if payload != nil {
		if data, err = json.Marshal(payload); err != nil {
			return errors.WrapFatal(err, "Client", "request", "marshal request")
		}
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.requestTimeout)
		defer cancel()
	}

	msg, err := conn.RequestWithContext(ctx, c.subject(suffix), data)
	if err != nil {
		if stderrors.Is(err, nats.ErrNoResponders) {
			return errors.WrapTransient(errors.ErrNoConnection, "Client", "request",
				"node is not answering RPC")
		}
		return errors.WrapTransient(err, "Client", "request", "node round-trip")
	}

	if err := json.Unmarshal(msg.Data, reply); err != nil {
		return errors.WrapFatal(err, "Client", "request", "decode node reply")
	}
	return nil
}

// subject builds a fully-qualified node subject
func (c *Client) subject(suffix string) string {
	return c.subjectPrefix + "." + suffix
}

// remoteError converts a node error envelope into a classified error.
// The node tags business rejections "invalid" and internal faults "fatal";
// an untagged error is treated as invalid, matching the node's historical
// behaviour of reporting every flow failure to the caller.
func remoteError(component, method string, env errorEnvelope) error {
	if env.Error == "" {
		return nil
	}
	remote := stderrors.New(env.Error)
	switch env.ErrorClass {
	case "fatal":
		return errors.WrapFatal(remote, component, method, "node reported fault")
	case "transient":
		return errors.WrapTransient(remote, component, method, "node temporarily unavailable")
	default:
		return errors.WrapInvalid(remote, component, method, "node rejected request")
	}
}
