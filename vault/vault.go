// Package vault issues structured read queries against the node's state
// store. The vault is append-mostly and owned by the node: every record
// visible here was produced by a flow that reached its notarized commit, so
// reads never observe partial or speculative state.
package vault

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/corda/ledgergate/errors"
	"github.com/corda/ledgergate/nodeclient"
)

// RecordStatus scopes a query to a slice of a record's linear lifecycle
type RecordStatus string

// Record statuses. A record is ACTIVE until a later flow consumes it, after
// which the superseding version is the ACTIVE one.
const (
	StatusActive   RecordStatus = "ACTIVE"
	StatusConsumed RecordStatus = "CONSUMED"
	StatusAll      RecordStatus = "ALL"
)

// RecordTypeIOU is the record type for bilateral obligations
const RecordTypeIOU = "iou"

// IOURecord is one version of a bilateral obligation
type IOURecord struct {
	Value    int          `json:"value"`
	Lender   string       `json:"lender"`
	Borrower string       `json:"borrower"`
	Status   RecordStatus `json:"status"`
	Ref      string       `json:"ref"` // state reference, txhash:index
}

// QueryFilter is a composable predicate over vault records. Constraints are
// field-equality checks combined conjunctively with the status scope.
type QueryFilter struct {
	Status      RecordStatus
	Constraints map[string]string
}

// NewFilter returns a filter scoped to the given status
func NewFilter(status RecordStatus) QueryFilter {
	return QueryFilter{Status: status}
}

// WhereEquals adds a field-equality constraint, returning a new filter
func (f QueryFilter) WhereEquals(field, value string) QueryFilter {
	constraints := make(map[string]string, len(f.Constraints)+1)
	for k, v := range f.Constraints {
		constraints[k] = v
	}
	constraints[field] = value
	return QueryFilter{Status: f.Status, Constraints: constraints}
}

// Validate checks the filter shape
func (f QueryFilter) Validate() error {
	switch f.Status {
	case StatusActive, StatusConsumed, StatusAll:
	default:
		return errors.WrapInvalid(fmt.Errorf("unknown status %q", string(f.Status)),
			"QueryFilter", "Validate", "status scope")
	}
	for field := range f.Constraints {
		if field == "" {
			return errors.WrapInvalid(fmt.Errorf("constraint field cannot be empty"),
				"QueryFilter", "Validate", "constraint field")
		}
	}
	return nil
}

// Querier is the node's vault read surface. Implemented by nodeclient.Client.
type Querier interface {
	VaultQuery(ctx context.Context, req nodeclient.VaultQueryRequest) ([]json.RawMessage, error)
}

// Service runs vault queries on behalf of the gateway
type Service struct {
	querier Querier
	logger  *slog.Logger
}

// NewService creates a vault query service
func NewService(querier Querier, logger *slog.Logger) (*Service, error) {
	if querier == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Service", "NewService",
			"querier is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		querier: querier,
		logger:  logger.With("component", "vault"),
	}, nil
}

// Query runs a filtered read for one record type and returns raw records in
// the store's stable order. Storage faults propagate to the caller
// unchanged; nothing is retried here.
func (s *Service) Query(ctx context.Context, recordType string, filter QueryFilter) ([]json.RawMessage, error) {
	if recordType == "" {
		return nil, errors.WrapInvalid(errors.ErrUnknownRecordType, "Service", "Query",
			"record type is required")
	}
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	records, err := s.querier.VaultQuery(ctx, nodeclient.VaultQueryRequest{
		RecordType:  recordType,
		Status:      string(filter.Status),
		Constraints: filter.Constraints,
	})
	if err != nil {
		return nil, errors.Wrap(err, "Service", "Query", "vault read")
	}

	return records, nil
}

// IOUs returns decoded obligation records matching the filter
func (s *Service) IOUs(ctx context.Context, filter QueryFilter) ([]IOURecord, error) {
	raw, err := s.Query(ctx, RecordTypeIOU, filter)
	if err != nil {
		return nil, err
	}

	records := make([]IOURecord, 0, len(raw))
	for _, data := range raw {
		var record IOURecord
		if err := json.Unmarshal(data, &record); err != nil {
			return nil, errors.WrapFatal(err, "Service", "IOUs", "decode vault record")
		}
		records = append(records, record)
	}

	return records, nil
}

// IOUsByLender returns obligation records, any status, where the given party
// is the lender. This is the read-your-writes view used by "my-ious".
func (s *Service) IOUsByLender(ctx context.Context, lender string) ([]IOURecord, error) {
	return s.IOUs(ctx, NewFilter(StatusAll).WhereEquals("lender", lender))
}
