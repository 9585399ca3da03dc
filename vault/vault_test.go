package vault

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corda/ledgergate/errors"
	"github.com/corda/ledgergate/nodeclient"
)

// fakeQuerier records requests and replays canned records
type fakeQuerier struct {
	lastReq nodeclient.VaultQueryRequest
	records []json.RawMessage
	err     error
	calls   int
}

func (f *fakeQuerier) VaultQuery(_ context.Context, req nodeclient.VaultQueryRequest) ([]json.RawMessage, error) {
	f.calls++
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.records, nil
}

func rawIOU(t *testing.T, record IOURecord) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(record)
	require.NoError(t, err)
	return data
}

func TestFilterComposition(t *testing.T) {
	base := NewFilter(StatusAll)
	filtered := base.WhereEquals("lender", "O=PartyA,L=London,C=GB")

	assert.Empty(t, base.Constraints, "WhereEquals does not mutate the receiver")
	assert.Equal(t, "O=PartyA,L=London,C=GB", filtered.Constraints["lender"])
	assert.Equal(t, StatusAll, filtered.Status)

	twice := filtered.WhereEquals("borrower", "O=PartyB,L=New York,C=US")
	assert.Len(t, twice.Constraints, 2, "constraints combine conjunctively")
	assert.Len(t, filtered.Constraints, 1)
}

func TestFilterValidate(t *testing.T) {
	assert.NoError(t, NewFilter(StatusActive).Validate())
	assert.NoError(t, NewFilter(StatusConsumed).Validate())
	assert.NoError(t, NewFilter(StatusAll).Validate())

	err := NewFilter(RecordStatus("PENDING")).Validate()
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))

	err = NewFilter(StatusAll).WhereEquals("", "x").Validate()
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestNewServiceRequiresQuerier(t *testing.T) {
	_, err := NewService(nil, nil)
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))
}

func TestQuerySendsFilterToNode(t *testing.T) {
	querier := &fakeQuerier{}
	svc, err := NewService(querier, nil)
	require.NoError(t, err)

	_, err = svc.Query(context.Background(), RecordTypeIOU,
		NewFilter(StatusActive).WhereEquals("lender", "O=PartyA,L=London,C=GB"))
	require.NoError(t, err)

	assert.Equal(t, "iou", querier.lastReq.RecordType)
	assert.Equal(t, "ACTIVE", querier.lastReq.Status)
	assert.Equal(t, map[string]string{"lender": "O=PartyA,L=London,C=GB"}, querier.lastReq.Constraints)
}

func TestQueryRejectsBadInput(t *testing.T) {
	querier := &fakeQuerier{}
	svc, err := NewService(querier, nil)
	require.NoError(t, err)

	_, err = svc.Query(context.Background(), "", NewFilter(StatusAll))
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))

	_, err = svc.Query(context.Background(), RecordTypeIOU, NewFilter(RecordStatus("???")))
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))

	assert.Zero(t, querier.calls, "invalid queries never reach the node")
}

func TestQueryPropagatesStorageFault(t *testing.T) {
	querier := &fakeQuerier{
		err: errors.WrapTransient(errors.ErrStorageUnavailable, "Client", "VaultQuery", "vault query request"),
	}
	svc, err := NewService(querier, nil)
	require.NoError(t, err)

	_, err = svc.Query(context.Background(), RecordTypeIOU, NewFilter(StatusAll))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrStorageUnavailable, "storage errors propagate unchanged")
	assert.True(t, errors.IsTransient(err))
	assert.Equal(t, 1, querier.calls, "no retry on storage faults")
}

func TestIOUsDecodesRecords(t *testing.T) {
	querier := &fakeQuerier{
		records: []json.RawMessage{
			rawIOU(t, IOURecord{Value: 100, Lender: "O=PartyA,L=London,C=GB", Borrower: "O=PartyB,L=New York,C=US", Status: StatusActive, Ref: "AB12:0"}),
			rawIOU(t, IOURecord{Value: 40, Lender: "O=PartyB,L=New York,C=US", Borrower: "O=PartyA,L=London,C=GB", Status: StatusConsumed, Ref: "CD34:1"}),
		},
	}
	svc, err := NewService(querier, nil)
	require.NoError(t, err)

	records, err := svc.IOUs(context.Background(), NewFilter(StatusAll))
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, 100, records[0].Value)
	assert.Equal(t, StatusActive, records[0].Status)
	assert.Equal(t, StatusConsumed, records[1].Status)
}

func TestIOUsRejectsUndecodableRecord(t *testing.T) {
	querier := &fakeQuerier{records: []json.RawMessage{json.RawMessage(`{"value":"not-a-number"}`)}}
	svc, err := NewService(querier, nil)
	require.NoError(t, err)

	_, err = svc.IOUs(context.Background(), NewFilter(StatusAll))
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err), "corrupt vault data is a fault, not a client error")
}

func TestIOUsByLender(t *testing.T) {
	querier := &fakeQuerier{}
	svc, err := NewService(querier, nil)
	require.NoError(t, err)

	_, err = svc.IOUsByLender(context.Background(), "O=PartyA,L=London,C=GB")
	require.NoError(t, err)

	assert.Equal(t, "ALL", querier.lastReq.Status, "my-ious spans active and consumed records")
	assert.Equal(t, "O=PartyA,L=London,C=GB", querier.lastReq.Constraints["lender"])
}
