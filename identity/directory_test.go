package identity

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corda/ledgergate/config"
	"github.com/corda/ledgergate/errors"
	"github.com/corda/ledgergate/nodeclient"
)

// fakeSource is an in-memory Source with switchable failure modes
type fakeSource struct {
	mu        sync.Mutex
	self      nodeclient.Party
	parties   []nodeclient.Party
	mapErr    error
	infoErr   error
	mapCalls  int
	infoCalls int
}

func (f *fakeSource) NetworkMap(_ context.Context) ([]nodeclient.Party, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mapCalls++
	if f.mapErr != nil {
		return nil, f.mapErr
	}
	return f.parties, nil
}

func (f *fakeSource) NodeInfo(_ context.Context) (nodeclient.Party, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.infoCalls++
	if f.infoErr != nil {
		return nodeclient.Party{}, f.infoErr
	}
	return f.self, nil
}

func newTestSource() *fakeSource {
	return &fakeSource{
		self: nodeclient.Party{Name: "O=PartyA,L=London,C=GB", OwningKey: "key-a"},
		parties: []nodeclient.Party{
			{Name: "O=PartyA,L=London,C=GB", OwningKey: "key-a"},
			{Name: "O=PartyB,L=New York,C=US", OwningKey: "key-b"},
			{Name: "O=PartyC,L=Paris,C=FR", OwningKey: "key-c"},
			{Name: "O=Notary,L=London,C=GB", OwningKey: "key-n"},
			{Name: "O=Network Map Service,L=London,C=GB", OwningKey: "key-m"},
		},
	}
}

func loadedDirectory(t *testing.T, source *fakeSource) *Directory {
	t.Helper()
	dir, err := NewDirectory(source, config.DefaultReservedOrgs, nil)
	require.NoError(t, err)
	require.NoError(t, dir.Load(context.Background()))
	return dir
}

func TestNewDirectoryRequiresSource(t *testing.T) {
	_, err := NewDirectory(nil, nil, nil)
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))
}

func TestLoadPopulatesSelfAndPeers(t *testing.T) {
	dir := loadedDirectory(t, newTestSource())

	assert.Equal(t, "O=PartyA,L=London,C=GB", dir.Self().Name.String())
	assert.Equal(t, "key-a", dir.Self().OwningKey)
	assert.Len(t, dir.Snapshot(), 5)
	assert.False(t, dir.LastRefresh().IsZero())
}

func TestCounterpartiesExcludeSelfAndReserved(t *testing.T) {
	dir := loadedDirectory(t, newTestSource())

	peers := dir.Counterparties()
	names := make([]string, 0, len(peers))
	for _, p := range peers {
		names = append(names, p.Name.String())
	}

	assert.ElementsMatch(t, []string{"O=PartyB,L=New York,C=US", "O=PartyC,L=Paris,C=FR"}, names)
	assert.NotContains(t, names, "O=PartyA,L=London,C=GB", "self excluded")
	assert.NotContains(t, names, "O=Notary,L=London,C=GB", "notary excluded")
	assert.NotContains(t, names, "O=Network Map Service,L=London,C=GB", "map service excluded")
}

func TestResolveKnownParty(t *testing.T) {
	dir := loadedDirectory(t, newTestSource())

	name, err := ParseName("O=PartyB, L=New York, C=us")
	require.NoError(t, err)

	peer, err := dir.Resolve(name)
	require.NoError(t, err)
	assert.Equal(t, "key-b", peer.OwningKey)
}

func TestResolveUnknownPartyIsNotFound(t *testing.T) {
	dir := loadedDirectory(t, newTestSource())

	name, err := ParseName("O=Unknown,L=Oslo,C=NO")
	require.NoError(t, err)

	_, err = dir.Resolve(name)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrPartyNotFound)
	assert.True(t, errors.IsInvalid(err), "missing party is a client error, not a fault")
	assert.Contains(t, err.Error(), "O=Unknown,L=Oslo,C=NO")
}

func TestRefreshSkipsUnparseableEntries(t *testing.T) {
	source := newTestSource()
	source.parties = append(source.parties, nodeclient.Party{Name: "not-a-name", OwningKey: "key-x"})

	dir := loadedDirectory(t, source)
	assert.Len(t, dir.Snapshot(), 5, "malformed entry skipped, rest kept")
}

func TestRefreshFailureKeepsSnapshot(t *testing.T) {
	source := newTestSource()
	dir := loadedDirectory(t, source)

	source.mu.Lock()
	source.mapErr = stderrors.New("node restarting")
	source.mu.Unlock()

	err := dir.Refresh(context.Background())
	require.Error(t, err)
	assert.Len(t, dir.Snapshot(), 5, "previous snapshot survives a failed refresh")
}

func TestRefreshReplacesSnapshot(t *testing.T) {
	source := newTestSource()
	dir := loadedDirectory(t, source)

	source.mu.Lock()
	source.parties = source.parties[:2]
	source.mu.Unlock()

	require.NoError(t, dir.Refresh(context.Background()))
	assert.Len(t, dir.Snapshot(), 2)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	dir := loadedDirectory(t, newTestSource())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- dir.Run(ctx, 10*time.Millisecond) }()

	time.Sleep(35 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop on cancel")
	}
}
