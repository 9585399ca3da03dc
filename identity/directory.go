package identity

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/corda/ledgergate/errors"
	"github.com/corda/ledgergate/nodeclient"
	"github.com/corda/ledgergate/pkg/retry"
)

// PeerIdentity is one network participant: a parsed distinguished name plus
// the node-reported key reference. Read-only once snapshotted.
type PeerIdentity struct {
	Name      Name
	OwningKey string
}

// Source provides network map snapshots and the node's own identity.
// Implemented by nodeclient.Client.
type Source interface {
	NetworkMap(ctx context.Context) ([]nodeclient.Party, error)
	NodeInfo(ctx context.Context) (nodeclient.Party, error)
}

// Directory caches a point-in-time snapshot of the peer directory. Lookups
// never touch the network; the snapshot is replaced wholesale by Refresh.
type Directory struct {
	source       Source
	logger       *slog.Logger
	reservedOrgs map[string]bool

	mu          sync.RWMutex
	self        PeerIdentity
	peers       []PeerIdentity
	lastRefresh time.Time
}

// NewDirectory creates a directory backed by the given source. Load must be
// called before the directory can resolve anything.
func NewDirectory(source Source, reservedOrgs []string, logger *slog.Logger) (*Directory, error) {
	if source == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Directory", "NewDirectory",
			"source is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	reserved := make(map[string]bool, len(reservedOrgs))
	for _, org := range reservedOrgs {
		reserved[org] = true
	}

	return &Directory{
		source:       source,
		logger:       logger.With("component", "directory"),
		reservedOrgs: reserved,
	}, nil
}

// Load fetches the node identity and the first snapshot, retrying while the
// node daemon comes up. Called once at startup.
func (d *Directory) Load(ctx context.Context) error {
	self, err := retry.DoWithResult(ctx, retry.Startup(), func() (nodeclient.Party, error) {
		return d.source.NodeInfo(ctx)
	})
	if err != nil {
		return errors.Wrap(err, "Directory", "Load", "fetch node identity")
	}

	selfName, err := ParseName(self.Name)
	if err != nil {
		return errors.WrapFatal(err, "Directory", "Load", "parse node identity")
	}

	d.mu.Lock()
	d.self = PeerIdentity{Name: selfName, OwningKey: self.OwningKey}
	d.mu.Unlock()

	if err := d.Refresh(ctx); err != nil {
		return err
	}

	d.logger.Info("peer directory loaded", "self", selfName.String(), "peers", len(d.Snapshot()))
	return nil
}

// Refresh replaces the cached snapshot with a fresh network map. Participants
// whose names do not parse are skipped, not fatal: one misregistered peer
// must not empty the directory.
func (d *Directory) Refresh(ctx context.Context) error {
	parties, err := d.source.NetworkMap(ctx)
	if err != nil {
		return errors.Wrap(err, "Directory", "Refresh", "fetch network map")
	}

	peers := make([]PeerIdentity, 0, len(parties))
	for _, party := range parties {
		name, err := ParseName(party.Name)
		if err != nil {
			d.logger.Warn("skipping unparseable network map entry", "name", party.Name, "error", err)
			continue
		}
		peers = append(peers, PeerIdentity{Name: name, OwningKey: party.OwningKey})
	}

	d.mu.Lock()
	d.peers = peers
	d.lastRefresh = time.Now()
	d.mu.Unlock()

	return nil
}

// Run refreshes the snapshot periodically until the context is cancelled.
// Refresh failures keep the previous snapshot; the node may be restarting.
func (d *Directory) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := d.Refresh(ctx); err != nil {
				d.logger.Warn("network map refresh failed, keeping cached snapshot", "error", err)
			}
		}
	}
}

// Self returns the gateway node's own identity
func (d *Directory) Self() PeerIdentity {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.self
}

// Snapshot returns all known participants, self and reserved services included
func (d *Directory) Snapshot() []PeerIdentity {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]PeerIdentity, len(d.peers))
	copy(out, d.peers)
	return out
}

// Counterparties returns participants that can be offered as negotiation
// targets: everyone except the gateway's own identity and the reserved
// infrastructure services (notary, network directory).
func (d *Directory) Counterparties() []PeerIdentity {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]PeerIdentity, 0, len(d.peers))
	for _, peer := range d.peers {
		if peer.Name.Equals(d.self.Name) {
			continue
		}
		if d.reservedOrgs[peer.Name.Organisation] {
			continue
		}
		out = append(out, peer)
	}
	return out
}

// Resolve maps a parsed name to a known participant. A missing party is an
// expected, recoverable outcome reported as ErrPartyNotFound, not a fault.
func (d *Directory) Resolve(name Name) (PeerIdentity, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, peer := range d.peers {
		if peer.Name.Equals(name) {
			return peer, nil
		}
	}

	return PeerIdentity{}, errors.WrapInvalid(errors.ErrPartyNotFound, "Directory", "Resolve",
		"lookup of "+name.String())
}

// LastRefresh reports when the snapshot was last replaced
func (d *Directory) LastRefresh() time.Time {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lastRefresh
}
