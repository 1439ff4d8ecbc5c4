package settlement

import "math/big"

// FungibleToken is the pull-transfer surface of an interchangeable
// asset contract. Implementations must allow a holder to move its own
// balance when from equals the operator.
type FungibleToken interface {
	TransferFrom(from, to [20]byte, amount *big.Int) error
	BalanceOf(addr [20]byte) *big.Int
}

// NonFungibleToken is the safe-transfer surface of a unique-item asset
// contract. Implementations must consult the recipient's
// acknowledgment selector and report failure on mismatch.
type NonFungibleToken interface {
	SafeTransferFrom(from, to [20]byte, id *big.Int) error
}

// SemiFungibleToken is the safe-transfer surface of a
// unique-item-with-quantity asset contract.
type SemiFungibleToken interface {
	SafeTransferFrom(from, to [20]byte, id, amount *big.Int, data []byte) error
}

// Receiver is the acknowledgment capability a recipient exposes to
// asset contracts performing push-style safe transfers. Each method
// returns the fixed selector identifying the call shape it accepts; any
// other value tells the asset contract to reject the transfer.
type Receiver interface {
	AckNonFungible(operator, from [20]byte, id *big.Int, data []byte) [4]byte
	AckSemiFungible(operator, from [20]byte, id, amount *big.Int, data []byte) [4]byte
	AckSemiFungibleBatch(operator, from [20]byte, ids, amounts []*big.Int, data []byte) [4]byte
}

// AssetRegistry resolves 20-byte asset addresses to their transfer
// surfaces. The engine only ever handles addresses; the host process
// registers the concrete adapters.
type AssetRegistry interface {
	Fungible(addr [20]byte) (FungibleToken, bool)
	NonFungible(addr [20]byte) (NonFungibleToken, bool)
	SemiFungible(addr [20]byte) (SemiFungibleToken, bool)
}

// Snapshotter is the revert capability shared by the journaled ledger
// and any asset adapter whose state must unwind with a failed
// settlement. A registry implementing it lets the engine make asset
// pulls part of the all-or-nothing invocation.
type Snapshotter interface {
	Snapshot() int
	RevertToSnapshot(id int)
}

// Registry is a map-backed AssetRegistry. Its Snapshot fans out to
// every registered adapter that implements Snapshotter.
type Registry struct {
	fungibles     map[[20]byte]FungibleToken
	nonFungibles  map[[20]byte]NonFungibleToken
	semiFungibles map[[20]byte]SemiFungibleToken

	snapshots  []registrySnapshot
	nextSnapID int
}

type registrySnapshot struct {
	id     int
	assets []Snapshotter
	ids    []int
}

// NewRegistry constructs an empty asset registry.
func NewRegistry() *Registry {
	return &Registry{
		fungibles:     make(map[[20]byte]FungibleToken),
		nonFungibles:  make(map[[20]byte]NonFungibleToken),
		semiFungibles: make(map[[20]byte]SemiFungibleToken),
	}
}

// RegisterFungible binds a fungible asset contract to its address.
func (r *Registry) RegisterFungible(addr [20]byte, token FungibleToken) {
	if r == nil || token == nil {
		return
	}
	r.fungibles[addr] = token
}

// RegisterNonFungible binds a non-fungible asset contract to its address.
func (r *Registry) RegisterNonFungible(addr [20]byte, token NonFungibleToken) {
	if r == nil || token == nil {
		return
	}
	r.nonFungibles[addr] = token
}

// RegisterSemiFungible binds a semi-fungible asset contract to its address.
func (r *Registry) RegisterSemiFungible(addr [20]byte, token SemiFungibleToken) {
	if r == nil || token == nil {
		return
	}
	r.semiFungibles[addr] = token
}

func (r *Registry) Fungible(addr [20]byte) (FungibleToken, bool) {
	if r == nil {
		return nil, false
	}
	token, ok := r.fungibles[addr]
	return token, ok
}

func (r *Registry) NonFungible(addr [20]byte) (NonFungibleToken, bool) {
	if r == nil {
		return nil, false
	}
	token, ok := r.nonFungibles[addr]
	return token, ok
}

func (r *Registry) SemiFungible(addr [20]byte) (SemiFungibleToken, bool) {
	if r == nil {
		return nil, false
	}
	token, ok := r.semiFungibles[addr]
	return token, ok
}

func (r *Registry) snapshotters() []Snapshotter {
	var out []Snapshotter
	for _, token := range r.fungibles {
		if s, ok := token.(Snapshotter); ok {
			out = append(out, s)
		}
	}
	for _, token := range r.nonFungibles {
		if s, ok := token.(Snapshotter); ok {
			out = append(out, s)
		}
	}
	for _, token := range r.semiFungibles {
		if s, ok := token.(Snapshotter); ok {
			out = append(out, s)
		}
	}
	return out
}

// Snapshot captures the revision of every revertible adapter.
func (r *Registry) Snapshot() int {
	snap := registrySnapshot{id: r.nextSnapID}
	r.nextSnapID++
	for _, s := range r.snapshotters() {
		snap.assets = append(snap.assets, s)
		snap.ids = append(snap.ids, s.Snapshot())
	}
	r.snapshots = append(r.snapshots, snap)
	return snap.id
}

// RevertToSnapshot unwinds every revertible adapter to the captured
// revision.
func (r *Registry) RevertToSnapshot(id int) {
	idx := -1
	for i := len(r.snapshots) - 1; i >= 0; i-- {
		if r.snapshots[i].id == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}
	snap := r.snapshots[idx]
	for i := len(snap.assets) - 1; i >= 0; i-- {
		snap.assets[i].RevertToSnapshot(snap.ids[i])
	}
	r.snapshots = r.snapshots[:idx]
}
