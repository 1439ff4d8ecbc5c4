package settlement

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"harvestledger/core/events"
	"harvestledger/state"
)

func testAddr(fill byte) [20]byte {
	var addr [20]byte
	copy(addr[:], bytes.Repeat([]byte{fill}, 20))
	return addr
}

var (
	ownerAddr   = testAddr(0x01)
	companyAddr = testAddr(0x02)
	userAddr    = testAddr(0x03)
	otherAddr   = testAddr(0x04)
	ledgerAddr  = testAddr(0xAA)
)

type testEnv struct {
	ledger   *state.Ledger
	registry *Registry
	engine   *Engine
	recorder *events.Recorder
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ledger := state.NewLedger()
	registry := NewRegistry()
	engine, err := NewEngine(ledger, registry, ledgerAddr, companyAddr, ownerAddr)
	require.NoError(t, err)
	recorder := events.NewRecorder()
	engine.SetEmitter(recorder)
	return &testEnv{ledger: ledger, registry: registry, engine: engine, recorder: recorder}
}

// fund credits an address with native coin outside any settlement
// operation.
func (env *testEnv) fund(t *testing.T, addr [20]byte, amount *big.Int) {
	t.Helper()
	require.NoError(t, env.ledger.AddBalance(addr, amount))
}

func (env *testEnv) balance(addr [20]byte) *big.Int {
	return env.ledger.BalanceOf(addr)
}

func (env *testEnv) ownerCtx() CallContext {
	return CallContext{Caller: ownerAddr}
}

func (env *testEnv) lastEvent(t *testing.T) settlementEvent {
	t.Helper()
	recorded := env.recorder.Events()
	require.NotEmpty(t, recorded)
	evt, ok := recorded[len(recorded)-1].(settlementEvent)
	require.True(t, ok)
	return evt
}

// --- mock asset contracts ---

// mockFungible models a pull-transfer token: holders grant the ledger a
// spending allowance before a harvest.
type mockFungible struct {
	balances   map[[20]byte]*big.Int
	allowances map[[20]byte]*big.Int // holder -> amount approved to the ledger
	snaps      []fungibleSnap
}

func newMockFungible() *mockFungible {
	return &mockFungible{
		balances:   make(map[[20]byte]*big.Int),
		allowances: make(map[[20]byte]*big.Int),
	}
}

func (m *mockFungible) mint(addr [20]byte, amount int64) {
	m.balances[addr] = big.NewInt(amount)
}

func (m *mockFungible) approve(holder [20]byte, amount int64) {
	m.allowances[holder] = big.NewInt(amount)
}

func (m *mockFungible) BalanceOf(addr [20]byte) *big.Int {
	if bal, ok := m.balances[addr]; ok {
		return new(big.Int).Set(bal)
	}
	return big.NewInt(0)
}

func (m *mockFungible) TransferFrom(from, to [20]byte, amount *big.Int) error {
	if from != ledgerAddr {
		allowance, ok := m.allowances[from]
		if !ok || allowance.Cmp(amount) < 0 {
			return errors.New("allowance exceeded")
		}
		m.allowances[from] = new(big.Int).Sub(allowance, amount)
	}
	bal := m.BalanceOf(from)
	if bal.Cmp(amount) < 0 {
		return errors.New("balance exceeded")
	}
	m.balances[from] = new(big.Int).Sub(bal, amount)
	m.balances[to] = new(big.Int).Add(m.BalanceOf(to), amount)
	return nil
}

// mockNonFungible models a unique-item token with safe transfers that
// consult the recipient's acknowledgment selector.
type mockNonFungible struct {
	owners    map[string][20]byte
	approved  map[string]bool // id -> transfer authorized for the ledger
	receivers map[[20]byte]Receiver
	snaps     []nonFungibleSnap
}

func newMockNonFungible() *mockNonFungible {
	return &mockNonFungible{
		owners:    make(map[string][20]byte),
		approved:  make(map[string]bool),
		receivers: make(map[[20]byte]Receiver),
	}
}

func (m *mockNonFungible) mint(addr [20]byte, id int64) {
	m.owners[big.NewInt(id).String()] = addr
}

func (m *mockNonFungible) approve(id int64) {
	m.approved[big.NewInt(id).String()] = true
}

func (m *mockNonFungible) registerReceiver(addr [20]byte, recv Receiver) {
	m.receivers[addr] = recv
}

func (m *mockNonFungible) ownerOf(id int64) [20]byte {
	return m.owners[big.NewInt(id).String()]
}

func (m *mockNonFungible) SafeTransferFrom(from, to [20]byte, id *big.Int) error {
	key := id.String()
	owner, ok := m.owners[key]
	if !ok || owner != from {
		return fmt.Errorf("item %s not held by sender", key)
	}
	if from != ledgerAddr && !m.approved[key] {
		return fmt.Errorf("item %s not approved", key)
	}
	if recv, ok := m.receivers[to]; ok {
		if recv.AckNonFungible(from, from, id, nil) != SelectorNonFungibleReceived {
			return errors.New("receiver rejected item")
		}
	}
	delete(m.approved, key)
	m.owners[key] = to
	return nil
}

// mockSemiFungible models a unique-item-with-quantity token.
type mockSemiFungible struct {
	balances  map[string]map[[20]byte]*big.Int
	approved  map[[20]byte]bool // holder -> operator approval for the ledger
	receivers map[[20]byte]Receiver
	snaps     []semiFungibleSnap
}

func newMockSemiFungible() *mockSemiFungible {
	return &mockSemiFungible{
		balances:  make(map[string]map[[20]byte]*big.Int),
		approved:  make(map[[20]byte]bool),
		receivers: make(map[[20]byte]Receiver),
	}
}

func (m *mockSemiFungible) mint(addr [20]byte, id, amount int64) {
	key := big.NewInt(id).String()
	if _, ok := m.balances[key]; !ok {
		m.balances[key] = make(map[[20]byte]*big.Int)
	}
	m.balances[key][addr] = big.NewInt(amount)
}

func (m *mockSemiFungible) approveAll(holder [20]byte) {
	m.approved[holder] = true
}

func (m *mockSemiFungible) registerReceiver(addr [20]byte, recv Receiver) {
	m.receivers[addr] = recv
}

func (m *mockSemiFungible) balanceOf(addr [20]byte, id int64) *big.Int {
	key := big.NewInt(id).String()
	if holders, ok := m.balances[key]; ok {
		if bal, ok := holders[addr]; ok {
			return new(big.Int).Set(bal)
		}
	}
	return big.NewInt(0)
}

func (m *mockSemiFungible) SafeTransferFrom(from, to [20]byte, id, amount *big.Int, data []byte) error {
	if from != ledgerAddr && !m.approved[from] {
		return errors.New("operator not approved")
	}
	key := id.String()
	holders, ok := m.balances[key]
	if !ok || holders[from] == nil || holders[from].Cmp(amount) < 0 {
		return fmt.Errorf("quantity of item %s exceeds holdings", key)
	}
	if recv, ok := m.receivers[to]; ok {
		if recv.AckSemiFungible(from, from, id, amount, data) != SelectorSemiFungibleReceived {
			return errors.New("receiver rejected item")
		}
	}
	holders[from] = new(big.Int).Sub(holders[from], amount)
	if holders[to] == nil {
		holders[to] = big.NewInt(0)
	}
	holders[to] = new(big.Int).Add(holders[to], amount)
	return nil
}

// --- mock snapshots: each mock participates in the engine's
// all-or-nothing revert by deep-copying its state ---

type fungibleSnap struct {
	balances   map[[20]byte]*big.Int
	allowances map[[20]byte]*big.Int
}

func copyAmountMap(src map[[20]byte]*big.Int) map[[20]byte]*big.Int {
	out := make(map[[20]byte]*big.Int, len(src))
	for k, v := range src {
		out[k] = new(big.Int).Set(v)
	}
	return out
}

func (m *mockFungible) Snapshot() int {
	m.snaps = append(m.snaps, fungibleSnap{
		balances:   copyAmountMap(m.balances),
		allowances: copyAmountMap(m.allowances),
	})
	return len(m.snaps) - 1
}

func (m *mockFungible) RevertToSnapshot(id int) {
	snap := m.snaps[id]
	m.balances = snap.balances
	m.allowances = snap.allowances
	m.snaps = m.snaps[:id]
}

type nonFungibleSnap struct {
	owners   map[string][20]byte
	approved map[string]bool
}

func (m *mockNonFungible) Snapshot() int {
	owners := make(map[string][20]byte, len(m.owners))
	for k, v := range m.owners {
		owners[k] = v
	}
	approved := make(map[string]bool, len(m.approved))
	for k, v := range m.approved {
		approved[k] = v
	}
	m.snaps = append(m.snaps, nonFungibleSnap{owners: owners, approved: approved})
	return len(m.snaps) - 1
}

func (m *mockNonFungible) RevertToSnapshot(id int) {
	snap := m.snaps[id]
	m.owners = snap.owners
	m.approved = snap.approved
	m.snaps = m.snaps[:id]
}

type semiFungibleSnap struct {
	balances map[string]map[[20]byte]*big.Int
	approved map[[20]byte]bool
}

func (m *mockSemiFungible) Snapshot() int {
	balances := make(map[string]map[[20]byte]*big.Int, len(m.balances))
	for id, holders := range m.balances {
		balances[id] = copyAmountMap(holders)
	}
	approved := make(map[[20]byte]bool, len(m.approved))
	for k, v := range m.approved {
		approved[k] = v
	}
	m.snaps = append(m.snaps, semiFungibleSnap{balances: balances, approved: approved})
	return len(m.snaps) - 1
}

func (m *mockSemiFungible) RevertToSnapshot(id int) {
	snap := m.snaps[id]
	m.balances = snap.balances
	m.approved = snap.approved
	m.snaps = m.snaps[:id]
}

// wrongSelectorReceiver acknowledges every transfer with a selector no
// asset contract accepts.
type wrongSelectorReceiver struct{}

func (wrongSelectorReceiver) AckNonFungible(operator, from [20]byte, id *big.Int, data []byte) [4]byte {
	return [4]byte{0xde, 0xad, 0xbe, 0xef}
}

func (wrongSelectorReceiver) AckSemiFungible(operator, from [20]byte, id, amount *big.Int, data []byte) [4]byte {
	return [4]byte{0xde, 0xad, 0xbe, 0xef}
}

func (wrongSelectorReceiver) AckSemiFungibleBatch(operator, from [20]byte, ids, amounts []*big.Int, data []byte) [4]byte {
	return [4]byte{0xde, 0xad, 0xbe, 0xef}
}
