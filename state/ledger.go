package state

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"

	"harvestledger/core/types"
)

var (
	// ErrInsufficientBalance is returned when a debit exceeds the
	// account's native balance.
	ErrInsufficientBalance = errors.New("state: insufficient balance")
	// ErrAmountOutOfRange is returned when an amount is negative or does
	// not fit in 256 bits.
	ErrAmountOutOfRange = errors.New("state: amount out of range")
	// ErrInvalidSnapshot is returned when reverting to an unknown
	// snapshot revision.
	ErrInvalidSnapshot = errors.New("state: invalid snapshot id")
)

// ReceiveHook observes an inbound native-coin transfer for a single
// address. Returning an error rejects the transfer, mirroring a payable
// recipient that reverts on receipt.
type ReceiveHook func(from [20]byte, amount *big.Int) error

type accountEntry struct {
	nonce   uint64
	balance *uint256.Int
}

// Ledger is a journaled native-coin account store. Every mutation is
// recorded so a whole operation can be unwound with Snapshot and
// RevertToSnapshot, in the manner of an EVM state database.
type Ledger struct {
	accounts map[[20]byte]*accountEntry
	kv       map[string][]byte
	hooks    map[[20]byte]ReceiveHook

	journal        journal
	validRevisions []revision
	nextRevisionID int
}

type revision struct {
	id           int
	journalIndex int
}

// NewLedger constructs an empty in-memory ledger.
func NewLedger() *Ledger {
	return &Ledger{
		accounts: make(map[[20]byte]*accountEntry),
		kv:       make(map[string][]byte),
		hooks:    make(map[[20]byte]ReceiveHook),
	}
}

func (l *Ledger) entry(addr [20]byte) *accountEntry {
	acc, ok := l.accounts[addr]
	if !ok {
		acc = &accountEntry{balance: uint256.NewInt(0)}
		l.accounts[addr] = acc
	}
	return acc
}

func toUint256(amount *big.Int) (*uint256.Int, error) {
	if amount == nil {
		return uint256.NewInt(0), nil
	}
	if amount.Sign() < 0 {
		return nil, ErrAmountOutOfRange
	}
	value, overflow := uint256.FromBig(amount)
	if overflow {
		return nil, ErrAmountOutOfRange
	}
	return value, nil
}

// GetAccount returns a detached copy of the stored account record.
func (l *Ledger) GetAccount(addr [20]byte) *types.Account {
	acc, ok := l.accounts[addr]
	if !ok {
		return &types.Account{BalanceNative: big.NewInt(0)}
	}
	return &types.Account{Nonce: acc.nonce, BalanceNative: acc.balance.ToBig()}
}

// BalanceOf returns the native balance of the supplied address.
func (l *Ledger) BalanceOf(addr [20]byte) *big.Int {
	acc, ok := l.accounts[addr]
	if !ok {
		return big.NewInt(0)
	}
	return acc.balance.ToBig()
}

// Nonce returns the stored nonce for the address.
func (l *Ledger) Nonce(addr [20]byte) uint64 {
	acc, ok := l.accounts[addr]
	if !ok {
		return 0
	}
	return acc.nonce
}

// IncrementNonce bumps the address nonce, recording the prior value in
// the journal.
func (l *Ledger) IncrementNonce(addr [20]byte) {
	acc := l.entry(addr)
	l.journal.append(nonceChange{addr: addr, prev: acc.nonce})
	acc.nonce++
}

// AddBalance credits the address without invoking any receive hook.
// Used for funding and genesis allocation.
func (l *Ledger) AddBalance(addr [20]byte, amount *big.Int) error {
	value, err := toUint256(amount)
	if err != nil {
		return err
	}
	acc := l.entry(addr)
	l.journal.append(balanceChange{addr: addr, prev: acc.balance})
	sum, overflow := new(uint256.Int).AddOverflow(acc.balance, value)
	if overflow {
		return ErrAmountOutOfRange
	}
	acc.balance = sum
	return nil
}

// SubBalance debits the address, failing when the balance is
// insufficient.
func (l *Ledger) SubBalance(addr [20]byte, amount *big.Int) error {
	value, err := toUint256(amount)
	if err != nil {
		return err
	}
	acc := l.entry(addr)
	if acc.balance.Lt(value) {
		return ErrInsufficientBalance
	}
	l.journal.append(balanceChange{addr: addr, prev: acc.balance})
	acc.balance = new(uint256.Int).Sub(acc.balance, value)
	return nil
}

// Transfer moves native coin between two addresses. The recipient's
// receive hook, when registered, may reject the transfer; the debit is
// journaled so callers reverting the snapshot observe no change.
func (l *Ledger) Transfer(from, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if err := l.SubBalance(from, amount); err != nil {
		return err
	}
	if hook, ok := l.hooks[to]; ok && hook != nil {
		if err := hook(from, new(big.Int).Set(amount)); err != nil {
			return fmt.Errorf("state: transfer rejected by recipient: %w", err)
		}
	}
	return l.AddBalance(to, amount)
}

// RegisterReceiveHook installs a receive observer for the address.
// Passing nil removes any installed hook. Hooks are runtime wiring, not
// ledger state, so they are not journaled.
func (l *Ledger) RegisterReceiveHook(addr [20]byte, hook ReceiveHook) {
	if hook == nil {
		delete(l.hooks, addr)
		return
	}
	l.hooks[addr] = hook
}

// KVPut stores an auxiliary record under the supplied key, journaling
// the previous value.
func (l *Ledger) KVPut(key, value []byte) {
	k := string(key)
	prev, existed := l.kv[k]
	l.journal.append(kvChange{key: k, prev: prev, existed: existed})
	l.kv[k] = append([]byte(nil), value...)
}

// KVGet fetches an auxiliary record.
func (l *Ledger) KVGet(key []byte) ([]byte, bool) {
	value, ok := l.kv[string(key)]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), value...), true
}

// KVDelete removes an auxiliary record, journaling the previous value.
func (l *Ledger) KVDelete(key []byte) {
	k := string(key)
	prev, existed := l.kv[k]
	if !existed {
		return
	}
	l.journal.append(kvChange{key: k, prev: prev, existed: true})
	delete(l.kv, k)
}

// Snapshot returns an identifier for the current revision of the
// ledger.
func (l *Ledger) Snapshot() int {
	id := l.nextRevisionID
	l.nextRevisionID++
	l.validRevisions = append(l.validRevisions, revision{id: id, journalIndex: l.journal.length()})
	return id
}

// RevertToSnapshot unwinds all mutations made since the matching call
// to Snapshot.
func (l *Ledger) RevertToSnapshot(id int) {
	idx := -1
	for i := len(l.validRevisions) - 1; i >= 0; i-- {
		if l.validRevisions[i].id == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		panic(fmt.Errorf("%w: %d", ErrInvalidSnapshot, id))
	}
	l.journal.revert(l, l.validRevisions[idx].journalIndex)
	l.validRevisions = l.validRevisions[:idx]
}
