package types

import "math/big"

// Account is the canonical per-address record held by the settlement
// ledger. Only the native coin balance is tracked here; fungible and
// non-fungible holdings remain with their asset contracts and are
// queried through the asset boundary.
type Account struct {
	Nonce         uint64   `json:"nonce"`
	BalanceNative *big.Int `json:"balanceNative"`
}

// Clone returns a deep copy so callers can mutate the result without
// aliasing the stored instance.
func (a *Account) Clone() *Account {
	if a == nil {
		return &Account{BalanceNative: big.NewInt(0)}
	}
	clone := &Account{Nonce: a.Nonce, BalanceNative: big.NewInt(0)}
	if a.BalanceNative != nil {
		clone.BalanceNative = new(big.Int).Set(a.BalanceNative)
	}
	return clone
}
