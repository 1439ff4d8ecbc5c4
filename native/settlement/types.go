package settlement

import "math/big"

// Documented construction defaults, denominated in the smallest native
// unit. The owner can change each value afterwards but never to zero.
var (
	DefaultServiceFee         = big.NewInt(1_000_000_000_000_000)  // 0.001 native
	DefaultTokenPayment       = big.NewInt(100_000_000_000)        // symbolic payout per unit
	DefaultMinNativeToHarvest = big.NewInt(10_000_000_000_000_000) // 0.01 native
)

// CallContext carries the caller identity and the native value attached
// to the invocation. Every public engine operation receives one; owner
// checks compare against the stored owner rather than any ambient
// role.
type CallContext struct {
	Caller [20]byte
	Value  *big.Int
}

func (ctx CallContext) value() *big.Int {
	if ctx.Value == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(ctx.Value)
}

// Params holds the owner-tunable settlement configuration.
type Params struct {
	ServiceFee         *big.Int
	TokenPayment       *big.Int
	MinNativeToHarvest *big.Int
	CompanyWallet      [20]byte
}

// Clone returns a deep copy so callers can mutate the result freely.
func (p Params) Clone() Params {
	clone := Params{CompanyWallet: p.CompanyWallet}
	if p.ServiceFee != nil {
		clone.ServiceFee = new(big.Int).Set(p.ServiceFee)
	}
	if p.TokenPayment != nil {
		clone.TokenPayment = new(big.Int).Set(p.TokenPayment)
	}
	if p.MinNativeToHarvest != nil {
		clone.MinNativeToHarvest = new(big.Int).Set(p.MinNativeToHarvest)
	}
	return clone
}

// LedgerState is the narrow view of the journaled state the settlement
// engine depends on. harvestledger/state.Ledger satisfies it.
type LedgerState interface {
	BalanceOf(addr [20]byte) *big.Int
	Transfer(from, to [20]byte, amount *big.Int) error
	IncrementNonce(addr [20]byte)

	KVPut(key, value []byte)
	KVGet(key []byte) ([]byte, bool)
	KVDelete(key []byte)

	Snapshot() int
	RevertToSnapshot(id int)
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
