package settlement

import (
	"encoding/hex"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"

	"harvestledger/core/events"
	"harvestledger/core/types"
	"harvestledger/native/common"
)

// ModuleName keys the pause switch and storage records for the
// settlement module.
const ModuleName = "settlement"

var (
	keyOwner  = []byte("settlement/owner")
	keyParams = []byte("settlement/params")
	keyPaused = []byte("settlement/paused")

	denylistPrefix = []byte("settlement/denylist/")
)

type settlementEvent struct {
	evt *types.Event
}

func (e settlementEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e settlementEvent) Event() *types.Event { return e.evt }

// Engine executes the custodial settlement logic: harvest operations
// that take an asset into custody against a fixed payout and service
// fee, plus the owner-controlled configuration, denylist and withdrawal
// surface. All persistent state lives in the journaled ledger so every
// operation is all-or-nothing.
type Engine struct {
	state      LedgerState
	assets     AssetRegistry
	emitter    events.Emitter
	ledgerAddr [20]byte
	entered    bool
}

type paramsRecord struct {
	ServiceFee         *big.Int
	TokenPayment       *big.Int
	MinNativeToHarvest *big.Int
	CompanyWallet      [20]byte
}

// NewEngine wires the settlement engine to its state backend and asset
// registry. On first construction the company wallet must be non-zero
// and the documented fee defaults are written; on a restart against
// previously committed state the stored configuration wins.
func NewEngine(state LedgerState, assets AssetRegistry, ledgerAddr, companyWallet, owner [20]byte) (*Engine, error) {
	if state == nil {
		return nil, ErrNilState
	}
	if assets == nil {
		return nil, ErrNilRegistry
	}
	e := &Engine{
		state:      state,
		assets:     assets,
		emitter:    events.NoopEmitter{},
		ledgerAddr: ledgerAddr,
	}
	if _, ok := state.KVGet(keyParams); ok {
		return e, nil
	}
	if companyWallet == ([20]byte{}) {
		return nil, ErrZeroAddress
	}
	if owner == ([20]byte{}) {
		return nil, ErrZeroAddress
	}
	e.storeParams(Params{
		ServiceFee:         cloneBigInt(DefaultServiceFee),
		TokenPayment:       cloneBigInt(DefaultTokenPayment),
		MinNativeToHarvest: cloneBigInt(DefaultMinNativeToHarvest),
		CompanyWallet:      companyWallet,
	})
	state.KVPut(keyOwner, owner[:])
	return e, nil
}

// SetEmitter configures the event emitter. Passing nil resets it to a
// no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(settlementEvent{evt: event})
}

// --- stored state accessors ---

func (e *Engine) params() Params {
	encoded, ok := e.state.KVGet(keyParams)
	if !ok {
		return Params{}
	}
	var record paramsRecord
	if err := rlp.DecodeBytes(encoded, &record); err != nil {
		return Params{}
	}
	return Params{
		ServiceFee:         record.ServiceFee,
		TokenPayment:       record.TokenPayment,
		MinNativeToHarvest: record.MinNativeToHarvest,
		CompanyWallet:      record.CompanyWallet,
	}
}

func (e *Engine) storeParams(p Params) {
	encoded, err := rlp.EncodeToBytes(paramsRecord{
		ServiceFee:         cloneBigInt(p.ServiceFee),
		TokenPayment:       cloneBigInt(p.TokenPayment),
		MinNativeToHarvest: cloneBigInt(p.MinNativeToHarvest),
		CompanyWallet:      p.CompanyWallet,
	})
	if err != nil {
		panic(fmt.Errorf("settlement: encode params: %w", err))
	}
	e.state.KVPut(keyParams, encoded)
}

// Owner returns the stored owner address.
func (e *Engine) Owner() [20]byte {
	var owner [20]byte
	if raw, ok := e.state.KVGet(keyOwner); ok && len(raw) == 20 {
		copy(owner[:], raw)
	}
	return owner
}

// Params returns a copy of the current settlement configuration.
func (e *Engine) Params() Params { return e.params().Clone() }

// ServiceFee returns the fixed fee charged per harvested unit.
func (e *Engine) ServiceFee() *big.Int { return cloneBigInt(e.params().ServiceFee) }

// TokenPayment returns the fixed payout per harvested unit.
func (e *Engine) TokenPayment() *big.Int { return cloneBigInt(e.params().TokenPayment) }

// MinNativeToHarvest returns the minimum net amount accepted by the
// native-coin harvest.
func (e *Engine) MinNativeToHarvest() *big.Int { return cloneBigInt(e.params().MinNativeToHarvest) }

// CompanyWallet returns the fee routing wallet.
func (e *Engine) CompanyWallet() [20]byte { return e.params().CompanyWallet }

// NativeBalance returns the ledger's live native-coin balance. It is
// never tracked redundantly.
func (e *Engine) NativeBalance() *big.Int { return e.state.BalanceOf(e.ledgerAddr) }

// LedgerAddress returns the address holding the settlement float.
func (e *Engine) LedgerAddress() [20]byte { return e.ledgerAddr }

// IsPaused reports whether the named module's harvest operations are
// gated. Satisfies common.PauseView.
func (e *Engine) IsPaused(module string) bool {
	if module != ModuleName {
		return false
	}
	raw, ok := e.state.KVGet(keyPaused)
	return ok && len(raw) == 1 && raw[0] == 1
}

// Paused reports the settlement pause switch.
func (e *Engine) Paused() bool { return e.IsPaused(ModuleName) }

func denylistKey(addr [20]byte) []byte {
	suffix := hex.EncodeToString(addr[:])
	key := make([]byte, len(denylistPrefix)+len(suffix))
	copy(key, denylistPrefix)
	copy(key[len(denylistPrefix):], suffix)
	return key
}

// IsDenied reports denylist membership. Checked per call, never cached.
func (e *Engine) IsDenied(addr [20]byte) bool {
	_, ok := e.state.KVGet(denylistKey(addr))
	return ok
}

// --- guards ---

func (e *Engine) enter() error {
	if e.entered {
		return ErrReentrancy
	}
	e.entered = true
	return nil
}

func (e *Engine) exit() { e.entered = false }

func (e *Engine) harvestGuards(ctx CallContext, assets ...[20]byte) error {
	if err := common.Guard(e, ModuleName); err != nil {
		return ErrPaused
	}
	if e.IsDenied(ctx.Caller) {
		return ErrDenied
	}
	for _, asset := range assets {
		if e.IsDenied(asset) {
			return ErrDenied
		}
	}
	return nil
}

func (e *Engine) requireOwner(ctx CallContext) error {
	if ctx.Caller != e.Owner() {
		return ErrUnauthorized
	}
	return nil
}

// run executes fn inside a snapshot of the ledger state and of every
// revertible asset adapter, unwinding all of it on error. A panic out
// of fn (the host ledger treats it as a failed invocation) is converted
// to an error after the revert.
func (e *Engine) run(fn func() error) (err error) {
	snap := e.state.Snapshot()
	assetSnaps, hasAssetSnaps := e.assets.(Snapshotter)
	assetSnap := 0
	if hasAssetSnaps {
		assetSnap = assetSnaps.Snapshot()
	}
	revert := func() {
		if hasAssetSnaps {
			assetSnaps.RevertToSnapshot(assetSnap)
		}
		e.state.RevertToSnapshot(snap)
	}
	defer func() {
		if r := recover(); r != nil {
			revert()
			err = fmt.Errorf("settlement: operation aborted: %v", r)
		}
	}()
	if err = fn(); err != nil {
		revert()
	}
	return err
}

// nativeTransfer moves native coin out of the ledger, mapping any
// failure to the transfer-rejected kind.
func (e *Engine) nativeTransfer(to [20]byte, amount *big.Int) error {
	if err := e.state.Transfer(e.ledgerAddr, to, amount); err != nil {
		return &TransferRejectedError{To: to, Cause: err}
	}
	return nil
}

// depositValue moves the attached native value into the ledger's
// custody, the way a payable call carries its value.
func (e *Engine) depositValue(ctx CallContext) error {
	value := ctx.value()
	if value.Sign() == 0 {
		return nil
	}
	if err := e.state.Transfer(ctx.Caller, e.ledgerAddr, value); err != nil {
		return &TransferRejectedError{To: e.ledgerAddr, Cause: err}
	}
	return nil
}

// --- owner configuration ---

// SetServiceFee updates the per-unit service fee. Zero is rejected.
func (e *Engine) SetServiceFee(ctx CallContext, fee *big.Int) error {
	return e.setParamAmount(ctx, "serviceFee", fee, func(p *Params, v *big.Int) { p.ServiceFee = v })
}

// SetTokenPayment updates the per-unit payout. Zero is rejected.
func (e *Engine) SetTokenPayment(ctx CallContext, payment *big.Int) error {
	return e.setParamAmount(ctx, "tokenPayment", payment, func(p *Params, v *big.Int) { p.TokenPayment = v })
}

// SetMinNativeToHarvest updates the native-harvest minimum. Zero is
// rejected.
func (e *Engine) SetMinNativeToHarvest(ctx CallContext, minimum *big.Int) error {
	return e.setParamAmount(ctx, "minNativeToHarvest", minimum, func(p *Params, v *big.Int) { p.MinNativeToHarvest = v })
}

func (e *Engine) setParamAmount(ctx CallContext, field string, value *big.Int, assign func(*Params, *big.Int)) error {
	if err := e.requireOwner(ctx); err != nil {
		return err
	}
	if value == nil || value.Sign() <= 0 {
		return ErrZeroConfigValue
	}
	params := e.params()
	var previous *big.Int
	switch field {
	case "serviceFee":
		previous = params.ServiceFee
	case "tokenPayment":
		previous = params.TokenPayment
	case "minNativeToHarvest":
		previous = params.MinNativeToHarvest
	}
	assign(&params, cloneBigInt(value))
	e.storeParams(params)
	e.emit(NewConfigUpdatedEvent(field, attrAmount(previous), attrAmount(value)))
	return nil
}

// SetCompanyWallet updates the fee routing wallet. The zero address is
// rejected so fees always have a destination.
func (e *Engine) SetCompanyWallet(ctx CallContext, wallet [20]byte) error {
	if err := e.requireOwner(ctx); err != nil {
		return err
	}
	if wallet == ([20]byte{}) {
		return ErrZeroAddress
	}
	params := e.params()
	previous := params.CompanyWallet
	params.CompanyWallet = wallet
	e.storeParams(params)
	e.emit(NewConfigUpdatedEvent("companyWallet", attrAddress(previous), attrAddress(wallet)))
	return nil
}

// SetDenylisted flags or unflags an address. No restriction applies to
// the argument; the owner may deny any address, including itself.
func (e *Engine) SetDenylisted(ctx CallContext, addr [20]byte, denied bool) error {
	if err := e.requireOwner(ctx); err != nil {
		return err
	}
	if denied {
		e.state.KVPut(denylistKey(addr), []byte{1})
	} else {
		e.state.KVDelete(denylistKey(addr))
	}
	e.emit(NewDenylistUpdatedEvent(addr, denied))
	return nil
}

// Pause engages the harvest gate. Valid only while running.
func (e *Engine) Pause(ctx CallContext) error {
	if err := e.requireOwner(ctx); err != nil {
		return err
	}
	if e.Paused() {
		return ErrPaused
	}
	e.state.KVPut(keyPaused, []byte{1})
	e.emit(NewPausedEvent(ctx.Caller))
	return nil
}

// Unpause releases the harvest gate. Valid only while paused.
func (e *Engine) Unpause(ctx CallContext) error {
	if err := e.requireOwner(ctx); err != nil {
		return err
	}
	if !e.Paused() {
		return ErrNotPaused
	}
	e.state.KVPut(keyPaused, []byte{0})
	e.emit(NewUnpausedEvent(ctx.Caller))
	return nil
}

// TransferOwnership hands the owner role to a new address in a single
// atomic update. The zero address is rejected. The operation is kept
// off the RPC surface; only in-process hosts may invoke it.
func (e *Engine) TransferOwnership(ctx CallContext, newOwner [20]byte) error {
	if err := e.requireOwner(ctx); err != nil {
		return err
	}
	if newOwner == ([20]byte{}) {
		return ErrZeroAddress
	}
	previous := e.Owner()
	e.state.KVPut(keyOwner, newOwner[:])
	e.emit(NewOwnershipTransferredEvent(previous, newOwner))
	return nil
}

// --- owner withdrawals (never pause gated) ---

// WithdrawNative sends part of the ledger's native float to the target
// address.
func (e *Engine) WithdrawNative(ctx CallContext, to [20]byte, amount *big.Int) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()
	if err := e.requireOwner(ctx); err != nil {
		return err
	}
	if to == ([20]byte{}) {
		return ErrZeroAddress
	}
	return e.run(func() error {
		balance := e.NativeBalance()
		requested := cloneBigInt(amount)
		if requested.Cmp(balance) > 0 {
			return &InsufficientLedgerBalanceError{Available: balance, Requested: requested}
		}
		if err := e.nativeTransfer(to, requested); err != nil {
			return err
		}
		e.emit(NewWithdrawalEvent("native", to, map[string]string{"amount": attrAmount(requested)}))
		return nil
	})
}

// WithdrawFungible sends part of the ledger's holdings of a fungible
// asset to the target address.
func (e *Engine) WithdrawFungible(ctx CallContext, token, to [20]byte, amount *big.Int) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()
	if err := e.requireOwner(ctx); err != nil {
		return err
	}
	if to == ([20]byte{}) {
		return ErrZeroAddress
	}
	return e.run(func() error {
		asset, ok := e.assets.Fungible(token)
		if !ok {
			return ErrUnknownAsset
		}
		held := asset.BalanceOf(e.ledgerAddr)
		requested := cloneBigInt(amount)
		if requested.Cmp(held) > 0 {
			return &InsufficientLedgerBalanceError{Available: held, Requested: requested}
		}
		if err := asset.TransferFrom(e.ledgerAddr, to, requested); err != nil {
			return &TransferRejectedError{To: to, Cause: err}
		}
		e.emit(NewWithdrawalEvent("fungible", to, map[string]string{
			"token":  attrAddress(token),
			"amount": attrAmount(requested),
		}))
		return nil
	})
}

// WithdrawNonFungible pushes a held unique item to the target address.
// There is no pre-check; the asset contract rejects transfers of items
// the ledger does not hold.
func (e *Engine) WithdrawNonFungible(ctx CallContext, token, to [20]byte, id *big.Int) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()
	if err := e.requireOwner(ctx); err != nil {
		return err
	}
	return e.run(func() error {
		asset, ok := e.assets.NonFungible(token)
		if !ok {
			return ErrUnknownAsset
		}
		if err := asset.SafeTransferFrom(e.ledgerAddr, to, cloneBigInt(id)); err != nil {
			return &TransferRejectedError{To: to, Cause: err}
		}
		e.emit(NewWithdrawalEvent("nonfungible", to, map[string]string{
			"token":   attrAddress(token),
			"tokenId": attrAmount(id),
		}))
		return nil
	})
}

// WithdrawSemiFungible pushes a held quantity of a unique item to the
// target address. Like the non-fungible withdrawal it relies on the
// asset contract for balance enforcement.
func (e *Engine) WithdrawSemiFungible(ctx CallContext, token, to [20]byte, id, quantity *big.Int) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()
	if err := e.requireOwner(ctx); err != nil {
		return err
	}
	return e.run(func() error {
		asset, ok := e.assets.SemiFungible(token)
		if !ok {
			return ErrUnknownAsset
		}
		if err := asset.SafeTransferFrom(e.ledgerAddr, to, cloneBigInt(id), cloneBigInt(quantity), nil); err != nil {
			return &TransferRejectedError{To: to, Cause: err}
		}
		e.emit(NewWithdrawalEvent("semifungible", to, map[string]string{
			"token":    attrAddress(token),
			"tokenId":  attrAmount(id),
			"quantity": attrAmount(quantity),
		}))
		return nil
	})
}
