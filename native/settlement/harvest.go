package settlement

import "math/big"

// HarvestNative takes the attached native value into custody as a
// disposal event. The net harvested amount is the attached value minus
// the service fee and must reach the configured minimum; attaching less
// than the fee itself lands in the same rejection class.
func (e *Engine) HarvestNative(ctx CallContext) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()
	if err := e.harvestGuards(ctx); err != nil {
		return err
	}
	return e.run(func() error {
		if err := e.depositValue(ctx); err != nil {
			return err
		}
		params := e.params()
		value := ctx.value()
		net := new(big.Int).Sub(value, params.ServiceFee)
		if net.Cmp(params.MinNativeToHarvest) < 0 {
			expected := new(big.Int).Add(params.ServiceFee, params.MinNativeToHarvest)
			return &InsufficientPaymentError{Expected: expected, Actual: value}
		}
		if err := e.nativeTransfer(params.CompanyWallet, params.ServiceFee); err != nil {
			return err
		}
		if err := e.nativeTransfer(ctx.Caller, params.TokenPayment); err != nil {
			return err
		}
		e.state.IncrementNonce(ctx.Caller)
		e.emit(NewNativeHarvestedEvent(ctx.Caller, net))
		return nil
	})
}

// HarvestFungible pulls a pre-authorized amount of a fungible asset
// into custody against the fixed payout. The attached value must equal
// the service fee exactly.
func (e *Engine) HarvestFungible(ctx CallContext, token [20]byte, amount *big.Int) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()
	if err := e.harvestGuards(ctx, token); err != nil {
		return err
	}
	return e.run(func() error {
		return e.harvestAsset(ctx, func() error {
			asset, ok := e.assets.Fungible(token)
			if !ok {
				return ErrUnknownAsset
			}
			if err := asset.TransferFrom(ctx.Caller, e.ledgerAddr, cloneBigInt(amount)); err != nil {
				return &TransferRejectedError{To: e.ledgerAddr, Cause: err}
			}
			return nil
		}, func() {
			e.emit(NewFungibleHarvestedEvent(ctx.Caller, token, amount))
		})
	})
}

// HarvestNonFungible pulls a specific unique item into custody via the
// asset contract's safe transfer, which acknowledges receipt through
// the ledger's receiver selector.
func (e *Engine) HarvestNonFungible(ctx CallContext, token [20]byte, id *big.Int) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()
	if err := e.harvestGuards(ctx, token); err != nil {
		return err
	}
	return e.run(func() error {
		return e.harvestAsset(ctx, func() error {
			asset, ok := e.assets.NonFungible(token)
			if !ok {
				return ErrUnknownAsset
			}
			if err := asset.SafeTransferFrom(ctx.Caller, e.ledgerAddr, cloneBigInt(id)); err != nil {
				return &TransferRejectedError{To: e.ledgerAddr, Cause: err}
			}
			return nil
		}, func() {
			e.emit(NewNonFungibleHarvestedEvent(ctx.Caller, token, id))
		})
	})
}

// HarvestSemiFungible pulls a quantity of a specific unique item into
// custody.
func (e *Engine) HarvestSemiFungible(ctx CallContext, token [20]byte, id, quantity *big.Int) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()
	if err := e.harvestGuards(ctx, token); err != nil {
		return err
	}
	return e.run(func() error {
		return e.harvestAsset(ctx, func() error {
			asset, ok := e.assets.SemiFungible(token)
			if !ok {
				return ErrUnknownAsset
			}
			if err := asset.SafeTransferFrom(ctx.Caller, e.ledgerAddr, cloneBigInt(id), cloneBigInt(quantity), nil); err != nil {
				return &TransferRejectedError{To: e.ledgerAddr, Cause: err}
			}
			return nil
		}, func() {
			e.emit(NewSemiFungibleHarvestedEvent(ctx.Caller, token, id, quantity))
		})
	})
}

// harvestAsset runs the shared single-asset settlement sequence: exact
// fee attachment, fee forwarding, asset pull, payout-coverage check and
// payout. Callers wrap it in run so any failure reverts the whole
// invocation.
func (e *Engine) harvestAsset(ctx CallContext, pull func() error, emit func()) error {
	if err := e.depositValue(ctx); err != nil {
		return err
	}
	params := e.params()
	value := ctx.value()
	if value.Cmp(params.ServiceFee) != 0 {
		return &InsufficientPaymentError{Expected: cloneBigInt(params.ServiceFee), Actual: value}
	}
	if err := e.nativeTransfer(params.CompanyWallet, params.ServiceFee); err != nil {
		return err
	}
	if err := pull(); err != nil {
		return err
	}
	if params.TokenPayment.Cmp(e.NativeBalance()) > 0 {
		return ErrUnderfunded
	}
	if err := e.nativeTransfer(ctx.Caller, params.TokenPayment); err != nil {
		return err
	}
	e.state.IncrementNonce(ctx.Caller)
	emit()
	return nil
}
