package settlement

import "math/big"

// HarvestFungibleBatch settles several fungible positions in one
// invocation. The token and amount sequences are parallel; any single
// transfer failure aborts the whole batch.
func (e *Engine) HarvestFungibleBatch(ctx CallContext, tokens [][20]byte, amounts []*big.Int) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()
	if len(tokens) != len(amounts) {
		return ErrArrayLengthMismatch
	}
	if err := e.harvestGuards(ctx); err != nil {
		return err
	}
	return e.run(func() error {
		return e.harvestBatch(ctx, len(tokens), func(i int) error {
			asset, ok := e.assets.Fungible(tokens[i])
			if !ok {
				return ErrUnknownAsset
			}
			if err := asset.TransferFrom(ctx.Caller, e.ledgerAddr, cloneBigInt(amounts[i])); err != nil {
				return &TransferRejectedError{To: e.ledgerAddr, Cause: err}
			}
			return nil
		}, func() {
			e.emit(NewFungibleBatchHarvestedEvent(ctx.Caller, tokens, amounts))
		})
	})
}

// HarvestNonFungibleBatch settles several unique items in one
// invocation.
func (e *Engine) HarvestNonFungibleBatch(ctx CallContext, tokens [][20]byte, ids []*big.Int) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()
	if len(tokens) != len(ids) {
		return ErrArrayLengthMismatch
	}
	if err := e.harvestGuards(ctx); err != nil {
		return err
	}
	return e.run(func() error {
		return e.harvestBatch(ctx, len(tokens), func(i int) error {
			asset, ok := e.assets.NonFungible(tokens[i])
			if !ok {
				return ErrUnknownAsset
			}
			if err := asset.SafeTransferFrom(ctx.Caller, e.ledgerAddr, cloneBigInt(ids[i])); err != nil {
				return &TransferRejectedError{To: e.ledgerAddr, Cause: err}
			}
			return nil
		}, func() {
			e.emit(NewNonFungibleBatchHarvestedEvent(ctx.Caller, tokens, ids))
		})
	})
}

// HarvestSemiFungibleBatch settles several unique-item quantities in
// one invocation.
func (e *Engine) HarvestSemiFungibleBatch(ctx CallContext, tokens [][20]byte, ids, quantities []*big.Int) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()
	if len(tokens) != len(ids) && len(ids) != len(quantities) {
		return ErrArrayLengthMismatch
	}
	if err := e.harvestGuards(ctx); err != nil {
		return err
	}
	return e.run(func() error {
		return e.harvestBatch(ctx, len(tokens), func(i int) error {
			asset, ok := e.assets.SemiFungible(tokens[i])
			if !ok {
				return ErrUnknownAsset
			}
			if err := asset.SafeTransferFrom(ctx.Caller, e.ledgerAddr, cloneBigInt(ids[i]), cloneBigInt(quantities[i]), nil); err != nil {
				return &TransferRejectedError{To: e.ledgerAddr, Cause: err}
			}
			return nil
		}, func() {
			e.emit(NewSemiFungibleBatchHarvestedEvent(ctx.Caller, tokens, ids, quantities))
		})
	})
}

// harvestBatch runs the shared batch settlement sequence: pull every
// asset first, then settle the aggregate fee and payout in one step so
// the batch is all-or-nothing.
func (e *Engine) harvestBatch(ctx CallContext, count int, pull func(int) error, emit func()) error {
	if err := e.depositValue(ctx); err != nil {
		return err
	}
	for i := 0; i < count; i++ {
		if err := pull(i); err != nil {
			return err
		}
	}
	params := e.params()
	n := big.NewInt(int64(count))
	totalFee := new(big.Int).Mul(params.ServiceFee, n)
	totalPayout := new(big.Int).Mul(params.TokenPayment, n)
	if e.NativeBalance().Cmp(totalFee) <= 0 {
		return ErrUnderfunded
	}
	if ctx.value().Cmp(totalFee) != 0 {
		return &InsufficientPaymentError{Expected: totalFee, Actual: ctx.value()}
	}
	if err := e.nativeTransfer(params.CompanyWallet, totalFee); err != nil {
		return err
	}
	if err := e.nativeTransfer(ctx.Caller, totalPayout); err != nil {
		return err
	}
	e.state.IncrementNonce(ctx.Caller)
	emit()
	return nil
}
