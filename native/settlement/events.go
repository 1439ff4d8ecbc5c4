package settlement

import (
	"encoding/hex"
	"math/big"
	"strconv"
	"strings"

	"harvestledger/core/types"
)

const (
	EventTypeNativeHarvested           = "settlement.harvest.native"
	EventTypeFungibleHarvested         = "settlement.harvest.fungible"
	EventTypeNonFungibleHarvested      = "settlement.harvest.nonfungible"
	EventTypeSemiFungibleHarvested     = "settlement.harvest.semifungible"
	EventTypeFungibleBatchHarvested    = "settlement.harvest.fungible.batch"
	EventTypeNonFungibleBatchHarvested = "settlement.harvest.nonfungible.batch"
	EventTypeSemiFungibleBatchHarvest  = "settlement.harvest.semifungible.batch"
	EventTypeConfigUpdated             = "settlement.config.updated"
	EventTypeDenylistUpdated           = "settlement.denylist.updated"
	EventTypePaused                    = "settlement.paused"
	EventTypeUnpaused                  = "settlement.unpaused"
	EventTypeWithdrawal                = "settlement.withdrawal"
	EventTypeOwnershipTransferred      = "settlement.ownership.transferred"
)

func attrAddress(addr [20]byte) string { return hex.EncodeToString(addr[:]) }

func attrAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func attrAddressList(addrs [][20]byte) string {
	parts := make([]string, len(addrs))
	for i, addr := range addrs {
		parts[i] = attrAddress(addr)
	}
	return strings.Join(parts, ",")
}

func attrAmountList(values []*big.Int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = attrAmount(v)
	}
	return strings.Join(parts, ",")
}

// NewNativeHarvestedEvent records a completed native-coin harvest with
// the net amount taken into custody.
func NewNativeHarvestedEvent(caller [20]byte, net *big.Int) *types.Event {
	return &types.Event{Type: EventTypeNativeHarvested, Attributes: map[string]string{
		"caller": attrAddress(caller),
		"amount": attrAmount(net),
	}}
}

// NewFungibleHarvestedEvent records a completed fungible-asset harvest.
func NewFungibleHarvestedEvent(caller, token [20]byte, amount *big.Int) *types.Event {
	return &types.Event{Type: EventTypeFungibleHarvested, Attributes: map[string]string{
		"caller": attrAddress(caller),
		"token":  attrAddress(token),
		"amount": attrAmount(amount),
	}}
}

// NewNonFungibleHarvestedEvent records a completed unique-item harvest.
func NewNonFungibleHarvestedEvent(caller, token [20]byte, id *big.Int) *types.Event {
	return &types.Event{Type: EventTypeNonFungibleHarvested, Attributes: map[string]string{
		"caller":  attrAddress(caller),
		"token":   attrAddress(token),
		"tokenId": attrAmount(id),
	}}
}

// NewSemiFungibleHarvestedEvent records a completed
// unique-item-with-quantity harvest.
func NewSemiFungibleHarvestedEvent(caller, token [20]byte, id, quantity *big.Int) *types.Event {
	return &types.Event{Type: EventTypeSemiFungibleHarvested, Attributes: map[string]string{
		"caller":   attrAddress(caller),
		"token":    attrAddress(token),
		"tokenId":  attrAmount(id),
		"quantity": attrAmount(quantity),
	}}
}

// NewFungibleBatchHarvestedEvent records a completed fungible batch
// with the full parallel input arrays.
func NewFungibleBatchHarvestedEvent(caller [20]byte, tokens [][20]byte, amounts []*big.Int) *types.Event {
	return &types.Event{Type: EventTypeFungibleBatchHarvested, Attributes: map[string]string{
		"caller":  attrAddress(caller),
		"tokens":  attrAddressList(tokens),
		"amounts": attrAmountList(amounts),
	}}
}

// NewNonFungibleBatchHarvestedEvent records a completed unique-item
// batch.
func NewNonFungibleBatchHarvestedEvent(caller [20]byte, tokens [][20]byte, ids []*big.Int) *types.Event {
	return &types.Event{Type: EventTypeNonFungibleBatchHarvested, Attributes: map[string]string{
		"caller":   attrAddress(caller),
		"tokens":   attrAddressList(tokens),
		"tokenIds": attrAmountList(ids),
	}}
}

// NewSemiFungibleBatchHarvestedEvent records a completed
// unique-item-with-quantity batch.
func NewSemiFungibleBatchHarvestedEvent(caller [20]byte, tokens [][20]byte, ids, quantities []*big.Int) *types.Event {
	return &types.Event{Type: EventTypeSemiFungibleBatchHarvest, Attributes: map[string]string{
		"caller":     attrAddress(caller),
		"tokens":     attrAddressList(tokens),
		"tokenIds":   attrAmountList(ids),
		"quantities": attrAmountList(quantities),
	}}
}

// NewConfigUpdatedEvent records an owner configuration change with the
// before and after values.
func NewConfigUpdatedEvent(field, previous, current string) *types.Event {
	return &types.Event{Type: EventTypeConfigUpdated, Attributes: map[string]string{
		"field":    field,
		"previous": previous,
		"current":  current,
	}}
}

// NewDenylistUpdatedEvent records a denylist flag change for a single
// address.
func NewDenylistUpdatedEvent(addr [20]byte, denied bool) *types.Event {
	return &types.Event{Type: EventTypeDenylistUpdated, Attributes: map[string]string{
		"address": attrAddress(addr),
		"denied":  strconv.FormatBool(denied),
	}}
}

// NewPausedEvent records the pause switch being engaged.
func NewPausedEvent(by [20]byte) *types.Event {
	return &types.Event{Type: EventTypePaused, Attributes: map[string]string{"by": attrAddress(by)}}
}

// NewUnpausedEvent records the pause switch being released.
func NewUnpausedEvent(by [20]byte) *types.Event {
	return &types.Event{Type: EventTypeUnpaused, Attributes: map[string]string{"by": attrAddress(by)}}
}

// NewWithdrawalEvent records an owner withdrawal. The token attribute
// is omitted for native withdrawals; id and quantity are present only
// for the asset kinds that carry them.
func NewWithdrawalEvent(kind string, to [20]byte, attrs map[string]string) *types.Event {
	merged := map[string]string{
		"kind": kind,
		"to":   attrAddress(to),
	}
	for k, v := range attrs {
		merged[k] = v
	}
	return &types.Event{Type: EventTypeWithdrawal, Attributes: merged}
}

// NewOwnershipTransferredEvent records an ownership handover.
func NewOwnershipTransferredEvent(previous, current [20]byte) *types.Event {
	return &types.Event{Type: EventTypeOwnershipTransferred, Attributes: map[string]string{
		"previous": attrAddress(previous),
		"current":  attrAddress(current),
	}}
}
