package modules

import (
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"strings"

	"harvestledger/core/events"
	"harvestledger/core/types"
	"harvestledger/crypto"
	"harvestledger/native/settlement"
	"harvestledger/observability/metrics"
)

// EventSource yields the events the host has recorded since startup.
type EventSource interface {
	Events() []events.Event
}

// SettlementModule exposes the settlement engine's harvest, owner and
// query operations over RPC. Ownership transfer is deliberately absent;
// it stays an in-process operation.
type SettlementModule struct {
	engine  *settlement.Engine
	events  EventSource
	metrics *metrics.SettlementMetrics
}

// NewSettlementModule constructs the settlement RPC helper module.
func NewSettlementModule(engine *settlement.Engine, source EventSource) *SettlementModule {
	return &SettlementModule{engine: engine, events: source, metrics: metrics.Settlement()}
}

var errSettlementOffline = &ModuleError{HTTPStatus: http.StatusInternalServerError, Code: codeServerError, Message: "settlement module not initialised"}

type callParams struct {
	Caller string `json:"caller"`
	Value  string `json:"value,omitempty"`
}

type harvestFungibleParams struct {
	callParams
	Token  string `json:"token"`
	Amount string `json:"amount"`
}

type harvestNonFungibleParams struct {
	callParams
	Token   string `json:"token"`
	TokenID string `json:"tokenId"`
}

type harvestSemiFungibleParams struct {
	callParams
	Token    string `json:"token"`
	TokenID  string `json:"tokenId"`
	Quantity string `json:"quantity"`
}

type harvestFungibleBatchParams struct {
	callParams
	Tokens  []string `json:"tokens"`
	Amounts []string `json:"amounts"`
}

type harvestNonFungibleBatchParams struct {
	callParams
	Tokens   []string `json:"tokens"`
	TokenIDs []string `json:"tokenIds"`
}

type harvestSemiFungibleBatchParams struct {
	callParams
	Tokens     []string `json:"tokens"`
	TokenIDs   []string `json:"tokenIds"`
	Quantities []string `json:"quantities"`
}

type setAmountParams struct {
	callParams
	Amount string `json:"amount"`
}

type setWalletParams struct {
	callParams
	Wallet string `json:"wallet"`
}

type setDenylistedParams struct {
	callParams
	Address string `json:"address"`
	Denied  bool   `json:"denied"`
}

type withdrawParams struct {
	callParams
	To       string `json:"to"`
	Token    string `json:"token,omitempty"`
	Amount   string `json:"amount,omitempty"`
	TokenID  string `json:"tokenId,omitempty"`
	Quantity string `json:"quantity,omitempty"`
}

type isDeniedParams struct {
	Address string `json:"address"`
}

type listEventsParams struct {
	Prefix string `json:"prefix,omitempty"`
	Limit  *int   `json:"limit,omitempty"`
}

// HarvestResult echoes the settled operation back to the caller.
type HarvestResult struct {
	Kind   string `json:"kind"`
	Caller string `json:"caller"`
}

// ParamsResult exposes the live settlement configuration.
type ParamsResult struct {
	Owner              string `json:"owner"`
	CompanyWallet      string `json:"companyWallet"`
	ServiceFee         string `json:"serviceFee"`
	TokenPayment       string `json:"tokenPayment"`
	MinNativeToHarvest string `json:"minNativeToHarvest"`
	LedgerAddress      string `json:"ledgerAddress"`
	LedgerBalance      string `json:"ledgerBalance"`
	Paused             bool   `json:"paused"`
}

// DeniedResult reports denylist membership for a single address.
type DeniedResult struct {
	Address string `json:"address"`
	Denied  bool   `json:"denied"`
}

// EventResult represents an emitted settlement event.
type EventResult struct {
	Sequence   int64             `json:"sequence"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// StatusResult acknowledges a mutating owner operation.
type StatusResult struct {
	Status string `json:"status"`
}

var statusOK = &StatusResult{Status: "ok"}

func decodeParams(raw json.RawMessage, out interface{}) *ModuleError {
	if err := json.Unmarshal(raw, out); err != nil {
		return &ModuleError{HTTPStatus: http.StatusBadRequest, Code: codeInvalidParams, Message: "invalid parameter object", Data: err.Error()}
	}
	return nil
}

func parseAddress(raw, field string) ([20]byte, *ModuleError) {
	var out [20]byte
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return out, &ModuleError{HTTPStatus: http.StatusBadRequest, Code: codeInvalidParams, Message: field + " is required"}
	}
	decoded, err := crypto.DecodeAddress(trimmed)
	if err != nil {
		return out, &ModuleError{HTTPStatus: http.StatusBadRequest, Code: codeInvalidParams, Message: "invalid " + field, Data: err.Error()}
	}
	return decoded.Array(), nil
}

func parseAmount(raw, field string, required bool) (*big.Int, *ModuleError) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		if required {
			return nil, &ModuleError{HTTPStatus: http.StatusBadRequest, Code: codeInvalidParams, Message: field + " is required"}
		}
		return big.NewInt(0), nil
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || value.Sign() < 0 {
		return nil, &ModuleError{HTTPStatus: http.StatusBadRequest, Code: codeInvalidParams, Message: field + " must be a non-negative decimal amount"}
	}
	return value, nil
}

func parseAmountList(raw []string, field string) ([]*big.Int, *ModuleError) {
	out := make([]*big.Int, len(raw))
	for i, entry := range raw {
		value, modErr := parseAmount(entry, field, true)
		if modErr != nil {
			return nil, modErr
		}
		out[i] = value
	}
	return out, nil
}

func parseAddressList(raw []string, field string) ([][20]byte, *ModuleError) {
	out := make([][20]byte, len(raw))
	for i, entry := range raw {
		addr, modErr := parseAddress(entry, field)
		if modErr != nil {
			return nil, modErr
		}
		out[i] = addr
	}
	return out, nil
}

func (p callParams) context() (settlement.CallContext, *ModuleError) {
	caller, modErr := parseAddress(p.Caller, "caller")
	if modErr != nil {
		return settlement.CallContext{}, modErr
	}
	value, modErr := parseAmount(p.Value, "value", false)
	if modErr != nil {
		return settlement.CallContext{}, modErr
	}
	return settlement.CallContext{Caller: caller, Value: value}, nil
}

func mapEngineError(err error) *ModuleError {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, settlement.ErrUnauthorized):
		return &ModuleError{HTTPStatus: http.StatusForbidden, Code: codeUnauthorized, Message: err.Error()}
	case errors.Is(err, settlement.ErrDenied):
		return &ModuleError{HTTPStatus: http.StatusForbidden, Code: codeUnauthorized, Message: err.Error()}
	case errors.Is(err, settlement.ErrPaused), errors.Is(err, settlement.ErrNotPaused), errors.Is(err, settlement.ErrReentrancy):
		return &ModuleError{HTTPStatus: http.StatusConflict, Code: codeServerError, Message: err.Error()}
	case errors.Is(err, settlement.ErrInsufficientPayment),
		errors.Is(err, settlement.ErrZeroAddress),
		errors.Is(err, settlement.ErrZeroConfigValue),
		errors.Is(err, settlement.ErrArrayLengthMismatch),
		errors.Is(err, settlement.ErrUnknownAsset),
		errors.Is(err, settlement.ErrInsufficientLedgerBalance),
		errors.Is(err, settlement.ErrUnderfunded),
		errors.Is(err, settlement.ErrTransferRejected):
		return &ModuleError{HTTPStatus: http.StatusBadRequest, Code: codeInvalidParams, Message: err.Error()}
	default:
		return &ModuleError{HTTPStatus: http.StatusInternalServerError, Code: codeServerError, Message: err.Error()}
	}
}

func (m *SettlementModule) ready() *ModuleError {
	if m == nil || m.engine == nil {
		return errSettlementOffline
	}
	return nil
}

func (m *SettlementModule) finishHarvest(kind string, ctx settlement.CallContext, err error) (*HarvestResult, *ModuleError) {
	if err != nil {
		m.metrics.ObserveHarvestRejected(kind)
		return nil, mapEngineError(err)
	}
	m.metrics.ObserveHarvestCompleted(kind)
	m.observeBalance()
	return &HarvestResult{Kind: kind, Caller: crypto.NewAddress(crypto.HarvestPrefix, ctx.Caller[:]).String()}, nil
}

func (m *SettlementModule) observeBalance() {
	balance := m.engine.NativeBalance()
	value, _ := new(big.Float).SetInt(balance).Float64()
	m.metrics.SetLedgerBalance(value)
}

// HarvestNative settles an attached amount of native coin.
func (m *SettlementModule) HarvestNative(raw json.RawMessage) (*HarvestResult, *ModuleError) {
	if modErr := m.ready(); modErr != nil {
		return nil, modErr
	}
	var params callParams
	if modErr := decodeParams(raw, &params); modErr != nil {
		return nil, modErr
	}
	ctx, modErr := params.context()
	if modErr != nil {
		return nil, modErr
	}
	return m.finishHarvest("native", ctx, m.engine.HarvestNative(ctx))
}

// HarvestFungible settles a pre-authorized fungible amount.
func (m *SettlementModule) HarvestFungible(raw json.RawMessage) (*HarvestResult, *ModuleError) {
	if modErr := m.ready(); modErr != nil {
		return nil, modErr
	}
	var params harvestFungibleParams
	if modErr := decodeParams(raw, &params); modErr != nil {
		return nil, modErr
	}
	ctx, modErr := params.context()
	if modErr != nil {
		return nil, modErr
	}
	token, modErr := parseAddress(params.Token, "token")
	if modErr != nil {
		return nil, modErr
	}
	amount, modErr := parseAmount(params.Amount, "amount", true)
	if modErr != nil {
		return nil, modErr
	}
	return m.finishHarvest("fungible", ctx, m.engine.HarvestFungible(ctx, token, amount))
}

// HarvestNonFungible settles a single unique item.
func (m *SettlementModule) HarvestNonFungible(raw json.RawMessage) (*HarvestResult, *ModuleError) {
	if modErr := m.ready(); modErr != nil {
		return nil, modErr
	}
	var params harvestNonFungibleParams
	if modErr := decodeParams(raw, &params); modErr != nil {
		return nil, modErr
	}
	ctx, modErr := params.context()
	if modErr != nil {
		return nil, modErr
	}
	token, modErr := parseAddress(params.Token, "token")
	if modErr != nil {
		return nil, modErr
	}
	id, modErr := parseAmount(params.TokenID, "tokenId", true)
	if modErr != nil {
		return nil, modErr
	}
	return m.finishHarvest("nonfungible", ctx, m.engine.HarvestNonFungible(ctx, token, id))
}

// HarvestSemiFungible settles a quantity of a single unique item.
func (m *SettlementModule) HarvestSemiFungible(raw json.RawMessage) (*HarvestResult, *ModuleError) {
	if modErr := m.ready(); modErr != nil {
		return nil, modErr
	}
	var params harvestSemiFungibleParams
	if modErr := decodeParams(raw, &params); modErr != nil {
		return nil, modErr
	}
	ctx, modErr := params.context()
	if modErr != nil {
		return nil, modErr
	}
	token, modErr := parseAddress(params.Token, "token")
	if modErr != nil {
		return nil, modErr
	}
	id, modErr := parseAmount(params.TokenID, "tokenId", true)
	if modErr != nil {
		return nil, modErr
	}
	quantity, modErr := parseAmount(params.Quantity, "quantity", true)
	if modErr != nil {
		return nil, modErr
	}
	return m.finishHarvest("semifungible", ctx, m.engine.HarvestSemiFungible(ctx, token, id, quantity))
}

// HarvestFungibleBatch settles several fungible positions atomically.
func (m *SettlementModule) HarvestFungibleBatch(raw json.RawMessage) (*HarvestResult, *ModuleError) {
	if modErr := m.ready(); modErr != nil {
		return nil, modErr
	}
	var params harvestFungibleBatchParams
	if modErr := decodeParams(raw, &params); modErr != nil {
		return nil, modErr
	}
	ctx, modErr := params.context()
	if modErr != nil {
		return nil, modErr
	}
	tokens, modErr := parseAddressList(params.Tokens, "tokens")
	if modErr != nil {
		return nil, modErr
	}
	amounts, modErr := parseAmountList(params.Amounts, "amounts")
	if modErr != nil {
		return nil, modErr
	}
	return m.finishHarvest("fungible_batch", ctx, m.engine.HarvestFungibleBatch(ctx, tokens, amounts))
}

// HarvestNonFungibleBatch settles several unique items atomically.
func (m *SettlementModule) HarvestNonFungibleBatch(raw json.RawMessage) (*HarvestResult, *ModuleError) {
	if modErr := m.ready(); modErr != nil {
		return nil, modErr
	}
	var params harvestNonFungibleBatchParams
	if modErr := decodeParams(raw, &params); modErr != nil {
		return nil, modErr
	}
	ctx, modErr := params.context()
	if modErr != nil {
		return nil, modErr
	}
	tokens, modErr := parseAddressList(params.Tokens, "tokens")
	if modErr != nil {
		return nil, modErr
	}
	ids, modErr := parseAmountList(params.TokenIDs, "tokenIds")
	if modErr != nil {
		return nil, modErr
	}
	return m.finishHarvest("nonfungible_batch", ctx, m.engine.HarvestNonFungibleBatch(ctx, tokens, ids))
}

// HarvestSemiFungibleBatch settles several unique-item quantities
// atomically.
func (m *SettlementModule) HarvestSemiFungibleBatch(raw json.RawMessage) (*HarvestResult, *ModuleError) {
	if modErr := m.ready(); modErr != nil {
		return nil, modErr
	}
	var params harvestSemiFungibleBatchParams
	if modErr := decodeParams(raw, &params); modErr != nil {
		return nil, modErr
	}
	ctx, modErr := params.context()
	if modErr != nil {
		return nil, modErr
	}
	tokens, modErr := parseAddressList(params.Tokens, "tokens")
	if modErr != nil {
		return nil, modErr
	}
	ids, modErr := parseAmountList(params.TokenIDs, "tokenIds")
	if modErr != nil {
		return nil, modErr
	}
	quantities, modErr := parseAmountList(params.Quantities, "quantities")
	if modErr != nil {
		return nil, modErr
	}
	return m.finishHarvest("semifungible_batch", ctx, m.engine.HarvestSemiFungibleBatch(ctx, tokens, ids, quantities))
}

func (m *SettlementModule) setAmount(raw json.RawMessage, field string, apply func(settlement.CallContext, *big.Int) error) (*StatusResult, *ModuleError) {
	if modErr := m.ready(); modErr != nil {
		return nil, modErr
	}
	var params setAmountParams
	if modErr := decodeParams(raw, &params); modErr != nil {
		return nil, modErr
	}
	ctx, modErr := params.context()
	if modErr != nil {
		return nil, modErr
	}
	amount, modErr := parseAmount(params.Amount, field, true)
	if modErr != nil {
		return nil, modErr
	}
	if err := apply(ctx, amount); err != nil {
		return nil, mapEngineError(err)
	}
	return statusOK, nil
}

// SetServiceFee updates the per-unit service fee.
func (m *SettlementModule) SetServiceFee(raw json.RawMessage) (*StatusResult, *ModuleError) {
	return m.setAmount(raw, "amount", func(ctx settlement.CallContext, v *big.Int) error {
		return m.engine.SetServiceFee(ctx, v)
	})
}

// SetTokenPayment updates the per-unit payout.
func (m *SettlementModule) SetTokenPayment(raw json.RawMessage) (*StatusResult, *ModuleError) {
	return m.setAmount(raw, "amount", func(ctx settlement.CallContext, v *big.Int) error {
		return m.engine.SetTokenPayment(ctx, v)
	})
}

// SetMinNativeToHarvest updates the native-harvest minimum.
func (m *SettlementModule) SetMinNativeToHarvest(raw json.RawMessage) (*StatusResult, *ModuleError) {
	return m.setAmount(raw, "amount", func(ctx settlement.CallContext, v *big.Int) error {
		return m.engine.SetMinNativeToHarvest(ctx, v)
	})
}

// SetCompanyWallet updates the fee routing wallet.
func (m *SettlementModule) SetCompanyWallet(raw json.RawMessage) (*StatusResult, *ModuleError) {
	if modErr := m.ready(); modErr != nil {
		return nil, modErr
	}
	var params setWalletParams
	if modErr := decodeParams(raw, &params); modErr != nil {
		return nil, modErr
	}
	ctx, modErr := params.context()
	if modErr != nil {
		return nil, modErr
	}
	wallet, modErr := parseAddress(params.Wallet, "wallet")
	if modErr != nil {
		return nil, modErr
	}
	if err := m.engine.SetCompanyWallet(ctx, wallet); err != nil {
		return nil, mapEngineError(err)
	}
	return statusOK, nil
}

// SetDenylisted flags or unflags an address.
func (m *SettlementModule) SetDenylisted(raw json.RawMessage) (*StatusResult, *ModuleError) {
	if modErr := m.ready(); modErr != nil {
		return nil, modErr
	}
	var params setDenylistedParams
	if modErr := decodeParams(raw, &params); modErr != nil {
		return nil, modErr
	}
	ctx, modErr := params.context()
	if modErr != nil {
		return nil, modErr
	}
	addr, modErr := parseAddress(params.Address, "address")
	if modErr != nil {
		return nil, modErr
	}
	if err := m.engine.SetDenylisted(ctx, addr, params.Denied); err != nil {
		return nil, mapEngineError(err)
	}
	return statusOK, nil
}

// Pause engages the harvest gate.
func (m *SettlementModule) Pause(raw json.RawMessage) (*StatusResult, *ModuleError) {
	if modErr := m.ready(); modErr != nil {
		return nil, modErr
	}
	var params callParams
	if modErr := decodeParams(raw, &params); modErr != nil {
		return nil, modErr
	}
	ctx, modErr := params.context()
	if modErr != nil {
		return nil, modErr
	}
	if err := m.engine.Pause(ctx); err != nil {
		return nil, mapEngineError(err)
	}
	m.metrics.SetPaused(true)
	return statusOK, nil
}

// Unpause releases the harvest gate.
func (m *SettlementModule) Unpause(raw json.RawMessage) (*StatusResult, *ModuleError) {
	if modErr := m.ready(); modErr != nil {
		return nil, modErr
	}
	var params callParams
	if modErr := decodeParams(raw, &params); modErr != nil {
		return nil, modErr
	}
	ctx, modErr := params.context()
	if modErr != nil {
		return nil, modErr
	}
	if err := m.engine.Unpause(ctx); err != nil {
		return nil, mapEngineError(err)
	}
	m.metrics.SetPaused(false)
	return statusOK, nil
}

// Withdraw routes an owner withdrawal to the engine based on which
// optional fields the parameter object carries.
func (m *SettlementModule) Withdraw(raw json.RawMessage) (*StatusResult, *ModuleError) {
	if modErr := m.ready(); modErr != nil {
		return nil, modErr
	}
	var params withdrawParams
	if modErr := decodeParams(raw, &params); modErr != nil {
		return nil, modErr
	}
	ctx, modErr := params.context()
	if modErr != nil {
		return nil, modErr
	}
	to, modErr := parseAddress(params.To, "to")
	if modErr != nil {
		return nil, modErr
	}

	var err error
	kind := "native"
	switch {
	case strings.TrimSpace(params.Token) == "":
		amount, amountErr := parseAmount(params.Amount, "amount", true)
		if amountErr != nil {
			return nil, amountErr
		}
		err = m.engine.WithdrawNative(ctx, to, amount)
	case strings.TrimSpace(params.TokenID) == "":
		kind = "fungible"
		token, tokenErr := parseAddress(params.Token, "token")
		if tokenErr != nil {
			return nil, tokenErr
		}
		amount, amountErr := parseAmount(params.Amount, "amount", true)
		if amountErr != nil {
			return nil, amountErr
		}
		err = m.engine.WithdrawFungible(ctx, token, to, amount)
	case strings.TrimSpace(params.Quantity) == "":
		kind = "nonfungible"
		token, tokenErr := parseAddress(params.Token, "token")
		if tokenErr != nil {
			return nil, tokenErr
		}
		id, idErr := parseAmount(params.TokenID, "tokenId", true)
		if idErr != nil {
			return nil, idErr
		}
		err = m.engine.WithdrawNonFungible(ctx, token, to, id)
	default:
		kind = "semifungible"
		token, tokenErr := parseAddress(params.Token, "token")
		if tokenErr != nil {
			return nil, tokenErr
		}
		id, idErr := parseAmount(params.TokenID, "tokenId", true)
		if idErr != nil {
			return nil, idErr
		}
		quantity, quantityErr := parseAmount(params.Quantity, "quantity", true)
		if quantityErr != nil {
			return nil, quantityErr
		}
		err = m.engine.WithdrawSemiFungible(ctx, token, to, id, quantity)
	}
	if err != nil {
		return nil, mapEngineError(err)
	}
	m.metrics.ObserveWithdrawal(kind)
	m.observeBalance()
	return statusOK, nil
}

// GetParams returns the live settlement configuration and ledger state.
func (m *SettlementModule) GetParams(json.RawMessage) (*ParamsResult, *ModuleError) {
	if modErr := m.ready(); modErr != nil {
		return nil, modErr
	}
	params := m.engine.Params()
	owner := m.engine.Owner()
	ledger := m.engine.LedgerAddress()
	return &ParamsResult{
		Owner:              crypto.NewAddress(crypto.HarvestPrefix, owner[:]).String(),
		CompanyWallet:      crypto.NewAddress(crypto.HarvestPrefix, params.CompanyWallet[:]).String(),
		ServiceFee:         params.ServiceFee.String(),
		TokenPayment:       params.TokenPayment.String(),
		MinNativeToHarvest: params.MinNativeToHarvest.String(),
		LedgerAddress:      crypto.NewAddress(crypto.HarvestPrefix, ledger[:]).String(),
		LedgerBalance:      m.engine.NativeBalance().String(),
		Paused:             m.engine.Paused(),
	}, nil
}

// IsDenied reports denylist membership for the supplied address.
func (m *SettlementModule) IsDenied(raw json.RawMessage) (*DeniedResult, *ModuleError) {
	if modErr := m.ready(); modErr != nil {
		return nil, modErr
	}
	var params isDeniedParams
	if modErr := decodeParams(raw, &params); modErr != nil {
		return nil, modErr
	}
	addr, modErr := parseAddress(params.Address, "address")
	if modErr != nil {
		return nil, modErr
	}
	return &DeniedResult{Address: strings.TrimSpace(params.Address), Denied: m.engine.IsDenied(addr)}, nil
}

// ListEvents returns recent settlement events. The optional prefix can
// narrow results to a namespace such as "settlement.harvest.".
func (m *SettlementModule) ListEvents(raw json.RawMessage) ([]EventResult, *ModuleError) {
	if modErr := m.ready(); modErr != nil {
		return nil, modErr
	}
	if m.events == nil {
		return nil, errSettlementOffline
	}
	var params listEventsParams
	if len(raw) > 0 {
		if modErr := decodeParams(raw, &params); modErr != nil {
			return nil, modErr
		}
	}
	prefix := "settlement."
	if trimmed := strings.TrimSpace(params.Prefix); trimmed != "" {
		prefix = trimmed
	}
	normalizedPrefix := strings.ToLower(prefix)
	recorded := m.events.Events()
	results := make([]EventResult, 0, len(recorded))
	for _, evt := range recorded {
		if !strings.HasPrefix(strings.ToLower(evt.EventType()), normalizedPrefix) {
			continue
		}
		carrier, ok := evt.(interface{ Event() *types.Event })
		if !ok || carrier.Event() == nil {
			continue
		}
		payload := carrier.Event().Clone()
		results = append(results, EventResult{Type: payload.Type, Attributes: payload.Attributes})
	}
	if params.Limit != nil {
		limit := *params.Limit
		if limit < 0 {
			limit = 0
		}
		if limit < len(results) {
			results = results[:limit]
		}
	}
	for i := range results {
		results[i].Sequence = int64(i + 1)
	}
	return results, nil
}
