package rpc

import (
	"bytes"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"harvestledger/core/events"
	"harvestledger/crypto"
	"harvestledger/native/settlement"
	"harvestledger/state"
)

type rpcEnv struct {
	server *Server
	ledger *state.Ledger
	engine *settlement.Engine

	owner   [20]byte
	company [20]byte
	user    [20]byte
	ledgerA [20]byte
}

func addr(fill byte) [20]byte {
	var out [20]byte
	for i := range out {
		out[i] = fill
	}
	return out
}

func bech(a [20]byte) string {
	return crypto.NewAddress(crypto.HarvestPrefix, a[:]).String()
}

func newRPCEnv(t *testing.T) *rpcEnv {
	t.Helper()
	t.Setenv("HRV_RPC_TOKEN", "secret")

	env := &rpcEnv{
		owner:   addr(0x01),
		company: addr(0x02),
		user:    addr(0x03),
		ledgerA: addr(0xAA),
	}
	env.ledger = state.NewLedger()
	registry := settlement.NewRegistry()
	engine, err := settlement.NewEngine(env.ledger, registry, env.ledgerA, env.company, env.owner)
	require.NoError(t, err)
	recorder := events.NewRecorder()
	engine.SetEmitter(recorder)
	env.engine = engine

	ownerCtx := settlement.CallContext{Caller: env.owner}
	require.NoError(t, engine.SetServiceFee(ownerCtx, big.NewInt(100)))
	require.NoError(t, engine.SetTokenPayment(ownerCtx, big.NewInt(50)))
	require.NoError(t, engine.SetMinNativeToHarvest(ownerCtx, big.NewInt(1000)))
	require.NoError(t, env.ledger.AddBalance(env.user, big.NewInt(5000)))
	require.NoError(t, env.ledger.AddBalance(env.ledgerA, big.NewInt(1000)))

	env.server = NewServer(engine, recorder)
	return env
}

func (env *rpcEnv) call(t *testing.T, method string, params interface{}, token string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	payload := map[string]interface{}{
		"jsonrpc": jsonRPCVersion,
		"id":      1,
		"method":  method,
	}
	if params != nil {
		payload["params"] = []interface{}{params}
	}
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	env.server.handle(rec, req)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	return rec, decoded
}

func TestHarvestNativeOverRPC(t *testing.T) {
	env := newRPCEnv(t)

	rec, resp := env.call(t, "settlement_harvestNative", map[string]string{
		"caller": bech(env.user),
		"value":  "1100",
	}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Nil(t, resp["error"])

	result, ok := resp["result"].(map[string]interface{})
	require.True(t, ok)
	require.Equal(t, "native", result["kind"])
	require.Equal(t, bech(env.user), result["caller"])

	require.Equal(t, big.NewInt(100), env.ledger.BalanceOf(env.company))
	require.Equal(t, big.NewInt(3950), env.ledger.BalanceOf(env.user))
}

func TestHarvestNativeRejectionMapsToError(t *testing.T) {
	env := newRPCEnv(t)

	rec, resp := env.call(t, "settlement_harvestNative", map[string]string{
		"caller": bech(env.user),
		"value":  "500",
	}, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	errObj, ok := resp["error"].(map[string]interface{})
	require.True(t, ok)
	require.Equal(t, float64(codeInvalidParams), errObj["code"])
}

func TestOwnerMethodsRequireAuth(t *testing.T) {
	env := newRPCEnv(t)

	rec, resp := env.call(t, "settlement_pause", map[string]string{"caller": bech(env.owner)}, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.NotNil(t, resp["error"])

	rec, resp = env.call(t, "settlement_pause", map[string]string{"caller": bech(env.owner)}, "wrong")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.NotNil(t, resp["error"])
}

func TestPauseBlocksHarvest(t *testing.T) {
	env := newRPCEnv(t)

	rec, resp := env.call(t, "settlement_pause", map[string]string{"caller": bech(env.owner)}, "secret")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Nil(t, resp["error"])

	rec, resp = env.call(t, "settlement_harvestNative", map[string]string{
		"caller": bech(env.user),
		"value":  "1100",
	}, "")
	require.Equal(t, http.StatusConflict, rec.Code)
	require.NotNil(t, resp["error"])

	rec, _ = env.call(t, "settlement_unpause", map[string]string{"caller": bech(env.owner)}, "secret")
	require.Equal(t, http.StatusOK, rec.Code)
	require.False(t, env.engine.Paused())
}

func TestOwnerCheckedAfterAuth(t *testing.T) {
	env := newRPCEnv(t)

	// Valid bearer token, wrong caller: the engine still enforces the
	// stored owner.
	rec, resp := env.call(t, "settlement_setServiceFee", map[string]string{
		"caller": bech(env.user),
		"amount": "7",
	}, "secret")
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.NotNil(t, resp["error"])
	require.Equal(t, big.NewInt(100), env.engine.ServiceFee())
}

func TestWithdrawNativeOverRPC(t *testing.T) {
	env := newRPCEnv(t)
	target := addr(0x05)

	rec, resp := env.call(t, "settlement_withdraw", map[string]string{
		"caller": bech(env.owner),
		"to":     bech(target),
		"amount": "250",
	}, "secret")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Nil(t, resp["error"])
	require.Equal(t, big.NewInt(250), env.ledger.BalanceOf(target))
}

func TestGetParams(t *testing.T) {
	env := newRPCEnv(t)

	rec, resp := env.call(t, "settlement_getParams", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	result, ok := resp["result"].(map[string]interface{})
	require.True(t, ok)
	require.Equal(t, "100", result["serviceFee"])
	require.Equal(t, "50", result["tokenPayment"])
	require.Equal(t, bech(env.company), result["companyWallet"])
	require.Equal(t, bech(env.owner), result["owner"])
	require.Equal(t, "1000", result["ledgerBalance"])
	require.Equal(t, false, result["paused"])
}

func TestIsDenied(t *testing.T) {
	env := newRPCEnv(t)
	require.NoError(t, env.engine.SetDenylisted(settlement.CallContext{Caller: env.owner}, env.user, true))

	rec, resp := env.call(t, "settlement_isDenied", map[string]string{"address": bech(env.user)}, "")
	require.Equal(t, http.StatusOK, rec.Code)

	result, ok := resp["result"].(map[string]interface{})
	require.True(t, ok)
	require.Equal(t, true, result["denied"])
}

func TestListEvents(t *testing.T) {
	env := newRPCEnv(t)
	rec, _ := env.call(t, "settlement_harvestNative", map[string]string{
		"caller": bech(env.user),
		"value":  "1100",
	}, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec, resp := env.call(t, "settlement_listEvents", map[string]string{"prefix": "settlement.harvest."}, "")
	require.Equal(t, http.StatusOK, rec.Code)

	results, ok := resp["result"].([]interface{})
	require.True(t, ok)
	require.Len(t, results, 1)
	first, ok := results[0].(map[string]interface{})
	require.True(t, ok)
	require.Equal(t, "settlement.harvest.native", first["type"])
}

func TestMethodNotFound(t *testing.T) {
	env := newRPCEnv(t)
	rec, resp := env.call(t, "settlement_unknown", nil, "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.NotNil(t, resp["error"])
}

func TestInvalidJSONPayload(t *testing.T) {
	env := newRPCEnv(t)
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	env.server.handle(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHarvestRateLimit(t *testing.T) {
	env := newRPCEnv(t)
	params := map[string]string{"caller": bech(env.user), "value": "0"}

	var limited bool
	for i := 0; i < maxTxPerWindow+1; i++ {
		rec, _ := env.call(t, "settlement_harvestNative", params, "")
		if rec.Code == http.StatusTooManyRequests {
			limited = true
			require.Equal(t, maxTxPerWindow, i)
			break
		}
	}
	require.True(t, limited)
}
