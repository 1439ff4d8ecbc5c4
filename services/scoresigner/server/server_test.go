package server

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"harvestledger/crypto"
	"harvestledger/services/scoresigner/signer"
	"harvestledger/services/scoresigner/storage"
)

type serverEnv struct {
	server  *Server
	handler http.Handler
	signer  *signer.Signer
}

func newServerEnv(t *testing.T, cfg Config) *serverEnv {
	t.Helper()
	key, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	sig, err := signer.New(key)
	require.NoError(t, err)

	store, err := storage.Open(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	srv, err := New(cfg, sig, store, nil)
	require.NoError(t, err)
	return &serverEnv{server: srv, handler: srv.Handler(), signer: sig}
}

func (env *serverEnv) post(t *testing.T, payload string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/sign", bytes.NewReader([]byte(payload)))
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	return rec
}

func subjectAddress() (string, [20]byte) {
	raw := [20]byte{0x42}
	return crypto.NewAddress(crypto.HarvestPrefix, raw[:]).String(), raw
}

func TestSignIssuesVerifiableSignature(t *testing.T) {
	env := newServerEnv(t, Config{})
	encoded, raw := subjectAddress()

	rec := env.post(t, `{"address":"`+encoded+`","score":7500}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Address   string `json:"address"`
		Score     string `json:"score"`
		Signer    string `json:"signer"`
		Signature string `json:"signature"`
		RequestID string `json:"requestId"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, encoded, resp.Address)
	require.Equal(t, "7500", resp.Score)
	require.NotEmpty(t, resp.RequestID)

	sigBytes, err := hex.DecodeString(strings.TrimPrefix(resp.Signature, "0x"))
	require.NoError(t, err)
	ok, err := env.signer.Verify(raw, big.NewInt(7500), sigBytes)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestSignAcceptsStringScore(t *testing.T) {
	env := newServerEnv(t, Config{})
	encoded, _ := subjectAddress()

	rec := env.post(t, `{"address":"`+encoded+`","score":"42"}`)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestSignMissingInputs(t *testing.T) {
	env := newServerEnv(t, Config{})
	encoded, _ := subjectAddress()

	rec := env.post(t, `{"score":10}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.post(t, `{"address":"`+encoded+`"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.post(t, `{"address":"not-bech32","score":10}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.post(t, `{"address":"`+encoded+`","score":-5}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.post(t, `not json`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSignRecordsAudit(t *testing.T) {
	env := newServerEnv(t, Config{})
	encoded, _ := subjectAddress()

	rec := env.post(t, `{"address":"`+encoded+`","score":10}`)
	require.Equal(t, http.StatusOK, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/attestations/"+encoded, nil)
	listRec := httptest.NewRecorder()
	env.handler.ServeHTTP(listRec, req)
	require.Equal(t, http.StatusOK, listRec.Code)

	var attestations []storage.Attestation
	require.NoError(t, json.Unmarshal(listRec.Body.Bytes(), &attestations))
	require.Len(t, attestations, 1)
	require.Equal(t, "10", attestations[0].Score)
}

func TestAttestationsUnknownAddress(t *testing.T) {
	env := newServerEnv(t, Config{})
	encoded, _ := subjectAddress()

	req := httptest.NewRequest(http.MethodGet, "/attestations/"+encoded, nil)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSignRateLimited(t *testing.T) {
	env := newServerEnv(t, Config{RatePerSecond: 0.001, RateBurst: 1})
	encoded, _ := subjectAddress()

	rec := env.post(t, `{"address":"`+encoded+`","score":1}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.post(t, `{"address":"`+encoded+`","score":1}`)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestHealthz(t *testing.T) {
	env := newServerEnv(t, Config{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}
