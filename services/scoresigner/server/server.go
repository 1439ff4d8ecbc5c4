package server

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"math/big"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"harvestledger/crypto"
	"harvestledger/services/scoresigner/signer"
	"harvestledger/services/scoresigner/storage"
)

// Config defines HTTP server parameters.
type Config struct {
	ListenAddress string
	RatePerSecond float64
	RateBurst     int
}

// Server hosts the signing and audit endpoints for scoresigner.
type Server struct {
	cfg    Config
	signer *signer.Signer
	store  *storage.Store
	logger *slog.Logger

	mu       sync.Mutex
	visitors map[string]*rate.Limiter

	now func() time.Time
}

// New constructs the HTTP server around a loaded signer.
func New(cfg Config, sig *signer.Signer, store *storage.Store, logger *slog.Logger) (*Server, error) {
	if sig == nil {
		return nil, errors.New("server: signer required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 5
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = 10
	}
	return &Server{
		cfg:      cfg,
		signer:   sig,
		store:    store,
		logger:   logger,
		visitors: make(map[string]*rate.Limiter),
		now:      time.Now,
	}, nil
}

// Handler assembles the chi router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestID)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/sign", s.handleSign)
	r.Get("/attestations/{address}", s.handleAttestations)
	return r
}

// ListenAndServe runs the server until the listener fails.
func (s *Server) ListenAndServe() error {
	srv := &http.Server{
		Addr:              s.cfg.ListenAddress,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.logger.Info("scoresigner listening", "addr", s.cfg.ListenAddress)
	return srv.ListenAndServe()
}

type signRequest struct {
	Address string      `json:"address"`
	Score   json.Number `json:"score"`
}

type signResponse struct {
	Address   string `json:"address"`
	Score     string `json:"score"`
	Signer    string `json:"signer"`
	Signature string `json:"signature"`
	RequestID string `json:"requestId"`
}

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"requestId,omitempty"`
}

type requestIDKey struct{}

func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get("X-Request-Id"))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)
		ctx := contextWithRequestID(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) handleSign(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r.Context())
	if !s.allow(clientID(r)) {
		metrics().observeRejected("rate_limited")
		writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "rate limit exceeded", RequestID: requestID})
		return
	}

	var req signRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		metrics().observeRejected("bad_payload")
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON payload", RequestID: requestID})
		return
	}
	if strings.TrimSpace(req.Address) == "" {
		metrics().observeRejected("missing_address")
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "address is required", RequestID: requestID})
		return
	}
	if strings.TrimSpace(req.Score.String()) == "" {
		metrics().observeRejected("missing_score")
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "score is required", RequestID: requestID})
		return
	}

	decoded, err := crypto.DecodeAddress(strings.TrimSpace(req.Address))
	if err != nil {
		metrics().observeRejected("bad_address")
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid address", RequestID: requestID})
		return
	}
	score, ok := new(big.Int).SetString(req.Score.String(), 10)
	if !ok || score.Sign() < 0 {
		metrics().observeRejected("bad_score")
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "score must be a non-negative integer", RequestID: requestID})
		return
	}

	subject := decoded.Array()
	sig, err := s.signer.Sign(subject, score)
	if err != nil {
		metrics().observeRejected("signing_failure")
		s.logger.Error("sign score", "error", err, "requestId", requestID)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "signing failure", RequestID: requestID})
		return
	}

	signerAddr := s.signer.Address()
	response := signResponse{
		Address:   strings.TrimSpace(req.Address),
		Score:     score.String(),
		Signer:    crypto.NewAddress(crypto.HarvestPrefix, signerAddr[:]).String(),
		Signature: "0x" + hex.EncodeToString(sig),
		RequestID: requestID,
	}
	if s.store != nil {
		att := storage.Attestation{
			Address:   response.Address,
			Score:     response.Score,
			Signature: response.Signature,
			RequestID: requestID,
			IssuedAt:  s.now().UTC(),
		}
		if err := s.store.Record(subject, att); err != nil {
			s.logger.Error("record attestation", "error", err, "requestId", requestID)
		}
	}
	metrics().observeIssued()
	writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleAttestations(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r.Context())
	raw := chi.URLParam(r, "address")
	decoded, err := crypto.DecodeAddress(strings.TrimSpace(raw))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid address", RequestID: requestID})
		return
	}
	if s.store == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "audit store disabled", RequestID: requestID})
		return
	}
	attestations, err := s.store.Attestations(decoded.Array())
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: "no attestations recorded", RequestID: requestID})
			return
		}
		s.logger.Error("list attestations", "error", err, "requestId", requestID)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "storage failure", RequestID: requestID})
		return
	}
	writeJSON(w, http.StatusOK, attestations)
}

func (s *Server) allow(client string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	limiter, ok := s.visitors[client]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(s.cfg.RatePerSecond), s.cfg.RateBurst)
		s.visitors[client] = limiter
	}
	return limiter.Allow()
}

func clientID(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if candidate := strings.TrimSpace(parts[0]); candidate != "" {
			return candidate
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
