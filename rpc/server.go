package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"strings"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	nativecommon "synthvault/native/common"
	"synthvault/native/oracle"
	"synthvault/native/synth"
	"synthvault/observability/metrics"
	"synthvault/token"
)

const requestLimit = 1 << 20 // 1 MiB

// Server exposes the synthetic-asset engine over HTTP. Amounts travel as
// base-10 strings and addresses as 0x-prefixed hex.
type Server struct {
	engine  *synth.Engine
	pauses  *nativecommon.ProtocolState
	prices  *oracle.ManualSource
	funding map[string]*token.Ledger
	logger  *slog.Logger
	limiter *rateLimiter
}

// Option adjusts server construction.
type Option func(*Server)

// WithLogger overrides the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRateLimit sets the per-client token bucket rate.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(s *Server) { s.limiter = newRateLimiter(perSecond, burst) }
}

// WithPriceOverride mounts the manual price admin endpoint backed by the
// given source.
func WithPriceOverride(source *oracle.ManualSource) Option {
	return func(s *Server) { s.prices = source }
}

// WithFunding mounts the collateral issuance admin endpoint over the given
// ledgers, keyed by asset symbol. Only the protocol controller may call it.
func WithFunding(ledgers map[string]*token.Ledger) Option {
	return func(s *Server) { s.funding = ledgers }
}

// NewServer wires the engine and pause switch into an HTTP surface.
func NewServer(engine *synth.Engine, pauses *nativecommon.ProtocolState, opts ...Option) *Server {
	s := &Server{
		engine:  engine,
		pauses:  pauses,
		logger:  slog.Default().With("component", "rpc"),
		limiter: newRateLimiter(0, 0),
	}
	for _, opt := range opts {
		opt(s)
	}
	// Force collector registration so /metrics exposes the engine series
	// before the first operation.
	metrics.Synth()
	return s
}

// Router assembles the route tree.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(s.limiter.middleware)

	r.Get("/healthz", s.healthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1/synth", func(r chi.Router) {
		r.Post("/deposit", s.deposit)
		r.Post("/mint", s.mint)
		r.Post("/deposit-mint", s.depositAndMint)
		r.Post("/redeem", s.redeem)
		r.Post("/burn", s.burn)
		r.Post("/redeem-burn", s.redeemAndBurn)
		r.Post("/liquidate", s.liquidate)
		r.Post("/pause", s.pause)
		r.Post("/unpause", s.unpause)
		r.Get("/assets", s.assets)
		r.Get("/positions/{address}", s.position)
	})
	if s.prices != nil {
		r.Post("/v1/admin/price", s.setPrice)
	}
	if len(s.funding) > 0 {
		r.Post("/v1/admin/fund", s.fund)
	}
	return r
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"paused": s.pauses.IsPaused(),
	})
}

func decode(r *http.Request, dst any) error {
	if r.Body == nil {
		return errors.New("missing request body")
	}
	defer r.Body.Close()
	dec := json.NewDecoder(io.LimitReader(r.Body, requestLimit))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}

func parseAddress(field, value string) (ethcommon.Address, error) {
	trimmed := strings.TrimSpace(value)
	if !ethcommon.IsHexAddress(trimmed) {
		return ethcommon.Address{}, fmt.Errorf("%s must be a 0x-prefixed address", field)
	}
	return ethcommon.HexToAddress(trimmed), nil
}

func parseAmount(field, value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("%s is required", field)
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("%s must be a base-10 integer", field)
	}
	if amount.Sign() <= 0 {
		return nil, fmt.Errorf("%s must be positive", field)
	}
	return amount, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeBadRequest(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
}

// writeEngineError maps the engine's error taxonomy onto HTTP statuses:
// validation failures are the caller's fault, pause and oracle conditions are
// upstream, and solvency rejections are conflicts with current ledger state.
func writeEngineError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, synth.ErrInvalidAmount),
		errors.Is(err, synth.ErrZeroAddress),
		errors.Is(err, synth.ErrUnknownAsset),
		errors.Is(err, synth.ErrAssetInactive):
		status = http.StatusBadRequest
	case errors.Is(err, nativecommon.ErrProtocolPaused):
		status = http.StatusServiceUnavailable
	case errors.Is(err, nativecommon.ErrNotController):
		status = http.StatusForbidden
	case errors.Is(err, synth.ErrInsufficientBalance),
		errors.Is(err, synth.ErrInsufficientDebt),
		errors.Is(err, synth.ErrInsufficientCollateral),
		errors.Is(err, synth.ErrHealthFactorBroken),
		errors.Is(err, synth.ErrHealthFactorOk),
		errors.Is(err, synth.ErrHealthFactorNotImproved):
		status = http.StatusConflict
	case errors.Is(err, oracle.ErrPriceUnavailable),
		errors.Is(err, oracle.ErrStalePrice),
		errors.Is(err, oracle.ErrInvalidPrice),
		errors.Is(err, oracle.ErrStaleRound):
		status = http.StatusBadGateway
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
