package rpc

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	nativecommon "synthvault/native/common"
	"synthvault/native/oracle"
	"synthvault/native/synth"
	"synthvault/observability/metrics"
)

type mutationRequest struct {
	Account   string `json:"account"`
	Asset     string `json:"asset,omitempty"`
	Amount    string `json:"amount,omitempty"`
	Mint      string `json:"mint,omitempty"`
	Burn      string `json:"burn,omitempty"`
	Recipient string `json:"recipient,omitempty"`
}

type liquidateRequest struct {
	Liquidator  string `json:"liquidator"`
	Target      string `json:"target"`
	Asset       string `json:"asset"`
	DebtToCover string `json:"debtToCover"`
}

type pauseRequest struct {
	Caller string `json:"caller"`
}

type priceRequest struct {
	Feed     string `json:"feed"`
	Price    string `json:"price"`
	Decimals uint8  `json:"decimals"`
}

type fundRequest struct {
	Caller  string `json:"caller"`
	Account string `json:"account"`
	Asset   string `json:"asset"`
	Amount  string `json:"amount"`
}

// record tracks the outcome of an engine operation.
func record(op string, err error) {
	m := metrics.Synth()
	m.RecordOperation(op, err)
	switch {
	case errors.Is(err, synth.ErrHealthFactorBroken):
		m.RecordHealthRejection()
	case errors.Is(err, oracle.ErrStalePrice):
		m.RecordOracleRejection("stale")
	case errors.Is(err, oracle.ErrInvalidPrice):
		m.RecordOracleRejection("invalid")
	case errors.Is(err, oracle.ErrStaleRound):
		m.RecordOracleRejection("round")
	case errors.Is(err, oracle.ErrPriceUnavailable):
		m.RecordOracleRejection("unavailable")
	}
}

func (s *Server) deposit(w http.ResponseWriter, r *http.Request) {
	var req mutationRequest
	if err := decode(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	account, err := parseAddress("account", req.Account)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	err = s.engine.Deposit(account, req.Asset, amount)
	record("deposit", err)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) mint(w http.ResponseWriter, r *http.Request) {
	var req mutationRequest
	if err := decode(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	account, err := parseAddress("account", req.Account)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	err = s.engine.Mint(account, amount)
	record("mint", err)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) depositAndMint(w http.ResponseWriter, r *http.Request) {
	var req mutationRequest
	if err := decode(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	account, err := parseAddress("account", req.Account)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	depositAmount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	mintAmount, err := parseAmount("mint", req.Mint)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	err = s.engine.DepositAndMint(account, req.Asset, depositAmount, mintAmount)
	record("deposit_mint", err)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) redeem(w http.ResponseWriter, r *http.Request) {
	var req mutationRequest
	if err := decode(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	account, err := parseAddress("account", req.Account)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	recipient := account
	if req.Recipient != "" {
		if recipient, err = parseAddress("recipient", req.Recipient); err != nil {
			writeBadRequest(w, err)
			return
		}
	}
	err = s.engine.Redeem(account, req.Asset, amount, recipient)
	record("redeem", err)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) burn(w http.ResponseWriter, r *http.Request) {
	var req mutationRequest
	if err := decode(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	account, err := parseAddress("account", req.Account)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	err = s.engine.Burn(account, amount)
	record("burn", err)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) redeemAndBurn(w http.ResponseWriter, r *http.Request) {
	var req mutationRequest
	if err := decode(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	account, err := parseAddress("account", req.Account)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	redeemAmount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	burnAmount, err := parseAmount("burn", req.Burn)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	err = s.engine.RedeemAndBurn(account, req.Asset, redeemAmount, burnAmount)
	record("redeem_burn", err)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) liquidate(w http.ResponseWriter, r *http.Request) {
	var req liquidateRequest
	if err := decode(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	liquidator, err := parseAddress("liquidator", req.Liquidator)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	target, err := parseAddress("target", req.Target)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	cover, err := parseAmount("debtToCover", req.DebtToCover)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	seized, err := s.engine.Liquidate(liquidator, target, req.Asset, cover)
	record("liquidate", err)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	metrics.Synth().RecordLiquidation()
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"seized": seized.String(),
	})
}

func (s *Server) pause(w http.ResponseWriter, r *http.Request) {
	s.setPaused(w, r, true)
}

func (s *Server) unpause(w http.ResponseWriter, r *http.Request) {
	s.setPaused(w, r, false)
}

func (s *Server) setPaused(w http.ResponseWriter, r *http.Request, paused bool) {
	var req pauseRequest
	if err := decode(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	caller, err := parseAddress("caller", req.Caller)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	if err := s.pauses.SetPaused(caller, paused); err != nil {
		writeEngineError(w, err)
		return
	}
	metrics.Synth().SetPaused(paused)
	s.logger.Info("pause state changed", "paused", paused, "caller", caller.Hex())
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "paused": paused})
}

func (s *Server) assets(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"assets": s.engine.Assets()})
}

// position reports the ledger entry plus pricing-derived fields. Valuation is
// best effort: a stale oracle must not hide the stored balances.
func (s *Server) position(w http.ResponseWriter, r *http.Request) {
	account, err := parseAddress("address", chi.URLParam(r, "address"))
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	pos, err := s.engine.PositionOf(account)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	payload := map[string]any{"position": pos}
	if value, err := s.engine.CollateralValue(account); err != nil {
		payload["pricingError"] = err.Error()
	} else {
		payload["collateralValue"] = value.String()
		if health, err := s.engine.HealthFactor(account); err == nil {
			payload["healthFactor"] = health.String()
		}
	}
	writeJSON(w, http.StatusOK, payload)
}

// fund mints collateral tokens to an account. It is the operator's issuance
// path: the engine only moves tokens that already exist, so without it a
// fresh deployment has nothing to deposit.
func (s *Server) fund(w http.ResponseWriter, r *http.Request) {
	var req fundRequest
	if err := decode(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	caller, err := parseAddress("caller", req.Caller)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	if caller != s.pauses.Controller() {
		writeEngineError(w, nativecommon.ErrNotController)
		return
	}
	account, err := parseAddress("account", req.Account)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	ledger, ok := s.funding[strings.ToUpper(strings.TrimSpace(req.Asset))]
	if !ok {
		writeEngineError(w, fmt.Errorf("%w: %s", synth.ErrUnknownAsset, req.Asset))
		return
	}
	if err := ledger.Mint(account, amount); err != nil {
		writeBadRequest(w, err)
		return
	}
	s.logger.Info("collateral issued", "asset", ledger.Symbol(), "account", account.Hex(), "amount", amount.String())
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) setPrice(w http.ResponseWriter, r *http.Request) {
	var req priceRequest
	if err := decode(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	if req.Feed == "" {
		writeBadRequest(w, errors.New("feed is required"))
		return
	}
	price, err := parseAmount("price", req.Price)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	s.prices.Set(req.Feed, price, req.Decimals, time.Now())
	s.logger.Info("manual price override", "feed", req.Feed, "price", price.String(), "decimals", req.Decimals)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
