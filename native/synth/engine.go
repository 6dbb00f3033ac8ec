package synth

import (
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	ethcommon "github.com/ethereum/go-ethereum/common"

	nativecommon "synthvault/native/common"
	"synthvault/native/fixedpoint"
	"synthvault/native/oracle"
)

// MinHealthFactor is 1.0 in canonical precision. A ratio exactly at the
// minimum is healthy, not liquidatable.
var MinHealthFactor = new(big.Int).Set(fixedpoint.Wad)

var bpsDenominator = big.NewInt(10_000)

// DebtToken is the fungible debt primitive. The engine is its exclusive
// minting authority. Every method reports failure through a single error
// return; there is no dual bool/panic path to reconcile.
type DebtToken interface {
	Mint(to ethcommon.Address, amount *big.Int) error
	Pull(from ethcommon.Address, amount *big.Int) error
	Push(to ethcommon.Address, amount *big.Int) error
	Burn(amount *big.Int) error
}

// CollateralToken abstracts one collateral asset's transfer mechanism. Pull
// moves funds from the holder into engine custody, Push releases them.
// Non-compliant transfer semantics must be normalised behind this interface.
type CollateralToken interface {
	Pull(from ethcommon.Address, amount *big.Int) error
	Push(to ethcommon.Address, amount *big.Int) error
}

type engineState interface {
	GetPosition(addr ethcommon.Address) (*Position, error)
	PutPosition(addr ethcommon.Address, pos *Position) error
}

// Engine owns all mutation of position state: deposits, redemptions, debt
// mint/burn and the liquidation protocol. A single mutex serialises every
// operation, so concurrent callers observe a linearizable ledger. All internal
// state is persisted before any external token effect runs; a failed effect
// rolls the persisted state back under the same lock.
type Engine struct {
	mu sync.Mutex

	state       engineState
	assets      map[string]CollateralAsset
	assetOrder  []string
	collaterals map[string]CollateralToken
	debtToken   DebtToken
	prices      *oracle.Adapter
	params      RiskParameters
	pauses      nativecommon.PauseView
	logger      *slog.Logger
}

// NewEngine constructs an engine with the supplied risk parameters. State,
// oracle, tokens and the pause gate are wired through the setters before use.
func NewEngine(params RiskParameters) *Engine {
	if params.MinCollateralBps == 0 {
		params = DefaultRiskParameters()
	}
	return &Engine{
		assets:      make(map[string]CollateralAsset),
		collaterals: make(map[string]CollateralToken),
		params:      params,
		logger:      slog.Default(),
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetPauses installs the process-wide pause gate.
func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetOracle installs the price adapter used for all valuation.
func (e *Engine) SetOracle(adapter *oracle.Adapter) {
	if e == nil {
		return
	}
	e.prices = adapter
}

// SetDebtToken installs the debt-token primitive.
func (e *Engine) SetDebtToken(token DebtToken) {
	if e == nil {
		return
	}
	e.debtToken = token
}

// SetLogger overrides the default logger.
func (e *Engine) SetLogger(logger *slog.Logger) {
	if e == nil || logger == nil {
		return
	}
	e.logger = logger
}

// Params returns the configured risk parameters.
func (e *Engine) Params() RiskParameters {
	if e == nil {
		return RiskParameters{}
	}
	return e.params
}

// RegisterAsset adds a collateral asset and its transfer primitive to the
// registry. Native precision above the canonical scale is a configuration
// error caught here, never at call time.
func (e *Engine) RegisterAsset(asset CollateralAsset, token CollateralToken) error {
	if e == nil {
		return ErrNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	sym := normaliseSymbol(asset.Symbol)
	if sym == "" {
		return fmt.Errorf("%w: empty symbol", ErrUnknownAsset)
	}
	if asset.Decimals > fixedpoint.WadDecimals {
		return fmt.Errorf("synth engine: asset %s: %w", sym, fixedpoint.ErrPrecision)
	}
	if _, exists := e.assets[sym]; exists {
		return fmt.Errorf("synth engine: asset %s already registered", sym)
	}
	if token == nil {
		return fmt.Errorf("synth engine: asset %s: transfer primitive required", sym)
	}
	asset.Symbol = sym
	e.assets[sym] = asset
	e.collaterals[sym] = token
	e.assetOrder = append(e.assetOrder, sym)
	return nil
}

// SetAssetActive flips the deposit gate for a registered asset. Assets are
// never removed, so existing positions keep valuing retired collateral.
func (e *Engine) SetAssetActive(symbol string, active bool) error {
	if e == nil {
		return ErrNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	sym := normaliseSymbol(symbol)
	asset, ok := e.assets[sym]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAsset, sym)
	}
	asset.Active = active
	e.assets[sym] = asset
	return nil
}

// Assets lists the registry in registration order.
func (e *Engine) Assets() []CollateralAsset {
	if e == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]CollateralAsset, 0, len(e.assetOrder))
	for _, sym := range e.assetOrder {
		out = append(out, e.assets[sym])
	}
	return out
}

// Deposit credits collateral to the account's position and pulls the tokens
// from the caller. Deposits only improve solvency, so no health check runs.
func (e *Engine) Deposit(account ethcommon.Address, symbol string, amount *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.precheck(); err != nil {
		return err
	}
	_, err := e.depositLocked(account, symbol, amount)
	return err
}

// Mint increases the account's minted debt after verifying the resulting
// health factor, then mints the debt token to the account.
func (e *Engine) Mint(account ethcommon.Address, amount *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.precheck(); err != nil {
		return err
	}
	_, err := e.mintLocked(account, amount)
	return err
}

// DepositAndMint performs deposit then mint as one operation; a mint failure
// unwinds the deposit so the pair is all-or-nothing.
func (e *Engine) DepositAndMint(account ethcommon.Address, symbol string, depositAmount, mintAmount *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.precheck(); err != nil {
		return err
	}
	undoDeposit, err := e.depositLocked(account, symbol, depositAmount)
	if err != nil {
		return err
	}
	if _, err := e.mintLocked(account, mintAmount); err != nil {
		undoDeposit()
		return err
	}
	return nil
}

// Redeem withdraws collateral to the recipient. The balance decrease is
// persisted first, the transfer runs second, and the caller's health factor is
// re-checked in between; liquidation bypasses this entry point because it
// redeems on behalf of an account whose health is broken until it completes.
func (e *Engine) Redeem(account ethcommon.Address, symbol string, amount *big.Int, recipient ethcommon.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.precheck(); err != nil {
		return err
	}
	_, err := e.redeemLocked(account, symbol, amount, recipient)
	return err
}

// Burn retires minted debt: the debt token is pulled from the account and
// destroyed. Burning can only improve health, so none is re-checked.
func (e *Engine) Burn(account ethcommon.Address, amount *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.precheck(); err != nil {
		return err
	}
	_, err := e.burnLocked(account, amount)
	return err
}

// RedeemAndBurn retires debt first so the subsequent withdrawal passes the
// health check, unwinding the burn when the redemption fails.
func (e *Engine) RedeemAndBurn(account ethcommon.Address, symbol string, redeemAmount, burnAmount *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.precheck(); err != nil {
		return err
	}
	undoBurn, err := e.burnLocked(account, burnAmount)
	if err != nil {
		return err
	}
	if _, err := e.redeemLocked(account, symbol, redeemAmount, account); err != nil {
		undoBurn()
		return err
	}
	return nil
}

// CollateralValue returns the USD value, canonical precision, of every asset
// the account has ever used, at current oracle prices.
func (e *Engine) CollateralValue(account ethcommon.Address) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	pos, err := e.ensurePosition(account)
	if err != nil {
		return nil, err
	}
	return e.collateralValue(pos)
}

// HealthFactor returns the account's current solvency ratio.
func (e *Engine) HealthFactor(account ethcommon.Address) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	pos, err := e.ensurePosition(account)
	if err != nil {
		return nil, err
	}
	return e.positionHealth(pos)
}

// PositionOf returns a snapshot of the account's ledger entry.
func (e *Engine) PositionOf(account ethcommon.Address) (*Position, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	pos, err := e.ensurePosition(account)
	if err != nil {
		return nil, err
	}
	return pos.Clone(), nil
}

func (e *Engine) precheck() error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	return nativecommon.Guard(e.pauses)
}

func (e *Engine) ensurePosition(addr ethcommon.Address) (*Position, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	pos, err := e.state.GetPosition(addr)
	if err != nil {
		return nil, err
	}
	if pos == nil {
		pos = &Position{Address: addr}
	}
	pos.normalise()
	return pos, nil
}

func (e *Engine) assetFor(symbol string) (CollateralAsset, CollateralToken, error) {
	sym := normaliseSymbol(symbol)
	asset, ok := e.assets[sym]
	if !ok {
		return CollateralAsset{}, nil, fmt.Errorf("%w: %s", ErrUnknownAsset, sym)
	}
	return asset, e.collaterals[sym], nil
}

func validateMutation(account ethcommon.Address, amount *big.Int) error {
	if account == (ethcommon.Address{}) {
		return ErrZeroAddress
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// depositLocked applies the deposit and returns an undo closure reversing
// both the persisted balance and the inbound transfer.
func (e *Engine) depositLocked(account ethcommon.Address, symbol string, amount *big.Int) (func(), error) {
	if err := validateMutation(account, amount); err != nil {
		return nil, err
	}
	asset, token, err := e.assetFor(symbol)
	if err != nil {
		return nil, err
	}
	if !asset.Active {
		return nil, fmt.Errorf("%w: %s", ErrAssetInactive, asset.Symbol)
	}
	pos, err := e.ensurePosition(account)
	if err != nil {
		return nil, err
	}
	prev := pos.Clone()
	newBalance, err := fixedpoint.Add(pos.BalanceOf(asset.Symbol), amount)
	if err != nil {
		return nil, err
	}
	pos.setBalance(asset.Symbol, newBalance)
	if err := e.state.PutPosition(account, pos); err != nil {
		return nil, err
	}
	if err := token.Pull(account, amount); err != nil {
		e.restore(account, prev)
		return nil, fmt.Errorf("%w: deposit %s: %v", ErrTransferFailed, asset.Symbol, err)
	}
	e.logger.Info("collateral deposited", "account", account.Hex(), "asset", asset.Symbol, "amount", amount.String())
	undo := func() {
		e.restore(account, prev)
		if err := token.Push(account, amount); err != nil {
			e.logger.Error("deposit unwind transfer failed", "account", account.Hex(), "asset", asset.Symbol, "err", err)
		}
	}
	return undo, nil
}

func (e *Engine) mintLocked(account ethcommon.Address, amount *big.Int) (func(), error) {
	if err := validateMutation(account, amount); err != nil {
		return nil, err
	}
	if e.debtToken == nil {
		return nil, fmt.Errorf("synth engine: debt token not configured")
	}
	pos, err := e.ensurePosition(account)
	if err != nil {
		return nil, err
	}
	prev := pos.Clone()
	newDebt, err := fixedpoint.Add(pos.Debt, amount)
	if err != nil {
		return nil, err
	}
	pos.Debt = newDebt
	if err := e.checkHealth(pos); err != nil {
		return nil, err
	}
	if err := e.state.PutPosition(account, pos); err != nil {
		return nil, err
	}
	if err := e.debtToken.Mint(account, amount); err != nil {
		e.restore(account, prev)
		return nil, fmt.Errorf("%w: mint debt: %v", ErrTransferFailed, err)
	}
	e.logger.Info("debt minted", "account", account.Hex(), "amount", amount.String())
	undo := func() {
		e.restore(account, prev)
		if err := e.debtToken.Pull(account, amount); err != nil {
			e.logger.Error("mint unwind pull failed", "account", account.Hex(), "err", err)
			return
		}
		if err := e.debtToken.Burn(amount); err != nil {
			e.logger.Error("mint unwind burn failed", "account", account.Hex(), "err", err)
		}
	}
	return undo, nil
}

// redeemLocked decreases the balance, re-checks the account's health with
// the reduced collateral, persists, then pushes the tokens out. Liquidation
// does not come through here: it seizes on behalf of an account whose health
// is expected to be broken until the operation completes.
func (e *Engine) redeemLocked(account ethcommon.Address, symbol string, amount *big.Int, recipient ethcommon.Address) (func(), error) {
	if err := validateMutation(account, amount); err != nil {
		return nil, err
	}
	if recipient == (ethcommon.Address{}) {
		return nil, ErrZeroAddress
	}
	asset, token, err := e.assetFor(symbol)
	if err != nil {
		return nil, err
	}
	pos, err := e.ensurePosition(account)
	if err != nil {
		return nil, err
	}
	balance := pos.BalanceOf(asset.Symbol)
	if balance.Cmp(amount) < 0 {
		return nil, fmt.Errorf("%w: %s balance %s < %s", ErrInsufficientBalance, asset.Symbol, balance, amount)
	}
	prev := pos.Clone()
	newBalance, err := fixedpoint.Sub(balance, amount)
	if err != nil {
		return nil, err
	}
	pos.setBalance(asset.Symbol, newBalance)
	if err := e.checkHealth(pos); err != nil {
		return nil, err
	}
	if err := e.state.PutPosition(account, pos); err != nil {
		return nil, err
	}
	if err := token.Push(recipient, amount); err != nil {
		e.restore(account, prev)
		return nil, fmt.Errorf("%w: redeem %s: %v", ErrTransferFailed, asset.Symbol, err)
	}
	e.logger.Info("collateral redeemed", "account", account.Hex(), "asset", asset.Symbol, "amount", amount.String(), "recipient", recipient.Hex())
	undo := func() {
		e.restore(account, prev)
		if err := token.Pull(recipient, amount); err != nil {
			e.logger.Error("redeem unwind transfer failed", "account", account.Hex(), "asset", asset.Symbol, "err", err)
		}
	}
	return undo, nil
}

func (e *Engine) burnLocked(account ethcommon.Address, amount *big.Int) (func(), error) {
	if err := validateMutation(account, amount); err != nil {
		return nil, err
	}
	if e.debtToken == nil {
		return nil, fmt.Errorf("synth engine: debt token not configured")
	}
	pos, err := e.ensurePosition(account)
	if err != nil {
		return nil, err
	}
	if pos.Debt.Cmp(amount) < 0 {
		return nil, fmt.Errorf("%w: debt %s < %s", ErrInsufficientDebt, pos.Debt, amount)
	}
	prev := pos.Clone()
	newDebt, err := fixedpoint.Sub(pos.Debt, amount)
	if err != nil {
		return nil, err
	}
	pos.Debt = newDebt
	if err := e.state.PutPosition(account, pos); err != nil {
		return nil, err
	}
	if err := e.debtToken.Pull(account, amount); err != nil {
		e.restore(account, prev)
		return nil, fmt.Errorf("%w: burn debt: %v", ErrTransferFailed, err)
	}
	if err := e.debtToken.Burn(amount); err != nil {
		if pushErr := e.debtToken.Push(account, amount); pushErr != nil {
			e.logger.Error("burn unwind push failed", "account", account.Hex(), "err", pushErr)
		}
		e.restore(account, prev)
		return nil, fmt.Errorf("%w: burn debt: %v", ErrTransferFailed, err)
	}
	e.logger.Info("debt burned", "account", account.Hex(), "amount", amount.String())
	undo := func() {
		e.restore(account, prev)
		if err := e.debtToken.Mint(account, amount); err != nil {
			e.logger.Error("burn unwind mint failed", "account", account.Hex(), "err", err)
		}
	}
	return undo, nil
}

// restore writes a previously cloned position back after a failed external
// effect, keeping every operation all-or-nothing.
func (e *Engine) restore(account ethcommon.Address, prev *Position) {
	if err := e.state.PutPosition(account, prev); err != nil {
		e.logger.Error("position rollback failed", "account", account.Hex(), "err", err)
	}
}

func (e *Engine) collateralValue(pos *Position) (*big.Int, error) {
	total := big.NewInt(0)
	for _, sym := range pos.UsedAssets {
		balance := pos.BalanceOf(sym)
		if balance.Sign() == 0 {
			continue
		}
		asset, _, err := e.assetFor(sym)
		if err != nil {
			return nil, err
		}
		quote, err := e.prices.Price(asset.Feed)
		if err != nil {
			return nil, err
		}
		canonical, err := fixedpoint.ToCanonical(balance, asset.Decimals)
		if err != nil {
			return nil, err
		}
		value, err := fixedpoint.MulWad(canonical, quote.Price)
		if err != nil {
			return nil, err
		}
		total, err = fixedpoint.Add(total, value)
		if err != nil {
			return nil, err
		}
	}
	return total, nil
}

// healthFactor computes the solvency ratio in canonical precision. Zero debt
// is unconstrained: such a position cannot be liquidated regardless of
// collateral, so the maximum representable value is returned.
func (e *Engine) healthFactor(collateralValue, debt *big.Int) (*big.Int, error) {
	if debt == nil || debt.Sign() == 0 {
		return new(big.Int).Set(fixedpoint.MaxValue), nil
	}
	adjusted, err := fixedpoint.MulDiv(collateralValue, bpsDenominator, new(big.Int).SetUint64(e.params.MinCollateralBps))
	if err != nil {
		return nil, err
	}
	return fixedpoint.DivWad(adjusted, debt)
}

func (e *Engine) positionHealth(pos *Position) (*big.Int, error) {
	value, err := e.collateralValue(pos)
	if err != nil {
		return nil, err
	}
	return e.healthFactor(value, pos.Debt)
}

func (e *Engine) checkHealth(pos *Position) error {
	ratio, err := e.positionHealth(pos)
	if err != nil {
		return err
	}
	if ratio.Cmp(MinHealthFactor) < 0 {
		return brokenHealth(ratio)
	}
	return nil
}
