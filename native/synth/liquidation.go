package synth

import (
	"fmt"
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"synthvault/native/fixedpoint"
)

// Liquidate lets a third party cover part of an unhealthy target's debt in
// exchange for the debt-equivalent collateral plus the liquidation bonus.
// The division happens in canonical precision and is converted to native
// units exactly once; the bonus is then computed on the native seize amount.
// Returns the total native collateral seized.
//
// When aggregate collateral value has fallen to or below the minted debt
// there is no bonus left to pay liquidators and the position can stay stuck
// undercollateralised; that failure mode is preserved and surfaced as a
// warning rather than silently patched.
func (e *Engine) Liquidate(liquidator, target ethcommon.Address, symbol string, debtToCover *big.Int) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.precheck(); err != nil {
		return nil, err
	}
	if liquidator == (ethcommon.Address{}) {
		return nil, ErrZeroAddress
	}
	if err := validateMutation(target, debtToCover); err != nil {
		return nil, err
	}
	if e.debtToken == nil {
		return nil, fmt.Errorf("synth engine: debt token not configured")
	}
	asset, token, err := e.assetFor(symbol)
	if err != nil {
		return nil, err
	}

	pos, err := e.ensurePosition(target)
	if err != nil {
		return nil, err
	}
	startValue, err := e.collateralValue(pos)
	if err != nil {
		return nil, err
	}
	startHealth, err := e.healthFactor(startValue, pos.Debt)
	if err != nil {
		return nil, err
	}
	if startHealth.Cmp(MinHealthFactor) >= 0 {
		return nil, fmt.Errorf("%w: ratio %s", ErrHealthFactorOk, startHealth)
	}
	if debtToCover.Cmp(pos.Debt) > 0 {
		return nil, fmt.Errorf("%w: debt %s < cover %s", ErrInsufficientDebt, pos.Debt, debtToCover)
	}
	if startValue.Cmp(pos.Debt) <= 0 {
		e.logger.Warn("target collateral value at or below minted debt; liquidation carries no incentive",
			"target", target.Hex(), "collateralValue", startValue.String(), "debt", pos.Debt.String())
	}

	quote, err := e.prices.Price(asset.Feed)
	if err != nil {
		return nil, err
	}
	seizeCanonical, err := fixedpoint.DivWad(debtToCover, quote.Price)
	if err != nil {
		return nil, err
	}
	seizeNative, err := fixedpoint.FromCanonical(seizeCanonical, asset.Decimals)
	if err != nil {
		return nil, err
	}
	bonus, err := fixedpoint.MulDiv(seizeNative, new(big.Int).SetUint64(e.params.LiquidationBonusBps), bpsDenominator)
	if err != nil {
		return nil, err
	}
	totalSeize, err := fixedpoint.Add(seizeNative, bonus)
	if err != nil {
		return nil, err
	}

	balance := pos.BalanceOf(asset.Symbol)
	if balance.Cmp(totalSeize) < 0 {
		// Partial liquidation is not auto-scaled down; the caller must
		// request a smaller debtToCover.
		return nil, fmt.Errorf("%w: %s balance %s < seizure %s", ErrInsufficientCollateral, asset.Symbol, balance, totalSeize)
	}

	prev := pos.Clone()
	newBalance, err := fixedpoint.Sub(balance, totalSeize)
	if err != nil {
		return nil, err
	}
	newDebt, err := fixedpoint.Sub(pos.Debt, debtToCover)
	if err != nil {
		return nil, err
	}
	pos.setBalance(asset.Symbol, newBalance)
	pos.Debt = newDebt

	endHealth, err := e.positionHealth(pos)
	if err != nil {
		return nil, err
	}
	if endHealth.Cmp(startHealth) <= 0 {
		// Rejects pathological seizures, e.g. of an asset priced so that
		// removing it does not help the target. An economic invariant, not
		// an arithmetic check.
		return nil, fmt.Errorf("%w: %s -> %s", ErrHealthFactorNotImproved, startHealth, endHealth)
	}

	// The liquidator must end solvent too.
	liqPos, err := e.ensurePosition(liquidator)
	if err != nil {
		return nil, err
	}
	if err := e.checkHealth(liqPos); err != nil {
		return nil, err
	}

	if err := e.state.PutPosition(target, pos); err != nil {
		return nil, err
	}

	// Ledger state is committed; external effects run last so any reentrant
	// observer sees post-mutation balances.
	if err := e.debtToken.Pull(liquidator, debtToCover); err != nil {
		e.restore(target, prev)
		return nil, fmt.Errorf("%w: pull debt: %v", ErrTransferFailed, err)
	}
	if err := e.debtToken.Burn(debtToCover); err != nil {
		if pushErr := e.debtToken.Push(liquidator, debtToCover); pushErr != nil {
			e.logger.Error("liquidation unwind debt push failed", "liquidator", liquidator.Hex(), "err", pushErr)
		}
		e.restore(target, prev)
		return nil, fmt.Errorf("%w: burn debt: %v", ErrTransferFailed, err)
	}
	if err := token.Push(liquidator, totalSeize); err != nil {
		if mintErr := e.debtToken.Mint(liquidator, debtToCover); mintErr != nil {
			e.logger.Error("liquidation unwind debt mint failed", "liquidator", liquidator.Hex(), "err", mintErr)
		}
		e.restore(target, prev)
		return nil, fmt.Errorf("%w: push collateral: %v", ErrTransferFailed, err)
	}

	e.logger.Info("position liquidated",
		"liquidator", liquidator.Hex(),
		"target", target.Hex(),
		"asset", asset.Symbol,
		"debtCovered", debtToCover.String(),
		"seized", totalSeize.String(),
		"healthBefore", startHealth.String(),
		"healthAfter", endHealth.String(),
	)
	return totalSeize, nil
}
