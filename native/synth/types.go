package synth

import (
	"math/big"
	"strings"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

// CollateralAsset is one approved collateral entry in the registry. Assets
// are registered at engine construction and may be deactivated but never
// removed, so positions that already hold a retired asset keep valuing it.
type CollateralAsset struct {
	// Symbol is the canonical asset identifier, upper-cased.
	Symbol string
	// Decimals is the asset's native precision. Must not exceed the
	// canonical 18; enforced at registration, never at call time.
	Decimals uint8
	// Feed names the external price source entry for this asset.
	Feed string
	// Active gates new deposits. Inactive assets remain redeemable and
	// liquidatable.
	Active bool
}

// Position is the per-account ledger entry: native-precision collateral
// balances plus wad-scaled minted debt. Positions are created implicitly on
// first deposit and never destroyed; an emptied position is a valid all-zero
// entry.
type Position struct {
	Address ethcommon.Address `json:"address"`
	// Collateral maps asset symbol to deposited amount in native precision.
	Collateral map[string]*big.Int `json:"collateral"`
	// UsedAssets lists every asset whose balance has ever been non-zero,
	// deduplicated at insertion. Valuation iterates this list, so its cost
	// is proportional to the account's historical asset diversity.
	UsedAssets []string `json:"usedAssets"`
	// Debt is the minted debt-token amount in canonical precision.
	Debt *big.Int `json:"debt"`
}

func (p *Position) normalise() {
	if p.Collateral == nil {
		p.Collateral = make(map[string]*big.Int)
	}
	if p.Debt == nil {
		p.Debt = big.NewInt(0)
	}
}

// BalanceOf returns the deposited amount for the symbol, zero when unused.
func (p *Position) BalanceOf(symbol string) *big.Int {
	if p == nil || p.Collateral == nil {
		return big.NewInt(0)
	}
	if bal, ok := p.Collateral[normaliseSymbol(symbol)]; ok && bal != nil {
		return new(big.Int).Set(bal)
	}
	return big.NewInt(0)
}

// setBalance records the balance and notes the asset as used the first time
// it becomes non-zero.
func (p *Position) setBalance(symbol string, amount *big.Int) {
	p.normalise()
	sym := normaliseSymbol(symbol)
	p.Collateral[sym] = new(big.Int).Set(amount)
	if amount.Sign() == 0 {
		return
	}
	for _, used := range p.UsedAssets {
		if used == sym {
			return
		}
	}
	p.UsedAssets = append(p.UsedAssets, sym)
}

// Clone returns a deep copy, used to restore state when an external transfer
// effect fails after the ledger mutation was persisted.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	clone := &Position{Address: p.Address}
	if p.Collateral != nil {
		clone.Collateral = make(map[string]*big.Int, len(p.Collateral))
		for sym, bal := range p.Collateral {
			if bal != nil {
				clone.Collateral[sym] = new(big.Int).Set(bal)
			}
		}
	}
	clone.UsedAssets = append([]string(nil), p.UsedAssets...)
	if p.Debt != nil {
		clone.Debt = new(big.Int).Set(p.Debt)
	}
	return clone
}

// RiskParameters groups the owner-configured solvency limits.
type RiskParameters struct {
	// MinCollateralBps is the required collateral value relative to minted
	// debt, in basis points. 15_000 demands 150% collateralisation.
	MinCollateralBps uint64
	// LiquidationBonusBps is the extra collateral awarded to a liquidator
	// beyond the debt-equivalent seizure, in basis points.
	LiquidationBonusBps uint64
}

// DefaultRiskParameters returns the reference configuration: 150%
// collateralisation with a 10% liquidation bonus.
func DefaultRiskParameters() RiskParameters {
	return RiskParameters{MinCollateralBps: 15_000, LiquidationBonusBps: 1_000}
}

func normaliseSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
