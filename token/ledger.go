// Package token provides the fungible primitives the engine moves value
// through: an in-process balance ledger that implements both the debt-token
// and collateral-token contracts with explicit success signalling.
package token

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

var (
	ErrInsufficientFunds = errors.New("token: insufficient funds")
	ErrInvalidAmount     = errors.New("token: amount must be positive")
	ErrZeroAddress       = errors.New("token: zero address")
)

// Ledger is a minimal fungible token: a balance map, a total supply and a
// single custody account (the engine) that Pull and Push move value through.
// Mint and Burn adjust supply; the engine holds the only reference, which is
// what makes its minting authority exclusive.
type Ledger struct {
	mu       sync.RWMutex
	symbol   string
	custody  ethcommon.Address
	balances map[ethcommon.Address]*big.Int
	supply   *big.Int
	onChange func(Snapshot)
}

// Snapshot is the serializable state of a ledger: every non-zero balance as
// a decimal string keyed by hex address, plus the outstanding supply.
type Snapshot struct {
	Symbol   string            `json:"symbol"`
	Supply   string            `json:"supply"`
	Balances map[string]string `json:"balances"`
}

// NewLedger constructs an empty ledger whose custody account is the engine's
// module address.
func NewLedger(symbol string, custody ethcommon.Address) *Ledger {
	return &Ledger{
		symbol:   symbol,
		custody:  custody,
		balances: make(map[ethcommon.Address]*big.Int),
		supply:   big.NewInt(0),
	}
}

// SetOnChange installs a hook invoked with a fresh snapshot after every
// successful mutation, outside the ledger lock. The daemon uses it to write
// the ledger through to disk.
func (l *Ledger) SetOnChange(fn func(Snapshot)) {
	if l == nil {
		return
	}
	l.mu.Lock()
	l.onChange = fn
	l.mu.Unlock()
}

func (l *Ledger) snapshotLocked() Snapshot {
	snap := Snapshot{
		Symbol:   l.symbol,
		Supply:   l.supply.String(),
		Balances: make(map[string]string, len(l.balances)),
	}
	for addr, bal := range l.balances {
		if bal != nil && bal.Sign() != 0 {
			snap.Balances[addr.Hex()] = bal.String()
		}
	}
	return snap
}

// Snapshot captures the current ledger state.
func (l *Ledger) Snapshot() Snapshot {
	if l == nil {
		return Snapshot{}
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snapshotLocked()
}

// Restore replaces the ledger state with the snapshot's. Used once at boot,
// before traffic.
func (l *Ledger) Restore(snap Snapshot) error {
	if l == nil {
		return errors.New("token: ledger not configured")
	}
	balances := make(map[ethcommon.Address]*big.Int, len(snap.Balances))
	for addrHex, amount := range snap.Balances {
		if !ethcommon.IsHexAddress(addrHex) {
			return fmt.Errorf("token: restore %s: bad address %q", l.symbol, addrHex)
		}
		bal, ok := new(big.Int).SetString(amount, 10)
		if !ok || bal.Sign() < 0 {
			return fmt.Errorf("token: restore %s: bad balance %q", l.symbol, amount)
		}
		balances[ethcommon.HexToAddress(addrHex)] = bal
	}
	supply := big.NewInt(0)
	if snap.Supply != "" {
		parsed, ok := new(big.Int).SetString(snap.Supply, 10)
		if !ok || parsed.Sign() < 0 {
			return fmt.Errorf("token: restore %s: bad supply %q", l.symbol, snap.Supply)
		}
		supply = parsed
	}
	l.mu.Lock()
	l.balances = balances
	l.supply = supply
	l.mu.Unlock()
	return nil
}

// Symbol returns the token identifier.
func (l *Ledger) Symbol() string {
	if l == nil {
		return ""
	}
	return l.symbol
}

func (l *Ledger) balanceLocked(addr ethcommon.Address) *big.Int {
	if bal, ok := l.balances[addr]; ok && bal != nil {
		return bal
	}
	zero := big.NewInt(0)
	l.balances[addr] = zero
	return zero
}

// BalanceOf returns the holder's balance.
func (l *Ledger) BalanceOf(addr ethcommon.Address) *big.Int {
	if l == nil {
		return big.NewInt(0)
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	if bal, ok := l.balances[addr]; ok && bal != nil {
		return new(big.Int).Set(bal)
	}
	return big.NewInt(0)
}

// TotalSupply returns the outstanding supply.
func (l *Ledger) TotalSupply() *big.Int {
	if l == nil {
		return big.NewInt(0)
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return new(big.Int).Set(l.supply)
}

func validate(addr ethcommon.Address, amount *big.Int) error {
	if addr == (ethcommon.Address{}) {
		return ErrZeroAddress
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// Mint creates amount for the recipient and grows supply.
func (l *Ledger) Mint(to ethcommon.Address, amount *big.Int) error {
	if err := validate(to, amount); err != nil {
		return err
	}
	l.mu.Lock()
	bal := l.balanceLocked(to)
	l.balances[to] = new(big.Int).Add(bal, amount)
	l.supply = new(big.Int).Add(l.supply, amount)
	snap, hook := l.snapshotLocked(), l.onChange
	l.mu.Unlock()
	if hook != nil {
		hook(snap)
	}
	return nil
}

// Burn destroys amount held in custody and shrinks supply.
func (l *Ledger) Burn(amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	held := l.balanceLocked(l.custody)
	if held.Cmp(amount) < 0 {
		l.mu.Unlock()
		return fmt.Errorf("%w: custody holds %s, burning %s", ErrInsufficientFunds, held, amount)
	}
	l.balances[l.custody] = new(big.Int).Sub(held, amount)
	l.supply = new(big.Int).Sub(l.supply, amount)
	snap, hook := l.snapshotLocked(), l.onChange
	l.mu.Unlock()
	if hook != nil {
		hook(snap)
	}
	return nil
}

// Pull moves amount from the holder into custody.
func (l *Ledger) Pull(from ethcommon.Address, amount *big.Int) error {
	return l.transfer(from, l.custody, amount)
}

// Push releases amount from custody to the recipient.
func (l *Ledger) Push(to ethcommon.Address, amount *big.Int) error {
	return l.transfer(l.custody, to, amount)
}

func (l *Ledger) transfer(from, to ethcommon.Address, amount *big.Int) error {
	if l == nil {
		return errors.New("token: ledger not configured")
	}
	if err := validate(from, amount); err != nil {
		return err
	}
	if to == (ethcommon.Address{}) {
		return ErrZeroAddress
	}
	l.mu.Lock()
	src := l.balanceLocked(from)
	if src.Cmp(amount) < 0 {
		l.mu.Unlock()
		return fmt.Errorf("%w: %s holds %s, moving %s", ErrInsufficientFunds, from.Hex(), src, amount)
	}
	dst := l.balanceLocked(to)
	l.balances[from] = new(big.Int).Sub(src, amount)
	l.balances[to] = new(big.Int).Add(dst, amount)
	snap, hook := l.snapshotLocked(), l.onChange
	l.mu.Unlock()
	if hook != nil {
		hook(snap)
	}
	return nil
}
