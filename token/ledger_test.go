package token

import (
	"errors"
	"math/big"
	"testing"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

var (
	custody = ethcommon.HexToAddress("0x0000000000000000000000000000000000000001")
	alice   = ethcommon.HexToAddress("0x00000000000000000000000000000000000000aa")
	bob     = ethcommon.HexToAddress("0x00000000000000000000000000000000000000bb")
)

func TestMintPullBurn(t *testing.T) {
	ledger := NewLedger("SUSD", custody)
	if err := ledger.Mint(alice, big.NewInt(500)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if got := ledger.TotalSupply(); got.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("supply after mint: %s", got)
	}
	if err := ledger.Pull(alice, big.NewInt(200)); err != nil {
		t.Fatalf("pull: %v", err)
	}
	if got := ledger.BalanceOf(alice); got.Cmp(big.NewInt(300)) != 0 {
		t.Fatalf("alice after pull: %s", got)
	}
	if err := ledger.Burn(big.NewInt(200)); err != nil {
		t.Fatalf("burn: %v", err)
	}
	if got := ledger.TotalSupply(); got.Cmp(big.NewInt(300)) != 0 {
		t.Fatalf("supply after burn: %s", got)
	}
}

func TestTransferInsufficientFunds(t *testing.T) {
	ledger := NewLedger("WETH", custody)
	if err := ledger.Pull(alice, big.NewInt(1)); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
}

func TestBurnBoundedByCustody(t *testing.T) {
	ledger := NewLedger("SUSD", custody)
	if err := ledger.Mint(alice, big.NewInt(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := ledger.Burn(big.NewInt(1)); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected custody bound, got %v", err)
	}
}

func TestPushReleasesCustody(t *testing.T) {
	ledger := NewLedger("WETH", custody)
	if err := ledger.Mint(custody, big.NewInt(10)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := ledger.Push(bob, big.NewInt(4)); err != nil {
		t.Fatalf("push: %v", err)
	}
	if got := ledger.BalanceOf(bob); got.Cmp(big.NewInt(4)) != 0 {
		t.Fatalf("bob balance: %s", got)
	}
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	ledger := NewLedger("SUSD", custody)
	if err := ledger.Mint(alice, big.NewInt(500)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := ledger.Pull(alice, big.NewInt(200)); err != nil {
		t.Fatalf("pull: %v", err)
	}
	snap := ledger.Snapshot()

	revived := NewLedger("SUSD", custody)
	if err := revived.Restore(snap); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if got := revived.BalanceOf(alice); got.Cmp(big.NewInt(300)) != 0 {
		t.Fatalf("alice after restore: %s", got)
	}
	if got := revived.BalanceOf(custody); got.Cmp(big.NewInt(200)) != 0 {
		t.Fatalf("custody after restore: %s", got)
	}
	if got := revived.TotalSupply(); got.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("supply after restore: %s", got)
	}
	// The revived ledger must accept further mutations against the
	// restored balances.
	if err := revived.Burn(big.NewInt(200)); err != nil {
		t.Fatalf("burn after restore: %v", err)
	}
}

func TestRestoreRejectsMalformedSnapshot(t *testing.T) {
	ledger := NewLedger("SUSD", custody)
	if err := ledger.Restore(Snapshot{Balances: map[string]string{"nonsense": "1"}}); err == nil {
		t.Fatal("bad address accepted")
	}
	if err := ledger.Restore(Snapshot{Balances: map[string]string{alice.Hex(): "-3"}}); err == nil {
		t.Fatal("negative balance accepted")
	}
	if err := ledger.Restore(Snapshot{Supply: "many"}); err == nil {
		t.Fatal("bad supply accepted")
	}
}

func TestOnChangeObservesEveryMutation(t *testing.T) {
	ledger := NewLedger("SUSD", custody)
	var seen []Snapshot
	ledger.SetOnChange(func(snap Snapshot) { seen = append(seen, snap) })

	if err := ledger.Mint(alice, big.NewInt(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := ledger.Pull(alice, big.NewInt(40)); err != nil {
		t.Fatalf("pull: %v", err)
	}
	if err := ledger.Burn(big.NewInt(40)); err != nil {
		t.Fatalf("burn: %v", err)
	}
	// A rejected mutation must not fire the hook.
	if err := ledger.Burn(big.NewInt(1_000)); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}

	if len(seen) != 3 {
		t.Fatalf("expected 3 snapshots, got %d", len(seen))
	}
	last := seen[len(seen)-1]
	if last.Supply != "60" {
		t.Fatalf("final snapshot supply %q", last.Supply)
	}
	if last.Balances[alice.Hex()] != "60" {
		t.Fatalf("final snapshot alice %q", last.Balances[alice.Hex()])
	}
	if _, ok := last.Balances[custody.Hex()]; ok {
		t.Fatalf("zero custody balance serialized: %v", last.Balances)
	}
}

func TestValidation(t *testing.T) {
	ledger := NewLedger("SUSD", custody)
	if err := ledger.Mint(ethcommon.Address{}, big.NewInt(1)); !errors.Is(err, ErrZeroAddress) {
		t.Fatalf("expected zero address, got %v", err)
	}
	if err := ledger.Mint(alice, big.NewInt(0)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
}
