package oracle

import (
	"errors"
	"math/big"
	"testing"
	"time"
)

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func TestPriceNormalisesToCanonical(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	source := NewManualSource()
	// $2000.00000000 reported with 8 decimals.
	source.Set("WETH", big.NewInt(200_000_000_000), 8, now)

	adapter := NewAdapter(source, 0)
	adapter.SetClock(fixedClock(now))

	quote, err := adapter.Price("weth")
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	want, _ := new(big.Int).SetString("2000000000000000000000", 10) // 2000e18
	if quote.Price.Cmp(want) != 0 {
		t.Fatalf("unexpected canonical price: %s", quote.Price)
	}
	if quote.SourceDecimals != 8 {
		t.Fatalf("unexpected source decimals: %d", quote.SourceDecimals)
	}
}

func TestPriceStalenessBoundary(t *testing.T) {
	observed := time.Unix(1_700_000_000, 0)
	source := NewManualSource()
	source.Set("WETH", big.NewInt(100_000_000_000), 8, observed)

	adapter := NewAdapter(source, DefaultStalenessWindow)

	// Exactly at the window the quote is still accepted.
	adapter.SetClock(fixedClock(observed.Add(DefaultStalenessWindow)))
	if _, err := adapter.Price("WETH"); err != nil {
		t.Fatalf("quote at window boundary rejected: %v", err)
	}

	// One second past the window it must be rejected.
	adapter.SetClock(fixedClock(observed.Add(DefaultStalenessWindow + time.Second)))
	if _, err := adapter.Price("WETH"); !errors.Is(err, ErrStalePrice) {
		t.Fatalf("expected stale price, got %v", err)
	}
}

func TestPriceRejectsNonPositive(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	source := NewManualSource()
	source.SetSample("WBTC", Sample{Price: big.NewInt(0), Decimals: 8, Timestamp: now})

	adapter := NewAdapter(source, 0)
	adapter.SetClock(fixedClock(now))
	if _, err := adapter.Price("WBTC"); !errors.Is(err, ErrInvalidPrice) {
		t.Fatalf("expected invalid price, got %v", err)
	}
}

func TestPriceUnavailable(t *testing.T) {
	adapter := NewAdapter(NewManualSource(), 0)
	if _, err := adapter.Price("WETH"); !errors.Is(err, ErrPriceUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
}

func TestPriceRoundMonotonicity(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	source := NewManualSource()
	source.SetSample("WETH", Sample{
		Price:           big.NewInt(100_000_000_000),
		Decimals:        8,
		Timestamp:       now,
		RoundID:         7,
		AnsweredInRound: 6,
	})

	adapter := NewAdapter(source, 0)
	adapter.SetClock(fixedClock(now))
	if _, err := adapter.Price("WETH"); !errors.Is(err, ErrStaleRound) {
		t.Fatalf("expected stale round, got %v", err)
	}
}
