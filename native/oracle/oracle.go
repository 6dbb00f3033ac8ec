package oracle

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"synthvault/native/fixedpoint"
)

// DefaultStalenessWindow bounds the accepted age of a price sample when the
// adapter is not configured explicitly.
const DefaultStalenessWindow = 3 * time.Hour

var (
	ErrPriceUnavailable = errors.New("oracle: no quote available")
	ErrStalePrice       = errors.New("oracle: quote outside staleness window")
	ErrInvalidPrice     = errors.New("oracle: quote price must be positive")
	ErrStaleRound       = errors.New("oracle: quote completed out of sequence")
)

// Sample is the raw observation reported by an upstream price source. Round
// identifiers are zero for sources without a sequence concept.
type Sample struct {
	Price           *big.Int
	Decimals        uint8
	Timestamp       time.Time
	RoundID         uint64
	AnsweredInRound uint64
}

// Quote is a validated, canonical-precision price. It is transient: callers
// fetch a fresh quote per operation and never persist one.
type Quote struct {
	// Price is USD per whole asset unit, wad scaled.
	Price *big.Int
	// SourceDecimals is the precision the upstream source reported in.
	SourceDecimals uint8
	Timestamp      time.Time
}

// PriceSource resolves the latest observation for an asset symbol.
type PriceSource interface {
	Latest(symbol string) (Sample, error)
}

// Adapter wraps a single price source and enforces freshness, sanity and
// sequence monotonicity before normalising the price to canonical precision.
// There is deliberately no fallback source: the engine halts rather than act
// on a quote of unknown trust.
type Adapter struct {
	source PriceSource
	maxAge time.Duration
	now    func() time.Time
}

// NewAdapter wraps the provided source. A non-positive maxAge selects the
// default staleness window.
func NewAdapter(source PriceSource, maxAge time.Duration) *Adapter {
	if maxAge <= 0 {
		maxAge = DefaultStalenessWindow
	}
	return &Adapter{source: source, maxAge: maxAge, now: time.Now}
}

// SetClock overrides the wall clock used for staleness checks. Tests use it
// to pin quote ages exactly.
func (a *Adapter) SetClock(now func() time.Time) {
	if a == nil || now == nil {
		return
	}
	a.now = now
}

// Price returns a validated canonical-precision quote for the symbol.
func (a *Adapter) Price(symbol string) (Quote, error) {
	if a == nil || a.source == nil {
		return Quote{}, ErrPriceUnavailable
	}
	sym := normaliseSymbol(symbol)
	if sym == "" {
		return Quote{}, fmt.Errorf("oracle: symbol required: %w", ErrPriceUnavailable)
	}
	sample, err := a.source.Latest(sym)
	if err != nil {
		return Quote{}, fmt.Errorf("%w: %s: %v", ErrPriceUnavailable, sym, err)
	}
	if sample.Price == nil || sample.Price.Sign() <= 0 {
		return Quote{}, fmt.Errorf("%w: %s", ErrInvalidPrice, sym)
	}
	if sample.RoundID > 0 && sample.AnsweredInRound < sample.RoundID {
		return Quote{}, fmt.Errorf("%w: %s: answered %d < round %d", ErrStaleRound, sym, sample.AnsweredInRound, sample.RoundID)
	}
	age := a.now().Sub(sample.Timestamp)
	if age > a.maxAge {
		return Quote{}, fmt.Errorf("%w: %s: age %s exceeds %s", ErrStalePrice, sym, age, a.maxAge)
	}
	canonical, err := fixedpoint.ToCanonical(sample.Price, sample.Decimals)
	if err != nil {
		return Quote{}, fmt.Errorf("%w: %s: %v", ErrInvalidPrice, sym, err)
	}
	return Quote{
		Price:          canonical,
		SourceDecimals: sample.Decimals,
		Timestamp:      sample.Timestamp,
	}, nil
}

// StalenessWindow reports the configured freshness bound.
func (a *Adapter) StalenessWindow() time.Duration {
	if a == nil {
		return 0
	}
	return a.maxAge
}

func normaliseSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// ManualSource is an in-memory price source used by tests and for manual
// overrides during incident response. Each Set advances the round sequence.
type ManualSource struct {
	mu      sync.RWMutex
	samples map[string]Sample
}

// NewManualSource constructs an empty manual source.
func NewManualSource() *ManualSource {
	return &ManualSource{samples: make(map[string]Sample)}
}

// Set stores a sample for the symbol, assigning the next round identifier.
func (m *ManualSource) Set(symbol string, price *big.Int, decimals uint8, ts time.Time) {
	if m == nil || price == nil {
		return
	}
	sym := normaliseSymbol(symbol)
	if sym == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	round := m.samples[sym].RoundID + 1
	m.samples[sym] = Sample{
		Price:           new(big.Int).Set(price),
		Decimals:        decimals,
		Timestamp:       ts,
		RoundID:         round,
		AnsweredInRound: round,
	}
}

// SetSample stores a raw sample verbatim, including its round identifiers.
func (m *ManualSource) SetSample(symbol string, sample Sample) {
	if m == nil {
		return
	}
	sym := normaliseSymbol(symbol)
	if sym == "" {
		return
	}
	if sample.Price != nil {
		sample.Price = new(big.Int).Set(sample.Price)
	}
	m.mu.Lock()
	m.samples[sym] = sample
	m.mu.Unlock()
}

// Latest returns the stored sample for the symbol.
func (m *ManualSource) Latest(symbol string) (Sample, error) {
	if m == nil {
		return Sample{}, fmt.Errorf("manual source not configured")
	}
	m.mu.RLock()
	sample, ok := m.samples[normaliseSymbol(symbol)]
	m.mu.RUnlock()
	if !ok {
		return Sample{}, fmt.Errorf("no sample for %s", symbol)
	}
	if sample.Price != nil {
		sample.Price = new(big.Int).Set(sample.Price)
	}
	return sample, nil
}
