package storage

import (
	"encoding/json"
	"errors"
	"fmt"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"synthvault/native/synth"
	"synthvault/token"
)

var (
	positionPrefix = []byte("synth/position/")
	ledgerPrefix   = []byte("token/ledger/")
)

// State persists engine positions in a Database, one JSON document per
// account. It satisfies the engine's state contract.
type State struct {
	db Database
}

// NewState wraps the database.
func NewState(db Database) *State {
	return &State{db: db}
}

func positionKey(addr ethcommon.Address) []byte {
	key := make([]byte, 0, len(positionPrefix)+ethcommon.AddressLength)
	key = append(key, positionPrefix...)
	return append(key, addr.Bytes()...)
}

// GetPosition loads the account's position, nil when none was stored yet.
func (s *State) GetPosition(addr ethcommon.Address) (*synth.Position, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("storage: state not configured")
	}
	raw, err := s.db.Get(positionKey(addr))
	if errors.Is(err, ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage: load position %s: %w", addr.Hex(), err)
	}
	pos := &synth.Position{}
	if err := json.Unmarshal(raw, pos); err != nil {
		return nil, fmt.Errorf("storage: decode position %s: %w", addr.Hex(), err)
	}
	return pos, nil
}

// PutPosition stores the account's position.
func (s *State) PutPosition(addr ethcommon.Address, pos *synth.Position) error {
	if s == nil || s.db == nil {
		return errors.New("storage: state not configured")
	}
	if pos == nil {
		return errors.New("storage: nil position")
	}
	raw, err := json.Marshal(pos)
	if err != nil {
		return fmt.Errorf("storage: encode position %s: %w", addr.Hex(), err)
	}
	return s.db.Put(positionKey(addr), raw)
}

func ledgerKey(symbol string) []byte {
	key := make([]byte, 0, len(ledgerPrefix)+len(symbol))
	key = append(key, ledgerPrefix...)
	return append(key, symbol...)
}

// SaveLedger stores a token ledger snapshot under its symbol, so balances and
// supply survive a daemon restart alongside the positions they back.
func (s *State) SaveLedger(snap token.Snapshot) error {
	if s == nil || s.db == nil {
		return errors.New("storage: state not configured")
	}
	if snap.Symbol == "" {
		return errors.New("storage: ledger snapshot without symbol")
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("storage: encode ledger %s: %w", snap.Symbol, err)
	}
	return s.db.Put(ledgerKey(snap.Symbol), raw)
}

// LoadLedger returns the stored snapshot for the symbol; ok is false when
// none was saved yet.
func (s *State) LoadLedger(symbol string) (token.Snapshot, bool, error) {
	if s == nil || s.db == nil {
		return token.Snapshot{}, false, errors.New("storage: state not configured")
	}
	raw, err := s.db.Get(ledgerKey(symbol))
	if errors.Is(err, ErrKeyNotFound) {
		return token.Snapshot{}, false, nil
	}
	if err != nil {
		return token.Snapshot{}, false, fmt.Errorf("storage: load ledger %s: %w", symbol, err)
	}
	var snap token.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return token.Snapshot{}, false, fmt.Errorf("storage: decode ledger %s: %w", symbol, err)
	}
	return snap, true, nil
}
