package common

import (
	"errors"
	"sync"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

var (
	ErrProtocolPaused = errors.New("protocol paused")
	ErrNotController  = errors.New("caller is not the protocol controller")
)

// PauseView exposes the process-wide pause switch consulted by every
// mutating entry point.
type PauseView interface {
	IsPaused() bool
}

// Guard rejects the operation when the protocol is paused. A nil view means
// no gate is configured and the operation proceeds.
func Guard(p PauseView) error {
	if p == nil {
		return nil
	}
	if p.IsPaused() {
		return ErrProtocolPaused
	}
	return nil
}

// ProtocolState holds the paused flag and the privileged controller identity.
// The controller is fixed at construction; only it may flip the switch. The
// state is passed explicitly into entry points so tests can construct
// isolated instances rather than sharing a hidden singleton.
type ProtocolState struct {
	mu         sync.RWMutex
	paused     bool
	controller ethcommon.Address
}

// NewProtocolState constructs an unpaused state owned by controller.
func NewProtocolState(controller ethcommon.Address) *ProtocolState {
	return &ProtocolState{controller: controller}
}

// Controller returns the privileged identity fixed at initialisation.
func (s *ProtocolState) Controller() ethcommon.Address {
	if s == nil {
		return ethcommon.Address{}
	}
	return s.controller
}

// IsPaused reports the current switch position.
func (s *ProtocolState) IsPaused() bool {
	if s == nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.paused
}

// SetPaused flips the switch. Callers other than the controller are rejected
// with ErrNotController.
func (s *ProtocolState) SetPaused(caller ethcommon.Address, paused bool) error {
	if s == nil {
		return errors.New("protocol state not configured")
	}
	if caller != s.controller {
		return ErrNotController
	}
	s.mu.Lock()
	s.paused = paused
	s.mu.Unlock()
	return nil
}
