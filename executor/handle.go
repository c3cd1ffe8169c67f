package executor

import (
	"sync/atomic"
)

// StateHandle is a versioned reference to the engine's materialized state
// after some slot. The orchestrator holds at most one live handle; applying a
// block supersedes the prior handle.
type StateHandle struct {
	slot     uint64
	bankHash [32]byte
	released atomic.Bool
}

func newHandle(slot uint64, bankHash [32]byte) *StateHandle {
	return &StateHandle{slot: slot, bankHash: bankHash}
}

func (h *StateHandle) Slot() uint64 {
	return h.slot
}

func (h *StateHandle) BankHash() [32]byte {
	return h.bankHash
}

// Release marks the handle unusable. Idempotent.
func (h *StateHandle) Release() {
	h.released.Store(true)
}

func (h *StateHandle) isReleased() bool {
	return h.released.Load()
}
