package interfaces

import (
	"context"

	"github.com/mezonai/mmn-replay/block"
	"github.com/mezonai/mmn-replay/types"
)

// StateHandle is an opaque reference to a materialized post-slot state. The
// orchestrator owns at most one live handle; superseded handles are released.
type StateHandle interface {
	// Slot is the slot whose execution produced this state.
	Slot() uint64

	// BankHash is the commitment over this state.
	BankHash() [32]byte

	// Release frees resources tied to the handle. Idempotent.
	Release()
}

// StateTransition re-executes a block's transactions on top of a prior state
// and returns the successor handle plus the recomputed commitment. Individual
// transaction failures are reported through the metas, not the error; an
// error means the commitment could not be computed at all.
type StateTransition interface {
	Apply(ctx context.Context, prior StateHandle, blk *block.Block) (next StateHandle, commitment [32]byte, metas []*types.TransactionMeta, err error)
}
