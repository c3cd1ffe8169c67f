package report

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/mezonai/mmn-replay/jsonx"
)

// Status is the terminal state of a verification run.
type Status string

const (
	StatusSucceeded      Status = "succeeded"
	StatusDiverged       Status = "diverged"
	StatusIncompleteData Status = "incomplete_data"
	StatusAmbiguousFork  Status = "ambiguous_fork"
	StatusCancelled      Status = "cancelled"
	StatusFailed         Status = "failed"
)

// DivergenceDetail pins the first slot whose recomputed commitment
// disagreed with the stored one.
type DivergenceDetail struct {
	Slot     uint64 `json:"slot"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
	TxIndex  *int   `json:"tx_index,omitempty"`
}

// TxFault records one deterministic per-transaction failure observed
// during re-execution. Faults do not fail a run on their own.
type TxFault struct {
	Slot    uint64 `json:"slot"`
	TxIndex int    `json:"tx_index"`
	TxHash  string `json:"tx_hash"`
	Reason  string `json:"reason"`
}

// SlotTiming is a per-slot replay measurement.
type SlotTiming struct {
	Slot    uint64        `json:"slot"`
	TxCount int           `json:"tx_count"`
	Elapsed time.Duration `json:"elapsed"`
}

// VerificationReport is the single artifact a run produces.
type VerificationReport struct {
	RunID              string            `json:"run_id"`
	Status             Status            `json:"status"`
	StartSlot          uint64            `json:"start_slot"`
	TargetSlot         uint64            `json:"target_slot"`
	LastVerifiedSlot   uint64            `json:"last_verified_slot"`
	SlotsVerified      int               `json:"slots_verified"`
	SlotsSkipped       int               `json:"slots_skipped"`
	TxsReplayed        int               `json:"txs_replayed"`
	Divergence         *DivergenceDetail `json:"divergence,omitempty"`
	TxFaults           []TxFault         `json:"tx_faults,omitempty"`
	LastCheckpointSlot uint64            `json:"last_checkpoint_slot,omitempty"`
	CheckpointCount    int               `json:"checkpoint_count"`
	SlowestSlots       []SlotTiming      `json:"slowest_slots,omitempty"`
	StartedAt          time.Time         `json:"started_at"`
	FinishedAt         time.Time         `json:"finished_at"`
	Elapsed            time.Duration     `json:"elapsed"`
}

// JSON renders the report for files and API responses.
func (r *VerificationReport) JSON() ([]byte, error) {
	return jsonx.MarshalIndent(r, "", "  ")
}

// Summary is a one-line digest for log output.
func (r *VerificationReport) Summary() string {
	base := fmt.Sprintf("run=%s status=%s verified=%d skipped=%d txs=%d last_slot=%d elapsed=%s",
		r.RunID, r.Status, r.SlotsVerified, r.SlotsSkipped, r.TxsReplayed, r.LastVerifiedSlot, r.Elapsed)
	if r.Divergence != nil {
		if r.Divergence.TxIndex != nil {
			return fmt.Sprintf("%s divergence_slot=%d divergence_tx=%d", base, r.Divergence.Slot, *r.Divergence.TxIndex)
		}
		return fmt.Sprintf("%s divergence_slot=%d", base, r.Divergence.Slot)
	}
	return base
}

// HashHex formats a commitment for report fields.
func HashHex(h [32]byte) string {
	return hex.EncodeToString(h[:])
}
