package events

import (
	"time"
)

// EventType is an enum-like string type for replay progress events
type EventType string

const (
	EventRunStarted      EventType = "RunStarted"
	EventSlotVerified    EventType = "SlotVerified"
	EventSlotSkipped     EventType = "SlotSkipped"
	EventDivergenceFound EventType = "DivergenceFound"
	EventExecutionFault  EventType = "ExecutionFault"
	EventCheckpointSaved EventType = "CheckpointSaved"
	EventRunFinished     EventType = "RunFinished"
)

// ReplayEvent represents any event emitted while a run walks the chain
type ReplayEvent interface {
	Type() EventType
	Timestamp() time.Time
	Slot() uint64
}

// RunStarted event when a verification run begins
type RunStarted struct {
	runID      string
	startSlot  uint64
	targetSlot uint64
	timestamp  time.Time
}

func NewRunStarted(runID string, startSlot, targetSlot uint64) *RunStarted {
	return &RunStarted{
		runID:      runID,
		startSlot:  startSlot,
		targetSlot: targetSlot,
		timestamp:  time.Now(),
	}
}

func (e *RunStarted) Type() EventType {
	return EventRunStarted
}

func (e *RunStarted) Timestamp() time.Time {
	return e.timestamp
}

func (e *RunStarted) Slot() uint64 {
	return e.startSlot
}

func (e *RunStarted) RunID() string {
	return e.runID
}

func (e *RunStarted) TargetSlot() uint64 {
	return e.targetSlot
}

// SlotVerified event when a slot's recomputed commitment matched
type SlotVerified struct {
	slot      uint64
	bankHash  [32]byte
	txCount   int
	elapsed   time.Duration
	timestamp time.Time
}

func NewSlotVerified(slot uint64, bankHash [32]byte, txCount int, elapsed time.Duration) *SlotVerified {
	return &SlotVerified{
		slot:      slot,
		bankHash:  bankHash,
		txCount:   txCount,
		elapsed:   elapsed,
		timestamp: time.Now(),
	}
}

func (e *SlotVerified) Type() EventType {
	return EventSlotVerified
}

func (e *SlotVerified) Timestamp() time.Time {
	return e.timestamp
}

func (e *SlotVerified) Slot() uint64 {
	return e.slot
}

func (e *SlotVerified) BankHash() [32]byte {
	return e.bankHash
}

func (e *SlotVerified) TxCount() int {
	return e.txCount
}

func (e *SlotVerified) Elapsed() time.Duration {
	return e.elapsed
}

// SlotSkipped event when the selected path has no block for a slot
type SlotSkipped struct {
	slot      uint64
	timestamp time.Time
}

func NewSlotSkipped(slot uint64) *SlotSkipped {
	return &SlotSkipped{slot: slot, timestamp: time.Now()}
}

func (e *SlotSkipped) Type() EventType {
	return EventSlotSkipped
}

func (e *SlotSkipped) Timestamp() time.Time {
	return e.timestamp
}

func (e *SlotSkipped) Slot() uint64 {
	return e.slot
}

// DivergenceFound event when a recomputed commitment disagreed with
// the stored one
type DivergenceFound struct {
	slot      uint64
	expected  [32]byte
	actual    [32]byte
	txIndex   *int
	timestamp time.Time
}

func NewDivergenceFound(slot uint64, expected, actual [32]byte, txIndex *int) *DivergenceFound {
	return &DivergenceFound{
		slot:      slot,
		expected:  expected,
		actual:    actual,
		txIndex:   txIndex,
		timestamp: time.Now(),
	}
}

func (e *DivergenceFound) Type() EventType {
	return EventDivergenceFound
}

func (e *DivergenceFound) Timestamp() time.Time {
	return e.timestamp
}

func (e *DivergenceFound) Slot() uint64 {
	return e.slot
}

func (e *DivergenceFound) Expected() [32]byte {
	return e.expected
}

func (e *DivergenceFound) Actual() [32]byte {
	return e.actual
}

// TxIndex returns the offending transaction index when the divergence
// was localized, nil otherwise.
func (e *DivergenceFound) TxIndex() *int {
	return e.txIndex
}

// ExecutionFault event when a transaction failed deterministically
// during re-execution
type ExecutionFault struct {
	slot      uint64
	txIndex   int
	txHash    string
	reason    string
	timestamp time.Time
}

func NewExecutionFault(slot uint64, txIndex int, txHash, reason string) *ExecutionFault {
	return &ExecutionFault{
		slot:      slot,
		txIndex:   txIndex,
		txHash:    txHash,
		reason:    reason,
		timestamp: time.Now(),
	}
}

func (e *ExecutionFault) Type() EventType {
	return EventExecutionFault
}

func (e *ExecutionFault) Timestamp() time.Time {
	return e.timestamp
}

func (e *ExecutionFault) Slot() uint64 {
	return e.slot
}

func (e *ExecutionFault) TxIndex() int {
	return e.txIndex
}

func (e *ExecutionFault) TxHash() string {
	return e.txHash
}

func (e *ExecutionFault) Reason() string {
	return e.reason
}

// CheckpointSaved event when a checkpoint record and snapshot landed
type CheckpointSaved struct {
	slot      uint64
	path      string
	kind      string
	timestamp time.Time
}

func NewCheckpointSaved(slot uint64, path, kind string) *CheckpointSaved {
	return &CheckpointSaved{
		slot:      slot,
		path:      path,
		kind:      kind,
		timestamp: time.Now(),
	}
}

func (e *CheckpointSaved) Type() EventType {
	return EventCheckpointSaved
}

func (e *CheckpointSaved) Timestamp() time.Time {
	return e.timestamp
}

func (e *CheckpointSaved) Slot() uint64 {
	return e.slot
}

func (e *CheckpointSaved) Path() string {
	return e.path
}

func (e *CheckpointSaved) Kind() string {
	return e.kind
}

// RunFinished event when a verification run reaches a terminal state
type RunFinished struct {
	runID        string
	status       string
	lastVerified uint64
	elapsed      time.Duration
	timestamp    time.Time
}

func NewRunFinished(runID, status string, lastVerified uint64, elapsed time.Duration) *RunFinished {
	return &RunFinished{
		runID:        runID,
		status:       status,
		lastVerified: lastVerified,
		elapsed:      elapsed,
		timestamp:    time.Now(),
	}
}

func (e *RunFinished) Type() EventType {
	return EventRunFinished
}

func (e *RunFinished) Timestamp() time.Time {
	return e.timestamp
}

func (e *RunFinished) Slot() uint64 {
	return e.lastVerified
}

func (e *RunFinished) RunID() string {
	return e.runID
}

func (e *RunFinished) Status() string {
	return e.status
}

func (e *RunFinished) Elapsed() time.Duration {
	return e.elapsed
}
