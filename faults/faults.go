package faults

import (
	"errors"
	"fmt"

	"github.com/mezonai/mmn-replay/jsonx"
)

// Code classifies replay faults. Each class is reported differently: some are
// fatal to the run, some are recorded and skipped.
type Code string

const (
	CodeIncompleteData    Code = "incomplete_data"
	CodeAmbiguousFork     Code = "ambiguous_fork"
	CodeDiverged          Code = "diverged"
	CodeExecutionFault    Code = "execution_fault"
	CodeArchivalTransport Code = "archival_transport_fault"
)

type payload struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

func render(code Code, message string) string {
	out, _ := jsonx.Marshal(payload{Code: code, Message: message})
	return string(out)
}

// IncompleteDataError is raised when a required block cannot be produced by
// the block source after bounded retries. Fatal to the run and distinct from
// a commitment divergence.
type IncompleteDataError struct {
	Slot     uint64
	Attempts int
	Cause    error
}

func (e *IncompleteDataError) Error() string {
	return render(CodeIncompleteData, fmt.Sprintf("slot %d unavailable after %d attempts: %v", e.Slot, e.Attempts, e.Cause))
}

func (e *IncompleteDataError) Unwrap() error { return e.Cause }

// AmbiguousForkError is raised when two fork paths tie on confirmation weight
// and frontier slot. The engine never picks one silently.
type AmbiguousForkError struct {
	Weight    uint64
	Frontier  uint64
	Contender uint64
}

func (e *AmbiguousForkError) Error() string {
	return render(CodeAmbiguousFork, fmt.Sprintf("fork tie at weight %d: leaves %d and %d are indistinguishable", e.Weight, e.Frontier, e.Contender))
}

// DivergenceError is raised when a recomputed bank hash disagrees with the
// block's claimed one. TxIndex is set when the failure is isolable to a
// single transaction.
type DivergenceError struct {
	Slot     uint64
	Expected [32]byte
	Actual   [32]byte
	TxIndex  *int
}

func (e *DivergenceError) Error() string {
	loc := ""
	if e.TxIndex != nil {
		loc = fmt.Sprintf(" tx=%d", *e.TxIndex)
	}
	return render(CodeDiverged, fmt.Sprintf("slot %d%s: computed=%x claimed=%x", e.Slot, loc, e.Expected, e.Actual))
}

// ExecutionFaultError records a transaction that failed inside the transition
// engine. Not fatal on its own.
type ExecutionFaultError struct {
	Slot    uint64
	TxIndex int
	TxHash  string
	Reason  string
}

func (e *ExecutionFaultError) Error() string {
	return render(CodeExecutionFault, fmt.Sprintf("slot %d tx=%d hash=%s: %s", e.Slot, e.TxIndex, e.TxHash, e.Reason))
}

// ArchivalTransportError wraps a failed archive upload or download. Carries
// enough context for the caller to retry the affected batch.
type ArchivalTransportError struct {
	Op       string
	FromSlot uint64
	ToSlot   uint64
	Attempts int
	Cause    error
}

func (e *ArchivalTransportError) Error() string {
	return render(CodeArchivalTransport, fmt.Sprintf("%s slots [%d,%d] failed after %d attempts: %v", e.Op, e.FromSlot, e.ToSlot, e.Attempts, e.Cause))
}

func (e *ArchivalTransportError) Unwrap() error { return e.Cause }

// CodeOf maps an error chain to its fault class, or "" for untyped errors.
func CodeOf(err error) Code {
	var incomplete *IncompleteDataError
	var ambiguous *AmbiguousForkError
	var diverged *DivergenceError
	var execFault *ExecutionFaultError
	var transport *ArchivalTransportError
	switch {
	case errors.As(err, &incomplete):
		return CodeIncompleteData
	case errors.As(err, &ambiguous):
		return CodeAmbiguousFork
	case errors.As(err, &diverged):
		return CodeDiverged
	case errors.As(err, &execFault):
		return CodeExecutionFault
	case errors.As(err, &transport):
		return CodeArchivalTransport
	default:
		return ""
	}
}

func IsIncompleteData(err error) bool {
	var target *IncompleteDataError
	return errors.As(err, &target)
}

func IsAmbiguousFork(err error) bool {
	var target *AmbiguousForkError
	return errors.As(err, &target)
}

func IsDivergence(err error) bool {
	var target *DivergenceError
	return errors.As(err, &target)
}

func IsArchivalTransport(err error) bool {
	var target *ArchivalTransportError
	return errors.As(err, &target)
}
