package faults

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestCodeOf(t *testing.T) {
	txIdx := 3
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{"incomplete data", &IncompleteDataError{Slot: 10, Attempts: 3, Cause: errors.New("gone")}, CodeIncompleteData},
		{"ambiguous fork", &AmbiguousForkError{Weight: 4, Frontier: 12, Contender: 12}, CodeAmbiguousFork},
		{"divergence", &DivergenceError{Slot: 7, TxIndex: &txIdx}, CodeDiverged},
		{"execution fault", &ExecutionFaultError{Slot: 7, TxIndex: 1, Reason: "bad nonce"}, CodeExecutionFault},
		{"archival transport", &ArchivalTransportError{Op: "upload", Attempts: 3, Cause: errors.New("refused")}, CodeArchivalTransport},
		{"untyped", errors.New("plain"), Code("")},
		{"wrapped", fmt.Errorf("outer: %w", &DivergenceError{Slot: 9}), CodeDiverged},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CodeOf(tt.err); got != tt.want {
				t.Errorf("CodeOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPredicatesSeeThroughWrapping(t *testing.T) {
	incomplete := fmt.Errorf("run failed: %w", &IncompleteDataError{Slot: 42, Attempts: 3, Cause: errors.New("missing")})
	if !IsIncompleteData(incomplete) {
		t.Error("IsIncompleteData failed on wrapped error")
	}
	if IsDivergence(incomplete) {
		t.Error("IsDivergence matched an incomplete-data error")
	}

	diverged := fmt.Errorf("run failed: %w", &DivergenceError{Slot: 42})
	if !IsDivergence(diverged) {
		t.Error("IsDivergence failed on wrapped error")
	}
	if !IsAmbiguousFork(&AmbiguousForkError{}) {
		t.Error("IsAmbiguousFork failed on direct error")
	}
	if !IsArchivalTransport(&ArchivalTransportError{}) {
		t.Error("IsArchivalTransport failed on direct error")
	}
}

func TestErrorsRenderJSONWithCode(t *testing.T) {
	err := &DivergenceError{Slot: 103}
	msg := err.Error()
	if !strings.Contains(msg, string(CodeDiverged)) {
		t.Errorf("Expected error message to carry its code, got %s", msg)
	}
	if !strings.Contains(msg, "103") {
		t.Errorf("Expected error message to carry the slot, got %s", msg)
	}
}

func TestUnwrapExposesCause(t *testing.T) {
	cause := errors.New("disk read failed")
	err := &IncompleteDataError{Slot: 5, Attempts: 2, Cause: cause}
	if !errors.Is(err, cause) {
		t.Error("Expected errors.Is to reach the cause")
	}
}
