package replay

import (
	"fmt"
	"sync/atomic"

	"github.com/mezonai/mmn-replay/logx"
	"github.com/mezonai/mmn-replay/monitoring"
	"github.com/mezonai/mmn-replay/report"
)

// runState tracks where a verification run is in its lifecycle. The
// terminal states mirror the report statuses one-to-one.
type runState int32

const (
	stateIdle runState = iota
	stateLoadingCheckpoint
	stateReplaying
	stateSucceeded
	stateDiverged
	stateIncompleteData
	stateAmbiguousFork
	stateCancelled
	stateFailed
)

func (s runState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateLoadingCheckpoint:
		return "loading_checkpoint"
	case stateReplaying:
		return "replaying"
	case stateSucceeded:
		return "succeeded"
	case stateDiverged:
		return "diverged"
	case stateIncompleteData:
		return "incomplete_data"
	case stateAmbiguousFork:
		return "ambiguous_fork"
	case stateCancelled:
		return "cancelled"
	case stateFailed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", int32(s))
	}
}

func (s runState) terminal() bool {
	switch s {
	case stateSucceeded, stateDiverged, stateIncompleteData, stateAmbiguousFork, stateCancelled, stateFailed:
		return true
	default:
		return false
	}
}

func (s runState) reportStatus() report.Status {
	switch s {
	case stateSucceeded:
		return report.StatusSucceeded
	case stateDiverged:
		return report.StatusDiverged
	case stateIncompleteData:
		return report.StatusIncompleteData
	case stateAmbiguousFork:
		return report.StatusAmbiguousFork
	case stateCancelled:
		return report.StatusCancelled
	default:
		return report.StatusFailed
	}
}

func (s runState) outcome() monitoring.ReplayOutcome {
	return monitoring.ReplayOutcome(s.reportStatus())
}

// stateVar is an atomic run-state holder with transition logging.
type stateVar struct {
	v atomic.Int32
}

func (sv *stateVar) get() runState {
	return runState(sv.v.Load())
}

func (sv *stateVar) to(next runState) {
	prev := runState(sv.v.Swap(int32(next)))
	if prev != next {
		logx.Info("REPLAY", fmt.Sprintf("State %s -> %s", prev, next))
	}
}
