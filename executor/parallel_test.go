package executor

import (
	"reflect"
	"testing"

	"github.com/mezonai/mmn-replay/types"
)

func jobsFor(pairs ...[2]string) []txJob {
	jobs := make([]txJob, len(pairs))
	for i, p := range pairs {
		jobs[i] = txJob{Index: i, Tx: transferTx(p[0], p[1], 1, 1)}
	}
	return jobs
}

func TestGroupByDependencyLevelIndependentTxs(t *testing.T) {
	jobs := jobsFor([2]string{"a", "b"}, [2]string{"c", "d"}, [2]string{"e", "f"})
	levels := groupByDependencyLevel(buildDependencyGraph(jobs), len(jobs))

	if len(levels) != 1 {
		t.Fatalf("Independent transfers should form one level, got %d", len(levels))
	}
	if !reflect.DeepEqual(levels[0], []int{0, 1, 2}) {
		t.Errorf("Expected level [0 1 2], got %v", levels[0])
	}
}

func TestGroupByDependencyLevelSharedAccountsChain(t *testing.T) {
	// tx1 reuses a's sender slot, tx2 touches b which tx0 wrote.
	jobs := jobsFor([2]string{"a", "b"}, [2]string{"a", "c"}, [2]string{"b", "d"})
	levels := groupByDependencyLevel(buildDependencyGraph(jobs), len(jobs))

	if len(levels) != 2 {
		t.Fatalf("Expected 2 levels, got %d: %v", len(levels), levels)
	}
	if !reflect.DeepEqual(levels[0], []int{0}) {
		t.Errorf("Expected first level [0], got %v", levels[0])
	}
	if !reflect.DeepEqual(levels[1], []int{1, 2}) {
		t.Errorf("Expected second level [1 2], got %v", levels[1])
	}
}

func TestGroupByDependencyLevelPreservesDeclaredOrderWithinLevel(t *testing.T) {
	jobs := jobsFor([2]string{"x", "y"}, [2]string{"p", "q"}, [2]string{"x", "z"}, [2]string{"m", "n"})
	levels := groupByDependencyLevel(buildDependencyGraph(jobs), len(jobs))

	if !reflect.DeepEqual(levels[0], []int{0, 1, 3}) {
		t.Errorf("Expected level [0 1 3], got %v", levels[0])
	}
	if !reflect.DeepEqual(levels[1], []int{2}) {
		t.Errorf("Expected level [2], got %v", levels[1])
	}
}

func TestExecuteGroupOrdersResultsByIndex(t *testing.T) {
	jobs := jobsFor([2]string{"a", "b"}, [2]string{"c", "d"}, [2]string{"e", "f"}, [2]string{"g", "h"})
	readPrior := func(string) *types.Account { return nil }

	results := executeGroup([]int{0, 1, 2, 3}, jobs, readPrior, 2, 7, "hash")
	for i, res := range results {
		if res.Index != i {
			t.Fatalf("Result %d carries index %d, want %d", i, res.Index, i)
		}
	}
}
