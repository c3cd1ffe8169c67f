package forkchoice

import (
	"fmt"

	"github.com/mezonai/mmn-replay/block"
	"github.com/mezonai/mmn-replay/faults"
	"github.com/mezonai/mmn-replay/logx"
)

// PathStep is one slot along a selected fork path. A skipped slot carries no
// ref: replay treats it as a no-op.
type PathStep struct {
	Slot    uint64
	Ref     *block.Ref
	Skipped bool
}

// ForkPath is the chosen root-to-frontier walk.
type ForkPath struct {
	Root      block.Ref
	Steps     []PathStep
	Truncated bool
}

// Frontier returns the last non-skipped slot of the path.
func (p ForkPath) Frontier() uint64 {
	for i := len(p.Steps) - 1; i >= 0; i-- {
		if !p.Steps[i].Skipped {
			return p.Steps[i].Slot
		}
	}
	return p.Root.Slot
}

// NumBlocks counts block-bearing steps.
func (p ForkPath) NumBlocks() int {
	n := 0
	for _, step := range p.Steps {
		if !step.Skipped {
			n++
		}
	}
	return n
}

func statusWeight(s block.BlockStatus) uint64 {
	switch s {
	case block.BlockRooted:
		return 3
	case block.BlockConfirmed:
		return 2
	default:
		return 0
	}
}

// SelectPath picks the leaf with the highest cumulative confirmation weight,
// breaking ties toward the higher frontier slot. Two leaves tied on both are
// indistinguishable and escalate instead of being guessed at.
func SelectPath(tree *Tree) (ForkPath, error) {
	if tree == nil || len(tree.nodes) == 0 {
		return ForkPath{}, fmt.Errorf("empty fork tree")
	}

	weights := make([]uint64, len(tree.nodes))
	weights[0] = statusWeight(tree.nodes[0].status)
	for i := 1; i < len(tree.nodes); i++ {
		weights[i] = weights[tree.nodes[i].parent] + statusWeight(tree.nodes[i].status)
	}

	best := -1
	ambiguousWith := -1
	for i, n := range tree.nodes {
		if n.children > 0 {
			continue
		}
		if best == -1 {
			best = i
			continue
		}
		switch {
		case weights[i] > weights[best]:
			best = i
			ambiguousWith = -1
		case weights[i] == weights[best] && tree.nodes[i].ref.Slot > tree.nodes[best].ref.Slot:
			best = i
			ambiguousWith = -1
		case weights[i] == weights[best] && tree.nodes[i].ref.Slot == tree.nodes[best].ref.Slot:
			ambiguousWith = i
		}
	}

	if ambiguousWith != -1 {
		return ForkPath{}, &faults.AmbiguousForkError{
			Weight:    weights[best],
			Frontier:  tree.nodes[best].ref.Slot,
			Contender: tree.nodes[ambiguousWith].ref.Slot,
		}
	}

	// Walk leaf to root, then reverse into forward order with skip steps.
	var chain []int
	for idx := best; idx != -1; idx = tree.nodes[idx].parent {
		chain = append(chain, idx)
	}

	path := ForkPath{
		Root:      tree.nodes[0].ref,
		Truncated: tree.truncated,
	}
	for i := len(chain) - 1; i >= 0; i-- {
		n := tree.nodes[chain[i]]
		if i < len(chain)-1 {
			prevSlot := tree.nodes[chain[i+1]].ref.Slot
			for skipped := prevSlot + 1; skipped < n.ref.Slot; skipped++ {
				path.Steps = append(path.Steps, PathStep{Slot: skipped, Skipped: true})
			}
		}
		ref := n.ref
		path.Steps = append(path.Steps, PathStep{Slot: ref.Slot, Ref: &ref})
	}

	if path.Truncated {
		logx.Warn("FORKCHOICE", fmt.Sprintf("Selected path ends at slot %d after dead-block truncation", path.Frontier()))
	}
	return path, nil
}
