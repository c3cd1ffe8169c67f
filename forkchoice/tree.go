package forkchoice

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/mezonai/mmn-replay/block"
	"github.com/mezonai/mmn-replay/faults"
	"github.com/mezonai/mmn-replay/interfaces"
	"github.com/mezonai/mmn-replay/logx"
)

// node is one arena entry. Parent links are arena indices, not pointers, so
// the tree stays compact and trivially serializable.
type node struct {
	ref      block.Ref
	parent   int
	status   block.BlockStatus
	children int
}

// Tree is the confirmed fork tree reachable from a root block. Blocks below
// confirmed status never enter the arena: a pending child cuts its subtree
// out of candidate paths, a dead child additionally marks the tree truncated.
type Tree struct {
	nodes     []node
	truncated bool
}

// NumNodes reports the arena size including the root.
func (t *Tree) NumNodes() int {
	return len(t.nodes)
}

// Truncated reports whether a dead block was cut during the walk.
func (t *Tree) Truncated() bool {
	return t.truncated
}

// BuildTree walks children links from root breadth-first. A missing root or a
// linked-but-absent child is incomplete ledger data, never a guess.
func BuildTree(ctx context.Context, src interfaces.BlockSource, root block.Ref, frontier uint64) (*Tree, error) {
	rootBlk, err := src.Block(ctx, root)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to fetch root block %d", root.Slot)
	}
	if rootBlk == nil {
		return nil, &faults.IncompleteDataError{Slot: root.Slot, Attempts: 1, Cause: fmt.Errorf("root block not found")}
	}

	tree := &Tree{
		nodes: []node{{ref: root, parent: -1, status: rootBlk.Status}},
	}
	seen := map[[32]byte]struct{}{root.Hash: {}}

	queue := []int{0}
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		idx := queue[0]
		queue = queue[1:]

		refs, err := src.ChildrenOf(ctx, tree.nodes[idx].ref)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to list children of slot %d", tree.nodes[idx].ref.Slot)
		}

		for _, ref := range refs {
			if frontier > 0 && ref.Slot > frontier {
				continue
			}
			if _, ok := seen[ref.Hash]; ok {
				logx.Warn("FORKCHOICE", fmt.Sprintf("Duplicate block link at slot %d ignored", ref.Slot))
				continue
			}

			blk, err := src.Block(ctx, ref)
			if err != nil {
				return nil, errors.Wrapf(err, "failed to fetch block %d", ref.Slot)
			}
			if blk == nil {
				return nil, &faults.IncompleteDataError{Slot: ref.Slot, Attempts: 1, Cause: fmt.Errorf("linked block not found")}
			}

			switch blk.Status {
			case block.BlockDead:
				tree.truncated = true
				logx.Warn("FORKCHOICE", fmt.Sprintf("Dead block at slot %d, truncating at slot %d", ref.Slot, tree.nodes[idx].ref.Slot))
				continue
			case block.BlockPending:
				continue
			}

			seen[ref.Hash] = struct{}{}
			tree.nodes = append(tree.nodes, node{ref: ref, parent: idx, status: blk.Status})
			tree.nodes[idx].children++
			queue = append(queue, len(tree.nodes)-1)
		}
	}

	return tree, nil
}
