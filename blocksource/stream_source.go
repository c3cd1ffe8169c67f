package blocksource

import (
	"context"
	"fmt"

	"github.com/mezonai/mmn-replay/block"
	"github.com/mezonai/mmn-replay/interfaces"
)

// StreamSource materializes a restored block stream into an in-memory index
// so archived history answers the same queries a local store does. Every
// admitted block is re-hashed; a restored range is never trusted blindly.
type StreamSource struct {
	blocks   map[block.Ref]*block.Block
	bySlot   map[uint64][]*block.Block
	children map[[32]byte][]block.Ref
	latest   uint64
}

// NewStreamSource drains the stream until the block channel closes, then
// consumes the terminal error if the stream produced one. Blocks arrive
// with whatever status the archive stored; they are admitted as confirmed
// so a replay run has to re-derive rootedness.
func NewStreamSource(ctx context.Context, blocks <-chan *block.Block, errc <-chan error) (*StreamSource, error) {
	s := &StreamSource{
		blocks:   make(map[block.Ref]*block.Block),
		bySlot:   make(map[uint64][]*block.Block),
		children: make(map[[32]byte][]block.Ref),
	}

	for blk := range blocks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !blk.VerifyHash() {
			return nil, fmt.Errorf("streamed block at slot %d does not match its hash", blk.Slot)
		}
		blk.Status = block.BlockConfirmed
		s.admit(blk)
	}
	if err := <-errc; err != nil {
		return nil, err
	}
	return s, nil
}

func (s *StreamSource) admit(blk *block.Block) {
	ref := block.Ref{Slot: blk.Slot, Hash: blk.Hash}
	if _, seen := s.blocks[ref]; seen {
		return
	}
	s.blocks[ref] = blk
	s.bySlot[blk.Slot] = append(s.bySlot[blk.Slot], blk)
	s.children[blk.PrevHash] = append(s.children[blk.PrevHash], ref)
	if blk.Slot > s.latest {
		s.latest = blk.Slot
	}
}

// NumBlocks reports how many distinct blocks the stream carried.
func (s *StreamSource) NumBlocks() int {
	return len(s.blocks)
}

func (s *StreamSource) Block(ctx context.Context, ref block.Ref) (*block.Block, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.blocks[ref], nil
}

func (s *StreamSource) BlocksAtSlot(ctx context.Context, slot uint64) ([]*block.Block, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.bySlot[slot], nil
}

// ChildrenOf keys on the block's entry-chain tail, the hash its
// children link with.
func (s *StreamSource) ChildrenOf(ctx context.Context, ref block.Ref) ([]block.Ref, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	blk := s.blocks[ref]
	if blk == nil {
		return nil, nil
	}
	return s.children[blk.LastEntryHash()], nil
}

func (s *StreamSource) LatestSlot(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return s.latest, nil
}

var _ interfaces.BlockSource = (*StreamSource)(nil)
