package blocksource

import (
	"context"

	"github.com/mezonai/mmn-replay/block"
	"github.com/mezonai/mmn-replay/interfaces"
	"github.com/mezonai/mmn-replay/store"
)

// StoreSource serves blocks out of a local block store.
type StoreSource struct {
	store store.BlockStore
}

func NewStoreSource(bs store.BlockStore) *StoreSource {
	return &StoreSource{store: bs}
}

func (s *StoreSource) Block(ctx context.Context, ref block.Ref) (*block.Block, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.store.Block(ref.Slot, ref.Hash)
}

func (s *StoreSource) BlocksAtSlot(ctx context.Context, slot uint64) ([]*block.Block, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.store.BlocksAtSlot(slot)
}

// ChildrenOf resolves the block's entry-chain tail first: the store
// indexes children by the PrevHash they link with, which is the
// parent's last entry hash, not its content hash.
func (s *StoreSource) ChildrenOf(ctx context.Context, ref block.Ref) ([]block.Ref, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	blk, err := s.store.Block(ref.Slot, ref.Hash)
	if err != nil || blk == nil {
		return nil, err
	}
	return s.store.ChildrenOf(blk.LastEntryHash())
}

func (s *StoreSource) LatestSlot(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return s.store.LatestSlot(), nil
}

var _ interfaces.BlockSource = (*StoreSource)(nil)
