package interfaces

import (
	"context"

	"github.com/mezonai/mmn-replay/block"
)

// BlockSource produces persisted blocks for replay. Implementations may read
// a local store or stream batches from a remote archive; either way fetches
// can block on I/O and honor the context.
type BlockSource interface {
	// Block returns the block for ref, or (nil, nil) when the source has no
	// block under that ref.
	Block(ctx context.Context, ref block.Ref) (*block.Block, error)

	// BlocksAtSlot returns every candidate block persisted for slot.
	BlocksAtSlot(ctx context.Context, slot uint64) ([]*block.Block, error)

	// ChildrenOf returns refs of blocks extending the given block.
	ChildrenOf(ctx context.Context, ref block.Ref) ([]block.Ref, error)

	// LatestSlot returns the highest slot the source knows about.
	LatestSlot(ctx context.Context) (uint64, error)
}
