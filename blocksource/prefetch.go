package blocksource

import (
	"context"
	"fmt"
	"sync"

	"github.com/mezonai/mmn-replay/block"
	"github.com/mezonai/mmn-replay/exception"
	"github.com/mezonai/mmn-replay/interfaces"
	"github.com/mezonai/mmn-replay/logx"
)

// PrefetchSource overlaps block fetches with verification of the
// preceding slot. Prefetch warms a block in the background; a later
// Block call for the same ref consumes the warmed copy instead of
// touching the underlying source again. Failed prefetches are dropped
// so the synchronous path surfaces the error.
type PrefetchSource struct {
	src interfaces.BlockSource

	mu       sync.Mutex
	ready    map[block.Ref]*block.Block
	inflight map[block.Ref]chan struct{}
}

func NewPrefetchSource(src interfaces.BlockSource) *PrefetchSource {
	return &PrefetchSource{
		src:      src,
		ready:    make(map[block.Ref]*block.Block),
		inflight: make(map[block.Ref]chan struct{}),
	}
}

// Prefetch starts a background fetch for ref unless one is already
// warmed or in flight.
func (p *PrefetchSource) Prefetch(ctx context.Context, ref block.Ref) {
	p.mu.Lock()
	if _, ok := p.ready[ref]; ok {
		p.mu.Unlock()
		return
	}
	if _, ok := p.inflight[ref]; ok {
		p.mu.Unlock()
		return
	}
	done := make(chan struct{})
	p.inflight[ref] = done
	p.mu.Unlock()

	exception.SafeGo("block_prefetch", func() {
		blk, err := p.src.Block(ctx, ref)
		p.mu.Lock()
		delete(p.inflight, ref)
		if err == nil && blk != nil {
			p.ready[ref] = blk
		}
		p.mu.Unlock()
		close(done)
		if err != nil && ctx.Err() == nil {
			logx.Warn("PREFETCH", fmt.Sprintf("Prefetch of slot %d (%x) failed: %v", ref.Slot, ref.Hash[:4], err))
		}
	})
}

// Block returns the warmed copy when one exists, waiting for an
// in-flight prefetch of the same ref rather than fetching twice.
func (p *PrefetchSource) Block(ctx context.Context, ref block.Ref) (*block.Block, error) {
	for {
		p.mu.Lock()
		if blk, ok := p.ready[ref]; ok {
			delete(p.ready, ref)
			p.mu.Unlock()
			return blk, nil
		}
		done, ok := p.inflight[ref]
		p.mu.Unlock()
		if !ok {
			return p.src.Block(ctx, ref)
		}
		select {
		case <-done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (p *PrefetchSource) BlocksAtSlot(ctx context.Context, slot uint64) ([]*block.Block, error) {
	return p.src.BlocksAtSlot(ctx, slot)
}

func (p *PrefetchSource) ChildrenOf(ctx context.Context, ref block.Ref) ([]block.Ref, error) {
	return p.src.ChildrenOf(ctx, ref)
}

func (p *PrefetchSource) LatestSlot(ctx context.Context) (uint64, error) {
	return p.src.LatestSlot(ctx)
}

var _ interfaces.BlockSource = (*PrefetchSource)(nil)
