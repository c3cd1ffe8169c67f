package blocksource

import (
	"context"
	"crypto/sha256"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mezonai/mmn-replay/block"
)

// countingSource records fetch traffic and can stall fetches to make
// in-flight windows observable.
type countingSource struct {
	mu     sync.Mutex
	blocks map[block.Ref]*block.Block
	calls  int64
	gate   chan struct{}
}

func newCountingSource() *countingSource {
	return &countingSource{blocks: make(map[block.Ref]*block.Block)}
}

func (s *countingSource) add(slot uint64) block.Ref {
	prev := sha256.Sum256([]byte{byte(slot)})
	blk := block.AssembleBlock(slot, slot-1, prev, "leader", nil)
	ref := block.Ref{Slot: slot, Hash: blk.Hash}
	s.mu.Lock()
	s.blocks[ref] = blk
	s.mu.Unlock()
	return ref
}

func (s *countingSource) Block(ctx context.Context, ref block.Ref) (*block.Block, error) {
	atomic.AddInt64(&s.calls, 1)
	if s.gate != nil {
		<-s.gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blocks[ref], nil
}

func (s *countingSource) BlocksAtSlot(ctx context.Context, slot uint64) ([]*block.Block, error) {
	return nil, nil
}

func (s *countingSource) ChildrenOf(ctx context.Context, ref block.Ref) ([]block.Ref, error) {
	return nil, nil
}

func (s *countingSource) LatestSlot(ctx context.Context) (uint64, error) {
	return 0, nil
}

func TestPrefetchWarmsExactlyOneFetch(t *testing.T) {
	src := newCountingSource()
	ref := src.add(42)
	p := NewPrefetchSource(src)

	p.Prefetch(context.Background(), ref)
	blk, err := p.Block(context.Background(), ref)
	if err != nil {
		t.Fatalf("Block failed: %v", err)
	}
	if blk == nil || blk.Slot != 42 {
		t.Fatalf("Wrong block: %+v", blk)
	}
	if got := atomic.LoadInt64(&src.calls); got != 1 {
		t.Errorf("Expected 1 underlying fetch, got %d", got)
	}
}

func TestPrefetchedCopyIsConsumedOnce(t *testing.T) {
	src := newCountingSource()
	ref := src.add(7)
	p := NewPrefetchSource(src)

	p.Prefetch(context.Background(), ref)
	if _, err := p.Block(context.Background(), ref); err != nil {
		t.Fatal(err)
	}
	// Second read goes back to the source.
	if _, err := p.Block(context.Background(), ref); err != nil {
		t.Fatal(err)
	}
	if got := atomic.LoadInt64(&src.calls); got != 2 {
		t.Errorf("Expected 2 underlying fetches, got %d", got)
	}
}

func TestDuplicatePrefetchIsSingleFlight(t *testing.T) {
	src := newCountingSource()
	ref := src.add(9)
	src.gate = make(chan struct{})
	p := NewPrefetchSource(src)

	p.Prefetch(context.Background(), ref)
	p.Prefetch(context.Background(), ref)
	p.Prefetch(context.Background(), ref)
	close(src.gate)

	blk, err := p.Block(context.Background(), ref)
	if err != nil || blk == nil {
		t.Fatalf("Block failed: blk=%v err=%v", blk, err)
	}
	if got := atomic.LoadInt64(&src.calls); got != 1 {
		t.Errorf("Expected a single in-flight fetch, got %d", got)
	}
}

func TestBlockWaitsForInflightPrefetch(t *testing.T) {
	src := newCountingSource()
	ref := src.add(11)
	src.gate = make(chan struct{})
	p := NewPrefetchSource(src)

	p.Prefetch(context.Background(), ref)

	got := make(chan *block.Block, 1)
	go func() {
		blk, _ := p.Block(context.Background(), ref)
		got <- blk
	}()

	select {
	case <-got:
		t.Fatal("Block returned before the prefetch completed")
	case <-time.After(20 * time.Millisecond):
	}
	close(src.gate)

	select {
	case blk := <-got:
		if blk == nil || blk.Slot != 11 {
			t.Fatalf("Wrong block: %+v", blk)
		}
	case <-time.After(time.Second):
		t.Fatal("Block never returned after the prefetch completed")
	}
	if calls := atomic.LoadInt64(&src.calls); calls != 1 {
		t.Errorf("Expected the waiter to consume the warmed copy, got %d fetches", calls)
	}
}

func TestBlockRespectsCancellationWhileWaiting(t *testing.T) {
	src := newCountingSource()
	ref := src.add(13)
	src.gate = make(chan struct{})
	defer close(src.gate)
	p := NewPrefetchSource(src)

	p.Prefetch(context.Background(), ref)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Block(ctx, ref); err != context.Canceled {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
}
