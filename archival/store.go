package archival

import (
	"fmt"
	"sort"
	"sync"

	"github.com/mezonai/mmn-replay/block"
)

// ArchiveStore is the slot-keyed backing store behind the archive
// server. One block per slot; archival happens after rooting, so forks
// are already resolved.
type ArchiveStore interface {
	// Put stores a block. Returns false without error when the same
	// block was already archived. A different block at an archived
	// slot is a conflict.
	Put(blk *block.Block) (bool, error)
	// GetRange returns archived blocks with from <= slot <= to in
	// slot order.
	GetRange(from, to uint64) ([]*block.Block, error)
	// Head reports the highest archived slot and the total count.
	Head() (uint64, uint64, error)
	Close() error
}

// MemoryArchiveStore keeps the archive in process memory. Test and
// single-node tool usage.
type MemoryArchiveStore struct {
	mu     sync.RWMutex
	bySlot map[uint64]*block.Block
}

func NewMemoryArchiveStore() *MemoryArchiveStore {
	return &MemoryArchiveStore{bySlot: make(map[uint64]*block.Block)}
}

func (m *MemoryArchiveStore) Put(blk *block.Block) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.bySlot[blk.Slot]; ok {
		if existing.Hash == blk.Hash {
			return false, nil
		}
		return false, fmt.Errorf("slot %d already archived with a different block", blk.Slot)
	}
	m.bySlot[blk.Slot] = blk
	return true, nil
}

func (m *MemoryArchiveStore) GetRange(from, to uint64) ([]*block.Block, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*block.Block
	for slot, blk := range m.bySlot {
		if slot >= from && slot <= to {
			out = append(out, blk)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slot < out[j].Slot })
	return out, nil
}

func (m *MemoryArchiveStore) Head() (uint64, uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var head uint64
	for slot := range m.bySlot {
		if slot > head {
			head = slot
		}
	}
	return head, uint64(len(m.bySlot)), nil
}

func (m *MemoryArchiveStore) Close() error {
	return nil
}

var _ ArchiveStore = (*MemoryArchiveStore)(nil)
