package store

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/pkg/errors"

	"github.com/mezonai/mmn-replay/block"
	"github.com/mezonai/mmn-replay/db"
	"github.com/mezonai/mmn-replay/jsonx"
	"github.com/mezonai/mmn-replay/logx"
)

// BlockStore abstracts the fork-aware block storage backend. A slot may hold
// competing blocks; blocks are addressed by (slot, hash) and linked to their
// children so fork trees can be rebuilt.
type BlockStore interface {
	Block(slot uint64, hash [32]byte) (*block.Block, error)
	BlocksAtSlot(slot uint64) ([]*block.Block, error)
	ChildrenOf(hash [32]byte) ([]block.Ref, error)
	HasCompleteBlock(slot uint64) (bool, error)
	AddBlock(b *block.Block) error
	MarkStatus(slot uint64, hash [32]byte, status block.BlockStatus) error
	LatestSlot() uint64
	LatestRooted() uint64
	MustClose()
}

// GenericBlockStore is a database-agnostic implementation backed by any
// IterableProvider.
type GenericBlockStore struct {
	provider     db.IterableProvider
	mu           sync.RWMutex
	latestStored uint64
	latestRooted uint64
}

// NewGenericBlockStore creates a new generic block store with the given provider
func NewGenericBlockStore(provider db.DatabaseProvider) (*GenericBlockStore, error) {
	if provider == nil {
		return nil, fmt.Errorf("provider cannot be nil")
	}
	iterable, ok := provider.(db.IterableProvider)
	if !ok {
		return nil, fmt.Errorf("block store requires an iterable provider")
	}

	store := &GenericBlockStore{provider: iterable}
	if err := store.loadMeta(); err != nil {
		return nil, errors.Wrap(err, "failed to load block store metadata")
	}
	return store, nil
}

func (s *GenericBlockStore) loadMeta() error {
	var err error
	if s.latestStored, err = s.loadMetaSlot(BlockMetaKeyLatestStored); err != nil {
		return err
	}
	s.latestRooted, err = s.loadMetaSlot(BlockMetaKeyLatestRooted)
	return err
}

func (s *GenericBlockStore) loadMetaSlot(metaKey string) (uint64, error) {
	value, err := s.provider.Get([]byte(PrefixBlockMeta + metaKey))
	if err != nil {
		return 0, err
	}
	if value == nil {
		return 0, nil
	}
	if len(value) != 8 {
		return 0, fmt.Errorf("invalid %s value length: %d", metaKey, len(value))
	}
	return binary.BigEndian.Uint64(value), nil
}

// blockKey is PrefixBlock + big-endian slot + raw hash so keys sort by slot.
func blockKey(slot uint64, hash [32]byte) []byte {
	key := make([]byte, len(PrefixBlock)+8+32)
	copy(key, PrefixBlock)
	binary.BigEndian.PutUint64(key[len(PrefixBlock):], slot)
	copy(key[len(PrefixBlock)+8:], hash[:])
	return key
}

func slotPrefix(slot uint64) []byte {
	key := make([]byte, len(PrefixBlock)+8)
	copy(key, PrefixBlock)
	binary.BigEndian.PutUint64(key[len(PrefixBlock):], slot)
	return key
}

func childrenKey(hash [32]byte) []byte {
	key := make([]byte, len(PrefixBlockChildren)+32)
	copy(key, PrefixBlockChildren)
	copy(key[len(PrefixBlockChildren):], hash[:])
	return key
}

// Block retrieves a block by slot and content hash. Returns (nil, nil) when
// absent.
func (s *GenericBlockStore) Block(slot uint64, hash [32]byte) (*block.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, err := s.provider.Get(blockKey(slot, hash))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get block %d", slot)
	}
	if value == nil {
		return nil, nil
	}

	var blk block.Block
	if err := jsonx.Unmarshal(value, &blk); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal block %d", slot)
	}
	return &blk, nil
}

// BlocksAtSlot returns every block stored for a slot, in hash order.
func (s *GenericBlockStore) BlocksAtSlot(slot uint64) ([]*block.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var blocks []*block.Block
	var iterErr error
	err := s.provider.IteratePrefix(slotPrefix(slot), func(key, value []byte) bool {
		var blk block.Block
		if err := jsonx.Unmarshal(value, &blk); err != nil {
			iterErr = errors.Wrapf(err, "failed to unmarshal block %d", slot)
			return false
		}
		blocks = append(blocks, &blk)
		return true
	})
	if err != nil {
		return nil, err
	}
	if iterErr != nil {
		return nil, iterErr
	}
	return blocks, nil
}

// ChildrenOf returns refs of blocks whose PrevHash is hash.
func (s *GenericBlockStore) ChildrenOf(hash [32]byte) ([]block.Ref, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.childrenOfLocked(hash)
}

func (s *GenericBlockStore) childrenOfLocked(hash [32]byte) ([]block.Ref, error) {
	value, err := s.provider.Get(childrenKey(hash))
	if err != nil {
		return nil, errors.Wrap(err, "failed to get children index")
	}
	if value == nil {
		return nil, nil
	}
	var refs []block.Ref
	if err := jsonx.Unmarshal(value, &refs); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal children index")
	}
	return refs, nil
}

// HasCompleteBlock reports whether the slot holds at least one block.
func (s *GenericBlockStore) HasCompleteBlock(slot uint64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	found := false
	err := s.provider.IteratePrefix(slotPrefix(slot), func(key, value []byte) bool {
		found = true
		return false
	})
	return found, err
}

// AddBlock persists a block and links it into its parent's children index.
// Idempotent for identical content.
func (s *GenericBlockStore) AddBlock(b *block.Block) error {
	if b == nil {
		return fmt.Errorf("block cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := jsonx.Marshal(b)
	if err != nil {
		return errors.Wrapf(err, "failed to marshal block %d", b.Slot)
	}

	refs, err := s.childrenOfLocked(b.PrevHash)
	if err != nil {
		return err
	}
	linked := false
	for _, ref := range refs {
		if ref.Hash == b.Hash {
			linked = true
			break
		}
	}

	batch := s.provider.Batch()
	defer batch.Close()

	batch.Put(blockKey(b.Slot, b.Hash), data)
	if !linked {
		refs = append(refs, block.Ref{Slot: b.Slot, Hash: b.Hash})
		refData, err := jsonx.Marshal(refs)
		if err != nil {
			return errors.Wrap(err, "failed to marshal children index")
		}
		batch.Put(childrenKey(b.PrevHash), refData)
	}
	if b.Slot > s.latestStored {
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, b.Slot)
		batch.Put([]byte(PrefixBlockMeta+BlockMetaKeyLatestStored), buf)
	}

	if err := batch.Write(); err != nil {
		return errors.Wrapf(err, "failed to write block %d", b.Slot)
	}
	if b.Slot > s.latestStored {
		s.latestStored = b.Slot
	}
	return nil
}

// MarkStatus updates the status flag of a stored block.
func (s *GenericBlockStore) MarkStatus(slot uint64, hash [32]byte, status block.BlockStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := blockKey(slot, hash)
	value, err := s.provider.Get(key)
	if err != nil {
		return errors.Wrapf(err, "failed to get block %d", slot)
	}
	if value == nil {
		return fmt.Errorf("block %d not found", slot)
	}

	var blk block.Block
	if err := jsonx.Unmarshal(value, &blk); err != nil {
		return errors.Wrapf(err, "failed to unmarshal block %d", slot)
	}
	if blk.Status == status {
		return nil
	}
	blk.Status = status

	data, err := jsonx.Marshal(&blk)
	if err != nil {
		return errors.Wrapf(err, "failed to marshal block %d", slot)
	}

	batch := s.provider.Batch()
	defer batch.Close()
	batch.Put(key, data)
	if status == block.BlockRooted && slot > s.latestRooted {
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, slot)
		batch.Put([]byte(PrefixBlockMeta+BlockMetaKeyLatestRooted), buf)
	}
	if err := batch.Write(); err != nil {
		return errors.Wrapf(err, "failed to update block %d status", slot)
	}
	if status == block.BlockRooted && slot > s.latestRooted {
		s.latestRooted = slot
	}
	return nil
}

func (s *GenericBlockStore) LatestSlot() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latestStored
}

func (s *GenericBlockStore) LatestRooted() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latestRooted
}

// MustClose closes the underlying provider, logging on failure.
func (s *GenericBlockStore) MustClose() {
	if err := s.provider.Close(); err != nil {
		logx.Error("BLOCKSTORE", "Failed to close provider:", err)
	}
}

// SlotHashFromKey recovers (slot, hash) from a block key. Used when scanning
// ranges without unmarshaling payloads.
func SlotHashFromKey(key []byte) (uint64, [32]byte, bool) {
	if len(key) != len(PrefixBlock)+8+32 || !bytes.HasPrefix(key, []byte(PrefixBlock)) {
		return 0, [32]byte{}, false
	}
	slot := binary.BigEndian.Uint64(key[len(PrefixBlock):])
	var hash [32]byte
	copy(hash[:], key[len(PrefixBlock)+8:])
	return slot, hash, true
}
