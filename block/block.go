package block

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/binary"
	"time"

	"github.com/mezonai/mmn-replay/poh"
)

type BlockStatus int

const (
	BlockPending BlockStatus = iota
	BlockConfirmed
	BlockRooted
	BlockDead
)

func (s BlockStatus) String() string {
	switch s {
	case BlockPending:
		return "pending"
	case BlockConfirmed:
		return "confirmed"
	case BlockRooted:
		return "rooted"
	case BlockDead:
		return "dead"
	default:
		return "unknown"
	}
}

// Ref identifies a stored block by slot and content hash. Forks mean a slot
// can hold more than one block, so the hash is part of the address.
type Ref struct {
	Slot uint64   `json:"slot"`
	Hash [32]byte `json:"hash"`
}

type BlockCore struct {
	Slot       uint64      `json:"slot"`
	ParentSlot uint64      `json:"parent_slot"`
	PrevHash   [32]byte    `json:"prev_hash"`
	LeaderID   string      `json:"leader_id"`
	Timestamp  uint64      `json:"timestamp"`
	Hash       [32]byte    `json:"hash"`
	BankHash   [32]byte    `json:"bank_hash"`
	Status     BlockStatus `json:"status"`
	Signature  []byte      `json:"signature,omitempty"`
}

type Block struct {
	BlockCore
	Entries []poh.Entry `json:"entries"`
}

func AssembleBlock(
	slot uint64,
	parentSlot uint64,
	prevHash [32]byte,
	leaderID string,
	entries []poh.Entry,
) *Block {
	b := &Block{
		BlockCore: BlockCore{
			Slot:       slot,
			ParentSlot: parentSlot,
			PrevHash:   prevHash,
			LeaderID:   leaderID,
			Timestamp:  uint64(time.Now().UnixNano()),
			Status:     BlockPending,
		},
		Entries: entries,
	}
	b.Hash = b.ComputeHash()
	return b
}

// ComputeHash derives the content hash. The claimed bank hash and the status
// flag are not part of block identity.
func (b *Block) ComputeHash() [32]byte {
	h := sha256.New()
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, b.Slot)
	h.Write(buf)
	h.Write(b.PrevHash[:])
	h.Write([]byte(b.LeaderID))
	binary.BigEndian.PutUint64(buf, b.Timestamp)
	h.Write(buf)
	for _, e := range b.Entries {
		binary.BigEndian.PutUint64(buf, e.NumHashes)
		h.Write(buf)
		h.Write(e.Hash[:])
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// VerifyHash recomputes the content hash and compares it to the stored one.
func (b *Block) VerifyHash() bool {
	return b.ComputeHash() == b.Hash
}

func (b *Block) Sign(privKey ed25519.PrivateKey) {
	sig := ed25519.Sign(privKey, b.Hash[:])
	b.Signature = sig
}

func (b *Block) VerifySignature(pubKey ed25519.PublicKey) bool {
	return ed25519.Verify(pubKey, b.Hash[:], b.Signature)
}

// LastEntryHash returns the tail of the slot's entry chain, or PrevHash when
// the block carries no entries.
func (b *Block) LastEntryHash() [32]byte {
	if len(b.Entries) == 0 {
		return b.PrevHash
	}
	return b.Entries[len(b.Entries)-1].Hash
}

// TxCount counts serialized transactions across all entries.
func (b *Block) TxCount() int {
	count := 0
	for _, e := range b.Entries {
		count += len(e.Transactions)
	}
	return count
}

// Transactions flattens entry transactions preserving declared order.
func (b *Block) Transactions() [][]byte {
	txs := make([][]byte, 0, b.TxCount())
	for _, e := range b.Entries {
		txs = append(txs, e.Transactions...)
	}
	return txs
}

// FirstTxIndexOfEntry maps an entry index to the index of its first
// transaction in declared block order. Entries before it contribute their
// transaction counts; tick-only entries contribute none.
func (b *Block) FirstTxIndexOfEntry(entryIdx int) int {
	idx := 0
	for i := 0; i < entryIdx && i < len(b.Entries); i++ {
		idx += len(b.Entries[i].Transactions)
	}
	return idx
}
