package poh

import (
	"crypto/sha256"
	"fmt"

	"github.com/mezonai/mmn-replay/logx"
)

// MismatchError reports the first entry whose hash does not continue the
// slot's hash chain. EntryIndex locates the failing entry within the block.
type MismatchError struct {
	Slot       uint64
	EntryIndex int
	Expected   [32]byte
	Got        [32]byte
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("PoH mismatch: entry=%d slot=%d expected=%x got=%x", e.EntryIndex, e.Slot, e.Expected, e.Got)
}

// VerifyEntries re-derives the hash chain across a slot's entries. Entry 0
// seeds the chain; every later entry must extend it.
func VerifyEntries(entries []Entry, slot uint64) error {
	if len(entries) == 0 {
		return nil
	}
	logx.Debug("POH", fmt.Sprintf("VerifyEntries: verifying %d entries in slot=%d", len(entries), slot))
	cur := entries[0].Hash

	for i := 1; i < len(entries); i++ {
		if entries[i].NumHashes == 0 {
			return &MismatchError{Slot: slot, EntryIndex: i, Expected: entries[i].Hash, Got: cur}
		}
		cur = NextEntryHash(cur, entries[i].NumHashes, entries[i].Transactions)

		if cur != entries[i].Hash {
			return &MismatchError{Slot: slot, EntryIndex: i, Expected: entries[i].Hash, Got: cur}
		}
	}

	return nil
}

// VerifyEntriesFrom verifies the chain including entry 0, which must be
// derived from the final hash of the linked parent block. Every entry has
// to perform at least one hash, so a valid block never leaves the chain
// where it found it; a block with no entries at all is rejected for the
// same reason.
func VerifyEntriesFrom(prev [32]byte, entries []Entry, slot uint64) error {
	if len(entries) == 0 {
		return &MismatchError{Slot: slot, EntryIndex: 0, Expected: [32]byte{}, Got: prev}
	}
	if entries[0].NumHashes == 0 {
		return &MismatchError{Slot: slot, EntryIndex: 0, Expected: entries[0].Hash, Got: prev}
	}
	if got := NextEntryHash(prev, entries[0].NumHashes, entries[0].Transactions); got != entries[0].Hash {
		return &MismatchError{Slot: slot, EntryIndex: 0, Expected: entries[0].Hash, Got: got}
	}
	return VerifyEntries(entries, slot)
}

// NextEntryHash advances prev by numHashes iterations, mixing in the
// transaction digest on the final one when txs are present.
func NextEntryHash(prev [32]byte, numHashes uint64, txs [][]byte) [32]byte {
	cur := prev
	for n := uint64(0); n < numHashes-1; n++ {
		cur = sha256.Sum256(cur[:])
	}

	if len(txs) == 0 {
		cur = sha256.Sum256(cur[:])
	} else {
		mixin := HashTransactions(txs)
		hash := sha256.Sum256(append(cur[:], mixin[:]...))
		copy(cur[:], hash[:])
	}
	return cur
}

func HashTransactions(txs [][]byte) [32]byte {
	hasher := sha256.New()
	for _, tx := range txs {
		hasher.Write(tx)
	}
	var result [32]byte
	hasher.Sum(result[:0])
	return result
}
