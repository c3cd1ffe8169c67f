package poh

import (
	"crypto/sha256"
)

func GenerateTickOnlyEntries(seed [32]byte, numEntries int, hashesPerTick uint64) []Entry {
	if numEntries <= 0 || hashesPerTick == 0 {
		return nil
	}

	entries := make([]Entry, 0, numEntries)
	cur := seed

	for i := 0; i < numEntries; i++ {
		for n := uint64(1); n < hashesPerTick; n++ {
			cur = sha256.Sum256(cur[:])
		}

		cur = sha256.Sum256(cur[:])

		e := NewTickEntry(hashesPerTick, cur)
		entries = append(entries, e)
	}

	return entries
}

// GenerateEntryChain builds one entry per tx batch, chained from seed. The
// leading tick advances the chain, so even a batch-less block moves the
// hash forward and its tail never equals the seed it anchored on.
func GenerateEntryChain(seed [32]byte, hashesPerEntry uint64, txBatches ...[][]byte) []Entry {
	if hashesPerEntry == 0 {
		return nil
	}

	entries := make([]Entry, 0, len(txBatches)+1)
	cur := NextEntryHash(seed, hashesPerEntry, nil)
	entries = append(entries, NewTickEntry(hashesPerEntry, cur))

	for _, txs := range txBatches {
		cur = NextEntryHash(cur, hashesPerEntry, txs)
		entries = append(entries, NewTxEntry(hashesPerEntry, cur, txs))
	}

	return entries
}
