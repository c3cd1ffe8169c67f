package poh

// Entry is one recorded step of a block's hash chain. NumHashes counts the
// iterations from the previous entry's hash; tick entries carry no
// transactions. Replay treats entries as immutable inputs and only ever
// re-derives their hashes.
type Entry struct {
	NumHashes    uint64   `json:"num_hashes"`
	Hash         [32]byte `json:"hash"`
	Transactions [][]byte `json:"transactions"` // serialized txs
}

// NewTickEntry builds a transaction-less entry.
func NewTickEntry(numHashes uint64, hash [32]byte) Entry {
	return Entry{NumHashes: numHashes, Hash: hash}
}

// NewTxEntry builds an entry carrying a transaction batch.
func NewTxEntry(numHashes uint64, hash [32]byte, txs [][]byte) Entry {
	return Entry{NumHashes: numHashes, Hash: hash, Transactions: txs}
}

func (e Entry) IsTickOnly() bool {
	return len(e.Transactions) == 0
}
