package cmd

import (
	"encoding/hex"
	"fmt"

	"github.com/mezonai/mmn-replay/config"
	"github.com/mezonai/mmn-replay/store"
)

// storeSet bundles the stores sharing one database provider.
type storeSet struct {
	accounts store.AccountStore
	txMetas  store.TxMetaStore
	blocks   store.BlockStore
	storage  *config.StorageConfig
}

func openStores() (*storeSet, error) {
	storageCfg, err := config.LoadStorageConfig(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load storage config: %w", err)
	}
	accounts, txMetas, blocks, err := store.CreateStore(storageCfg.StoreConfig())
	if err != nil {
		return nil, fmt.Errorf("open stores: %w", err)
	}
	return &storeSet{
		accounts: accounts,
		txMetas:  txMetas,
		blocks:   blocks,
		storage:  storageCfg,
	}, nil
}

// Close shuts the shared provider down. The stores wrap one provider,
// so closing through the block store is enough.
func (s *storeSet) Close() {
	s.blocks.MustClose()
}

func parseHash32(s string) ([32]byte, error) {
	var out [32]byte
	raw, err := hex.DecodeString(s)
	if err != nil {
		return out, fmt.Errorf("invalid hash %q: %w", s, err)
	}
	if len(raw) != 32 {
		return out, fmt.Errorf("hash must be 32 bytes, got %d", len(raw))
	}
	copy(out[:], raw)
	return out, nil
}
