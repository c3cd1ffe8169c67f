package config

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"

	"github.com/mezonai/mmn-replay/retry"
	"github.com/mezonai/mmn-replay/store"
	"github.com/mezonai/mmn-replay/types"
	"github.com/mezonai/mmn-replay/utils"
)

// LoadGenesisConfig reads and parses the genesis.yml file
func LoadGenesisConfig(path string) (*GenesisConfig, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var cfgFile ConfigFile
	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(&cfgFile); err != nil {
		return nil, fmt.Errorf("decode genesis config: %w", err)
	}
	return &cfgFile.Config, nil
}

// SeedHashBytes decodes the hex seed of the slot-0 entry chain.
func (g *GenesisConfig) SeedHashBytes() ([32]byte, error) {
	var seed [32]byte
	raw, err := hex.DecodeString(g.SeedHash)
	if err != nil {
		return seed, fmt.Errorf("decode seed hash: %w", err)
	}
	if len(raw) != 32 {
		return seed, fmt.Errorf("seed hash must be 32 bytes, got %d", len(raw))
	}
	copy(seed[:], raw)
	return seed, nil
}

// GenesisAccounts converts the allocation into account records ready
// for store seeding.
func (g *GenesisConfig) GenesisAccounts() []*types.Account {
	accounts := make([]*types.Account, 0, len(g.Alloc))
	for _, alloc := range g.Alloc {
		accounts = append(accounts, &types.Account{
			Address: alloc.Address,
			Balance: utils.ParseAmount(alloc.Amount),
			Nonce:   alloc.Nonce,
		})
	}
	return accounts
}

// LeaderPubKey resolves a leader's block-signing key. Second return is
// false when the genesis config carries no key for the leader.
func (g *GenesisConfig) LeaderPubKey(leaderID string) (ed25519.PublicKey, bool) {
	for _, lk := range g.Leaders {
		if lk.LeaderID != leaderID {
			continue
		}
		raw, err := hex.DecodeString(lk.PubKey)
		if err != nil || len(raw) != ed25519.PublicKeySize {
			return nil, false
		}
		return ed25519.PublicKey(raw), true
	}
	return nil, false
}

// LoadReplayConfig reads the [replay] section from an .ini file,
// filling defaults for anything left out.
func LoadReplayConfig(path string) (*ReplayConfig, error) {
	cfg, err := ini.Load(path)
	if err != nil {
		return nil, err
	}
	replayCfg := &ReplayConfig{
		CheckpointInterval: DefaultCheckpointInterval,
		FullSnapshotEvery:  DefaultFullSnapshotEvery,
		FetchMaxAttempts:   DefaultMaxAttempts,
		FetchBaseDelayMs:   DefaultBaseDelayMs,
		FetchMaxDelayMs:    DefaultMaxDelayMs,
		FetchJitter:        DefaultJitter,
	}
	if err := cfg.Section("replay").MapTo(replayCfg); err != nil {
		return nil, err
	}
	return replayCfg, nil
}

// LoadArchivalConfig reads the [archival] section from an .ini file.
func LoadArchivalConfig(path string) (*ArchivalConfig, error) {
	cfg, err := ini.Load(path)
	if err != nil {
		return nil, err
	}
	archivalCfg := &ArchivalConfig{
		Backend:          "memory",
		BatchSize:        DefaultArchiveBatchSize,
		RestoreBatchSize: DefaultRestoreBatchSize,
		MaxAttempts:      DefaultMaxAttempts,
		BaseDelayMs:      DefaultBaseDelayMs,
		MaxDelayMs:       DefaultMaxDelayMs,
		Jitter:           DefaultJitter,
	}
	if err := cfg.Section("archival").MapTo(archivalCfg); err != nil {
		return nil, err
	}
	return archivalCfg, nil
}

// LoadStorageConfig reads the [storage] section from an .ini file.
func LoadStorageConfig(path string) (*StorageConfig, error) {
	cfg, err := ini.Load(path)
	if err != nil {
		return nil, err
	}
	storageCfg := &StorageConfig{
		Backend:      string(store.LevelDBStoreType),
		DataDir:      "./replay-data",
		CheckpointDB: "./replay-data/checkpoints.db",
		SnapshotDir:  "./replay-data/snapshots",
	}
	if err := cfg.Section("storage").MapTo(storageCfg); err != nil {
		return nil, err
	}
	return storageCfg, nil
}

// FetchPolicy converts the fetch retry knobs into a bounded policy.
func (r *ReplayConfig) FetchPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: r.FetchMaxAttempts,
		BaseDelay:   time.Duration(r.FetchBaseDelayMs) * time.Millisecond,
		MaxDelay:    time.Duration(r.FetchMaxDelayMs) * time.Millisecond,
		Jitter:      r.FetchJitter,
	}
}

// Policy converts the archival transport retry knobs into a bounded policy.
func (a *ArchivalConfig) Policy() retry.Policy {
	return retry.Policy{
		MaxAttempts: a.MaxAttempts,
		BaseDelay:   time.Duration(a.BaseDelayMs) * time.Millisecond,
		MaxDelay:    time.Duration(a.MaxDelayMs) * time.Millisecond,
		Jitter:      a.Jitter,
	}
}

// StoreConfig converts the [storage] section into the store factory's
// configuration.
func (s *StorageConfig) StoreConfig() *store.StoreConfig {
	return &store.StoreConfig{
		Type:      store.StoreType(s.Backend),
		Directory: s.DataDir,
		Address:   s.RedisAddr,
	}
}
