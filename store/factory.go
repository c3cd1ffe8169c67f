package store

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/mezonai/mmn-replay/db"
)

// StoreType represents the type of store implementation
type StoreType string

const (
	// LevelDBStoreType uses the LevelDB implementation
	LevelDBStoreType StoreType = "leveldb"

	// RocksDBStoreType uses the RocksDB implementation
	RocksDBStoreType StoreType = "rocksdb"

	// RedisStoreType uses the Redis implementation
	RedisStoreType StoreType = "redis"

	// MemoryStoreType keeps everything in-process; useful for ephemeral runs
	MemoryStoreType StoreType = "memory"
)

// StoreConfig holds configuration for creating store instances
type StoreConfig struct {
	// Type specifies which store implementation to use
	Type StoreType `json:"type" yaml:"type"`

	// Directory is the database directory path (for file-based databases)
	Directory string `json:"directory" yaml:"directory"`

	// Address is the server address (for networked databases)
	Address string `json:"address" yaml:"address"`
}

// Validate validates the store configuration
func (sc *StoreConfig) Validate() error {
	if sc.Type == "" {
		return fmt.Errorf("store type cannot be empty")
	}

	switch sc.Type {
	case LevelDBStoreType, RocksDBStoreType:
		if sc.Directory == "" {
			return fmt.Errorf("directory cannot be empty for %s", sc.Type)
		}
		return nil
	case RedisStoreType:
		if sc.Address == "" {
			return fmt.Errorf("address cannot be empty for %s", sc.Type)
		}
		return nil
	case MemoryStoreType:
		return nil
	default:
		return fmt.Errorf("unsupported store type: %s", sc.Type)
	}
}

// StoreFactory take responsibility to create store instances
type StoreFactory struct{}

// NewStoreFactory creates a new store factory
func NewStoreFactory() *StoreFactory {
	return &StoreFactory{}
}

// CreateStoreWithProvider creates store instances sharing one provider.
func (sf *StoreFactory) CreateStoreWithProvider(config *StoreConfig) (AccountStore, TxMetaStore, BlockStore, error) {
	if config == nil {
		return nil, nil, nil, fmt.Errorf("config cannot be nil")
	}
	if err := config.Validate(); err != nil {
		return nil, nil, nil, errors.Wrap(err, "invalid config")
	}

	provider, err := sf.CreateProvider(config)
	if err != nil {
		return nil, nil, nil, errors.Wrap(err, "failed to create provider")
	}

	accStore, err := NewGenericAccountStore(provider)
	if err != nil {
		return nil, nil, nil, errors.Wrap(err, "failed to create account store")
	}

	txMetaStore, err := NewGenericTxMetaStore(provider)
	if err != nil {
		return nil, nil, nil, errors.Wrap(err, "failed to create transaction meta store")
	}

	blkStore, err := NewGenericBlockStore(provider)
	if err != nil {
		return nil, nil, nil, errors.Wrap(err, "failed to create block store")
	}

	return accStore, txMetaStore, blkStore, nil
}

// CreateProvider creates a database provider based on the configuration
func (sf *StoreFactory) CreateProvider(config *StoreConfig) (db.DatabaseProvider, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}

	switch config.Type {
	case LevelDBStoreType:
		return db.NewLevelDBProvider(config.Directory)

	case RocksDBStoreType:
		return db.NewRocksDBProvider(config.Directory)

	case RedisStoreType:
		return db.NewRedisProvider(config.Address)

	case MemoryStoreType:
		return db.NewMemoryProvider(), nil

	default:
		return nil, fmt.Errorf("unsupported store type: %s", config.Type)
	}
}

// Global factory instance
var globalFactory = NewStoreFactory()

// CreateStore creates new store instances using the global factory
func CreateStore(config *StoreConfig) (AccountStore, TxMetaStore, BlockStore, error) {
	return globalFactory.CreateStoreWithProvider(config)
}
