package store

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"

	"github.com/mezonai/mmn-replay/db"
	"github.com/mezonai/mmn-replay/jsonx"
	"github.com/mezonai/mmn-replay/logx"
	"github.com/mezonai/mmn-replay/types"
)

type AccountStore interface {
	Store(account *types.Account) error
	StoreBatch(accounts []*types.Account) error
	Replace(accounts []*types.Account) error
	GetByAddr(addr string) (*types.Account, error)
	GetBatch(addrs []string) (map[string]*types.Account, error)
	ExistsByAddr(addr string) (bool, error)
	IterateAll(fn func(account *types.Account) bool) error
	MustClose()
}

type GenericAccountStore struct {
	mu         sync.RWMutex
	dbProvider db.DatabaseProvider
}

func NewGenericAccountStore(dbProvider db.DatabaseProvider) (*GenericAccountStore, error) {
	if dbProvider == nil {
		return nil, fmt.Errorf("provider cannot be nil")
	}

	return &GenericAccountStore{
		dbProvider: dbProvider,
	}, nil
}

func (as *GenericAccountStore) getDbKey(addr string) []byte {
	return []byte(PrefixAccount + addr)
}

func (as *GenericAccountStore) Store(account *types.Account) error {
	as.mu.Lock()
	defer as.mu.Unlock()

	data, err := jsonx.Marshal(account)
	if err != nil {
		return errors.Wrap(err, "failed to marshal account")
	}

	if err := as.dbProvider.Put(as.getDbKey(account.Address), data); err != nil {
		return errors.Wrap(err, "failed to write account to db")
	}
	return nil
}

func (as *GenericAccountStore) StoreBatch(accounts []*types.Account) error {
	as.mu.Lock()
	defer as.mu.Unlock()

	batch := as.dbProvider.Batch()
	defer batch.Close()

	for _, account := range accounts {
		data, err := jsonx.Marshal(account)
		if err != nil {
			return errors.Wrap(err, "failed to marshal account")
		}
		batch.Put(as.getDbKey(account.Address), data)
	}

	if err := batch.Write(); err != nil {
		return errors.Wrap(err, "failed to write batch of accounts to database")
	}
	return nil
}

// Replace atomically swaps the entire durable account set for the given
// one. Restoring a checkpoint must not leave accounts from a later slot
// behind, so every stored account is dropped first.
func (as *GenericAccountStore) Replace(accounts []*types.Account) error {
	as.mu.Lock()
	defer as.mu.Unlock()

	iterable, ok := as.dbProvider.(db.IterableProvider)
	if !ok {
		return fmt.Errorf("account replacement requires an iterable provider")
	}

	batch := as.dbProvider.Batch()
	defer batch.Close()

	if err := iterable.IteratePrefix([]byte(PrefixAccount), func(key, _ []byte) bool {
		batch.Delete(append([]byte(nil), key...))
		return true
	}); err != nil {
		return errors.Wrap(err, "failed to enumerate accounts for replacement")
	}

	for _, account := range accounts {
		data, err := jsonx.Marshal(account)
		if err != nil {
			return errors.Wrap(err, "failed to marshal account")
		}
		batch.Put(as.getDbKey(account.Address), data)
	}

	if err := batch.Write(); err != nil {
		return errors.Wrap(err, "failed to replace account set")
	}
	return nil
}

// GetByAddr returns account instance from db, return both nil if not exist
func (as *GenericAccountStore) GetByAddr(addr string) (*types.Account, error) {
	as.mu.RLock()
	defer as.mu.RUnlock()

	data, err := as.dbProvider.Get(as.getDbKey(addr))
	if err != nil {
		return nil, errors.Wrapf(err, "could not get account %s from db", addr)
	}
	if data == nil {
		return nil, nil
	}

	var acc types.Account
	if err := jsonx.Unmarshal(data, &acc); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal account %s", addr)
	}
	return &acc, nil
}

// GetBatch returns existing accounts keyed by address; missing addresses are
// absent from the map.
func (as *GenericAccountStore) GetBatch(addrs []string) (map[string]*types.Account, error) {
	as.mu.RLock()
	defer as.mu.RUnlock()

	keys := make([][]byte, len(addrs))
	for i, addr := range addrs {
		keys[i] = as.getDbKey(addr)
	}

	raw, err := as.dbProvider.GetBatch(keys)
	if err != nil {
		return nil, errors.Wrap(err, "could not get account batch from db")
	}

	result := make(map[string]*types.Account, len(raw))
	for i, addr := range addrs {
		data, ok := raw[string(keys[i])]
		if !ok {
			continue
		}
		var acc types.Account
		if err := jsonx.Unmarshal(data, &acc); err != nil {
			return nil, errors.Wrapf(err, "failed to unmarshal account %s", addr)
		}
		result[addr] = &acc
	}
	return result, nil
}

func (as *GenericAccountStore) ExistsByAddr(addr string) (bool, error) {
	as.mu.RLock()
	defer as.mu.RUnlock()
	return as.dbProvider.Has(as.getDbKey(addr))
}

// IterateAll visits every stored account in address order. Snapshot writing
// depends on that ordering being stable.
func (as *GenericAccountStore) IterateAll(fn func(account *types.Account) bool) error {
	as.mu.RLock()
	defer as.mu.RUnlock()

	iterable, ok := as.dbProvider.(db.IterableProvider)
	if !ok {
		return fmt.Errorf("account iteration requires an iterable provider")
	}

	var iterErr error
	err := iterable.IteratePrefix([]byte(PrefixAccount), func(key, value []byte) bool {
		var acc types.Account
		if err := jsonx.Unmarshal(value, &acc); err != nil {
			iterErr = errors.Wrapf(err, "failed to unmarshal account at key %s", string(key))
			return false
		}
		return fn(&acc)
	})
	if err != nil {
		return err
	}
	return iterErr
}

// MustClose closes the underlying provider, logging on failure.
func (as *GenericAccountStore) MustClose() {
	if err := as.dbProvider.Close(); err != nil {
		logx.Error("ACCOUNT_STORE", "Failed to close provider:", err)
	}
}
