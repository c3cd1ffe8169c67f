//go:build rocksdb
// +build rocksdb

package db

import (
	"bytes"
	"sync"

	"github.com/linxGnu/grocksdb"
	"github.com/pkg/errors"
)

// RocksDBProvider implements IterableProvider for RocksDB
type RocksDBProvider struct {
	once sync.Once
	db   *grocksdb.DB
	ro   *grocksdb.ReadOptions
	wo   *grocksdb.WriteOptions
}

// NewRocksDBProvider creates a new RocksDB provider
func NewRocksDBProvider(directory string) (DatabaseProvider, error) {
	opts := grocksdb.NewDefaultOptions()
	opts.SetCreateIfMissing(true)

	db, err := grocksdb.OpenDb(opts, directory)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open RocksDB at %s", directory)
	}

	return &RocksDBProvider{
		db: db,
		ro: grocksdb.NewDefaultReadOptions(),
		wo: grocksdb.NewDefaultWriteOptions(),
	}, nil
}

func (p *RocksDBProvider) Get(key []byte) ([]byte, error) {
	value, err := p.db.Get(p.ro, key)
	if err != nil {
		return nil, err
	}
	defer value.Free()

	if !value.Exists() {
		return nil, nil
	}

	data := value.Data()
	result := make([]byte, len(data))
	copy(result, data)
	return result, nil
}

func (p *RocksDBProvider) GetBatch(keys [][]byte) (map[string][]byte, error) {
	result := make(map[string][]byte, len(keys))
	for _, key := range keys {
		value, err := p.Get(key)
		if err != nil {
			return nil, err
		}
		if value == nil {
			continue
		}
		result[string(key)] = value
	}
	return result, nil
}

func (p *RocksDBProvider) Put(key, value []byte) error {
	return p.db.Put(p.wo, key, value)
}

func (p *RocksDBProvider) Delete(key []byte) error {
	return p.db.Delete(p.wo, key)
}

func (p *RocksDBProvider) Has(key []byte) (bool, error) {
	value, err := p.db.Get(p.ro, key)
	if err != nil {
		return false, err
	}
	if value == nil {
		return false, nil
	}
	defer value.Free()

	return value.Exists(), nil
}

// Close closes the database connection. Safe to call from multiple stores
// sharing the provider.
func (p *RocksDBProvider) Close() error {
	p.once.Do(func() {
		p.ro.Destroy()
		p.wo.Destroy()
		p.db.Close()
	})
	return nil
}

func (p *RocksDBProvider) Batch() DatabaseBatch {
	return &RocksDBBatch{
		batch:    grocksdb.NewWriteBatch(),
		provider: p,
	}
}

// IteratePrefix visits keys sharing prefix in ascending key order.
func (p *RocksDBProvider) IteratePrefix(prefix []byte, callback func(key, value []byte) bool) error {
	it := p.db.NewIterator(p.ro)
	defer it.Close()

	for it.Seek(prefix); it.Valid(); it.Next() {
		k := it.Key()
		v := it.Value()
		if !bytes.HasPrefix(k.Data(), prefix) {
			k.Free()
			v.Free()
			break
		}
		kdata := append([]byte(nil), k.Data()...)
		vdata := append([]byte(nil), v.Data()...)
		k.Free()
		v.Free()
		if !callback(kdata, vdata) {
			break
		}
	}
	return nil
}

// RocksDBBatch implements DatabaseBatch for RocksDB
type RocksDBBatch struct {
	batch    *grocksdb.WriteBatch
	provider *RocksDBProvider
}

func (b *RocksDBBatch) Put(key, value []byte) {
	b.batch.Put(key, value)
}

func (b *RocksDBBatch) Delete(key []byte) {
	b.batch.Delete(key)
}

func (b *RocksDBBatch) Write() error {
	return b.provider.db.Write(b.provider.wo, b.batch)
}

func (b *RocksDBBatch) Reset() {
	b.batch.Clear()
}

func (b *RocksDBBatch) Close() {
	b.batch.Destroy()
}
