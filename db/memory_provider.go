package db

import (
	"bytes"
	"sort"
	"sync"
)

// MemoryProvider implements IterableProvider with an in-process map. Used by
// fixtures and as the backing store for ephemeral replay runs.
type MemoryProvider struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{data: make(map[string][]byte)}
}

func (p *MemoryProvider) Get(key []byte) ([]byte, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	value, ok := p.data[string(key)]
	if !ok {
		return nil, nil
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

func (p *MemoryProvider) GetBatch(keys [][]byte) (map[string][]byte, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	result := make(map[string][]byte, len(keys))
	for _, key := range keys {
		if value, ok := p.data[string(key)]; ok {
			out := make([]byte, len(value))
			copy(out, value)
			result[string(key)] = out
		}
	}
	return result, nil
}

func (p *MemoryProvider) Put(key, value []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	stored := make([]byte, len(value))
	copy(stored, value)
	p.data[string(key)] = stored
	return nil
}

func (p *MemoryProvider) Delete(key []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.data, string(key))
	return nil
}

func (p *MemoryProvider) Has(key []byte) (bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.data[string(key)]
	return ok, nil
}

func (p *MemoryProvider) Close() error {
	return nil
}

func (p *MemoryProvider) Batch() DatabaseBatch {
	return &memoryBatch{provider: p}
}

// IteratePrefix visits matching keys in ascending key order, mirroring the
// on-disk providers.
func (p *MemoryProvider) IteratePrefix(prefix []byte, callback func(key, value []byte) bool) error {
	p.mu.RLock()
	keys := make([]string, 0, len(p.data))
	for key := range p.data {
		if bytes.HasPrefix([]byte(key), prefix) {
			keys = append(keys, key)
		}
	}
	p.mu.RUnlock()

	sort.Strings(keys)
	for _, key := range keys {
		p.mu.RLock()
		value, ok := p.data[key]
		p.mu.RUnlock()
		if !ok {
			continue
		}
		if !callback([]byte(key), value) {
			break
		}
	}
	return nil
}

type memoryOp struct {
	key    string
	value  []byte
	delete bool
}

type memoryBatch struct {
	provider *MemoryProvider
	ops      []memoryOp
}

func (b *memoryBatch) Put(key, value []byte) {
	stored := make([]byte, len(value))
	copy(stored, value)
	b.ops = append(b.ops, memoryOp{key: string(key), value: stored})
}

func (b *memoryBatch) Delete(key []byte) {
	b.ops = append(b.ops, memoryOp{key: string(key), delete: true})
}

func (b *memoryBatch) Write() error {
	b.provider.mu.Lock()
	defer b.provider.mu.Unlock()
	for _, op := range b.ops {
		if op.delete {
			delete(b.provider.data, op.key)
		} else {
			b.provider.data[op.key] = op.value
		}
	}
	return nil
}

func (b *memoryBatch) Reset() {
	b.ops = nil
}

func (b *memoryBatch) Close() {
	b.ops = nil
}
