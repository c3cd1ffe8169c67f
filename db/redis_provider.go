package db

import (
	"context"
	"sort"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// RedisProvider implements IterableProvider for Redis. Keys are stored as-is;
// the replay key scheme is printable-prefix plus big-endian slot so SCAN
// patterns still work.
type RedisProvider struct {
	client *redis.Client
	ctx    context.Context
}

// NewRedisProvider creates a new Redis provider
func NewRedisProvider(address string) (DatabaseProvider, error) {
	client := redis.NewClient(&redis.Options{
		Addr: address,
		DB:   3,
	})

	ctx := context.Background()

	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, errors.Wrap(err, "failed to connect to Redis")
	}

	return &RedisProvider{
		client: client,
		ctx:    ctx,
	}, nil
}

func (p *RedisProvider) Get(key []byte) ([]byte, error) {
	value, err := p.client.Get(p.ctx, string(key)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	return value, nil
}

func (p *RedisProvider) GetBatch(keys [][]byte) (map[string][]byte, error) {
	if len(keys) == 0 {
		return make(map[string][]byte), nil
	}

	strKeys := make([]string, len(keys))
	for i, key := range keys {
		strKeys[i] = string(key)
	}

	values, err := p.client.MGet(p.ctx, strKeys...).Result()
	if err != nil {
		return nil, err
	}

	result := make(map[string][]byte, len(keys))
	for i, value := range values {
		if value == nil {
			continue
		}
		if s, ok := value.(string); ok {
			result[strKeys[i]] = []byte(s)
		}
	}
	return result, nil
}

func (p *RedisProvider) Put(key, value []byte) error {
	return p.client.Set(p.ctx, string(key), value, 0).Err()
}

func (p *RedisProvider) Delete(key []byte) error {
	return p.client.Del(p.ctx, string(key)).Err()
}

func (p *RedisProvider) Has(key []byte) (bool, error) {
	count, err := p.client.Exists(p.ctx, string(key)).Result()
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (p *RedisProvider) Close() error {
	return p.client.Close()
}

func (p *RedisProvider) Batch() DatabaseBatch {
	return &RedisBatch{
		client: p.client,
		ctx:    p.ctx,
		pipe:   p.client.Pipeline(),
	}
}

// IteratePrefix scans matching keys, then visits them in key order to mirror
// the on-disk providers. SCAN itself returns keys unordered.
func (p *RedisProvider) IteratePrefix(prefix []byte, callback func(key, value []byte) bool) error {
	pattern := string(prefix) + "*"
	var cursor uint64
	var matched []string
	for {
		keys, newCursor, err := p.client.Scan(p.ctx, cursor, pattern, 1000).Result()
		if err != nil {
			return err
		}
		matched = append(matched, keys...)
		cursor = newCursor
		if cursor == 0 {
			break
		}
	}

	sort.Strings(matched)
	for _, k := range matched {
		val, err := p.client.Get(p.ctx, k).Bytes()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			return err
		}
		if !callback([]byte(k), val) {
			return nil
		}
	}
	return nil
}

// RedisBatch implements DatabaseBatch for Redis
type RedisBatch struct {
	client *redis.Client
	ctx    context.Context
	pipe   redis.Pipeliner
}

func (b *RedisBatch) Put(key, value []byte) {
	b.pipe.Set(b.ctx, string(key), value, 0)
}

func (b *RedisBatch) Delete(key []byte) {
	b.pipe.Del(b.ctx, string(key))
}

func (b *RedisBatch) Write() error {
	_, err := b.pipe.Exec(b.ctx)
	return err
}

func (b *RedisBatch) Reset() {
	b.pipe.Discard()
	b.pipe = b.client.Pipeline()
}

func (b *RedisBatch) Close() {
	b.pipe.Discard()
}
