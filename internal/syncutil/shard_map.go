package syncutil

import (
	"fmt"
	"hash/fnv"
	"iter"
	"maps"
	"sync"
)

// ShardMap is a thread-safe map that uses sharding to reduce lock contention.
type ShardMap[K comparable, V any] struct {
	shards     []*shard[K, V]
	shardCount uint32
}

// shard is a single thread-safe map with its own mutex.
type shard[K comparable, V any] struct {
	sync.RWMutex
	items map[K]V
}

type ShardsNum uint

// defShardsNum is the default number of shards to use.
const defShardsNum ShardsNum = 32

// NewShardMap creates a new [ShardMap].
// If no number of shards is specified, the default number of shards (32) is used.
// The number of shards can be specified using the [ShardsNum] option and must be greater than 0.
func NewShardMap[K comparable, V any](opts ...any) *ShardMap[K, V] {
	var shardsNum ShardsNum
	for _, o := range opts {
		if v, ok := o.(ShardsNum); ok {
			shardsNum = v
		}
	}

	if shardsNum == 0 {
		shardsNum = defShardsNum
	}

	shards := make([]*shard[K, V], shardsNum)
	for i := range shards {
		shards[i] = &shard[K, V]{
			items: make(map[K]V),
		}
	}

	return &ShardMap[K, V]{
		shards:     shards,
		shardCount: uint32(shardsNum),
	}
}

func (m *ShardMap[K, V]) getShard(key K) *shard[K, V] {
	hash := fnv.New32a()
	fmt.Fprint(hash, key)
	return m.shards[hash.Sum32()%m.shardCount]
}

// Get retrieves a value by key.
func (m *ShardMap[K, V]) Get(key K) (V, bool) {
	shard := m.getShard(key)
	shard.RLock()
	defer shard.RUnlock()
	val, ok := shard.items[key]
	return val, ok
}

// Compute atomically updates the value stored under the key.
// The fn receives the current value and whether it exists, and returns
// the new value and whether it must be kept. When keep is false the key is removed.
// The fn runs under the shard lock and must not access the map.
func (m *ShardMap[K, V]) Compute(key K, fn func(cur V, loaded bool) (val V, keep bool)) (V, bool) {
	shard := m.getShard(key)
	shard.Lock()
	defer shard.Unlock()

	cur, loaded := shard.items[key]
	val, keep := fn(cur, loaded)
	if !keep {
		delete(shard.items, key)
		var zero V
		return zero, false
	}
	shard.items[key] = val
	return val, true
}

// DeleteIf removes the key only when the stored value satisfies the predicate.
func (m *ShardMap[K, V]) DeleteIf(key K, pred func(V) bool) bool {
	shard := m.getShard(key)
	shard.Lock()
	defer shard.Unlock()

	val, ok := shard.items[key]
	if !ok || !pred(val) {
		return false
	}
	delete(shard.items, key)
	return true
}

// Size returns the total number of items in the map.
func (m *ShardMap[K, V]) Size() int {
	size := 0
	for _, shard := range m.shards {
		shard.RLock()
		size += len(shard.items)
		shard.RUnlock()
	}
	return size
}

// Items returns an iterator over all items in the map.
// Every shard is copied before iteration, so yield may access the map.
func (m *ShardMap[K, V]) Items() iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		for _, shard := range m.shards {
			shard.RLock()
			items := maps.Clone(shard.items)
			shard.RUnlock()

			for k, v := range items {
				if !yield(k, v) {
					return
				}
			}
		}
	}
}
