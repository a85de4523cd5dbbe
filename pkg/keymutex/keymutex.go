// Package keymutex provides per-key mutual exclusion over a fixed set of
// shards. Operations for one learner must serialize, while different
// learners proceed concurrently; a sharded mutex gives that without an
// unbounded lock table. No external dependencies - uses only standard library.
package keymutex

import (
	"hash/fnv"
	"sync"
)

// DefaultShards is the default number of lock shards.
const DefaultShards = 256

// KeyMutex is a sharded mutex keyed by string. Two distinct keys may map
// to the same shard, which only over-serializes, never under-serializes.
type KeyMutex struct {
	shards []sync.Mutex
}

// New creates a KeyMutex with the given number of shards. A non-positive
// count falls back to DefaultShards.
func New(shards int) *KeyMutex {
	if shards <= 0 {
		shards = DefaultShards
	}
	return &KeyMutex{shards: make([]sync.Mutex, shards)}
}

// shardFor maps a key to its shard index.
func (m *KeyMutex) shardFor(key string) int {
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(m.shards)))
}

// Lock acquires the shard lock for the given key.
func (m *KeyMutex) Lock(key string) {
	m.shards[m.shardFor(key)].Lock()
}

// Unlock releases the shard lock for the given key.
func (m *KeyMutex) Unlock(key string) {
	m.shards[m.shardFor(key)].Unlock()
}

// WithLock runs fn while holding the shard lock for the given key.
func (m *KeyMutex) WithLock(key string, fn func() error) error {
	m.Lock(key)
	defer m.Unlock(key)
	return fn()
}
