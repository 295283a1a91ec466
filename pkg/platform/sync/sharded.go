// Package sync provides keyed locking for per-owner serialization.
package sync

import (
	"context"
	"hash/maphash"
)

const defaultShards = 32

// ShardedMutex serializes work per key. Keys are spread across a fixed set of
// shards, so unrelated keys rarely contend and the same key always does.
// Lock waits respect context cancellation.
type ShardedMutex struct {
	seed   maphash.Seed
	shards []chan struct{}
}

// NewShardedMutex creates a ShardedMutex with n shards (32 when n <= 0).
func NewShardedMutex(n int) *ShardedMutex {
	if n <= 0 {
		n = defaultShards
	}
	m := &ShardedMutex{seed: maphash.MakeSeed(), shards: make([]chan struct{}, n)}
	for i := range m.shards {
		m.shards[i] = make(chan struct{}, 1)
	}
	return m
}

// Lock acquires the shard for key, or returns ctx's error if it ends first.
func (m *ShardedMutex) Lock(ctx context.Context, key string) error {
	select {
	case m.shards[m.shardFor(key)] <- struct{}{}:
		return nil
	case <-ctx.Done():
		return context.Cause(ctx)
	}
}

// Unlock releases the shard for key. It panics if the shard is not held.
func (m *ShardedMutex) Unlock(key string) {
	select {
	case <-m.shards[m.shardFor(key)]:
	default:
		panic("sync: unlock of unlocked shard")
	}
}

// WithLock runs fn while holding key's shard.
func (m *ShardedMutex) WithLock(ctx context.Context, key string, fn func() error) error {
	if err := m.Lock(ctx, key); err != nil {
		return err
	}
	defer m.Unlock(key)
	return fn()
}

func (m *ShardedMutex) shardFor(key string) int {
	return int(maphash.String(m.seed, key) % uint64(len(m.shards)))
}
