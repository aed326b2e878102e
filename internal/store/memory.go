package store

import (
	"bytes"
	"context"
	"hash/fnv"
	"sync"
	"time"
)

const shardCount = 32

// MemoryStore is an in-process Store for tests and single-node deployments.
// Keys are spread across mutex-guarded shards so concurrent updates to
// unrelated identities never serialize on a global lock.
type MemoryStore struct {
	shards [shardCount]*memoryShard
	clock  func() time.Time
}

type memoryShard struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	value     []byte
	count     int64
	expiresAt time.Time // zero means no expiry
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return newMemoryStore(time.Now)
}

func newMemoryStore(clock func() time.Time) *MemoryStore {
	ms := &MemoryStore{clock: clock}
	for i := range ms.shards {
		ms.shards[i] = &memoryShard{entries: make(map[string]memoryEntry)}
	}
	return ms
}

func (ms *MemoryStore) shard(key string) *memoryShard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return ms.shards[h.Sum32()%shardCount]
}

func (ms *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s := ms.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok || entry.expired(ms.clock()) {
		delete(s.entries, key)
		return nil, ErrKeyNotFound
	}

	value := make([]byte, len(entry.value))
	copy(value, entry.value)
	return value, nil
}

func (ms *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s := ms.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = memoryEntry{value: cloneBytes(value), expiresAt: ms.deadline(ttl)}
	return nil
}

func (ms *MemoryStore) Delete(_ context.Context, key string) error {
	s := ms.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	return nil
}

func (ms *MemoryStore) Increment(_ context.Context, key string, window time.Duration) (int64, time.Time, error) {
	s := ms.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	now := ms.clock()
	entry, ok := s.entries[key]
	if !ok || entry.expired(now) {
		entry = memoryEntry{expiresAt: now.Add(window)}
	}
	entry.count++
	s.entries[key] = entry
	return entry.count, entry.expiresAt, nil
}

func (ms *MemoryStore) CompareAndSwap(_ context.Context, key string, prev, next []byte, ttl time.Duration) (bool, error) {
	s := ms.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	now := ms.clock()
	entry, ok := s.entries[key]
	if ok && entry.expired(now) {
		delete(s.entries, key)
		ok = false
	}

	if prev == nil {
		if ok {
			return false, nil
		}
	} else {
		if !ok || !bytes.Equal(entry.value, prev) {
			return false, nil
		}
	}

	s.entries[key] = memoryEntry{value: cloneBytes(next), expiresAt: ms.deadline(ttl)}
	return true, nil
}

// PruneExpired removes entries past their expiry. The cleanup manager calls
// this periodically; Get/Increment also drop expired entries lazily.
func (ms *MemoryStore) PruneExpired(_ context.Context) (int64, error) {
	now := ms.clock()
	var pruned int64

	for _, s := range ms.shards {
		s.mu.Lock()
		for key, entry := range s.entries {
			if entry.expired(now) {
				delete(s.entries, key)
				pruned++
			}
		}
		s.mu.Unlock()
	}

	return pruned, nil
}

func (ms *MemoryStore) deadline(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return ms.clock().Add(ttl)
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
