package cache

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

type memoryEntry struct {
	payload string
	expires time.Time
}

// Memory is the in-process backend: a size-bounded expirable LRU with a
// per-entry TTL check on top of the cache-wide eviction horizon.
type Memory struct {
	lru  *expirable.LRU[string, memoryEntry]
	hits atomic.Int64
	miss atomic.Int64
	sets atomic.Int64
}

// NewMemory creates a memory cache holding at most size entries.
// maxTTL is the eviction horizon; individual Set calls may use any TTL
// up to it.
func NewMemory(size int, maxTTL time.Duration) *Memory {
	if size <= 0 {
		size = 1024
	}
	return &Memory{
		lru: expirable.NewLRU[string, memoryEntry](size, nil, maxTTL),
	}
}

func (m *Memory) Get(_ context.Context, fingerprint string) (string, bool) {
	e, ok := m.lru.Get(fingerprint)
	if !ok || time.Now().After(e.expires) {
		m.miss.Add(1)
		return "", false
	}
	m.hits.Add(1)
	return e.payload, true
}

func (m *Memory) Set(_ context.Context, fingerprint, payload string, ttl time.Duration) {
	m.lru.Add(fingerprint, memoryEntry{payload: payload, expires: time.Now().Add(ttl)})
	m.sets.Add(1)
}

func (m *Memory) Clear(_ context.Context) int {
	n := m.lru.Len()
	m.lru.Purge()
	m.hits.Store(0)
	m.miss.Store(0)
	m.sets.Store(0)
	return n
}

func (m *Memory) Stats(_ context.Context) Stats {
	h, mi := m.hits.Load(), m.miss.Load()
	return Stats{
		Hits:    h,
		Misses:  mi,
		Sets:    m.sets.Load(),
		Entries: m.lru.Len(),
		HitRate: hitRate(h, mi),
		Backend: "memory",
	}
}

var _ Cache = (*Memory)(nil)
