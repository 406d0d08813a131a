package cache

import (
	"context"
	"sync"
	"time"

	"github.com/tidwall/match"

	"trainflow/internal/metrics"
)

type entry struct {
	val     []byte
	expires time.Time
}

// Memory is an in-process Cache with per-key expiry.
type Memory struct {
	mu    sync.Mutex
	items map[string]entry
	now   func() time.Time
}

func NewMemory() *Memory {
	return &Memory{items: make(map[string]entry), now: time.Now}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.items[key]
	if ok && !e.expires.IsZero() && !m.now().Before(e.expires) {
		delete(m.items, key)
		ok = false
	}
	if !ok {
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		return nil, false
	}
	metrics.CacheLookups.WithLabelValues("hit").Inc()
	out := make([]byte, len(e.val))
	copy(out, e.val)
	return out, true
}

func (m *Memory) Set(_ context.Context, key string, val []byte, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := entry{val: append([]byte(nil), val...)}
	if ttl > 0 {
		e.expires = m.now().Add(ttl)
	}
	m.items[key] = e
}

func (m *Memory) Delete(_ context.Context, keys ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.items, k)
	}
}

// DeleteByPattern removes keys matching a redis-style glob; * also crosses '/'.
func (m *Memory) DeleteByPattern(_ context.Context, pattern string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.items {
		if match.Match(k, pattern) {
			delete(m.items, k)
		}
	}
}

// Len returns the number of stored keys, expired or not.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}
