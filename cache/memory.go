package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

type memoryEntry struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// Memory is an in-process Store. It is the fallback when no Redis is
// configured and the first tier of Tiered.
type Memory struct {
	mu         sync.Mutex
	entries    map[string]memoryEntry
	maxEntries int
	now        func() time.Time
	hits       atomic.Int64
	misses     atomic.Int64
}

type MemoryOption func(*Memory)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) {
		m.now = now
	}
}

// NewMemory creates a store holding at most maxEntries keys. maxEntries <= 0
// means unbounded.
func NewMemory(maxEntries int, opts ...MemoryOption) *Memory {
	m := &Memory{
		entries:    map[string]memoryEntry{},
		maxEntries: maxEntries,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Memory) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok || e.expired(m.now()) {
		delete(m.entries, key)
		m.misses.Add(1)
		return "", ErrMiss
	}
	m.hits.Add(1)
	return e.value, nil
}

func (m *Memory) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.store(key, value, ttl)
	return nil
}

func (m *Memory) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.entries[key]; ok && !e.expired(m.now()) {
		return false, nil
	}
	m.store(key, value, ttl)
	return true, nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, key)
	return nil
}

func (m *Memory) Close() error { return nil }

func (m *Memory) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	return Stats{Hits: m.hits.Load(), Misses: m.misses.Load(), Entries: len(m.entries)}
}

// Cleanup removes expired entries until ctx is done.
func (m *Memory) Cleanup(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.mu.Lock()
			m.removeExpired()
			m.mu.Unlock()
		}
	}
}

// store must be called with mu held.
func (m *Memory) store(key, value string, ttl time.Duration) {
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = m.now().Add(ttl)
	}
	if _, exists := m.entries[key]; !exists {
		m.evictIfNeeded()
	}
	m.entries[key] = memoryEntry{value: value, expiresAt: expiresAt}
}

// evictIfNeeded makes room for one more entry. Expired entries go first,
// then the ones closest to expiry. Must be called with mu held.
func (m *Memory) evictIfNeeded() {
	if m.maxEntries <= 0 || len(m.entries) < m.maxEntries {
		return
	}
	m.removeExpired()
	for len(m.entries) >= m.maxEntries {
		var oldestKey string
		var oldestAt time.Time
		for k, e := range m.entries {
			at := e.expiresAt
			if at.IsZero() {
				at = m.now().Add(100 * 365 * 24 * time.Hour)
			}
			if oldestKey == "" || at.Before(oldestAt) {
				oldestKey, oldestAt = k, at
			}
		}
		delete(m.entries, oldestKey)
	}
}

func (m *Memory) removeExpired() {
	now := m.now()
	for k, e := range m.entries {
		if e.expired(now) {
			delete(m.entries, k)
		}
	}
}
