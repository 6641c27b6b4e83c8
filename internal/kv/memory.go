package kv

import (
	"context"
	"sync"
	"time"
)

type memoryItem struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
}

func (it memoryItem) expired(now time.Time) bool {
	return !it.expiresAt.IsZero() && now.After(it.expiresAt)
}

type memorySet struct {
	members   map[string]struct{}
	expiresAt time.Time
}

// Memory is a concurrent in-memory Store. It backs local deployments that run
// without an external cache and doubles as the test backend.
type Memory struct {
	mu   sync.RWMutex
	data map[string]memoryItem
	sets map[string]memorySet

	// now is swappable so tests can control expiry.
	now func() time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		data: make(map[string]memoryItem),
		sets: make(map[string]memorySet),
		now:  time.Now,
	}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	it, ok := m.data[key]
	m.mu.RUnlock()

	if !ok || it.expired(m.now()) {
		return nil, ErrMiss
	}
	out := make([]byte, len(it.value))
	copy(out, it.value)
	return out, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	stored := make([]byte, len(value))
	copy(stored, value)

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = m.now().Add(ttl)
	}

	m.mu.Lock()
	m.data[key] = memoryItem{value: stored, expiresAt: expiresAt}
	m.mu.Unlock()
	return nil
}

func (m *Memory) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	for _, key := range keys {
		delete(m.data, key)
		delete(m.sets, key)
	}
	m.mu.Unlock()
	return nil
}

func (m *Memory) SAdd(_ context.Context, key string, members []string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	set, ok := m.sets[key]
	if !ok || set.expired(m.now()) {
		set = memorySet{members: make(map[string]struct{})}
	}
	for _, member := range members {
		set.members[member] = struct{}{}
	}
	if ttl > 0 {
		set.expiresAt = m.now().Add(ttl)
	} else {
		set.expiresAt = time.Time{}
	}
	m.sets[key] = set
	return nil
}

func (s memorySet) expired(now time.Time) bool {
	return !s.expiresAt.IsZero() && now.After(s.expiresAt)
}

func (m *Memory) SMembers(_ context.Context, key string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	set, ok := m.sets[key]
	if !ok || set.expired(m.now()) {
		return nil, nil
	}
	members := make([]string, 0, len(set.members))
	for member := range set.members {
		members = append(members, member)
	}
	return members, nil
}

func (m *Memory) Ping(context.Context) error {
	return nil
}

// Sweep removes expired entries. Callers that keep a long-lived Memory store
// can run this periodically; Get and SMembers already treat expired entries
// as absent regardless.
func (m *Memory) Sweep() {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, it := range m.data {
		if it.expired(now) {
			delete(m.data, key)
		}
	}
	for key, set := range m.sets {
		if set.expired(now) {
			delete(m.sets, key)
		}
	}
}
