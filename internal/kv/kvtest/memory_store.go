// Package kvtest provides an in-memory kv.Store for tests.
package kvtest

import (
	"context"
	"path"
	"sort"
	"sync"
	"time"
)

type item struct {
	value     string
	set       map[string]struct{}
	expiresAt time.Time
}

// MemoryStore is a kv.Store held in memory with expiry driven by Now.
type MemoryStore struct {
	mu    sync.Mutex
	items map[string]*item
	now   func() time.Time

	// Calls counts operations by name, for assertions on access patterns.
	Calls map[string]int
	// Err, when set, is returned by every operation.
	Err error
}

// NewMemoryStore returns an empty store using now as its clock.
// A nil now uses time.Now.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}

	return &MemoryStore{items: map[string]*item{}, now: now, Calls: map[string]int{}}
}

func (m *MemoryStore) live(key string) *item {
	it, ok := m.items[key]
	if !ok {
		return nil
	}

	if !it.expiresAt.IsZero() && !m.now().Before(it.expiresAt) {
		delete(m.items, key)

		return nil
	}

	return it
}

func (m *MemoryStore) deadline(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}

	return m.now().Add(ttl)
}

func (m *MemoryStore) enter(op string) error {
	m.Calls[op]++

	return m.Err
}

// Get implements kv.Store.
func (m *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.enter("get"); err != nil {
		return "", false, err
	}

	it := m.live(key)
	if it == nil || it.set != nil {
		return "", false, nil
	}

	return it.value, true, nil
}

// Set implements kv.Store.
func (m *MemoryStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.enter("set"); err != nil {
		return err
	}

	m.items[key] = &item{value: value, expiresAt: m.deadline(ttl)}

	return nil
}

// SetNX implements kv.Store.
func (m *MemoryStore) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.enter("setnx"); err != nil {
		return false, err
	}

	if m.live(key) != nil {
		return false, nil
	}

	m.items[key] = &item{value: value, expiresAt: m.deadline(ttl)}

	return true, nil
}

// Del implements kv.Store.
func (m *MemoryStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.enter("del"); err != nil {
		return err
	}

	for _, k := range keys {
		delete(m.items, k)
	}

	return nil
}

// SAdd implements kv.Store.
func (m *MemoryStore) SAdd(_ context.Context, key string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.enter("sadd"); err != nil {
		return err
	}

	it := m.live(key)
	if it == nil || it.set == nil {
		it = &item{set: map[string]struct{}{}}
		m.items[key] = it
	}

	for _, mem := range members {
		it.set[mem] = struct{}{}
	}

	return nil
}

// SRem implements kv.Store.
func (m *MemoryStore) SRem(_ context.Context, key string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.enter("srem"); err != nil {
		return err
	}

	it := m.live(key)
	if it == nil || it.set == nil {
		return nil
	}

	for _, mem := range members {
		delete(it.set, mem)
	}

	if len(it.set) == 0 {
		delete(m.items, key)
	}

	return nil
}

// SMembers implements kv.Store.
func (m *MemoryStore) SMembers(_ context.Context, key string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.enter("smembers"); err != nil {
		return nil, err
	}

	it := m.live(key)
	if it == nil || it.set == nil {
		return nil, nil
	}

	out := make([]string, 0, len(it.set))
	for mem := range it.set {
		out = append(out, mem)
	}
	sort.Strings(out)

	return out, nil
}

// Expire implements kv.Store.
func (m *MemoryStore) Expire(_ context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.enter("expire"); err != nil {
		return err
	}

	if it := m.live(key); it != nil {
		it.expiresAt = m.deadline(ttl)
	}

	return nil
}

// Keys implements kv.Store.
func (m *MemoryStore) Keys(_ context.Context, pattern string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.enter("keys"); err != nil {
		return nil, err
	}

	var out []string
	for k := range m.items {
		if m.live(k) == nil {
			continue
		}

		if ok, _ := path.Match(pattern, k); ok {
			out = append(out, k)
		}
	}
	sort.Strings(out)

	return out, nil
}

// TTL returns the remaining lifetime of key, or zero when it has none.
func (m *MemoryStore) TTL(key string) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	it := m.live(key)
	if it == nil || it.expiresAt.IsZero() {
		return 0
	}

	return it.expiresAt.Sub(m.now())
}
