package store

import (
	"context"
	"sort"
	"sync"
)

// Memory is an in-process Store. Values are kept as given.
type Memory struct {
	mu   sync.RWMutex
	data map[Scope]map[string]any
}

// NewMemory creates an empty store.
func NewMemory() *Memory {
	return &Memory{data: make(map[Scope]map[string]any)}
}

// Get implements Store.
func (m *Memory) Get(_ context.Context, scope Scope, key string) (any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.data[scope][key]
	if !ok {
		return nil, ErrNotFound
	}
	return v, nil
}

// Set implements Store.
func (m *Memory) Set(_ context.Context, scope Scope, key string, value any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	bucket, ok := m.data[scope]
	if !ok {
		bucket = make(map[string]any)
		m.data[scope] = bucket
	}
	bucket[key] = value
	return nil
}

// Delete implements Store.
func (m *Memory) Delete(_ context.Context, scope Scope, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.data[scope], key)
	return nil
}

// Keys implements Store. Keys are sorted.
func (m *Memory) Keys(_ context.Context, scope Scope) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.data[scope]))
	for k := range m.data[scope] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}
