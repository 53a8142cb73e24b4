package store

import (
	"context"
	"sync"
)

// Memory is an in-process [Store]. The zero value is not usable; call
// [NewMemory].
type Memory struct {
	mu     sync.RWMutex
	keys   Keys
	values map[string]string
	writes uint64
}

// NewMemory creates an empty in-memory store using the given key names.
func NewMemory(keys Keys) *Memory {
	return &Memory{
		keys:   keys.normalize(),
		values: make(map[string]string, 2),
	}
}

func (m *Memory) Get(_ context.Context) (Pair, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return Pair{
		Access:  m.values[m.keys.Access],
		Refresh: m.values[m.keys.Refresh],
	}, nil
}

func (m *Memory) Set(_ context.Context, pair Pair) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.put(m.keys.Access, pair.Access)
	m.put(m.keys.Refresh, pair.Refresh)
	m.writes++
	return nil
}

func (m *Memory) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.values, m.keys.Access)
	delete(m.values, m.keys.Refresh)
	m.writes++
	return nil
}

// Raw returns the value stored under key and whether it exists.
func (m *Memory) Raw(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok
}

// Len returns the number of stored keys.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.values)
}

// Writes returns how many Set/Clear calls were applied.
func (m *Memory) Writes() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.writes
}

func (m *Memory) put(key, value string) {
	if value == "" {
		delete(m.values, key)
		return
	}
	m.values[key] = value
}
