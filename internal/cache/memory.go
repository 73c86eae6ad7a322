package cache

import (
	"context"
	"sync"
)

// Memory is the default in-process cache.
type Memory struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

// NewMemory creates an empty in-memory cache.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string][]byte)}
}

func (m *Memory) Get(_ context.Context, label string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.entries[cacheKey(label)]
	if !ok {
		return nil, false, nil
	}
	// Copy out so callers cannot mutate the cached value.
	out := make([]byte, len(data))
	copy(out, data)
	return out, true, nil
}

func (m *Memory) Set(_ context.Context, label string, data []byte) error {
	stored := make([]byte, len(data))
	copy(stored, data)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[cacheKey(label)] = stored
	return nil
}

func (m *Memory) Delete(_ context.Context, label string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, cacheKey(label))
	return nil
}

func (m *Memory) Close() error {
	return nil
}
