package storage

import (
	"context"
	"sort"
	"sync"
)

// MemoryBackend is an in-memory Backend, the default for tests and for
// ephemeral peers that never intend to persist across restarts.
type MemoryBackend struct {
	mu   sync.RWMutex
	data map[string]Entry
}

// NewMemoryBackend returns an empty in-memory Backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{data: make(map[string]Entry)}
}

func (m *MemoryBackend) Put(_ context.Context, key Key, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(value))
	copy(cp, value)
	m.data[key.String()] = Entry{Key: key.Clone(), Value: cp}
	return nil
}

func (m *MemoryBackend) Get(_ context.Context, key Key) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.data[key.String()]
	if !ok {
		return nil, false, nil
	}
	cp := make([]byte, len(e.Value))
	copy(cp, e.Value)
	return cp, true, nil
}

func (m *MemoryBackend) ListPrefix(_ context.Context, prefix Key) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Entry
	for _, e := range m.data {
		if e.Key.HasPrefix(prefix) {
			cp := make([]byte, len(e.Value))
			copy(cp, e.Value)
			out = append(out, Entry{Key: e.Key.Clone(), Value: cp})
		}
	}
	// Deterministic order: the bundle codec depends on prefix listings
	// being stable across calls.
	sort.Slice(out, func(i, j int) bool { return out[i].Key.String() < out[j].Key.String() })
	return out, nil
}

func (m *MemoryBackend) Delete(_ context.Context, key Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key.String())
	return nil
}
