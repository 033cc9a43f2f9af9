package scenes

import (
	"context"
	"sync"
)

// MemoryStore keeps scene levels in memory only.
type MemoryStore struct {
	mu       sync.RWMutex
	sections map[string]map[int]int
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sections: make(map[string]map[int]int)}
}

// Get implements Store.
func (m *MemoryStore) Get(_ context.Context, section string, register int) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	level, ok := m.sections[section][register]
	if !ok {
		return 0, ErrNotFound
	}
	return level, nil
}

// Set implements Store.
func (m *MemoryStore) Set(_ context.Context, section string, register, level int) error {
	if err := validateLevel(level); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sections[section] == nil {
		m.sections[section] = make(map[int]int)
	}
	m.sections[section][register] = level
	return nil
}
