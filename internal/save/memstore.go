package save

import (
	"sort"
	"sync"
)

// MemStore is an in-memory Store for tests and hosts that persist
// elsewhere.
type MemStore struct {
	mu    sync.RWMutex
	slots map[string][]byte
}

func NewMemStore() *MemStore {
	return &MemStore{slots: make(map[string][]byte)}
}

func (m *MemStore) Put(slot string, blob []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(blob))
	copy(cp, blob)
	m.slots[slot] = cp
	return nil
}

func (m *MemStore) Get(slot string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	blob, ok := m.slots[slot]
	if !ok {
		return nil, ErrNotFound
	}
	cp := make([]byte, len(blob))
	copy(cp, blob)
	return cp, nil
}

func (m *MemStore) Delete(slot string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.slots, slot)
	return nil
}

func (m *MemStore) Exists(slot string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.slots[slot]
	return ok, nil
}

func (m *MemStore) Slots() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	slots := make([]string, 0, len(m.slots))
	for slot := range m.slots {
		slots = append(slots, slot)
	}
	sort.Strings(slots)
	return slots, nil
}

func (m *MemStore) Close() error { return nil }
