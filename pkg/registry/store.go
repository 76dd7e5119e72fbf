package registry

import "sync"

// Store persists the static fields of paired devices.
//
// SaveAll replaces the whole collection atomically: readers never observe a
// partial write. Implementations must be safe for concurrent use.
type Store interface {
	LoadAll() ([]Record, error)
	SaveAll(records []Record) error
}

// MemoryStore is an in-memory Store.
// Useful for testing and development. Data is lost when the process exits.
type MemoryStore struct {
	mu      sync.RWMutex
	records []Record
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// LoadAll returns copies of all stored records.
func (m *MemoryStore) LoadAll() ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return cloneRecords(m.records), nil
}

// SaveAll replaces all stored records.
func (m *MemoryStore) SaveAll(records []Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = cloneRecords(records)
	return nil
}

func cloneRecords(records []Record) []Record {
	out := make([]Record, len(records))
	for i := range records {
		out[i] = records[i].static()
	}
	return out
}
