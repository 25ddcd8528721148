package checkpoint

import (
	"fmt"
	"sync"
)

// MemoryStore implements Store with in-memory storage.
//
// Thread-safe via sync.RWMutex. Records are lost when the process
// terminates, so the memory store suits development and testing rather than
// production recovery scenarios.
type MemoryStore[S any] struct {
	records map[string]Record[S]
	mu      sync.RWMutex
}

// NewMemoryStore creates a Store backed by process memory.
func NewMemoryStore[S any]() *MemoryStore[S] {
	return &MemoryStore[S]{
		records: make(map[string]Record[S]),
	}
}

func (m *MemoryStore[S]) Save(record Record[S]) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.records[record.RunID] = record
	return nil
}

func (m *MemoryStore[S]) Load(runID string) (Record[S], error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	record, exists := m.records[runID]
	if !exists {
		return Record[S]{}, fmt.Errorf("%w: %s", ErrNotFound, runID)
	}
	return record, nil
}

func (m *MemoryStore[S]) Delete(runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.records, runID)
	return nil
}

func (m *MemoryStore[S]) List() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.records))
	for id := range m.records {
		ids = append(ids, id)
	}
	return ids, nil
}
