package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/offlinekit/recsync/pkg/models"
)

// Memory is a mutex-guarded in-memory Store. It is the zero-configuration
// default and the implementation unit tests run against.
type Memory struct {
	mu      sync.RWMutex
	records map[string]models.Record
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{records: make(map[string]models.Record)}
}

func (m *Memory) Get(_ context.Context, key string) (models.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	record, ok := m.records[key]
	if !ok {
		return models.Record{}, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return record, nil
}

func (m *Memory) Put(_ context.Context, record models.Record) error {
	if record.ID == "" {
		return fmt.Errorf("store: cannot mirror a record without an ID")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[record.ID] = record
	return nil
}

func (m *Memory) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, key)
	return nil
}

func (m *Memory) Keys(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.records))
	for key := range m.records {
		keys = append(keys, key)
	}
	return keys, nil
}
