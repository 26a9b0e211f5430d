package store

import (
	"context"
	"sync"
)

// Memory keeps records in process memory.
type Memory struct {
	mu      sync.RWMutex
	records map[string]Record
}

func NewMemory() *Memory {
	return &Memory{records: make(map[string]Record)}
}

func (m *Memory) Save(ctx context.Context, rec *Record) error {
	touch(rec)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.ID] = clone(*rec)
	return nil
}

func (m *Memory) Get(ctx context.Context, id string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := clone(rec)
	return &out, nil
}

func (m *Memory) Close() error {
	return nil
}

func clone(rec Record) Record {
	if rec.Result != nil {
		rec.Result = append([]byte(nil), rec.Result...)
	}
	return rec
}
