package store

import (
	"context"
	"slices"
	"sync"

	"github.com/rickgao/boss-relay/internal/model"
)

// Memory is an in-process Store.
type Memory struct {
	mu       sync.RWMutex
	records  map[string]model.AccountRecord
	capacity int
}

// NewMemory creates an empty in-process store.
func NewMemory(capacity int) *Memory {
	return &Memory{
		records:  make(map[string]model.AccountRecord),
		capacity: capacity,
	}
}

func (m *Memory) Get(_ context.Context, id string) (model.AccountRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[id]
	if !ok {
		return model.AccountRecord{}, ErrNotFound
	}
	return cloneRecord(rec), nil
}

func (m *Memory) Put(_ context.Context, rec model.AccountRecord) error {
	rec = cloneRecord(rec)
	rec.RecentEvents = trim(rec.RecentEvents, m.capacity)
	rec.RecentLogs = trim(rec.RecentLogs, m.capacity)

	m.mu.Lock()
	m.records[rec.AccountID] = rec
	m.mu.Unlock()
	return nil
}

func (m *Memory) SetStatus(_ context.Context, id string, status model.Status) error {
	return m.update(id, func(rec *model.AccountRecord) { rec.Status = status })
}

func (m *Memory) SetStopRequested(_ context.Context, id string, stop bool) error {
	return m.update(id, func(rec *model.AccountRecord) { rec.StopRequested = stop })
}

func (m *Memory) AppendLog(_ context.Context, id string, entry model.LogEntry) error {
	err := m.update(id, func(rec *model.AccountRecord) {
		rec.RecentLogs = model.AppendBounded(rec.RecentLogs, entry, m.capacity)
	})
	if err == ErrNotFound {
		return nil
	}
	return err
}

func (m *Memory) AppendEvent(_ context.Context, id string, e model.Event) error {
	err := m.update(id, func(rec *model.AccountRecord) {
		rec.RecentEvents = model.AppendBounded(rec.RecentEvents, e, m.capacity)
	})
	if err == ErrNotFound {
		return nil
	}
	return err
}

func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	delete(m.records, id)
	m.mu.Unlock()
	return nil
}

func (m *Memory) ListAllIDs(_ context.Context) ([]string, error) {
	return m.list(func(model.AccountRecord) bool { return true }), nil
}

func (m *Memory) ListOnlineIDs(_ context.Context) ([]string, error) {
	return m.list(func(rec model.AccountRecord) bool { return rec.Status == model.StatusOnline }), nil
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close() error { return nil }

func (m *Memory) update(id string, fn func(*model.AccountRecord)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return ErrNotFound
	}
	fn(&rec)
	m.records[id] = rec
	return nil
}

func (m *Memory) list(keep func(model.AccountRecord) bool) []string {
	m.mu.RLock()
	ids := make([]string, 0, len(m.records))
	for id, rec := range m.records {
		if keep(rec) {
			ids = append(ids, id)
		}
	}
	m.mu.RUnlock()
	slices.Sort(ids)
	return ids
}

func cloneRecord(rec model.AccountRecord) model.AccountRecord {
	rec.RecentEvents = slices.Clone(rec.RecentEvents)
	rec.RecentLogs = slices.Clone(rec.RecentLogs)
	return rec
}

func trim[T any](s []T, capacity int) []T {
	if len(s) > capacity {
		return s[len(s)-capacity:]
	}
	return s
}
