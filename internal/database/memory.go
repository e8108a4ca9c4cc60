package database

import (
	"context"
	"sort"
	"sync"

	"github.com/franckalain/fooddeclare/internal/models"
)

// MemoryStore implements DB in memory. It is used by tests and by
// store.type=memory; FailSaves makes every Save fail with the given error.
type MemoryStore struct {
	mu        sync.RWMutex
	values    map[string][]byte
	scans     []*models.ScanRecord
	failSaves error
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string][]byte)}
}

// FailSaves makes subsequent saves return err; nil restores normal behaviour
func (m *MemoryStore) FailSaves(err error) {
	m.mu.Lock()
	m.failSaves = err
	m.mu.Unlock()
}

// Load returns a copy of the stored value
func (m *MemoryStore) Load(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.values[key]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), v...), nil
}

// Save stores a copy of data
func (m *MemoryStore) Save(ctx context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failSaves != nil {
		return m.failSaves
	}
	m.values[key] = append([]byte(nil), data...)
	return nil
}

// SaveScan appends to the in-memory history
func (m *MemoryStore) SaveScan(ctx context.Context, scan *models.ScanRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *scan
	m.scans = append(m.scans, &cp)
	return nil
}

// RecentScans returns up to limit records, newest first
func (m *MemoryStore) RecentScans(ctx context.Context, limit int) ([]*models.ScanRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.ScanRecord, 0, len(m.scans))
	for i := len(m.scans) - 1; i >= 0; i-- {
		cp := *m.scans[i]
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit >= 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Close releases nothing
func (m *MemoryStore) Close() error {
	return nil
}

var _ DB = (*MemoryStore)(nil)
