package ledger

import (
	"context"
	"sync"
)

// Store persists ledger snapshots.
type Store interface {
	Load(ctx context.Context) (Snapshot, error)
	Save(ctx context.Context, snap Snapshot) error
}

// MemoryStore keeps the last saved snapshot in memory. Used when persistence
// is off and in tests.
type MemoryStore struct {
	mu    sync.Mutex
	snap  Snapshot
	saves int
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Load(context.Context) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{Entries: append([]Entry(nil), m.snap.Entries...)}, nil
}

func (m *MemoryStore) Save(_ context.Context, snap Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap = Snapshot{Entries: append([]Entry(nil), snap.Entries...)}
	m.saves++
	return nil
}

// Saves counts Save calls.
func (m *MemoryStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
