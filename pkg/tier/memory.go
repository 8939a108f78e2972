package tier

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory Store. It backs unit tests and
// single-process deployments that don't need snapshots to survive restarts.
type MemoryStore struct {
	mu    sync.RWMutex
	tiers map[string]map[string]*Snapshot
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tiers: make(map[string]map[string]*Snapshot),
	}
}

// Get implements Store.
func (m *MemoryStore) Get(_ context.Context, tierName string, id Identity) (*Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap, ok := m.tiers[tierName][id.String()]
	if !ok {
		Misses.WithLabelValues(tierName).Inc()
		return nil, ErrMiss
	}
	Hits.WithLabelValues(tierName).Inc()
	return snap, nil
}

// Put implements Store.
func (m *MemoryStore) Put(_ context.Context, tierName string, id Identity, snap *Snapshot) error {
	if !id.Cacheable() {
		return ErrNotCacheable
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	entries, ok := m.tiers[tierName]
	if !ok {
		entries = make(map[string]*Snapshot)
		m.tiers[tierName] = entries
	}
	entries[id.String()] = snap
	SnapshotBytes.WithLabelValues(tierName).Add(float64(len(snap.Body)))
	return nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(_ context.Context, tierName string, id Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tiers[tierName], id.String())
	return nil
}

// TierNames implements Store.
func (m *MemoryStore) TierNames(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.tiers))
	for name := range m.tiers {
		names = append(names, name)
	}
	return names, nil
}

// DropTier implements Store.
func (m *MemoryStore) DropTier(_ context.Context, tierName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tiers, tierName)
	return nil
}

// Len returns the number of snapshots in the named tier (for tests).
func (m *MemoryStore) Len(tierName string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.tiers[tierName])
}
