package addressbook

import (
	"context"
	"sort"
	"sync"

	"github.com/mbd888/safeshield/internal/analysis"
)

// MemoryStore is an in-memory Store.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]map[string]*Entry // chainID -> address -> entry
}

// NewMemoryStore creates an empty in-memory address book.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]map[string]*Entry)}
}

var _ Store = (*MemoryStore)(nil)

func (m *MemoryStore) IsKnown(_ context.Context, chainID, address string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.entries[chainID][analysis.Checksum(address)]
	return ok, nil
}

func (m *MemoryStore) Add(_ context.Context, entry *Entry) error {
	if err := NormalizeEntry(entry); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	book, ok := m.entries[entry.ChainID]
	if !ok {
		book = make(map[string]*Entry)
		m.entries[entry.ChainID] = book
	}
	if existing, ok := book[entry.Address]; ok {
		entry.CreatedAt = existing.CreatedAt
	}
	cp := *entry
	book[entry.Address] = &cp
	return nil
}

func (m *MemoryStore) Remove(_ context.Context, chainID, address string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	addr := analysis.Checksum(address)
	if _, ok := m.entries[chainID][addr]; !ok {
		return ErrNotFound
	}
	delete(m.entries[chainID], addr)
	return nil
}

func (m *MemoryStore) List(_ context.Context, chainID string) ([]*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Entry, 0, len(m.entries[chainID]))
	for _, e := range m.entries[chainID] {
		cp := *e
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out, nil
}
