package cache

import (
	"context"
	"sync"
)

// MemoryStorage implements Storage using in-memory storage. Its contents
// live for the lifetime of the process.
type MemoryStorage struct {
	mu    sync.Mutex
	clock Clock
	items map[Key]*Entry
}

// NewMemoryStorage creates a new in-memory storage.
func NewMemoryStorage(opts ...StorageOption) *MemoryStorage {
	o := buildStorageOptions(opts)
	return &MemoryStorage{
		clock: o.clock,
		items: make(map[Key]*Entry),
	}
}

// Get retrieves an entry, dropping it if it has expired.
func (m *MemoryStorage) Get(_ context.Context, key Key) (*Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.items[key]
	if !ok {
		return nil, false
	}

	now := m.clock.Now()
	if entry.IsExpired(now) {
		delete(m.items, key)
		return nil, false
	}

	entry.touch(now)
	return entry.clone(), true
}

// Set stores an entry under key.
func (m *MemoryStorage) Set(_ context.Context, key Key, entry *Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.items[key] = entry.clone()
}

// Remove deletes the entry stored under key.
func (m *MemoryStorage) Remove(_ context.Context, key Key) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.items, key)
}

// RemoveAll removes every entry.
func (m *MemoryStorage) RemoveAll(_ context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.items = make(map[Key]*Entry)
}

// RemoveEntries removes every entry depending on table.
func (m *MemoryStorage) RemoveEntries(_ context.Context, table string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key, entry := range m.items {
		if entry.DependsOn(table) {
			delete(m.items, key)
		}
	}
}

// AllEntries returns copies of every entry, oldest access first.
func (m *MemoryStorage) AllEntries(_ context.Context) []KeyedEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]KeyedEntry, 0, len(m.items))
	for key, entry := range m.items {
		out = append(out, KeyedEntry{Key: key, Entry: entry.clone()})
	}
	sortByAccess(out)
	return out
}

// Count returns the number of items in the storage (including expired).
func (m *MemoryStorage) Count(_ context.Context) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.items)
}

// Ensure MemoryStorage implements Storage interface
var _ Storage = (*MemoryStorage)(nil)
