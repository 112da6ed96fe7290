package cache

import (
	"context"
	"sync"
	"time"
)

// MemStore is an in-process Store backed by a map.
type MemStore struct {
	mutex *sync.RWMutex
	db    map[string]Entry
	now   func() time.Time
}

// NewMemStore returns an empty MemStore using the wall clock.
func NewMemStore() *MemStore {
	return NewMemStoreWithClock(time.Now)
}

// NewMemStoreWithClock returns an empty MemStore reading time from now.
func NewMemStoreWithClock(now func() time.Time) *MemStore {
	return &MemStore{
		mutex: &sync.RWMutex{},
		db:    make(map[string]Entry),
		now:   now,
	}
}

func (m *MemStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mutex.RLock()
	entry, ok := m.db[key]
	m.mutex.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if entry.Expired(m.now()) {
		m.purge(key, entry.ExpiresAt)
		return nil, false, nil
	}
	return entry.Value, true, nil
}

// purge deletes key only if it still holds the entry that was seen expired,
// so a concurrent Set is not lost.
func (m *MemStore) purge(key string, expires time.Time) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if current, ok := m.db[key]; ok && current.ExpiresAt.Equal(expires) {
		delete(m.db, key)
	}
}

func (m *MemStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.db[key] = Entry{Value: value, ExpiresAt: expiresAt(m.now(), ttl)}
	return nil
}

func (m *MemStore) Delete(_ context.Context, key string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.db, key)
	return nil
}

func (m *MemStore) Sweep(_ context.Context) (int, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	now := m.now()
	removed := 0
	for key, entry := range m.db {
		if entry.Expired(now) {
			delete(m.db, key)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of entries held, expired or not.
func (m *MemStore) Len() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.db)
}
