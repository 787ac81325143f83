package store

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryBackend keeps every namespace in process memory. Data does not
// survive a restart; it backs tests and local development.
type MemoryBackend struct {
	mu     sync.Mutex
	spaces map[string]*MemoryStore
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{spaces: make(map[string]*MemoryStore)}
}

// Namespace returns the store for name, creating it on first use
func (b *MemoryBackend) Namespace(name string) Store {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.spaces[name]
	if !ok {
		s = NewMemoryStore()
		b.spaces[name] = s
	}
	return s
}

func (b *MemoryBackend) Health(ctx context.Context) error {
	return nil
}

func (b *MemoryBackend) Close() error {
	return nil
}

// MemoryStore is a map-backed Store
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
	wake *time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (m *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *MemoryStore) Put(ctx context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data[key] = append([]byte(nil), value...)
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.data, key)
	return nil
}

func (m *MemoryStore) ListByPrefix(ctx context.Context, prefix string) (map[string][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string][]byte)
	for k, v := range m.data {
		if strings.HasPrefix(k, prefix) {
			out[k] = append([]byte(nil), v...)
		}
	}
	return out, nil
}

func (m *MemoryStore) GetWake(ctx context.Context) (time.Time, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.wake == nil {
		return time.Time{}, false, nil
	}
	return *m.wake, true, nil
}

func (m *MemoryStore) SetWake(ctx context.Context, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.wake = &at
	return nil
}

func (m *MemoryStore) ClearWake(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.wake = nil
	return nil
}

// Len returns the number of keys held, for tests and diagnostics
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}
