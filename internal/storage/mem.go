package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/developingchet/staywindow/internal/trip"
)

var _ Store = (*MemStore)(nil)

// MemStore is an in-memory implementation of Store for tests and the
// "memory" backend. It keeps the same serialized form as the other backends.
type MemStore struct {
	mu     sync.Mutex
	trips  map[string][]byte
	closed bool
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{trips: make(map[string][]byte)}
}

func (m *MemStore) LoadRawTrips(_ context.Context, traveller string) ([]trip.Raw, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	return decodeRaw(m.trips[TravellerKey(traveller)])
}

func (m *MemStore) SaveTrips(_ context.Context, traveller string, s trip.Set) error {
	data, err := encodeSet(s)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.trips[TravellerKey(traveller)] = data
	return nil
}

func (m *MemStore) UpdateTrips(_ context.Context, traveller string, fn UpdateFunc) (trip.Set, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	key := TravellerKey(traveller)
	current, err := decodeSet(m.trips[key])
	if err != nil {
		return nil, err
	}
	next, err := fn(current)
	if err != nil {
		return nil, err
	}
	data, err := encodeSet(next)
	if err != nil {
		return nil, err
	}
	m.trips[key] = data
	return next, nil
}

func (m *MemStore) Travellers(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	names := make([]string, 0, len(m.trips))
	for k := range m.trips {
		names = append(names, k)
	}
	sort.Strings(names)
	return names, nil
}

func (m *MemStore) Ping(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	return nil
}

// DBPath is always empty for the in-memory store.
func (m *MemStore) DBPath() string { return "" }

func (m *MemStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
