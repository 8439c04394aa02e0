// Package store holds the append-only history of synthesized readings.
package store

import (
	"context"
	"sync"

	"github.com/synheart/vitalsynth/internal/models"
)

// Store is the history of readings, ordered by insertion.
type Store interface {
	// Append adds a reading at the end of the history.
	Append(ctx context.Context, r models.Reading) error
	// All returns a copy of the history in insertion order.
	All(ctx context.Context) ([]models.Reading, error)
	// Delete removes the reading with id and reports whether it existed.
	Delete(ctx context.Context, id string) (bool, error)
	// DeleteDevice removes every reading of deviceID and returns how many were removed.
	DeleteDevice(ctx context.Context, deviceID string) (int, error)
	// Load restores the history from durable storage.
	Load(ctx context.Context) error
	// Save writes the history to durable storage.
	Save(ctx context.Context) error
	Close() error
}

// MemoryStore keeps the history in process memory only.
type MemoryStore struct {
	mu       sync.RWMutex
	readings []models.Reading
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Append(_ context.Context, r models.Reading) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readings = append(m.readings, r)
	return nil
}

func (m *MemoryStore) All(_ context.Context) ([]models.Reading, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Reading, len(m.readings))
	copy(out, m.readings)
	return out, nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := m.remove(func(r models.Reading) bool { return r.ID == id })
	return n > 0, nil
}

func (m *MemoryStore) DeleteDevice(_ context.Context, deviceID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.remove(func(r models.Reading) bool { return r.DeviceID == deviceID }), nil
}

// remove drops every reading matching drop, keeping order. Caller holds mu.
func (m *MemoryStore) remove(drop func(models.Reading) bool) int {
	kept := m.readings[:0]
	removed := 0
	for _, r := range m.readings {
		if drop(r) {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	// Clear the tail so dropped readings can be collected.
	for i := len(kept); i < len(m.readings); i++ {
		m.readings[i] = models.Reading{}
	}
	m.readings = kept
	return removed
}

// replace swaps the whole history.
func (m *MemoryStore) replace(readings []models.Reading) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readings = readings
}

// Len returns the number of stored readings.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.readings)
}

func (m *MemoryStore) Load(context.Context) error { return nil }
func (m *MemoryStore) Save(context.Context) error { return nil }
func (m *MemoryStore) Close() error               { return nil }

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*FileStore)(nil)
	_ Store = (*RedisStore)(nil)
)
