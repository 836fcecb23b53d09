// ABOUTME: In-memory Backend implementation for tests and ephemeral runs
// ABOUTME: Supports injected failures to exercise degraded persistence paths

package store

import (
	"context"
	"sync"
)

// MemoryBackend is an in-memory Backend implementation.
// GetErr and PutErr, when set, are returned by Get and Put to simulate I/O failures.
type MemoryBackend struct {
	mu      sync.RWMutex
	records map[string][]byte

	GetErr error
	PutErr error

	puts   int
	closed bool
}

// NewMemoryBackend creates a new MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		records: make(map[string][]byte),
	}
}

// Get returns a copy of the stored record.
func (m *MemoryBackend) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.GetErr != nil {
		return nil, m.GetErr
	}
	data, ok := m.records[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

// Put stores a copy of data.
func (m *MemoryBackend) Put(ctx context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.PutErr != nil {
		return m.PutErr
	}
	m.records[key] = append([]byte(nil), data...)
	m.puts++
	return nil
}

// Delete removes the record.
func (m *MemoryBackend) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.records, key)
	return nil
}

// SetRaw stores raw bytes for key, bypassing encoding. Used to plant corrupt records.
func (m *MemoryBackend) SetRaw(key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[key] = data
}

// Puts reports how many successful Put calls have been made.
func (m *MemoryBackend) Puts() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.puts
}

// Close marks the backend closed. Records stay readable.
func (m *MemoryBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Closed reports whether Close has been called.
func (m *MemoryBackend) Closed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}
