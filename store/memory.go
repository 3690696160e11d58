package store

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Memory is an in-process Store. It is the default session store: its
// contents live exactly as long as the value itself.
type Memory struct {
	mu       sync.RWMutex
	entries  map[string]string
	size     int
	maxBytes int
	closed   bool
}

// NewMemory creates a Memory store. maxBytes caps the summed length of keys
// and values; zero or negative means unbounded.
func NewMemory(maxBytes int) *Memory {
	return &Memory{
		entries:  make(map[string]string),
		maxBytes: maxBytes,
	}
}

func (m *Memory) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return "", false, ErrClosed
	}
	v, ok := m.entries[key]
	return v, ok, nil
}

func (m *Memory) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	delta := len(key) + len(value)
	if old, ok := m.entries[key]; ok {
		delta -= len(key) + len(old)
	}
	if m.maxBytes > 0 && m.size+delta > m.maxBytes {
		return fmt.Errorf("%w: %d bytes used, %d requested (max %d)", ErrQuotaExceeded, m.size, delta, m.maxBytes)
	}

	m.entries[key] = value
	m.size += delta
	return nil
}

func (m *Memory) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	m.deleteLocked(key)
	return nil
}

func (m *Memory) Clear(ctx context.Context, prefix string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	for k := range m.entries {
		if strings.HasPrefix(k, prefix) {
			m.deleteLocked(k)
		}
	}
	return nil
}

func (m *Memory) deleteLocked(key string) {
	if old, ok := m.entries[key]; ok {
		m.size -= len(key) + len(old)
		delete(m.entries, key)
	}
}

// Close drops all entries. Further calls return ErrClosed.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.entries = nil
	m.size = 0
	return nil
}

// Len returns the number of stored keys.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Size returns the summed length of stored keys and values.
func (m *Memory) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.size
}
