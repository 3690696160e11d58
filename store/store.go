// Package store provides the key-value stores behind the document and image caches.
//
// Two lifetimes are modeled with the same interface:
//   - session stores hold fetched document text and rendered HTML for the
//     duration of one session (Memory, or Redis with a session namespace)
//   - durable stores hold encoded images until explicitly cleared
//     (SQLite, Redis, or Memory in tests)
//
// Individual writes are atomic; no multi-key transactions are offered.
package store

import (
	"context"
	"errors"
)

// Sentinel errors for store operations.
var (
	ErrQuotaExceeded = errors.New("store capacity exceeded")
	ErrClosed        = errors.New("store is closed")
)

// Store is a string key-value store.
type Store interface {
	// Get returns the value for key. A missing key is not an error.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	// Set writes value under key. Returns ErrQuotaExceeded (wrapped) when the
	// write would exceed the store's capacity.
	Set(ctx context.Context, key, value string) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Clear removes every key starting with prefix. An empty prefix clears all.
	Clear(ctx context.Context, prefix string) error
	Close() error
}

// IsQuotaExceeded reports whether err signals a capacity failure.
func IsQuotaExceeded(err error) bool {
	return errors.Is(err, ErrQuotaExceeded)
}
