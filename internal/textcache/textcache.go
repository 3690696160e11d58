// Package textcache stores fetched document text and rendered HTML in the
// session store, one value per document URL and kind.
package textcache

import (
	"context"
	"errors"

	"github.com/alnah/go-docpipe/store"
)

// Kind selects which representation of a document is addressed.
type Kind string

// Key prefixes for each kind.
const (
	Text Kind = "text:"
	HTML Kind = "html:"
)

// Cache is a typed view over a session store.
type Cache struct {
	store store.Store
}

// New creates a Cache over s.
func New(s store.Store) *Cache {
	return &Cache{store: s}
}

func key(kind Kind, docURL string) string {
	return string(kind) + docURL
}

// Get returns the cached value of kind for docURL.
func (c *Cache) Get(ctx context.Context, kind Kind, docURL string) (string, bool, error) {
	return c.store.Get(ctx, key(kind, docURL))
}

// Put stores value as the single cached value of kind for docURL.
func (c *Cache) Put(ctx context.Context, kind Kind, docURL, value string) error {
	return c.store.Set(ctx, key(kind, docURL), value)
}

// Delete removes the cached value of kind for docURL.
func (c *Cache) Delete(ctx context.Context, kind Kind, docURL string) error {
	return c.store.Delete(ctx, key(kind, docURL))
}

// Clear removes every cached text and HTML value.
func (c *Cache) Clear(ctx context.Context) error {
	return errors.Join(
		c.store.Clear(ctx, string(Text)),
		c.store.Clear(ctx, string(HTML)),
	)
}
