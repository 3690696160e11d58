// Package imagecache resolves image URLs to data URIs through a memory table,
// a shared in-flight fetch per URL, a durable store and finally the network.
//
// Resolution order:
//
//  1. memory: an image resolved earlier by this Cache
//  2. in-flight: another caller is already fetching the same URL; wait for it
//  3. durable: a data URI persisted by a previous session; no network access
//  4. network: fetch, encode as a data URI, remember in memory and persist
//
// A failed resolution leaves no record behind, so the next reference retries.
package imagecache

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/alnah/go-docpipe/fetch"
	"github.com/alnah/go-docpipe/metrics"
	"github.com/alnah/go-docpipe/store"
)

// DurablePrefix is the key prefix of persisted images in the durable store.
const DurablePrefix = "img:"

// State is the lifecycle state of an image URL within a Cache.
type State int

const (
	Unseen State = iota
	Pending
	Resolved
	Failed
)

func (s State) String() string {
	switch s {
	case Unseen:
		return "unseen"
	case Pending:
		return "pending"
	case Resolved:
		return "resolved"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Source names where a resolution was satisfied from.
type Source string

const (
	SourceMemory  Source = metrics.SourceMemory
	SourceDurable Source = metrics.SourceDurable
	SourceNetwork Source = metrics.SourceNetwork
	SourceNone    Source = metrics.SourceFailed
)

// Image is an in-memory handle to a resolved image.
type Image struct {
	URL         string
	ContentType string
	DataURI     string
}

// Result is the outcome of resolving one image URL.
type Result struct {
	URL    string
	Image  *Image
	State  State
	Source Source
	// Err is set when the image could not be resolved.
	Err error
	// PersistErr is set when the image resolved but could not be written to
	// the durable store. The in-memory handle is still usable.
	PersistErr error
}

// Src returns the value to place in an img src attribute: the data URI when
// resolved, empty otherwise.
func (r Result) Src() string {
	if r.Image == nil {
		return ""
	}
	return r.Image.DataURI
}

// Cache is safe for concurrent use. The zero value is not usable; use New.
type Cache struct {
	fetcher fetch.Fetcher
	durable store.Store
	logger  *slog.Logger
	metrics *metrics.Collector

	mu      sync.RWMutex
	images  map[string]*Image
	pending map[string]struct{}
	group   singleflight.Group
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the logger used for degraded-mode warnings.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(c *Cache) {
		c.metrics = m
	}
}

// New creates a Cache. durable may be nil, in which case images only live in
// memory.
func New(f fetch.Fetcher, durable store.Store, opts ...Option) *Cache {
	c := &Cache{
		fetcher: f,
		durable: durable,
		logger:  slog.Default(),
		images:  make(map[string]*Image),
		pending: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Resolve returns the image for url. It never returns an error directly;
// failures are reported in Result.Err with State Failed.
//
// If ctx is canceled while waiting for a shared fetch, Resolve returns
// immediately but the fetch itself runs to completion and is cached.
func (c *Cache) Resolve(ctx context.Context, url string) Result {
	if img := c.lookup(url); img != nil {
		c.metrics.ImageResolved(string(SourceMemory))
		return Result{URL: url, Image: img, State: Resolved, Source: SourceMemory}
	}

	detached := context.WithoutCancel(ctx)
	ch := c.group.DoChan(url, func() (any, error) {
		return c.resolveOnce(detached, url), nil
	})

	select {
	case r := <-ch:
		return r.Val.(Result)
	case <-ctx.Done():
		return Result{URL: url, State: Failed, Source: SourceNone, Err: ctx.Err()}
	}
}

func (c *Cache) resolveOnce(ctx context.Context, url string) Result {
	c.setPending(url)
	defer c.clearPending(url)

	// A flight that finished between the caller's lookup and this one
	// already populated memory.
	if img := c.lookup(url); img != nil {
		c.metrics.ImageResolved(string(SourceMemory))
		return Result{URL: url, Image: img, State: Resolved, Source: SourceMemory}
	}

	if img := c.loadDurable(ctx, url); img != nil {
		c.remember(img)
		c.metrics.ImageResolved(string(SourceDurable))
		return Result{URL: url, Image: img, State: Resolved, Source: SourceDurable}
	}

	res := c.fetcher.Fetch(ctx, url)
	c.metrics.Fetch("image", res.OK())
	if !res.OK() {
		c.logger.Warn("image fetch failed", "url", url, "status", res.Status, "error", res.Err)
		c.metrics.ImageResolved(string(SourceNone))
		return Result{URL: url, State: Failed, Source: SourceNone, Err: res.Err}
	}

	ct := res.MediaType()
	if !strings.HasPrefix(ct, "image/") {
		ct = sniff(res.Body)
	}
	img := &Image{URL: url, ContentType: ct, DataURI: EncodeDataURI(ct, res.Body)}
	c.remember(img)
	c.metrics.ImageResolved(string(SourceNetwork))

	out := Result{URL: url, Image: img, State: Resolved, Source: SourceNetwork}
	if c.durable != nil {
		if err := c.durable.Set(ctx, DurablePrefix+url, img.DataURI); err != nil {
			c.logger.Warn("image not persisted, keeping in memory only", "url", url, "error", err)
			c.metrics.PersistFailed()
			out.PersistErr = err
		}
	}
	return out
}

// loadDurable returns the persisted image for url, or nil on a miss. Storage
// and decode failures are logged and treated as misses.
func (c *Cache) loadDurable(ctx context.Context, url string) *Image {
	if c.durable == nil {
		return nil
	}
	v, ok, err := c.durable.Get(ctx, DurablePrefix+url)
	if err != nil {
		c.logger.Warn("durable image lookup failed", "url", url, "error", err)
		return nil
	}
	if !ok {
		return nil
	}
	ct, _, err := DecodeDataURI(v)
	if err != nil {
		c.logger.Warn("discarding corrupt persisted image", "url", url, "error", err)
		return nil
	}
	return &Image{URL: url, ContentType: ct, DataURI: v}
}

// State reports the lifecycle state of url. Failed resolutions leave no
// record and report Unseen.
func (c *Cache) State(url string) State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if _, ok := c.images[url]; ok {
		return Resolved
	}
	if _, ok := c.pending[url]; ok {
		return Pending
	}
	return Unseen
}

// Len returns the number of images held in memory.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.images)
}

// Clear drops every in-memory handle and every persisted image. Fetches
// already in flight still complete and repopulate their entries.
func (c *Cache) Clear(ctx context.Context) error {
	c.mu.Lock()
	c.images = make(map[string]*Image)
	c.mu.Unlock()

	if c.durable == nil {
		return nil
	}
	return c.durable.Clear(ctx, DurablePrefix)
}

func (c *Cache) lookup(url string) *Image {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.images[url]
}

func (c *Cache) remember(img *Image) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.images[img.URL] = img
}

func (c *Cache) setPending(url string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending[url] = struct{}{}
}

func (c *Cache) clearPending(url string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, url)
}
