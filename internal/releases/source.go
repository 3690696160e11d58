package releases

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/alnah/go-docpipe/fetch"
	"github.com/alnah/go-docpipe/store"
)

// Defaults for Source.
const (
	DefaultTTL       = 90 * time.Second
	DefaultIndexPath = "/downloads/index.json"
	DefaultMetaPath  = "/downloads/meta.json"

	cachePrefix = "json:"
)

// Source loads release data, caching each JSON file in the session store for
// a short TTL.
type Source struct {
	fetcher   fetch.Fetcher
	session   store.Store
	base      *url.URL
	ttl       time.Duration
	live      bool
	now       func() time.Time
	indexPath string
	metaPath  string
	logger    *slog.Logger
}

// Option configures a Source.
type Option func(*Source)

// WithTTL sets how long a cached JSON file is served.
func WithTTL(d time.Duration) Option {
	return func(s *Source) {
		s.ttl = d
	}
}

// WithLivePreview bypasses the session cache entirely.
func WithLivePreview(live bool) Option {
	return func(s *Source) {
		s.live = live
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Source) {
		s.now = now
	}
}

// WithPaths overrides the index and meta paths.
func WithPaths(index, meta string) Option {
	return func(s *Source) {
		if index != "" {
			s.indexPath = index
		}
		if meta != "" {
			s.metaPath = meta
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Source) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewSource creates a Source. baseURL is the site root; the index and meta
// paths resolve below it even when written with a leading slash.
func NewSource(f fetch.Fetcher, session store.Store, baseURL string, opts ...Option) (*Source, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", baseURL, err)
	}
	s := &Source{
		fetcher:   f,
		session:   session,
		base:      base,
		ttl:       DefaultTTL,
		now:       time.Now,
		indexPath: DefaultIndexPath,
		metaPath:  DefaultMetaPath,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Index loads index.json.
func (s *Source) Index(ctx context.Context) (Index, error) {
	raw, err := s.getJSON(ctx, s.indexPath, compiledIndexSchema)
	if err != nil {
		return nil, err
	}
	var idx Index
	if err := json.Unmarshal(raw, &idx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidIndex, err)
	}
	return idx, nil
}

// Meta loads meta.json.
func (s *Source) Meta(ctx context.Context) (Meta, error) {
	raw, err := s.getJSON(ctx, s.metaPath, compiledMetaSchema)
	if err != nil {
		return nil, err
	}
	var meta Meta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidIndex, err)
	}
	return meta, nil
}

// Versions returns every version, newest first.
func (s *Source) Versions(ctx context.Context) ([]string, error) {
	idx, err := s.Index(ctx)
	if err != nil {
		return nil, err
	}
	return SortVersions(idx), nil
}

// Latest returns the newest version.
func (s *Source) Latest(ctx context.Context) (string, error) {
	versions, err := s.Versions(ctx)
	if err != nil {
		return "", err
	}
	if len(versions) == 0 {
		return "", ErrNoReleases
	}
	return versions[0], nil
}

// SortVersions returns the keys of idx, newest first, comparing digit runs
// numerically.
func SortVersions(idx Index) []string {
	versions := make([]string, 0, len(idx))
	for v := range idx {
		versions = append(versions, v)
	}
	sort.Slice(versions, func(i, j int) bool {
		return naturalLess(versions[j], versions[i])
	})
	return versions
}

type cachedJSON struct {
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"` // Unix milliseconds
}

func (s *Source) getJSON(ctx context.Context, path string, schema *jsonschema.Schema) ([]byte, error) {
	key := cachePrefix + path
	if !s.live {
		if raw, ok := s.cached(ctx, key); ok {
			return raw, nil
		}
	}

	ref, err := url.Parse(strings.TrimPrefix(path, "/"))
	if err != nil {
		return nil, fmt.Errorf("%w from %s: %v", ErrLoad, path, err)
	}
	target := s.base.ResolveReference(ref).String()

	res := s.fetcher.Fetch(ctx, target)
	if !res.OK() {
		return nil, fmt.Errorf("%w from %s: %v", ErrLoad, path, res.Err)
	}
	if err := validate(schema, res.Body); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	if !s.live {
		entry, err := json.Marshal(cachedJSON{Data: res.Body, Timestamp: s.now().UnixMilli()})
		if err == nil {
			err = s.session.Set(ctx, key, string(entry))
		}
		if err != nil {
			s.logger.Warn("release data not cached", "path", path, "error", err)
		}
	}
	return res.Body, nil
}

// cached returns a fresh cache entry. Expired or corrupt entries are removed.
func (s *Source) cached(ctx context.Context, key string) ([]byte, bool) {
	v, ok, err := s.session.Get(ctx, key)
	if err != nil || !ok {
		return nil, false
	}

	var entry cachedJSON
	if err := json.Unmarshal([]byte(v), &entry); err == nil {
		age := s.now().Sub(time.UnixMilli(entry.Timestamp))
		if age < s.ttl {
			return entry.Data, true
		}
	}
	if err := s.session.Delete(ctx, key); err != nil {
		s.logger.Warn("stale release data not removed", "key", key, "error", err)
	}
	return nil, false
}
