package docpipe

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/alnah/go-docpipe/fetch"
	"github.com/alnah/go-docpipe/internal/fileutil"
	"github.com/alnah/go-docpipe/internal/imagecache"
	"github.com/alnah/go-docpipe/internal/pipeline"
	"github.com/alnah/go-docpipe/internal/textcache"
	"github.com/alnah/go-docpipe/metrics"
	"github.com/alnah/go-docpipe/store"
)

// Compile-time interface implementation checks.
var (
	_ pipeline.HTMLConverter = (*pipeline.GoldmarkConverter)(nil)
	_ fetch.Fetcher          = (*fetch.HTTPFetcher)(nil)
	_ store.Store            = (*store.Memory)(nil)
	_ store.Store            = (*store.SQLite)(nil)
	_ store.Store            = (*store.Redis)(nil)
)

// defaultConcurrency bounds image resolutions per document and documents
// per Preload when WithConcurrency is not given.
const defaultConcurrency = pipeline.DefaultImageConcurrency

// Pipeline resolves, renders and caches documents. All cache state is owned
// by the instance; two Pipelines never share memory tables.
//
// Pipeline is safe for concurrent use. Create with New and Close when done.
type Pipeline struct {
	cfg     pipelineConfig
	base    *url.URL
	logger  *slog.Logger
	metrics *metrics.Collector

	session store.Store
	durable store.Store
	fetcher fetch.Fetcher

	text        *textcache.Cache
	images      *imagecache.Cache
	highlighter *pipeline.Highlighter
	converter   pipeline.HTMLConverter
	generated   pipeline.HTMLConverter

	textFlight singleflight.Group

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// New creates a Pipeline. Nothing is fetched and the highlighter is not
// loaded until first use.
func New(opts ...Option) (*Pipeline, error) {
	cfg := pipelineConfig{
		concurrency: defaultConcurrency,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	var base *url.URL
	if cfg.baseURL != "" {
		u, err := url.Parse(cfg.baseURL)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidBaseURL, err)
		}
		if !u.IsAbs() {
			return nil, fmt.Errorf("%w: %q is not absolute", ErrInvalidBaseURL, cfg.baseURL)
		}
		base = u
	}

	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	if cfg.session == nil {
		cfg.session = store.NewMemory(0)
	}
	if cfg.durable == nil {
		cfg.durable = store.NewMemory(0)
	}
	if cfg.fetcher == nil {
		var fopts []fetch.Option
		if base != nil && base.Scheme == "file" {
			fopts = append(fopts, fetch.WithFileRoot(fileutil.FromFileURL(base)))
		}
		cfg.fetcher = fetch.NewHTTPFetcher(fopts...)
	}

	p := &Pipeline{
		cfg:         cfg,
		base:        base,
		logger:      cfg.logger,
		metrics:     cfg.metrics,
		session:     cfg.session,
		durable:     cfg.durable,
		fetcher:     cfg.fetcher,
		text:        textcache.New(cfg.session),
		highlighter: pipeline.NewHighlighter(cfg.highlightStyle),
	}
	p.images = imagecache.New(cfg.fetcher, cfg.durable,
		imagecache.WithLogger(cfg.logger),
		imagecache.WithMetrics(cfg.metrics),
	)
	p.converter = pipeline.NewGoldmarkConverter(
		pipeline.WithHighlighter(p.highlighter),
		pipeline.WithConverterLogger(cfg.logger),
	)
	p.generated = pipeline.NewGoldmarkConverter(
		pipeline.WithHighlighter(p.highlighter),
		pipeline.WithConverterLogger(cfg.logger),
		pipeline.WithRawHTML(),
	)
	return p, nil
}

// BaseURL returns the configured base URL, or "" when none is set.
func (p *Pipeline) BaseURL() string {
	if p.base == nil {
		return ""
	}
	return p.base.String()
}

// SiteName returns the name used in page titles.
func (p *Pipeline) SiteName() string {
	if p.cfg.siteName == "" {
		return pipeline.DefaultSiteName
	}
	return p.cfg.siteName
}

// ResolveKey returns the absolute document URL for key. Relative keys are
// resolved against the base URL.
func (p *Pipeline) ResolveKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", ErrEmptyKey
	}
	u, err := url.Parse(key)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrInvalidKey, key, err)
	}
	if p.base != nil {
		u = p.base.ResolveReference(u)
	}
	if !u.IsAbs() {
		return "", fmt.Errorf("%w: relative key %q without a base URL", ErrInvalidKey, key)
	}
	return u.String(), nil
}

// Close releases the session and durable stores. Close is idempotent; every
// later operation fails with ErrClosed.
func (p *Pipeline) Close() error {
	p.closeOnce.Do(func() {
		p.closed.Store(true)
		errs := []error{p.session.Close()}
		if p.durable != p.session {
			errs = append(errs, p.durable.Close())
		}
		p.closeErr = errors.Join(errs...)
	})
	return p.closeErr
}

func (p *Pipeline) checkOpen() error {
	if p.closed.Load() {
		return ErrClosed
	}
	return nil
}
