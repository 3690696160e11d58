package docpipe

import (
	"log/slog"

	"github.com/alnah/go-docpipe/fetch"
	"github.com/alnah/go-docpipe/metrics"
	"github.com/alnah/go-docpipe/store"
)

// Option configures a Pipeline.
type Option func(*pipelineConfig)

type pipelineConfig struct {
	baseURL        string
	session        store.Store
	durable        store.Store
	fetcher        fetch.Fetcher
	logger         *slog.Logger
	metrics        *metrics.Collector
	highlightStyle string
	docsURL        string
	concurrency    int
	siteName       string
}

// WithBaseURL sets the page location that relative document keys and image
// sources are resolved against. Must be an absolute URL (http, https or file).
func WithBaseURL(u string) Option {
	return func(c *pipelineConfig) {
		c.baseURL = u
	}
}

// WithSessionStore sets the store for document text and rendered HTML.
// Defaults to an in-memory store that lives as long as the Pipeline.
func WithSessionStore(s store.Store) Option {
	return func(c *pipelineConfig) {
		c.session = s
	}
}

// WithDurableStore sets the store for persisted images. Defaults to an
// in-memory store.
func WithDurableStore(s store.Store) Option {
	return func(c *pipelineConfig) {
		c.durable = s
	}
}

// WithFetcher replaces the HTTP fetcher. The default fetcher serves file://
// URLs only when the base URL is a file:// directory, and only below it.
func WithFetcher(f fetch.Fetcher) Option {
	return func(c *pipelineConfig) {
		c.fetcher = f
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *pipelineConfig) {
		c.logger = l
	}
}

// WithMetrics enables Prometheus counters.
func WithMetrics(m *metrics.Collector) Option {
	return func(c *pipelineConfig) {
		c.metrics = m
	}
}

// WithHighlightStyle sets the Chroma style for code blocks.
func WithHighlightStyle(name string) Option {
	return func(c *pipelineConfig) {
		c.highlightStyle = name
	}
}

// WithDocsURL sets the documentation link appended to fetch error hints.
func WithDocsURL(u string) Option {
	return func(c *pipelineConfig) {
		c.docsURL = u
	}
}

// WithConcurrency bounds concurrent image resolutions per document and
// concurrent documents per Preload.
// Panics if n <= 0 (programmer error, similar to time.NewTicker).
func WithConcurrency(n int) Option {
	if n <= 0 {
		panic("docpipe: WithConcurrency must be positive")
	}
	return func(c *pipelineConfig) {
		c.concurrency = n
	}
}

// WithSiteName sets the site name used in page titles.
func WithSiteName(name string) Option {
	return func(c *pipelineConfig) {
		c.siteName = name
	}
}
