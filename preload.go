package docpipe

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/alnah/go-docpipe/internal/pipeline"
	"github.com/alnah/go-docpipe/internal/textcache"
)

// Preload warms the caches for keys: each document's text is fetched (or
// reused), rendered and stored as HTML when no render is cached yet, and its
// images are resolved. Documents are processed concurrently.
//
// A failing document is logged and recorded in the report; it never stops
// the others. Running Preload twice is idempotent: the second run finds every
// entry cached and fetches nothing.
func (p *Pipeline) Preload(ctx context.Context, keys []string) *PreloadReport {
	report := &PreloadReport{Documents: make([]PreloadDocument, len(keys))}

	var g errgroup.Group
	g.SetLimit(p.cfg.concurrency)
	for i, key := range keys {
		g.Go(func() error {
			report.Documents[i] = p.preloadOne(ctx, key)
			return nil
		})
	}
	_ = g.Wait()

	if n := report.Failed(); n > 0 {
		p.logger.Warn("preload finished with failures", "documents", len(keys), "failed", n)
	} else {
		p.logger.Info("preload finished", "documents", len(keys))
	}
	return report
}

func (p *Pipeline) preloadOne(ctx context.Context, key string) PreloadDocument {
	doc := PreloadDocument{Key: key}
	if err := p.checkOpen(); err != nil {
		doc.Err = err
		return doc
	}

	docURL, err := p.ResolveKey(key)
	if err != nil {
		p.logger.Warn("preload skipped invalid key", "key", key, "error", err)
		doc.Err = err
		return doc
	}
	doc.URL = docURL

	text, err := p.loadURL(ctx, docURL)
	if err != nil {
		p.logger.Warn("preload could not load document", "url", docURL, "reason", describeFetch(err))
		doc.Err = err
		return doc
	}

	html, ok := p.cachedHTML(ctx, docURL)
	if !ok {
		html, err = p.renderText(ctx, p.converter, text)
		if err != nil {
			p.logger.Warn("preload could not render document", "url", docURL, "error", err)
			doc.Err = err
			return doc
		}
		if err := p.text.Put(ctx, textcache.HTML, docURL, html); err != nil {
			p.logger.Warn("rendered HTML not cached", "url", docURL, "error", err)
		} else {
			doc.Rendered = true
		}
	}

	refs, err := pipeline.ExtractImages(html, p.base)
	if err != nil {
		doc.Err = err
		return doc
	}
	for _, ref := range refs {
		if ref.Err != nil {
			p.logger.Warn("skipping image with invalid source", "url", docURL, "src", ref.Raw, "error", ref.Err)
		}
	}
	seen := make(map[string]bool, len(refs))
	for _, u := range pipeline.ImageURLs(refs) {
		if !seen[u] {
			seen[u] = true
			doc.Images++
		}
	}

	var g errgroup.Group
	g.SetLimit(p.cfg.concurrency)
	failures := make(chan struct{}, len(seen))
	for url := range seen {
		g.Go(func() error {
			if r := p.images.Resolve(ctx, url); r.State != ImageResolved {
				failures <- struct{}{}
			}
			return nil
		})
	}
	_ = g.Wait()
	close(failures)
	for range failures {
		doc.ImageFailures++
	}
	return doc
}
