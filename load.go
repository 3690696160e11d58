package docpipe

import (
	"context"
	"errors"
	"fmt"

	"github.com/alnah/go-docpipe/fetch"
	"github.com/alnah/go-docpipe/internal/hints"
	"github.com/alnah/go-docpipe/internal/textcache"
)

// LoadText returns the text of the document at key. An empty key returns
// fallback without any lookup. A cached text is returned without touching the
// network; otherwise the document is fetched and cached on success. Failed
// fetches return a *FetchError and leave the cache untouched.
func (p *Pipeline) LoadText(ctx context.Context, key, fallback string) (string, error) {
	if key == "" {
		return fallback, nil
	}
	if err := p.checkOpen(); err != nil {
		return "", err
	}
	docURL, err := p.ResolveKey(key)
	if err != nil {
		return "", err
	}
	return p.loadURL(ctx, docURL)
}

func (p *Pipeline) loadURL(ctx context.Context, docURL string) (string, error) {
	if text, ok := p.cachedText(ctx, docURL); ok {
		p.metrics.TextCacheHit()
		return text, nil
	}
	p.metrics.TextCacheMiss()

	// Issued fetches are never canceled; a canceled caller only stops waiting.
	detached := context.WithoutCancel(ctx)
	ch := p.textFlight.DoChan(docURL, func() (any, error) {
		// Another flight may have filled the cache since the lookup above.
		if text, ok := p.cachedText(detached, docURL); ok {
			return text, nil
		}

		res := p.fetcher.Fetch(detached, docURL)
		p.metrics.Fetch("text", res.OK())
		if !res.OK() {
			return nil, p.fetchError(res)
		}

		text := string(res.Body)
		if err := p.text.Put(detached, textcache.Text, docURL, text); err != nil {
			p.logger.Warn("document text not cached", "url", docURL, "error", err)
		}
		return text, nil
	})

	select {
	case r := <-ch:
		if r.Err != nil {
			return "", r.Err
		}
		return r.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// cachedText looks up docURL in the session store. Storage failures are
// logged and treated as misses.
func (p *Pipeline) cachedText(ctx context.Context, docURL string) (string, bool) {
	text, ok, err := p.text.Get(ctx, textcache.Text, docURL)
	if err != nil {
		p.logger.Warn("session store read failed", "url", docURL, "error", err)
		return "", false
	}
	return text, ok
}

// cachedHTML returns the stored render of docURL, if any.
func (p *Pipeline) cachedHTML(ctx context.Context, docURL string) (string, bool) {
	html, ok, err := p.text.Get(ctx, textcache.HTML, docURL)
	if err != nil {
		p.logger.Warn("session store read failed", "url", docURL, "error", err)
		return "", false
	}
	return html, ok
}

func (p *Pipeline) fetchError(res fetch.Result) error {
	status := res.Status
	if !errors.Is(res.Err, fetch.ErrStatus) && !errors.Is(res.Err, fetch.ErrOutsideRoot) {
		status = 0
	}
	fe := &FetchError{
		URL:    res.URL,
		Status: status,
		Err:    res.Err,
		Hint:   hints.ForFetch(status, p.cfg.docsURL),
	}
	p.logger.Error("document fetch failed", "url", res.URL, "status", status, "error", res.Err)
	return fe
}

// describeFetch is used in log lines for documents that failed to load.
func describeFetch(err error) string {
	var fe *FetchError
	if errors.As(err, &fe) && fe.Status != 0 {
		return fmt.Sprintf("status %d", fe.Status)
	}
	return "transport error"
}
