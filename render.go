package docpipe

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/alnah/go-docpipe/internal/imagecache"
	"github.com/alnah/go-docpipe/internal/pipeline"
)

// Render loads the document at key, renders it (or reuses a render stored by
// Preload) and replaces every image source with its cached data URI.
//
// Images that fail to resolve get an empty src and are reported in
// Result.Images; they never fail the render. A document that cannot be
// loaded or rendered returns an error and no HTML.
func (p *Pipeline) Render(ctx context.Context, key string) (result *Result, err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			result, err = nil, fmt.Errorf("%w: internal error: %v", ErrRender, r)
		}
		p.metrics.ObserveRender(time.Since(start).Seconds(), err == nil)
	}()

	if err := p.checkOpen(); err != nil {
		return nil, err
	}
	docURL, err := p.ResolveKey(key)
	if err != nil {
		return nil, err
	}
	html, err := p.documentHTML(ctx, docURL)
	if err != nil {
		return nil, err
	}
	return p.substitute(ctx, docURL, html)
}

// RenderString renders an inline Markdown document. Nothing is cached except
// the images it references.
func (p *Pipeline) RenderString(ctx context.Context, markdown string) (*Result, error) {
	if err := p.checkOpen(); err != nil {
		return nil, err
	}
	html, err := p.renderText(ctx, p.converter, markdown)
	if err != nil {
		return nil, err
	}
	return p.substitute(ctx, "", html)
}

// RenderGenerated renders trusted Markdown produced by this program, such as
// the downloads page. Raw HTML in the source is passed through.
func (p *Pipeline) RenderGenerated(ctx context.Context, markdown string) (*Result, error) {
	if err := p.checkOpen(); err != nil {
		return nil, err
	}
	html, err := p.renderText(ctx, p.generated, markdown)
	if err != nil {
		return nil, err
	}
	return p.substitute(ctx, "", html)
}

// RenderInto renders the document at key and replaces the content of the
// first element of page matching selector. Images in the inserted content are
// replaced by clones carrying the resolved source.
//
// If selector matches nothing, ErrTargetNotFound is returned. On any error
// the page is left untouched.
func (p *Pipeline) RenderInto(ctx context.Context, page *goquery.Document, selector, key string) (*Result, error) {
	if err := p.checkOpen(); err != nil {
		return nil, err
	}
	target := page.Find(selector).First()
	if target.Length() == 0 {
		return nil, fmt.Errorf("%w: %q", ErrTargetNotFound, selector)
	}

	docURL, err := p.ResolveKey(key)
	if err != nil {
		return nil, err
	}
	html, err := p.documentHTML(ctx, docURL)
	if err != nil {
		return nil, err
	}

	refs, err := pipeline.ExtractImages(html, p.base)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRender, err)
	}

	// Work on a detached copy so the page only changes once everything
	// resolved.
	frag, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRender, err)
	}
	body := frag.Find("body")

	resolved := newImageLog()
	if err := p.rewriter(resolved.resolve(p.images)).SubstituteDOM(ctx, body); err != nil {
		return nil, err
	}
	out, err := body.Html()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRender, err)
	}

	target.Empty()
	target.AppendSelection(body.Contents())

	return &Result{Key: docURL, HTML: out, Images: resolved.results(refs)}, nil
}

// documentHTML returns the unsubstituted render of docURL, preferring a
// render stored by Preload.
func (p *Pipeline) documentHTML(ctx context.Context, docURL string) (string, error) {
	if html, ok := p.cachedHTML(ctx, docURL); ok {
		return html, nil
	}
	text, err := p.loadURL(ctx, docURL)
	if err != nil {
		return "", err
	}
	return p.renderText(ctx, p.converter, text)
}

func (p *Pipeline) renderText(ctx context.Context, conv pipeline.HTMLConverter, text string) (string, error) {
	html, err := conv.ToHTML(ctx, text)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrRender, err)
	}
	return html, nil
}

func (p *Pipeline) substitute(ctx context.Context, docURL, html string) (*Result, error) {
	refs, err := pipeline.ExtractImages(html, p.base)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRender, err)
	}

	resolved := newImageLog()
	out, err := p.rewriter(resolved.resolve(p.images)).Substitute(ctx, html)
	if err != nil {
		return nil, err
	}
	return &Result{Key: docURL, HTML: out, Images: resolved.results(refs)}, nil
}

func (p *Pipeline) rewriter(resolve pipeline.ResolveFunc) pipeline.ImageRewriter {
	return pipeline.ImageRewriter{
		Base:    p.base,
		Resolve: resolve,
		Limit:   p.cfg.concurrency,
		OnInvalid: func(ref pipeline.ImageRef) {
			p.logger.Warn("skipping image with invalid source", "src", ref.Raw, "error", ref.Err)
		},
	}
}

// imageLog records resolution outcomes of one render.
type imageLog struct {
	mu    sync.Mutex
	byURL map[string]imagecache.Result
}

func newImageLog() *imageLog {
	return &imageLog{byURL: make(map[string]imagecache.Result)}
}

func (l *imageLog) resolve(c *imagecache.Cache) pipeline.ResolveFunc {
	return func(ctx context.Context, url string) string {
		r := c.Resolve(ctx, url)
		l.mu.Lock()
		l.byURL[url] = r
		l.mu.Unlock()
		return r.Src()
	}
}

// results lists each distinct reference of refs in document order.
func (l *imageLog) results(refs []pipeline.ImageRef) []ImageResult {
	l.mu.Lock()
	defer l.mu.Unlock()

	seen := make(map[string]bool, len(refs))
	out := make([]ImageResult, 0, len(refs))
	for _, ref := range refs {
		id := ref.URL
		if ref.Err != nil {
			id = "\x00" + ref.Raw
		}
		if seen[id] {
			continue
		}
		seen[id] = true

		if ref.Err != nil {
			out = append(out, ImageResult{Raw: ref.Raw, State: ImageFailed, Err: ref.Err})
			continue
		}
		r := l.byURL[ref.URL]
		out = append(out, ImageResult{
			Raw:        ref.Raw,
			URL:        ref.URL,
			State:      r.State,
			Source:     string(r.Source),
			Err:        r.Err,
			PersistErr: r.PersistErr,
		})
	}
	return out
}
