package docpipe

import (
	"context"

	"github.com/alnah/go-docpipe/internal/textcache"
)

// ClearText removes the cached text of the document at key.
func (p *Pipeline) ClearText(ctx context.Context, key string) error {
	if err := p.checkOpen(); err != nil {
		return err
	}
	docURL, err := p.ResolveKey(key)
	if err != nil {
		return err
	}
	return p.text.Delete(ctx, textcache.Text, docURL)
}

// ClearHTML removes the stored render of the document at key. The next
// Render re-renders from text; the next Preload stores a fresh render.
func (p *Pipeline) ClearHTML(ctx context.Context, key string) error {
	if err := p.checkOpen(); err != nil {
		return err
	}
	docURL, err := p.ResolveKey(key)
	if err != nil {
		return err
	}
	return p.text.Delete(ctx, textcache.HTML, docURL)
}

// ClearSession removes every cached text and render.
func (p *Pipeline) ClearSession(ctx context.Context) error {
	if err := p.checkOpen(); err != nil {
		return err
	}
	return p.text.Clear(ctx)
}

// ClearImages removes every image from memory and from the durable store.
// Persisted images are never removed otherwise.
func (p *Pipeline) ClearImages(ctx context.Context) error {
	if err := p.checkOpen(); err != nil {
		return err
	}
	return p.images.Clear(ctx)
}

// ImageState reports whether url is unseen, pending or resolved in this
// Pipeline. url must be absolute.
func (p *Pipeline) ImageState(url string) ImageState {
	return p.images.State(url)
}

// HighlightCSS returns the stylesheet for highlighted code blocks, loading
// the highlighter if needed.
func (p *Pipeline) HighlightCSS(ctx context.Context) (string, error) {
	return p.highlighter.CSS(ctx)
}
