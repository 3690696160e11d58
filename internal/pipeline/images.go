package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/sync/errgroup"
)

// DefaultImageConcurrency bounds concurrent image resolutions per document.
const DefaultImageConcurrency = 8

// ErrInvalidImageURL indicates an img src that cannot be turned into an
// absolute URL.
var ErrInvalidImageURL = errors.New("invalid image URL")

// ImageRef is one <img src> occurrence. Exactly one of URL or Err is set.
type ImageRef struct {
	Raw string
	URL string
	Err error
}

// ResolveFunc returns the replacement src for an absolute image URL. An
// empty string marks the image as unresolved.
type ResolveFunc func(ctx context.Context, url string) string

// ImageRewriter replaces image sources with resolved values. Resolutions
// within one call run concurrently, each distinct URL once.
type ImageRewriter struct {
	// Base resolves relative sources. Without it, relative sources are
	// reported as invalid.
	Base *url.URL
	// Resolve is required.
	Resolve ResolveFunc
	// Limit bounds concurrent resolutions; <= 0 means DefaultImageConcurrency.
	Limit int
	// OnInvalid is called for each source that cannot be resolved to a URL.
	// Those images are left untouched.
	OnInvalid func(ImageRef)
}

// IsDataURL reports whether src is an inline data: URL.
func IsDataURL(src string) bool {
	s := strings.TrimSpace(src)
	return len(s) >= 5 && strings.EqualFold(s[:5], "data:")
}

// ResolveImageRef turns a raw src into an ImageRef against base.
func ResolveImageRef(raw string, base *url.URL) ImageRef {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ImageRef{Raw: raw, Err: fmt.Errorf("%w: empty src", ErrInvalidImageURL)}
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return ImageRef{Raw: raw, Err: fmt.Errorf("%w: %v", ErrInvalidImageURL, err)}
	}
	if base != nil {
		u = base.ResolveReference(u)
	}
	if !u.IsAbs() {
		return ImageRef{Raw: raw, Err: fmt.Errorf("%w: relative %q without a base URL", ErrInvalidImageURL, raw)}
	}
	return ImageRef{Raw: raw, URL: u.String()}
}

// ExtractImages returns every <img src> in document order, without
// deduplication. data: sources are skipped entirely; malformed sources are
// returned with Err set.
func ExtractImages(content string, base *url.URL) ([]ImageRef, error) {
	doc, _, err := parseHTML(content)
	if err != nil {
		return nil, err
	}
	var refs []ImageRef
	walkImages(doc, func(_ *html.Node, src string) {
		if IsDataURL(src) {
			return
		}
		refs = append(refs, ResolveImageRef(src, base))
	})
	return refs, nil
}

// ImageURLs returns the URLs of refs that resolved, in order.
func ImageURLs(refs []ImageRef) []string {
	urls := make([]string, 0, len(refs))
	for _, r := range refs {
		if r.Err == nil {
			urls = append(urls, r.URL)
		}
	}
	return urls
}

// Substitute resolves every image in content and writes the results back
// into the src attributes. It returns after all resolutions complete.
func (w ImageRewriter) Substitute(ctx context.Context, content string) (string, error) {
	doc, isFragment, err := parseHTML(content)
	if err != nil {
		return "", err
	}

	type target struct {
		node *html.Node
		url  string
	}
	var targets []target
	walkImages(doc, func(n *html.Node, src string) {
		if url, ok := w.ref(src); ok {
			targets = append(targets, target{node: n, url: url})
		}
	})
	if len(targets) == 0 {
		return content, nil
	}

	urls := make([]string, len(targets))
	for i, t := range targets {
		urls[i] = t.url
	}
	resolved, err := w.resolveAll(ctx, urls)
	if err != nil {
		return "", err
	}

	for _, t := range targets {
		setAttr(t.node, "src", resolved[t.url])
	}
	return renderHTML(doc, isFragment)
}

// SubstituteDOM resolves every <img> under root and replaces each with a
// clone carrying the resolved src.
func (w ImageRewriter) SubstituteDOM(ctx context.Context, root *goquery.Selection) error {
	imgs := root.Find("img[src]")

	type target struct {
		sel *goquery.Selection
		url string
	}
	var targets []target
	imgs.Each(func(_ int, img *goquery.Selection) {
		src, _ := img.Attr("src")
		if url, ok := w.ref(src); ok {
			targets = append(targets, target{sel: img, url: url})
		}
	})
	if len(targets) == 0 {
		return nil
	}

	urls := make([]string, len(targets))
	for i, t := range targets {
		urls[i] = t.url
	}
	resolved, err := w.resolveAll(ctx, urls)
	if err != nil {
		return err
	}

	for _, t := range targets {
		clone := t.sel.Clone()
		clone.SetAttr("src", resolved[t.url])
		t.sel.ReplaceWithSelection(clone)
	}
	return nil
}

// ref classifies src: data: sources and malformed ones are skipped.
func (w ImageRewriter) ref(src string) (string, bool) {
	if IsDataURL(src) {
		return "", false
	}
	r := ResolveImageRef(src, w.Base)
	if r.Err != nil {
		if w.OnInvalid != nil {
			w.OnInvalid(r)
		}
		return "", false
	}
	return r.URL, true
}

func (w ImageRewriter) resolveAll(ctx context.Context, urls []string) (map[string]string, error) {
	limit := w.Limit
	if limit <= 0 {
		limit = DefaultImageConcurrency
	}

	var (
		mu       sync.Mutex
		resolved = make(map[string]string, len(urls))
		g        errgroup.Group
	)
	g.SetLimit(limit)

	seen := make(map[string]bool, len(urls))
	for _, u := range urls {
		if seen[u] {
			continue
		}
		seen[u] = true
		g.Go(func() error {
			src := w.Resolve(ctx, u)
			mu.Lock()
			resolved[u] = src
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return resolved, nil
}

func walkImages(n *html.Node, fn func(*html.Node, string)) {
	if n.Type == html.ElementNode && n.DataAtom == atom.Img {
		if src, ok := getAttr(n, "src"); ok {
			fn(n, src)
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walkImages(c, fn)
	}
}

func getAttr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func setAttr(n *html.Node, key, val string) {
	for i := range n.Attr {
		if n.Attr[i].Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}
