// Package manpage maps manual-page names such as "docpipe.1" to the files
// that hold them.
package manpage

import (
	"context"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"github.com/alnah/go-docpipe/fetch"
)

// NotFoundPath is served in place of a missing or malformed page.
const NotFoundPath = "/404.html"

var sectionPattern = regexp.MustCompile(`\.(\d+)$`)

// Page is a resolved manual page.
type Page struct {
	File    string // name as requested, e.g. "docpipe.1"
	Section string // "1"
	Raw     bool   // the unrendered page instead of its PDF
	Path    string // "/man1/docpipe.1.pdf", or NotFoundPath
	Title   string // "docpipe(1)"; empty when not found
}

// Found reports whether the name resolved to a page path.
func (p Page) Found() bool {
	return p.Path != NotFoundPath
}

// Resolve maps file to its page path. Names without a trailing ".N" section
// resolve to NotFoundPath.
func Resolve(file string, raw bool) Page {
	p := Page{File: file, Raw: raw, Path: NotFoundPath}
	m := sectionPattern.FindStringSubmatch(file)
	if file == "" || m == nil {
		return p
	}

	p.Section = m[1]
	p.Path = "/man" + p.Section + "/" + file
	if !raw {
		p.Path += ".pdf"
	}
	p.Title = sectionPattern.ReplaceAllString(file, "($1)")
	return p
}

// Check confirms with a HEAD request that the page exists below base, the
// site root. A missing page, or any transport failure, yields NotFoundPath.
func Check(ctx context.Context, f fetch.Fetcher, base *url.URL, p Page, logger *slog.Logger) Page {
	if !p.Found() {
		return p
	}
	ref, err := url.Parse(strings.TrimPrefix(p.Path, "/"))
	if err != nil {
		p.Path = NotFoundPath
		return p
	}

	res := f.Head(ctx, base.ResolveReference(ref).String())
	if !res.OK() {
		if logger != nil {
			logger.Debug("manual page not found", "file", p.File, "path", p.Path, "status", res.Status, "error", res.Err)
		}
		p.Path = NotFoundPath
	}
	return p
}
