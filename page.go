package docpipe

import (
	"context"

	"github.com/alnah/go-docpipe/internal/pipeline"
)

// PageOptions describes the page around a rendered document.
type PageOptions struct {
	// Name is shown as the page heading and used in the default title.
	// Empty hides the heading.
	Name string
	// Title overrides the default "<Name> | <site>" title.
	Title string
	// CSS is inlined after the highlight stylesheet, in order.
	CSS []string
}

// PageTitle returns the browser title for a document named name, such as
// "install | Phasor".
func (p *Pipeline) PageTitle(name string) string {
	return pipeline.PageTitle(name, p.SiteName())
}

// Page wraps a rendered document in a standalone HTML page. A highlighter
// that fails to load only drops its stylesheet.
func (p *Pipeline) Page(ctx context.Context, res *Result, opts PageOptions) (string, error) {
	var styles []string
	css, err := p.HighlightCSS(ctx)
	if err != nil {
		p.logger.Warn("page rendered without highlight stylesheet", "error", err)
	} else if css != "" {
		styles = append(styles, css)
	}
	styles = append(styles, opts.CSS...)

	title := opts.Title
	if title == "" {
		title = p.PageTitle(opts.Name)
	}
	return pipeline.RenderPage(pipeline.Page{
		Title:   title,
		Heading: opts.Name,
		Styles:  styles,
		Body:    res.HTML,
	})
}
