package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
)

// ErrHTMLConversion indicates HTML conversion failed.
var ErrHTMLConversion = errors.New("HTML conversion failed")

// HTMLConverter abstracts Markdown to HTML conversion.
type HTMLConverter interface {
	ToHTML(ctx context.Context, content string) (string, error)
}

// GoldmarkConverter converts Markdown to an HTML fragment using goldmark.
//
// When a Highlighter is attached, the highlighted renderer is built on the
// first conversion. If the highlighter fails to load, conversion continues
// without highlighting and the failure is logged once.
type GoldmarkConverter struct {
	highlighter *Highlighter
	rawHTML     bool
	logger      *slog.Logger

	plain  goldmark.Markdown
	active func() goldmark.Markdown
}

// ConverterOption configures a GoldmarkConverter.
type ConverterOption func(*GoldmarkConverter)

// WithHighlighter enables syntax highlighting of fenced code blocks.
func WithHighlighter(h *Highlighter) ConverterOption {
	return func(c *GoldmarkConverter) {
		c.highlighter = h
	}
}

// WithRawHTML passes raw HTML in the source through to the output. Only use
// it for trusted, generated Markdown.
func WithRawHTML() ConverterOption {
	return func(c *GoldmarkConverter) {
		c.rawHTML = true
	}
}

// WithConverterLogger sets the logger for highlighter fallback warnings.
func WithConverterLogger(l *slog.Logger) ConverterOption {
	return func(c *GoldmarkConverter) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewGoldmarkConverter creates a GoldmarkConverter with GFM, footnotes and
// heading IDs.
func NewGoldmarkConverter(opts ...ConverterOption) *GoldmarkConverter {
	c := &GoldmarkConverter{logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	c.plain = c.newMarkdown()
	c.active = sync.OnceValue(c.build)
	return c
}

func (c *GoldmarkConverter) newMarkdown(extra ...goldmark.Extender) goldmark.Markdown {
	rendererOpts := []goldmark.Option{}
	if c.rawHTML {
		rendererOpts = append(rendererOpts, goldmark.WithRendererOptions(html.WithUnsafe()))
	}

	exts := append([]goldmark.Extender{
		extension.GFM,      // Tables, strikethrough, autolinks, task lists
		extension.Footnote, // [^1] footnotes
	}, extra...)

	return goldmark.New(append(rendererOpts,
		goldmark.WithExtensions(exts...),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(), // In-page anchors
		),
	)...)
}

func (c *GoldmarkConverter) build() goldmark.Markdown {
	if c.highlighter == nil {
		return c.plain
	}
	style, err := c.highlighter.style()
	if err != nil {
		c.logger.Warn("rendering without syntax highlighting", "style", c.highlighter.StyleName(), "error", err)
		return c.plain
	}
	return c.newMarkdown(highlighting.NewHighlighting(
		highlighting.WithCustomStyle(style),
		highlighting.WithFormatOptions(
			chromahtml.WithClasses(true), // Stylesheet served separately
		),
	))
}

// ToHTML converts Markdown content to an HTML fragment.
// Supports context cancellation via goroutine + select pattern since
// Goldmark doesn't natively support context.
func (c *GoldmarkConverter) ToHTML(ctx context.Context, content string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	type result struct {
		html string
		err  error
	}

	done := make(chan result, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("%w: panic: %v", ErrHTMLConversion, r)}
			}
		}()

		var buf bytes.Buffer
		if err := c.active().Convert([]byte(preprocessMarkdown(content)), &buf); err != nil {
			done <- result{err: fmt.Errorf("%w: %v", ErrHTMLConversion, err)}
			return
		}
		done <- result{html: finishMarks(buf.String())}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-done:
		return r.html, r.err
	}
}
