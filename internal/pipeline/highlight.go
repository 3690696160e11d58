package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/alecthomas/chroma/v2"
	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/styles"
)

// DefaultHighlightStyle is the Chroma style used when none is configured.
const DefaultHighlightStyle = "github"

// ErrHighlighterLoad indicates the syntax highlighter could not be initialized.
var ErrHighlighterLoad = errors.New("syntax highlighter failed to load")

type highlightState struct {
	style *chroma.Style
	css   string
}

// Highlighter is a lazily initialized Chroma style. Initialization runs at
// most once; every caller, concurrent or later, observes the same outcome.
type Highlighter struct {
	name string
	load func() (*highlightState, error)
}

// NewHighlighter returns a Highlighter for the named Chroma style. Nothing is
// loaded until first use.
func NewHighlighter(style string) *Highlighter {
	if style == "" {
		style = DefaultHighlightStyle
	}
	h := &Highlighter{name: style}
	h.load = sync.OnceValues(h.init)
	return h
}

func (h *Highlighter) init() (*highlightState, error) {
	style, ok := styles.Registry[h.name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown style %q", ErrHighlighterLoad, h.name)
	}

	var buf bytes.Buffer
	formatter := chromahtml.New(chromahtml.WithClasses(true))
	if err := formatter.WriteCSS(&buf, style); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHighlighterLoad, err)
	}
	return &highlightState{style: style, css: buf.String()}, nil
}

// StyleName returns the configured style name.
func (h *Highlighter) StyleName() string {
	return h.name
}

// Ready waits for initialization, starting it if needed. A canceled ctx stops
// the wait but not the initialization.
func (h *Highlighter) Ready(ctx context.Context) error {
	_, err := h.wait(ctx)
	return err
}

// CSS returns the stylesheet for the highlighted class names.
func (h *Highlighter) CSS(ctx context.Context) (string, error) {
	st, err := h.wait(ctx)
	if err != nil {
		return "", err
	}
	return st.css, nil
}

func (h *Highlighter) style() (*chroma.Style, error) {
	st, err := h.load()
	if err != nil {
		return nil, err
	}
	return st.style, nil
}

func (h *Highlighter) wait(ctx context.Context) (*highlightState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	type result struct {
		st  *highlightState
		err error
	}
	done := make(chan result, 1)
	go func() {
		st, err := h.load()
		done <- result{st: st, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-done:
		return r.st, r.err
	}
}
