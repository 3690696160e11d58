// Package pdfexport prints rendered document pages to PDF with headless
// Chrome. Rod downloads Chromium on first use if no browser is found.
package pdfexport

import (
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/alnah/go-docpipe/internal/fileutil"
)

// Sentinel errors for PDF export.
var (
	ErrBrowserConnect = errors.New("failed to connect to browser")
	ErrPageCreate     = errors.New("failed to create browser page")
	ErrPageLoad       = errors.New("failed to load page")
	ErrPDFGeneration  = errors.New("PDF generation failed")
	ErrClosed         = errors.New("exporter is closed")
	ErrInvalidPaper   = errors.New("invalid paper size")
)

// DefaultTimeout bounds page load when the context has no deadline.
const DefaultTimeout = 30 * time.Second

// Paper sizes in inches.
var paperSizes = map[string][2]float64{
	"letter": {8.5, 11},
	"a4":     {8.27, 11.69},
	"legal":  {8.5, 14},
}

const (
	marginInches           = 0.5
	marginBottomWithFooter = 0.75
	footerFontFamily       = `-apple-system, "Segoe UI", Helvetica, Arial, sans-serif`
)

// ValidatePaper accepts "" (letter) and the supported paper names.
func ValidatePaper(name string) error {
	if name == "" {
		return nil
	}
	if _, ok := paperSizes[strings.ToLower(name)]; !ok {
		return fmt.Errorf("%w: %q (must be letter, a4 or legal)", ErrInvalidPaper, name)
	}
	return nil
}

// Options controls page layout.
type Options struct {
	Paper       string // letter (default), a4 or legal
	Landscape   bool
	FooterLeft  string // e.g. the manual page title
	PageNumbers bool
}

// Exporter turns a complete HTML page into PDF bytes.
type Exporter interface {
	Export(ctx context.Context, htmlPage string, opts *Options) ([]byte, error)
	Close() error
}

var _ Exporter = (*Rod)(nil)

// Rod implements Exporter with a lazily launched headless browser.
type Rod struct {
	mu      sync.Mutex
	browser *rod.Browser
	timeout time.Duration
	closed  bool
}

// NewRod creates a Rod exporter. The browser starts on the first Export.
func NewRod(timeout time.Duration) *Rod {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Rod{timeout: timeout}
}

// ensureBrowser lazily launches and connects to the browser.
func (r *Rod) ensureBrowser() (*rod.Browser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrClosed
	}
	if r.browser != nil {
		return r.browser, nil
	}

	l := launcher.New()

	// Use pre-installed browser if specified (Docker/containerized environments)
	bin := os.Getenv("ROD_BROWSER_BIN")
	if bin != "" {
		l = l.Bin(bin)
	}
	// NoSandbox required for CI and containerized environments
	if os.Getenv("CI") == "true" || bin != "" {
		l = l.NoSandbox(true)
	}

	u, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBrowserConnect, err)
	}
	b := rod.New().ControlURL(u)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBrowserConnect, err)
	}
	r.browser = b
	return b, nil
}

// Close releases browser resources. Export fails with ErrClosed afterwards.
func (r *Rod) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	if r.browser == nil {
		return nil
	}
	err := r.browser.Close()
	r.browser = nil
	return err
}

// Export writes htmlPage to a temporary file, opens it and prints it.
func (r *Rod) Export(ctx context.Context, htmlPage string, opts *Options) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path, cleanup, err := fileutil.WriteTempFile(htmlPage, "html")
	if err != nil {
		return nil, err
	}
	defer cleanup()

	browser, err := r.ensureBrowser()
	if err != nil {
		return nil, err
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: fileutil.ToFileURL(path)})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPageCreate, err)
	}
	defer page.Close()

	timeout := r.timeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
		if timeout <= 0 {
			return nil, context.DeadlineExceeded
		}
	}
	if err := page.Timeout(timeout).WaitLoad(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPageLoad, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	reader, err := page.PDF(printOptions(opts))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPDFGeneration, err)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("%w: reading PDF stream: %v", ErrPDFGeneration, err)
	}
	return data, nil
}

// printOptions maps Options onto Chrome's print parameters.
func printOptions(opts *Options) *proto.PagePrintToPDF {
	if opts == nil {
		opts = &Options{}
	}
	size, ok := paperSizes[strings.ToLower(opts.Paper)]
	if !ok {
		size = paperSizes["letter"]
	}

	hasFooter := opts.PageNumbers || opts.FooterLeft != ""
	marginBottom := marginInches
	if hasFooter {
		marginBottom = marginBottomWithFooter
	}

	p := &proto.PagePrintToPDF{
		Landscape:       opts.Landscape,
		PaperWidth:      floatPtr(size[0]),
		PaperHeight:     floatPtr(size[1]),
		MarginTop:       floatPtr(marginInches),
		MarginBottom:    floatPtr(marginBottom),
		MarginLeft:      floatPtr(marginInches),
		MarginRight:     floatPtr(marginInches),
		PrintBackground: true,
	}
	if hasFooter {
		p.DisplayHeaderFooter = true
		p.HeaderTemplate = "<span></span>"
		p.FooterTemplate = footerTemplate(opts)
	}
	return p
}

// footerTemplate lays out the title on the left and page numbers on the
// right. Chrome fills elements with the pageNumber and totalPages classes.
func footerTemplate(opts *Options) string {
	var left, right string
	if opts.FooterLeft != "" {
		left = html.EscapeString(opts.FooterLeft)
	}
	if opts.PageNumbers {
		right = `<span class="pageNumber"></span>/<span class="totalPages"></span>`
	}
	return fmt.Sprintf(`<div style="font-size: 10px; font-family: %s; color: #aaa; width: 100%%; display: flex; justify-content: space-between; padding: 0 0.5in;"><span>%s</span><span>%s</span></div>`,
		footerFontFamily, left, right)
}

func floatPtr(v float64) *float64 {
	return &v
}
