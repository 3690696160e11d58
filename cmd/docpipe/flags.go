package main

import (
	"errors"
	"fmt"
	"io"

	flag "github.com/spf13/pflag"
)

// ErrUsage marks invalid flags and arguments.
var ErrUsage = errors.New("usage error")

// commonFlags holds flags shared across commands.
type commonFlags struct {
	config   string
	quiet    bool
	verbose  bool
	baseURL  string
	root     string
	timeout  string
	attempts int
}

// renderFlags holds flags for the render command.
type renderFlags struct {
	common commonFlags
	output string
	name   string
	page   bool
	css    []string
}

// preloadFlags holds flags for the preload command.
type preloadFlags struct {
	common      commonFlags
	concurrency int
}

// serveFlags holds flags for the serve command.
type serveFlags struct {
	common  commonFlags
	addr    string
	cors    []string
	noWatch bool
	live    bool
}

// downloadsFlags holds flags for the downloads command.
type downloadsFlags struct {
	common commonFlags
	output string
	live   bool
	html   bool
	page   bool
}

// manFlags holds flags for the man command.
type manFlags struct {
	common commonFlags
	raw    bool
}

// pdfFlags holds flags for the pdf command.
type pdfFlags struct {
	common        commonFlags
	output        string
	name          string
	paper         string
	landscape     bool
	noPageNumbers bool
	workers       int
	pdfTimeout    string
	css           []string
}

// clearFlags holds flags for the clear command.
type clearFlags struct {
	common  commonFlags
	text    []string
	html    []string
	session bool
	images  bool
	all     bool
}

// doctorFlags holds flags for the doctor command.
type doctorFlags struct {
	common commonFlags
	json   bool
}

// addCommonFlags adds common flags to a FlagSet.
func addCommonFlags(fs *flag.FlagSet, f *commonFlags) {
	fs.StringVarP(&f.config, "config", "c", "", "config file name or path")
	fs.BoolVarP(&f.quiet, "quiet", "q", false, "only show errors")
	fs.BoolVarP(&f.verbose, "verbose", "v", false, "log debug details")
	fs.StringVar(&f.baseURL, "base-url", "", "URL document keys resolve against")
	fs.StringVar(&f.root, "root", "", "local docs root (default: .)")
	fs.StringVarP(&f.timeout, "timeout", "t", "", "per-request fetch timeout (e.g., 30s)")
	fs.IntVar(&f.attempts, "attempts", 0, "fetch attempts for transport failures")
}

// newFlagSet creates a FlagSet whose -h prints usage to w.
func newFlagSet(name string, w io.Writer, usage func(io.Writer)) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(w)
	fs.Usage = func() { usage(w) }
	return fs
}

// parse parses args and marks failures as usage errors. flag.ErrHelp is
// returned unwrapped.
func parse(fs *flag.FlagSet, args []string) ([]string, error) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrUsage, err)
	}
	return fs.Args(), nil
}

// parseRenderFlags parses render command flags and returns positional args.
func parseRenderFlags(args []string, w io.Writer) (*renderFlags, []string, error) {
	f := &renderFlags{}
	fs := newFlagSet("render", w, printRenderUsage)
	fs.StringVarP(&f.output, "output", "o", "", "output file (default: stdout)")
	fs.StringVarP(&f.name, "name", "n", "", "page heading (default: the key)")
	fs.BoolVar(&f.page, "page", false, "wrap the fragment in a standalone HTML page")
	fs.StringSliceVar(&f.css, "css", nil, "extra CSS file for --page (repeatable)")
	addCommonFlags(fs, &f.common)
	rest, err := parse(fs, args)
	return f, rest, err
}

// parsePreloadFlags parses preload command flags and returns positional args.
func parsePreloadFlags(args []string, w io.Writer) (*preloadFlags, []string, error) {
	f := &preloadFlags{}
	fs := newFlagSet("preload", w, printPreloadUsage)
	fs.IntVarP(&f.concurrency, "concurrency", "j", 0, "documents rendered in parallel (0 = config)")
	addCommonFlags(fs, &f.common)
	rest, err := parse(fs, args)
	return f, rest, err
}

// parseServeFlags parses serve command flags and returns positional args.
func parseServeFlags(args []string, w io.Writer) (*serveFlags, []string, error) {
	f := &serveFlags{}
	fs := newFlagSet("serve", w, printServeUsage)
	fs.StringVarP(&f.addr, "addr", "a", "", "listen address (default: 127.0.0.1:8080)")
	fs.StringSliceVar(&f.cors, "cors", nil, "allowed CORS origin (repeatable)")
	fs.BoolVar(&f.noWatch, "no-watch", false, "do not refresh static files on change")
	fs.BoolVar(&f.live, "live", false, "bypass the release JSON cache")
	addCommonFlags(fs, &f.common)
	rest, err := parse(fs, args)
	return f, rest, err
}

// parseDownloadsFlags parses downloads command flags and returns positional args.
func parseDownloadsFlags(args []string, w io.Writer) (*downloadsFlags, []string, error) {
	f := &downloadsFlags{}
	fs := newFlagSet("downloads", w, printDownloadsUsage)
	fs.StringVarP(&f.output, "output", "o", "", "output file (default: stdout)")
	fs.BoolVar(&f.live, "live", false, "bypass the release JSON cache")
	fs.BoolVar(&f.html, "html", false, "output the rendered HTML fragment")
	fs.BoolVar(&f.page, "page", false, "output a standalone HTML page")
	addCommonFlags(fs, &f.common)
	rest, err := parse(fs, args)
	return f, rest, err
}

// parseManFlags parses man command flags and returns positional args.
func parseManFlags(args []string, w io.Writer) (*manFlags, []string, error) {
	f := &manFlags{}
	fs := newFlagSet("man", w, printManUsage)
	fs.BoolVar(&f.raw, "raw", false, "resolve the unrendered page instead of its PDF")
	addCommonFlags(fs, &f.common)
	rest, err := parse(fs, args)
	return f, rest, err
}

// parsePDFFlags parses pdf command flags and returns positional args.
func parsePDFFlags(args []string, w io.Writer) (*pdfFlags, []string, error) {
	f := &pdfFlags{}
	fs := newFlagSet("pdf", w, printPDFUsage)
	fs.StringVarP(&f.output, "output", "o", "", "output file, or directory for several keys")
	fs.StringVarP(&f.name, "name", "n", "", "page heading and footer title (single key)")
	fs.StringVarP(&f.paper, "paper", "p", "", "paper size: letter, a4, legal")
	fs.BoolVar(&f.landscape, "landscape", false, "landscape orientation")
	fs.BoolVar(&f.noPageNumbers, "no-page-numbers", false, "omit page numbers from the footer")
	fs.IntVarP(&f.workers, "workers", "w", 0, "parallel browsers (0 = auto)")
	fs.StringVar(&f.pdfTimeout, "pdf-timeout", "", "PDF generation timeout (e.g., 30s, 2m)")
	fs.StringSliceVar(&f.css, "css", nil, "extra CSS file (repeatable)")
	addCommonFlags(fs, &f.common)
	rest, err := parse(fs, args)
	return f, rest, err
}

// parseClearFlags parses clear command flags and returns positional args.
func parseClearFlags(args []string, w io.Writer) (*clearFlags, []string, error) {
	f := &clearFlags{}
	fs := newFlagSet("clear", w, printClearUsage)
	fs.StringSliceVar(&f.text, "text", nil, "drop cached text for a key (repeatable)")
	fs.StringSliceVar(&f.html, "html", nil, "drop cached HTML for a key (repeatable)")
	fs.BoolVar(&f.session, "session", false, "drop all session entries")
	fs.BoolVar(&f.images, "images", false, "drop all stored images")
	fs.BoolVar(&f.all, "all", false, "drop everything")
	addCommonFlags(fs, &f.common)
	rest, err := parse(fs, args)
	return f, rest, err
}

// parseDoctorFlags parses doctor command flags and returns positional args.
func parseDoctorFlags(args []string, w io.Writer) (*doctorFlags, []string, error) {
	f := &doctorFlags{}
	fs := newFlagSet("doctor", w, printDoctorUsage)
	fs.BoolVar(&f.json, "json", false, "output JSON")
	addCommonFlags(fs, &f.common)
	rest, err := parse(fs, args)
	return f, rest, err
}

// parseConfigFlags parses config command flags and returns positional args.
func parseConfigFlags(args []string, w io.Writer) (*commonFlags, []string, error) {
	f := &commonFlags{}
	fs := newFlagSet("config", w, printConfigUsage)
	addCommonFlags(fs, f)
	rest, err := parse(fs, args)
	return f, rest, err
}
