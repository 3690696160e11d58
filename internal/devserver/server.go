// Package devserver is the local development server: it serves the docs
// directory and renders documents, the downloads page and manual pages on
// request.
package devserver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	docpipe "github.com/alnah/go-docpipe"
	"github.com/alnah/go-docpipe/fetch"
	"github.com/alnah/go-docpipe/internal/manpage"
	"github.com/alnah/go-docpipe/internal/releases"
)

// Defaults for Config.
const (
	DefaultAddr         = "127.0.0.1:8080"
	DefaultCacheBytes   = 64 << 20
	DefaultMaxFileBytes = 1 << 20
	shutdownTimeout     = 10 * time.Second
	requestTimeout      = 60 * time.Second
)

// renderUsage is the heading of /render when no file is given.
const renderUsage = "?file=<path-to-relative-file>(&name=<page-name>)"

// Config configures a Server.
type Config struct {
	Addr         string
	Root         string
	CORSOrigins  []string // empty allows localhost origins only
	CacheBytes   int64
	MaxFileBytes int64
	Watch        bool
}

// Server serves one docs directory.
type Server struct {
	cfg      Config
	pipeline *docpipe.Pipeline
	releases *releases.Source
	fetcher  fetch.Fetcher
	gatherer prometheus.Gatherer
	files    *FileCache
	logger   *slog.Logger
	router   chi.Router
}

// Deps are the collaborators a Server renders with. Releases and Gatherer
// may be nil, which disables /downloads and /metrics.
type Deps struct {
	Pipeline *docpipe.Pipeline
	Releases *releases.Source
	Fetcher  fetch.Fetcher
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
}

// New creates a Server.
func New(cfg Config, deps Deps) (*Server, error) {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.Root == "" {
		cfg.Root = "."
	}
	if cfg.CacheBytes == 0 {
		cfg.CacheBytes = DefaultCacheBytes
	}
	if cfg.MaxFileBytes == 0 {
		cfg.MaxFileBytes = DefaultMaxFileBytes
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	files, err := NewFileCache(cfg.Root, cfg.CacheBytes, cfg.MaxFileBytes, logger)
	if err != nil {
		return nil, err
	}
	s := &Server{
		cfg:      cfg,
		pipeline: deps.Pipeline,
		releases: deps.Releases,
		fetcher:  deps.Fetcher,
		gatherer: deps.Gatherer,
		files:    files,
		logger:   logger,
	}
	s.router = s.buildRouter()
	return s, nil
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Files returns the static file cache.
func (s *Server) Files() *FileCache {
	return s.files
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))

	origins := s.cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:*", "http://127.0.0.1:*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodHead, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	r.Get("/render", s.handleRender)
	r.Get("/downloads", s.handleDownloads)
	r.Get("/man", s.handleMan)
	r.Get("/highlight.css", s.handleHighlightCSS)
	r.Get("/*", s.handleStatic)
	r.Head("/*", s.handleStatic)

	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	file := q.Get("file")
	name := q.Get("name")
	if file == "" {
		s.writePage(w, r, &docpipe.Result{}, docpipe.PageOptions{
			Name:  renderUsage,
			Title: s.pipeline.PageTitle(""),
		})
		return
	}
	if name == "" {
		name = file
	}

	res, err := s.pipeline.Render(r.Context(), file)
	if err != nil {
		s.renderError(w, "render", err)
		return
	}
	s.writePage(w, r, res, docpipe.PageOptions{Name: name})
}

func (s *Server) handleDownloads(w http.ResponseWriter, r *http.Request) {
	if s.releases == nil {
		http.NotFound(w, r)
		return
	}
	ctx := r.Context()
	version := r.URL.Query().Get("version")

	var md string
	var err error
	if version == "" || version == releases.BackAlias {
		version = ""
		md, err = s.releases.VersionListMarkdown(ctx)
	} else {
		version, err = s.releases.ResolveVersion(ctx, version)
		if err == nil {
			md, err = s.releases.ReleaseMarkdown(ctx, version)
		}
	}
	if err != nil {
		s.renderError(w, "downloads", err)
		return
	}

	res, err := s.pipeline.RenderGenerated(ctx, md)
	if err != nil {
		s.renderError(w, "downloads", err)
		return
	}
	s.writePage(w, r, res, docpipe.PageOptions{
		Title: releases.PageTitle(s.pipeline.SiteName(), version),
	})
}

func (s *Server) handleMan(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := manpage.Resolve(q.Get("f"), q.Has("raw"))
	if page.Found() && s.fetcher != nil {
		if base, err := url.Parse(s.pipeline.BaseURL()); err == nil && base.IsAbs() {
			page = manpage.Check(r.Context(), s.fetcher, base, page, s.logger)
		}
	}

	title := s.pipeline.PageTitle("Manual")
	if page.Found() {
		title = s.pipeline.PageTitle(page.Title)
	}
	body := fmt.Sprintf(`<iframe id="pdf-frame" src="%s" title="%s"></iframe>`,
		html.EscapeString(page.Path), html.EscapeString(page.Title))
	s.writePage(w, r, &docpipe.Result{HTML: body}, docpipe.PageOptions{Title: title})
}

func (s *Server) handleHighlightCSS(w http.ResponseWriter, r *http.Request) {
	css, err := s.pipeline.HighlightCSS(r.Context())
	if err != nil {
		s.logger.Error("highlight stylesheet unavailable", "error", err)
		http.Error(w, "highlight stylesheet unavailable", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/css; charset=utf-8")
	_, _ = w.Write([]byte(css))
}

func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	f, err := s.files.Get(r.URL.Path)
	switch {
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, ErrOutsideRoot):
		s.notFound(w, r)
		return
	case err != nil:
		s.logger.Error("static file unreadable", "path", r.URL.Path, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", f.ContentType)
	http.ServeContent(w, r, f.Path, f.ModTime, bytes.NewReader(f.Data))
}

// notFound serves the site's 404.html when present.
func (s *Server) notFound(w http.ResponseWriter, r *http.Request) {
	f, err := s.files.Get(manpage.NotFoundPath)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", f.ContentType)
	w.WriteHeader(http.StatusNotFound)
	_, _ = w.Write(f.Data)
}

func (s *Server) writePage(w http.ResponseWriter, r *http.Request, res *docpipe.Result, opts docpipe.PageOptions) {
	page, err := s.pipeline.Page(r.Context(), res, opts)
	if err != nil {
		s.renderError(w, "page", err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(page))
}

func (s *Server) renderError(w http.ResponseWriter, what string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(what+" failed", "error", err)
	}
	http.Error(w, err.Error(), status)
}

// statusFor maps pipeline and release errors to HTTP statuses.
func statusFor(err error) int {
	var fe *docpipe.FetchError
	switch {
	case errors.Is(err, docpipe.ErrEmptyKey), errors.Is(err, docpipe.ErrInvalidKey):
		return http.StatusBadRequest
	case errors.As(err, &fe) && fe.Status == http.StatusNotFound:
		return http.StatusNotFound
	case errors.Is(err, fetch.ErrOutsideRoot):
		return http.StatusNotFound
	case errors.Is(err, releases.ErrVersionNotFound), errors.Is(err, releases.ErrNoReleases):
		return http.StatusNotFound
	case errors.Is(err, docpipe.ErrFetch), errors.Is(err, releases.ErrLoad), errors.Is(err, releases.ErrInvalidIndex):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// ListenAndServe serves until ctx is canceled, then shuts down gracefully.
// With Watch set, static files are invalidated as they change.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if s.cfg.Watch {
		go func() {
			if err := s.files.Watch(ctx, nil); err != nil {
				s.logger.Warn("static files will not refresh", "error", err)
			}
		}()
	}

	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      2 * requestTimeout,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("dev server listening", "addr", ln.Addr().String(), "root", s.files.Root())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, stop := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	s.logger.Info("dev server stopped")
	return nil
}
