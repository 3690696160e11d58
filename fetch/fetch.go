// Package fetch retrieves documents and images over HTTP, and over file://
// URLs below a configured root directory.
//
// Outcomes are reported as a Result value rather than an error so callers can
// decide per boundary whether to log, retry, or propagate.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path/filepath"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/alnah/go-docpipe/internal/fileutil"
)

// Sentinel errors for fetch outcomes.
var (
	ErrStatus       = errors.New("unexpected response status")
	ErrBodyTooLarge = errors.New("response body too large")
	ErrOutsideRoot  = errors.New("file outside the served root")
)

// Defaults for HTTPFetcher.
const (
	DefaultAttempts    = 1
	DefaultRetryDelay  = 250 * time.Millisecond
	DefaultMaxBodySize = 32 << 20
	DefaultUserAgent   = "go-docpipe"
)

// Result is the outcome of a single fetch.
type Result struct {
	URL         string
	Status      int
	ContentType string
	Body        []byte
	Err         error
}

// OK reports whether the fetch succeeded with a 2xx status.
func (r Result) OK() bool {
	return r.Err == nil
}

// MediaType returns the Content-Type without parameters, or "" if absent.
func (r Result) MediaType() string {
	if r.ContentType == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(r.ContentType)
	if err != nil {
		return ""
	}
	return mt
}

// Fetcher retrieves remote resources.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) Result
	Head(ctx context.Context, rawURL string) Result
}

// HTTPFetcher implements Fetcher with net/http. Transport failures are
// retried; non-2xx responses are not.
type HTTPFetcher struct {
	client      *http.Client
	attempts    uint
	delay       time.Duration
	userAgent   string
	maxBodySize int64
	fileRoot    string
	files       *fileTransport
}

// Option configures an HTTPFetcher.
type Option func(*HTTPFetcher)

// WithClient replaces the HTTP client. The client's transport is used as is;
// file:// support is only registered on the default client.
func WithClient(c *http.Client) Option {
	return func(f *HTTPFetcher) {
		if c != nil {
			f.client = c
		}
	}
}

// WithAttempts sets the total number of tries for transport failures.
// Values below 1 are treated as 1.
func WithAttempts(n int) Option {
	return func(f *HTTPFetcher) {
		if n < 1 {
			n = 1
		}
		f.attempts = uint(n)
	}
}

// WithRetryDelay sets the delay between attempts.
func WithRetryDelay(d time.Duration) Option {
	return func(f *HTTPFetcher) {
		if d >= 0 {
			f.delay = d
		}
	}
}

// WithTimeout bounds each request, including reading the body.
func WithTimeout(d time.Duration) Option {
	return func(f *HTTPFetcher) {
		f.client.Timeout = d
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(f *HTTPFetcher) {
		if ua != "" {
			f.userAgent = ua
		}
	}
}

// WithMaxBodySize caps response bodies; larger bodies fail with ErrBodyTooLarge.
func WithMaxBodySize(n int64) Option {
	return func(f *HTTPFetcher) {
		if n > 0 {
			f.maxBodySize = n
		}
	}
}

// WithFileRoot lets the default client serve file:// URLs for files below
// root. Without it every file:// URL fails with ErrOutsideRoot.
func WithFileRoot(root string) Option {
	return func(f *HTTPFetcher) {
		f.fileRoot = root
	}
}

// NewHTTPFetcher creates an HTTPFetcher.
func NewHTTPFetcher(opts ...Option) *HTTPFetcher {
	files := &fileTransport{}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.RegisterProtocol("file", files)

	f := &HTTPFetcher{
		client:      &http.Client{Transport: transport},
		attempts:    DefaultAttempts,
		delay:       DefaultRetryDelay,
		userAgent:   DefaultUserAgent,
		maxBodySize: DefaultMaxBodySize,
		files:       files,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.fileRoot != "" {
		files.setRoot(f.fileRoot)
	}
	return f
}

// FileRoot returns the directory file:// URLs are served from, or "".
func (f *HTTPFetcher) FileRoot() string {
	return f.files.root
}

// Fetch performs a GET and reads the whole body.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) Result {
	return f.do(ctx, http.MethodGet, rawURL)
}

// Head performs a HEAD request; Body is always empty.
func (f *HTTPFetcher) Head(ctx context.Context, rawURL string) Result {
	return f.do(ctx, http.MethodHead, rawURL)
}

func (f *HTTPFetcher) do(ctx context.Context, method, rawURL string) Result {
	var res Result
	err := retry.Do(
		func() error {
			r, err := f.once(ctx, method, rawURL)
			if err != nil {
				return err
			}
			res = r
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(f.attempts),
		retry.Delay(f.delay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		if errors.Is(err, ErrOutsideRoot) {
			return Result{URL: rawURL, Status: http.StatusForbidden, Err: err}
		}
		return Result{URL: rawURL, Err: err}
	}

	if res.Status < 200 || res.Status >= 300 {
		res.Err = fmt.Errorf("%w: %d %s", ErrStatus, res.Status, http.StatusText(res.Status))
	}
	return res
}

// once performs a single request. Errors returned here are transport-level
// and eligible for retry; status handling happens in do.
func (f *HTTPFetcher) once(ctx context.Context, method, rawURL string) (Result, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return Result{}, retry.Unrecoverable(fmt.Errorf("building request: %w", err))
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		if errors.Is(err, ErrOutsideRoot) {
			return Result{}, retry.Unrecoverable(err)
		}
		return Result{}, err
	}
	defer resp.Body.Close()

	res := Result{
		URL:         rawURL,
		Status:      resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
	}
	if method == http.MethodHead {
		return res, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodySize+1))
	if err != nil {
		return Result{}, fmt.Errorf("reading body: %w", err)
	}
	if int64(len(body)) > f.maxBodySize {
		return Result{}, retry.Unrecoverable(fmt.Errorf("%w: more than %d bytes", ErrBodyTooLarge, f.maxBodySize))
	}
	res.Body = body
	return res, nil
}

// fileTransport serves file:// requests from a root directory. Paths are
// checked against the root after cleaning and symlink resolution.
type fileTransport struct {
	root string
	next http.RoundTripper
}

func (t *fileTransport) setRoot(root string) {
	abs, err := filepath.Abs(root)
	if err != nil {
		abs = filepath.Clean(root)
	}
	t.root = resolveExisting(abs)
	t.next = http.NewFileTransport(http.Dir(t.root))
}

func (t *fileTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.root == "" {
		return nil, fmt.Errorf("%w: no file root configured for %s", ErrOutsideRoot, req.URL)
	}
	rel, err := t.relative(req.URL)
	if err != nil {
		return nil, err
	}
	r := req.Clone(req.Context())
	r.URL = &url.URL{Scheme: "file", Path: rel}
	return t.next.RoundTrip(r)
}

// relative maps a file:// URL to a slash path below the root.
func (t *fileTransport) relative(u *url.URL) (string, error) {
	abs := resolveExisting(filepath.Clean(fileutil.FromFileURL(u)))
	if !filepath.IsAbs(abs) || !fileutil.IsPathUnderDir(abs, t.root) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, u.Path)
	}
	rel, err := filepath.Rel(t.root, abs)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, u.Path)
	}
	return "/" + filepath.ToSlash(rel), nil
}

// resolveExisting resolves symlinks in the longest existing prefix of path,
// so missing files still compare against the resolved root.
func resolveExisting(path string) string {
	var missing []string
	for dir := path; ; dir = filepath.Dir(dir) {
		if resolved, err := filepath.EvalSymlinks(dir); err == nil {
			for i := len(missing) - 1; i >= 0; i-- {
				resolved = filepath.Join(resolved, missing[i])
			}
			return resolved
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return path
		}
		missing = append(missing, filepath.Base(dir))
	}
}
