package releases

// Notes:
// - The fetcher is a map-backed fake keyed by absolute URL; calls are counted
//   to observe the session cache.
// - The clock is injected so TTL expiry needs no sleeping.

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alnah/go-docpipe/fetch"
	"github.com/alnah/go-docpipe/store"
)

const testIndex = `{
  "1.9.0": {
    "title": "Nine",
    "commit": "abc123",
    "type": "stable",
    "gh_release": "https://github.com/p/r/releases/1.9.0",
    "features": ["Faster"],
    "files": {"win": {"url": "https://dl/p-1.9.0.exe", "hash": "ff"}}
  },
  "1.10.0": {
    "title": "Ten",
    "commit": "def456",
    "type": "beta",
    "gh_release": "https://github.com/p/r/releases/1.10.0",
    "gh_changes": "https://github.com/p/r/compare/1.9.0...1.10.0",
    "vs_release": "https://marketplace/vs",
    "features": ["New editor", "Bug fixes"],
    "files": {
      "vsix": {"url": "https://dl/p-1.10.0.vsix"},
      "win": {"url": "https://dl/p-1.10.0.exe", "hash": "deadbeef"},
      "raw": {"url": "https://dl/p-1.10.0.bin"}
    },
    "src": "https://github.com/p/r/archive/1.10.0.tar.gz",
    "zip": "https://github.com/p/r/archive/1.10.0.zip"
  }
}`

const testMeta = `{
  "win": {"label": "Windows installer", "type": "exe"},
  "vsix": {"label": "VSCode extension", "type": "vsix"}
}`

// ---------------------------------------------------------------------------
// Test fakes
// ---------------------------------------------------------------------------

type mapFetcher struct {
	mu    sync.Mutex
	body  map[string]string
	calls map[string]int
}

func newMapFetcher(body map[string]string) *mapFetcher {
	return &mapFetcher{body: body, calls: make(map[string]int)}
}

func (f *mapFetcher) Fetch(_ context.Context, url string) fetch.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[url]++
	b, ok := f.body[url]
	if !ok {
		return fetch.Result{URL: url, Status: 404, Err: fetch.ErrStatus}
	}
	return fetch.Result{URL: url, Status: 200, ContentType: "application/json", Body: []byte(b)}
}

func (f *mapFetcher) Head(_ context.Context, url string) fetch.Result {
	return fetch.Result{URL: url, Status: 200}
}

func (f *mapFetcher) count(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

const (
	indexURL = "https://site.test/downloads/index.json"
	metaURL  = "https://site.test/downloads/meta.json"
)

func newTestSource(t *testing.T, opts ...Option) (*Source, *mapFetcher, *store.Memory) {
	t.Helper()
	f := newMapFetcher(map[string]string{indexURL: testIndex, metaURL: testMeta})
	session := store.NewMemory(0)
	s, err := NewSource(f, session, "https://site.test/", opts...)
	if err != nil {
		t.Fatalf("NewSource: %v", err)
	}
	return s, f, session
}

// ---------------------------------------------------------------------------
// TestNaturalLess - Numeric-aware ordering
// ---------------------------------------------------------------------------

func TestNaturalLess(t *testing.T) {
	t.Parallel()

	tests := []struct {
		a, b string
		want bool
	}{
		{"1.9.0", "1.10.0", true},
		{"1.10.0", "1.9.0", false},
		{"v2", "v10", true},
		{"1.0", "1.0.1", true},
		{"1.0", "1.0", false},
		{"007", "8", true},
		{"alpha", "beta", true},
		{"1.0-Beta", "1.0-alpha", false},
	}

	for _, tt := range tests {
		t.Run(tt.a+"<"+tt.b, func(t *testing.T) {
			t.Parallel()
			if got := naturalLess(tt.a, tt.b); got != tt.want {
				t.Errorf("naturalLess(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestSortVersions_NewestFirst(t *testing.T) {
	t.Parallel()
	idx := Index{"0.9": {}, "0.10": {}, "0.2": {}, "1.0": {}}
	got := strings.Join(SortVersions(idx), ",")
	if want := "1.0,0.10,0.9,0.2"; got != want {
		t.Errorf("SortVersions = %s, want %s", got, want)
	}
}

// ---------------------------------------------------------------------------
// TestFiles - Ordered decoding
// ---------------------------------------------------------------------------

func TestFiles_PreservesOrder(t *testing.T) {
	t.Parallel()
	s, _, _ := newTestSource(t)
	idx, err := s.Index(context.Background())
	if err != nil {
		t.Fatalf("Index: %v", err)
	}
	var keys []string
	for _, f := range idx["1.10.0"].Files {
		keys = append(keys, f.Key)
	}
	if got := strings.Join(keys, ","); got != "vsix,win,raw" {
		t.Errorf("file order = %s, want vsix,win,raw", got)
	}
}

// ---------------------------------------------------------------------------
// TestSource - Loading and caching
// ---------------------------------------------------------------------------

func TestSource_CachesWithinTTL(t *testing.T) {
	t.Parallel()
	clk := &clock{now: time.Unix(1_700_000_000, 0)}
	s, f, session := newTestSource(t, WithClock(clk.Now))
	ctx := context.Background()

	if _, err := s.Index(ctx); err != nil {
		t.Fatalf("Index: %v", err)
	}
	clk.Advance(89 * time.Second)
	if _, err := s.Index(ctx); err != nil {
		t.Fatalf("Index: %v", err)
	}
	if n := f.count(indexURL); n != 1 {
		t.Errorf("fetches within TTL = %d, want 1", n)
	}
	if _, ok, _ := session.Get(ctx, "json:/downloads/index.json"); !ok {
		t.Error("session entry missing")
	}

	clk.Advance(2 * time.Second)
	if _, err := s.Index(ctx); err != nil {
		t.Fatalf("Index: %v", err)
	}
	if n := f.count(indexURL); n != 2 {
		t.Errorf("fetches after TTL = %d, want 2", n)
	}
}

func TestSource_LivePreviewBypassesCache(t *testing.T) {
	t.Parallel()
	s, f, session := newTestSource(t, WithLivePreview(true))
	ctx := context.Background()

	for range 3 {
		if _, err := s.Index(ctx); err != nil {
			t.Fatalf("Index: %v", err)
		}
	}
	if n := f.count(indexURL); n != 3 {
		t.Errorf("fetches = %d, want 3", n)
	}
	if session.Len() != 0 {
		t.Errorf("session entries = %d, want 0", session.Len())
	}
}

func TestSource_CorruptCacheEntryRefetched(t *testing.T) {
	t.Parallel()
	s, f, session := newTestSource(t)
	ctx := context.Background()
	if err := session.Set(ctx, "json:/downloads/index.json", "{not json"); err != nil {
		t.Fatal(err)
	}

	if _, err := s.Index(ctx); err != nil {
		t.Fatalf("Index: %v", err)
	}
	if n := f.count(indexURL); n != 1 {
		t.Errorf("fetches = %d, want 1", n)
	}
}

func TestSource_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		index   string
		wantErr error
	}{
		{"missing", "", ErrLoad},
		{"not json", "<html>", ErrInvalidIndex},
		{"missing title", `{"1.0": {"features": [], "files": {}}}`, ErrInvalidIndex},
		{"file without url", `{"1.0": {"title": "t", "features": [], "files": {"a": {"hash": "x"}}}}`, ErrInvalidIndex},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			body := map[string]string{metaURL: testMeta}
			if tt.index != "" {
				body[indexURL] = tt.index
			}
			s, err := NewSource(newMapFetcher(body), store.NewMemory(0), "https://site.test/")
			if err != nil {
				t.Fatal(err)
			}
			_, err = s.Index(context.Background())
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Index error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSource_Latest(t *testing.T) {
	t.Parallel()
	s, _, _ := newTestSource(t)
	got, err := s.Latest(context.Background())
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if got != "1.10.0" {
		t.Errorf("Latest = %q, want 1.10.0", got)
	}

	empty, err := NewSource(newMapFetcher(map[string]string{indexURL: "{}"}), store.NewMemory(0), "https://site.test/")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := empty.Latest(context.Background()); !errors.Is(err, ErrNoReleases) {
		t.Errorf("Latest on empty index error = %v, want ErrNoReleases", err)
	}
}

// ---------------------------------------------------------------------------
// TestMarkdown - Page generation
// ---------------------------------------------------------------------------

func TestVersionListMarkdown(t *testing.T) {
	t.Parallel()
	s, _, _ := newTestSource(t)
	got, err := s.VersionListMarkdown(context.Background())
	if err != nil {
		t.Fatalf("VersionListMarkdown: %v", err)
	}
	want := `- <span data-version="1.10.0" class="download-btn">1.10.0</span>` + "\n" +
		`- <span data-version="1.9.0" class="download-btn">1.9.0</span>`
	if got != want {
		t.Errorf("VersionListMarkdown =\n%s\nwant\n%s", got, want)
	}
}

func TestReleaseMarkdown(t *testing.T) {
	t.Parallel()
	s, _, _ := newTestSource(t)
	md, err := s.ReleaseMarkdown(context.Background(), LatestAlias)
	if err != nil {
		t.Fatalf("ReleaseMarkdown: %v", err)
	}

	wants := []string{
		`<span data-version="back" class="download-btn">&larr; Back to all</span>`,
		"# 1.10.0\n\n## Ten",
		"Commit: `def456` | **`beta`** | [GitHub](https://github.com/p/r/releases/1.10.0) | [Visual Studio](https://marketplace/vs)\n",
		"- New editor\n- Bug fixes\n",
		"[Compare Releases (GitHub)](https://github.com/p/r/compare/1.9.0...1.10.0)",
		"- VSCode extension [`p-1.10.0.vsix`](https://dl/p-1.10.0.vsix) <sub>(vsix)</sub>\n",
		"- Windows installer [`p-1.10.0.exe`](https://dl/p-1.10.0.exe) <sub>(exe)</sub> <sub>sha256:</sub> `deadbeef`",
		"- raw [`p-1.10.0.bin`](https://dl/p-1.10.0.bin)\n",
		"- [`1.10.0.tar.gz`](https://github.com/p/r/archive/1.10.0.tar.gz) <sub>(gzip archive)</sub>",
		"- [`1.10.0.zip`](https://github.com/p/r/archive/1.10.0.zip) <sub>(zip archive)</sub>",
	}
	for _, w := range wants {
		if !strings.Contains(md, w) {
			t.Errorf("markdown missing %q\n%s", w, md)
		}
	}
	if strings.Contains(md, "VSCode](") {
		t.Error("empty VSCode link rendered")
	}
	if strings.Index(md, "vsix") > strings.Index(md, "Windows installer") {
		t.Error("assets not in index order")
	}
}

func TestReleaseMarkdown_UnknownVersion(t *testing.T) {
	t.Parallel()
	s, _, _ := newTestSource(t)
	_, err := s.ReleaseMarkdown(context.Background(), "9.9.9")
	if !errors.Is(err, ErrVersionNotFound) {
		t.Errorf("error = %v, want ErrVersionNotFound", err)
	}
}

func TestPageTitle(t *testing.T) {
	t.Parallel()

	tests := []struct {
		version string
		want    string
	}{
		{"", "Download Phasor"},
		{BackAlias, "Download Phasor"},
		{"1.2.0", "Download Phasor 1.2.0"},
	}

	for _, tt := range tests {
		if got := PageTitle("Phasor", tt.version); got != tt.want {
			t.Errorf("PageTitle(%q) = %q, want %q", tt.version, got, tt.want)
		}
	}
}
