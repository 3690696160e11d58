package docpipe

// Notes:
// - The network is replaced by fakeFetcher, which counts calls per URL and
//   can hold a fetch open on a gate to force concurrent callers to overlap.
// - Highlighting output is covered in internal/pipeline; here only its
//   presence in the render path is checked.
// - Real HTTP is exercised once (TestPipeline_HTTPFetcher) through httptest.

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/alnah/go-docpipe/fetch"
	"github.com/alnah/go-docpipe/internal/fileutil"
	"github.com/alnah/go-docpipe/internal/imagecache"
	"github.com/alnah/go-docpipe/metrics"
	"github.com/alnah/go-docpipe/store"
)

var testPNG = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

// ---------------------------------------------------------------------------
// Test fakes
// ---------------------------------------------------------------------------

type fakeResponse struct {
	status int
	ctype  string
	body   string
}

type fakeFetcher struct {
	mu        sync.Mutex
	responses map[string]fakeResponse
	calls     map[string]int
	gates     map[string]chan struct{}
	started   chan string
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		responses: make(map[string]fakeResponse),
		calls:     make(map[string]int),
		gates:     make(map[string]chan struct{}),
	}
}

func (f *fakeFetcher) doc(url, text string) *fakeFetcher {
	f.responses[url] = fakeResponse{status: 200, ctype: "text/markdown", body: text}
	return f
}

func (f *fakeFetcher) image(url string) *fakeFetcher {
	f.responses[url] = fakeResponse{status: 200, ctype: "image/png", body: string(testPNG)}
	return f
}

func (f *fakeFetcher) status(url string, code int) *fakeFetcher {
	f.responses[url] = fakeResponse{status: code}
	return f
}

func (f *fakeFetcher) gate(url string) chan struct{} {
	ch := make(chan struct{})
	f.gates[url] = ch
	return ch
}

func (f *fakeFetcher) count(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

func (f *fakeFetcher) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) fetch.Result {
	f.mu.Lock()
	f.calls[url]++
	resp, ok := f.responses[url]
	gate := f.gates[url]
	f.mu.Unlock()

	if f.started != nil {
		f.started <- url
	}
	if gate != nil {
		<-gate
	}

	if !ok {
		resp = fakeResponse{status: 404}
	}
	res := fetch.Result{URL: url, Status: resp.status, ContentType: resp.ctype, Body: []byte(resp.body)}
	if resp.status < 200 || resp.status >= 300 {
		res.Body = nil
		res.Err = fetch.ErrStatus
	}
	return res
}

func (f *fakeFetcher) Head(ctx context.Context, url string) fetch.Result {
	res := f.Fetch(ctx, url)
	res.Body = nil
	return res
}

func newTestPipeline(t *testing.T, f fetch.Fetcher, opts ...Option) *Pipeline {
	t.Helper()
	opts = append([]Option{
		WithBaseURL("https://x/"),
		WithFetcher(f),
		WithLogger(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))),
	}, opts...)
	p, err := New(opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })
	return p
}

// ---------------------------------------------------------------------------
// TestNew - Construction
// ---------------------------------------------------------------------------

func TestNew_InvalidBaseURL(t *testing.T) {
	t.Parallel()

	for _, base := range []string{"relative/path", "http://[::1"} {
		if _, err := New(WithBaseURL(base)); !errors.Is(err, ErrInvalidBaseURL) {
			t.Errorf("New(WithBaseURL(%q)) error = %v, want ErrInvalidBaseURL", base, err)
		}
	}
}

func TestWithConcurrency_PanicsOnNonPositive(t *testing.T) {
	t.Parallel()

	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	WithConcurrency(0)
}

func TestPipeline_ResolveKey(t *testing.T) {
	t.Parallel()

	p := newTestPipeline(t, newFakeFetcher(), WithBaseURL("https://docs.example.com/site/"))

	tests := []struct {
		key     string
		want    string
		wantErr error
	}{
		{"guide.md", "https://docs.example.com/site/guide.md", nil},
		{"/d.md", "https://docs.example.com/d.md", nil},
		{"https://other.example.com/a.md", "https://other.example.com/a.md", nil},
		{"", "", ErrEmptyKey},
		{"http://[::1", "", ErrInvalidKey},
	}
	for _, tt := range tests {
		got, err := p.ResolveKey(tt.key)
		if !errors.Is(err, tt.wantErr) {
			t.Errorf("ResolveKey(%q) error = %v, want %v", tt.key, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ResolveKey(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}

	noBase, err := New(WithFetcher(newFakeFetcher()))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := noBase.ResolveKey("a.md"); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("relative key without base: error = %v, want ErrInvalidKey", err)
	}
}

// ---------------------------------------------------------------------------
// TestLoadText - Text resolution
// ---------------------------------------------------------------------------

func TestLoadText(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := newFakeFetcher().doc("https://x/d.md", "# Doc").status("https://x/gone.md", 404)
	p := newTestPipeline(t, f, WithDocsURL("https://docs.example.com/help"))

	t.Run("empty key returns fallback", func(t *testing.T) {
		got, err := p.LoadText(ctx, "", "fallback text")
		if err != nil || got != "fallback text" {
			t.Errorf("LoadText(\"\") = %q, %v", got, err)
		}
	})

	t.Run("fetch then cache", func(t *testing.T) {
		for range 3 {
			got, err := p.LoadText(ctx, "/d.md", "")
			if err != nil || got != "# Doc" {
				t.Fatalf("LoadText() = %q, %v", got, err)
			}
		}
		if n := f.count("https://x/d.md"); n != 1 {
			t.Errorf("fetch count = %d, want 1", n)
		}
	})

	t.Run("failure is reported and not cached", func(t *testing.T) {
		_, err := p.LoadText(ctx, "gone.md", "")
		if !errors.Is(err, ErrFetch) || !errors.Is(err, fetch.ErrStatus) {
			t.Fatalf("error = %v, want ErrFetch wrapping ErrStatus", err)
		}
		var fe *FetchError
		if !errors.As(err, &fe) || fe.Status != 404 {
			t.Fatalf("error = %#v, want *FetchError with status 404", err)
		}
		if !strings.Contains(err.Error(), "https://docs.example.com/help") {
			t.Errorf("error %q lacks documentation pointer", err)
		}

		_, _ = p.LoadText(ctx, "gone.md", "")
		if n := f.count("https://x/gone.md"); n != 2 {
			t.Errorf("failed fetch was cached: count = %d, want 2", n)
		}
	})
}

func TestLoadText_ConcurrentSingleFetch(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher().doc("https://x/d.md", "# Doc")
	gate := f.gate("https://x/d.md")
	f.started = make(chan string, 16)
	p := newTestPipeline(t, f)

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := p.LoadText(context.Background(), "d.md", ""); err != nil {
				t.Errorf("LoadText() error = %v", err)
			}
		}()
	}
	<-f.started
	time.Sleep(20 * time.Millisecond)
	close(gate)
	wg.Wait()

	if n := f.count("https://x/d.md"); n != 1 {
		t.Errorf("fetch count = %d, want 1", n)
	}
}

// ---------------------------------------------------------------------------
// TestRender - Scenarios
// ---------------------------------------------------------------------------

func TestRender_ScenarioA_CachesTextAndImage(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := newFakeFetcher().
		doc("https://x/d.md", "# Hello\n![alt](https://x/a.png)").
		image("https://x/a.png")
	p := newTestPipeline(t, f)

	res, err := p.Render(ctx, "/d.md")
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if !strings.Contains(res.HTML, ">Hello</h1>") {
		t.Errorf("missing heading: %s", res.HTML)
	}
	if !strings.Contains(res.HTML, `<img src="data:image/png;base64,`) {
		t.Errorf("image not substituted: %s", res.HTML)
	}
	if len(res.Images) != 1 || res.Images[0].State != ImageResolved {
		t.Fatalf("Images = %+v", res.Images)
	}

	again, err := p.Render(ctx, "/d.md")
	if err != nil {
		t.Fatalf("second Render() error = %v", err)
	}
	if again.HTML != res.HTML {
		t.Error("re-render produced different HTML")
	}
	if again.Images[0].Source != string(imagecache.SourceMemory) {
		t.Errorf("second render image source = %q, want memory", again.Images[0].Source)
	}
	if f.count("https://x/d.md") != 1 || f.count("https://x/a.png") != 1 {
		t.Errorf("fetch counts: doc=%d img=%d, want 1 each", f.count("https://x/d.md"), f.count("https://x/a.png"))
	}
}

func TestRender_ScenarioB_FailedImageDoesNotFailRender(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher().
		doc("https://x/d.md", "text\n\n![broken](https://x/missing.png)").
		status("https://x/missing.png", 500)
	p := newTestPipeline(t, f)

	res, err := p.Render(context.Background(), "d.md")
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if !strings.Contains(res.HTML, `<img src=""`) {
		t.Errorf("failed image should keep an element with empty src: %s", res.HTML)
	}
	failed := res.FailedImages()
	if len(failed) != 1 || failed[0].State != ImageFailed || failed[0].Err == nil {
		t.Errorf("FailedImages() = %+v", failed)
	}
	if p.ImageState("https://x/missing.png") != ImageUnseen {
		t.Error("failed image must leave no record")
	}
}

func TestRender_ScenarioC_SharedImageFetchedOnce(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := newFakeFetcher().
		doc("https://x/one.md", "![s](https://x/shared.png)").
		doc("https://x/two.md", "![s](/shared.png)").
		image("https://x/shared.png")
	gate := f.gate("https://x/shared.png")
	f.started = make(chan string, 16)
	p := newTestPipeline(t, f)

	results := make([]*Result, 2)
	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i, key := range []string{"one.md", "two.md"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = p.Render(ctx, key)
		}()
	}

	// Wait until the image fetch is in flight, then give the other render
	// time to join it.
	for url := range f.started {
		if url == "https://x/shared.png" {
			break
		}
	}
	if p.ImageState("https://x/shared.png") != ImagePending {
		t.Errorf("ImageState() = %v, want pending", p.ImageState("https://x/shared.png"))
	}
	time.Sleep(30 * time.Millisecond)
	close(gate)
	wg.Wait()

	for i := range results {
		if errs[i] != nil {
			t.Fatalf("render %d error = %v", i, errs[i])
		}
		if results[i].Images[0].State != ImageResolved {
			t.Errorf("render %d image state = %v", i, results[i].Images[0].State)
		}
	}
	if n := f.count("https://x/shared.png"); n != 1 {
		t.Errorf("shared image fetched %d times, want 1", n)
	}
	if p.ImageState("https://x/shared.png") != ImageResolved {
		t.Error("shared image should be resolved")
	}
}

func TestRender_DataURIsNeverFetched(t *testing.T) {
	t.Parallel()

	const inline = "data:image/gif;base64,R0lGODlhAQABAAAAACw="
	f := newFakeFetcher().doc("https://x/d.md", "![dot]("+inline+")")
	p := newTestPipeline(t, f)

	res, err := p.Render(context.Background(), "d.md")
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if !strings.Contains(res.HTML, inline) {
		t.Errorf("data: source altered: %s", res.HTML)
	}
	if len(res.Images) != 0 {
		t.Errorf("data: image reported: %+v", res.Images)
	}
	if f.total() != 1 {
		t.Errorf("fetches = %d, want 1 (document only)", f.total())
	}
}

func TestRender_UnparseableImageDoesNotAbort(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher().
		doc("https://x/d.md", "![ok](ok.png)\n\n![bad](<http://[::1>)").
		image("https://x/ok.png")
	p := newTestPipeline(t, f)

	res, err := p.Render(context.Background(), "d.md")
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	var ok, bad int
	for _, img := range res.Images {
		switch {
		case img.State == ImageResolved:
			ok++
		case img.URL == "" && img.Err != nil:
			bad++
		}
	}
	if ok != 1 || bad != 1 {
		t.Errorf("Images = %+v, want one resolved and one invalid", res.Images)
	}
}

func TestRender_FetchFailureReturnsNoHTML(t *testing.T) {
	t.Parallel()

	p := newTestPipeline(t, newFakeFetcher())
	res, err := p.Render(context.Background(), "missing.md")
	if !errors.Is(err, ErrFetch) {
		t.Errorf("Render() error = %v, want ErrFetch", err)
	}
	if res != nil {
		t.Error("Render() returned a result alongside an error")
	}
}

func TestRender_DurableStoreSurvivesPipelines(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	durable, err := store.OpenSQLiteMemory(0)
	if err != nil {
		t.Fatalf("OpenSQLiteMemory() error = %v", err)
	}
	t.Cleanup(func() { _ = durable.Close() })

	f := newFakeFetcher().doc("https://x/d.md", "![a](a.png)").image("https://x/a.png")

	first, err := New(WithBaseURL("https://x/"), WithFetcher(f), WithDurableStore(durable))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := first.Render(ctx, "d.md"); err != nil {
		t.Fatalf("first Render() error = %v", err)
	}

	// A new session: fresh memory and session store, same durable store.
	second, err := New(WithBaseURL("https://x/"), WithFetcher(f), WithDurableStore(durable))
	if err != nil {
		t.Fatal(err)
	}
	res, err := second.Render(ctx, "d.md")
	if err != nil {
		t.Fatalf("second Render() error = %v", err)
	}
	if res.Images[0].Source != string(imagecache.SourceDurable) {
		t.Errorf("image source = %q, want durable", res.Images[0].Source)
	}
	if n := f.count("https://x/a.png"); n != 1 {
		t.Errorf("image fetched %d times across sessions, want 1", n)
	}
}

func TestRender_QuotaExceededKeepsImage(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher().doc("https://x/d.md", "![a](a.png)").image("https://x/a.png")
	p := newTestPipeline(t, f, WithDurableStore(store.NewMemory(8)))

	res, err := p.Render(context.Background(), "d.md")
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	img := res.Images[0]
	if img.State != ImageResolved || !store.IsQuotaExceeded(img.PersistErr) {
		t.Errorf("image = %+v, want resolved with quota PersistErr", img)
	}
	if !strings.Contains(res.HTML, "data:image/png") {
		t.Error("image should still be embedded")
	}
}

func TestRenderString(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher().image("https://x/a.png")
	p := newTestPipeline(t, f)

	res, err := p.RenderString(context.Background(), "# Inline\n\n```go\nvar x = 1\n```\n\n![a](a.png)")
	if err != nil {
		t.Fatalf("RenderString() error = %v", err)
	}
	if res.Key != "" {
		t.Errorf("Key = %q, want empty for inline documents", res.Key)
	}
	for _, want := range []string{">Inline</h1>", `class="chroma"`, "data:image/png"} {
		if !strings.Contains(res.HTML, want) {
			t.Errorf("HTML missing %q: %s", want, res.HTML)
		}
	}
}

func TestRenderGenerated_AllowsRawHTML(t *testing.T) {
	t.Parallel()

	p := newTestPipeline(t, newFakeFetcher())
	res, err := p.RenderGenerated(context.Background(), "<details><summary>Files</summary>\n\n| a |\n|---|\n| b |\n\n</details>")
	if err != nil {
		t.Fatalf("RenderGenerated() error = %v", err)
	}
	if !strings.Contains(res.HTML, "<details>") {
		t.Errorf("raw HTML dropped: %s", res.HTML)
	}
}

// ---------------------------------------------------------------------------
// TestRenderInto - DOM variant
// ---------------------------------------------------------------------------

func TestRenderInto(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	newPage := func(t *testing.T) *goquery.Document {
		t.Helper()
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(
			`<html><body><div id="main_md"><p>loading</p></div></body></html>`))
		if err != nil {
			t.Fatal(err)
		}
		return doc
	}

	f := newFakeFetcher().doc("https://x/d.md", "# Title\n\n![a](a.png)").image("https://x/a.png")
	p := newTestPipeline(t, f)

	t.Run("replaces target content", func(t *testing.T) {
		page := newPage(t)
		res, err := p.RenderInto(ctx, page, "#main_md", "d.md")
		if err != nil {
			t.Fatalf("RenderInto() error = %v", err)
		}
		main := page.Find("#main_md")
		if main.Find("p").First().Text() == "loading" {
			t.Error("prior content was not replaced")
		}
		if main.Find("h1").Text() != "Title" {
			t.Errorf("heading = %q", main.Find("h1").Text())
		}
		src, _ := main.Find("img").Attr("src")
		if !strings.HasPrefix(src, "data:image/png;base64,") {
			t.Errorf("img src = %q", src)
		}
		if len(res.Images) != 1 {
			t.Errorf("Images = %+v", res.Images)
		}
	})

	t.Run("missing target", func(t *testing.T) {
		page := newPage(t)
		_, err := p.RenderInto(ctx, page, "#nope", "d.md")
		if !errors.Is(err, ErrTargetNotFound) {
			t.Errorf("error = %v, want ErrTargetNotFound", err)
		}
	})

	t.Run("failure leaves prior content", func(t *testing.T) {
		page := newPage(t)
		_, err := p.RenderInto(ctx, page, "#main_md", "missing.md")
		if !errors.Is(err, ErrFetch) {
			t.Fatalf("error = %v, want ErrFetch", err)
		}
		if got := page.Find("#main_md p").Text(); got != "loading" {
			t.Errorf("content changed on failure: %q", got)
		}
	})
}

// ---------------------------------------------------------------------------
// TestPreload - Bulk warm-up
// ---------------------------------------------------------------------------

func TestPreload_ScenarioD_FailureDoesNotStopBatch(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := newFakeFetcher().
		doc("https://x/1.md", "![a](a.png)").
		status("https://x/2.md", 503).
		doc("https://x/3.md", "![b](b.png)").
		image("https://x/a.png").
		image("https://x/b.png")
	p := newTestPipeline(t, f)

	report := p.Preload(ctx, []string{"1.md", "2.md", "3.md"})
	if report.Failed() != 1 || !errors.Is(report.Err(), ErrFetch) {
		t.Fatalf("report = %+v", report)
	}
	if report.Documents[1].Err == nil || report.Documents[0].Err != nil || report.Documents[2].Err != nil {
		t.Errorf("per-document errors = %v, %v, %v",
			report.Documents[0].Err, report.Documents[1].Err, report.Documents[2].Err)
	}

	for _, key := range []string{"https://x/1.md", "https://x/3.md"} {
		if _, ok := p.cachedText(ctx, key); !ok {
			t.Errorf("text of %s not cached", key)
		}
		if _, ok := p.cachedHTML(ctx, key); !ok {
			t.Errorf("HTML of %s not cached", key)
		}
	}
	for _, img := range []string{"https://x/a.png", "https://x/b.png"} {
		if p.ImageState(img) != ImageResolved {
			t.Errorf("image %s state = %v", img, p.ImageState(img))
		}
	}
}

func TestPreload_Idempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := newFakeFetcher().doc("https://x/d.md", "# D\n\n![a](a.png)").image("https://x/a.png")
	p := newTestPipeline(t, f)

	first := p.Preload(ctx, []string{"d.md"})
	if !first.Documents[0].Rendered || first.Documents[0].Images != 1 {
		t.Errorf("first preload = %+v", first.Documents[0])
	}
	fetches := f.total()

	second := p.Preload(ctx, []string{"d.md"})
	if second.Documents[0].Rendered {
		t.Error("second preload re-rendered a cached document")
	}
	if f.total() != fetches {
		t.Errorf("second preload fetched %d more times", f.total()-fetches)
	}
}

func TestPreload_ClearHTMLRebuildsEqualEntry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := newFakeFetcher().doc("https://x/d.md", "# D\n\n```go\nvar x = 1\n```")
	p := newTestPipeline(t, f)

	p.Preload(ctx, []string{"d.md"})
	before, _ := p.cachedHTML(ctx, "https://x/d.md")

	if err := p.ClearHTML(ctx, "d.md"); err != nil {
		t.Fatalf("ClearHTML() error = %v", err)
	}
	if _, ok := p.cachedHTML(ctx, "https://x/d.md"); ok {
		t.Fatal("HTML still cached after ClearHTML")
	}

	p.Preload(ctx, []string{"d.md"})
	after, ok := p.cachedHTML(ctx, "https://x/d.md")
	if !ok || after != before {
		t.Errorf("rebuilt HTML differs:\nbefore: %s\nafter:  %s", before, after)
	}
	if n := f.count("https://x/d.md"); n != 1 {
		t.Errorf("text fetched %d times, want 1", n)
	}
}

func TestRender_UsesPreloadedHTML(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := newFakeFetcher().doc("https://x/d.md", "# D")
	p := newTestPipeline(t, f)
	p.Preload(ctx, []string{"d.md"})

	// Replace the stored render; Render must serve it instead of re-rendering.
	_ = p.session.Set(ctx, "html:https://x/d.md", "<p>from cache</p>")
	res, err := p.Render(ctx, "d.md")
	if err != nil {
		t.Fatal(err)
	}
	if res.HTML != "<p>from cache</p>" {
		t.Errorf("HTML = %q, want the cached render", res.HTML)
	}
}

// ---------------------------------------------------------------------------
// TestCacheControl - Explicit invalidation
// ---------------------------------------------------------------------------

func TestCacheControl(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := newFakeFetcher().doc("https://x/d.md", "![a](a.png)").image("https://x/a.png")
	p := newTestPipeline(t, f)
	if _, err := p.Render(ctx, "d.md"); err != nil {
		t.Fatal(err)
	}

	if err := p.ClearText(ctx, "d.md"); err != nil {
		t.Fatalf("ClearText() error = %v", err)
	}
	if _, err := p.LoadText(ctx, "d.md", ""); err != nil {
		t.Fatal(err)
	}
	if n := f.count("https://x/d.md"); n != 2 {
		t.Errorf("text fetches after ClearText = %d, want 2", n)
	}

	if err := p.ClearSession(ctx); err != nil {
		t.Fatalf("ClearSession() error = %v", err)
	}
	if _, ok := p.cachedText(ctx, "https://x/d.md"); ok {
		t.Error("text survived ClearSession")
	}

	if p.ImageState("https://x/a.png") != ImageResolved {
		t.Fatal("image should be resolved before ClearImages")
	}
	if err := p.ClearImages(ctx); err != nil {
		t.Fatalf("ClearImages() error = %v", err)
	}
	if p.ImageState("https://x/a.png") != ImageUnseen {
		t.Error("image survived ClearImages")
	}
}

func TestHighlightCSS(t *testing.T) {
	t.Parallel()

	p := newTestPipeline(t, newFakeFetcher(), WithHighlightStyle("monokai"))
	css, err := p.HighlightCSS(context.Background())
	if err != nil || !strings.Contains(css, ".chroma") {
		t.Errorf("HighlightCSS() = %.80q, %v", css, err)
	}
}

// ---------------------------------------------------------------------------
// TestPipeline_Isolation - Independent instances
// ---------------------------------------------------------------------------

func TestPipeline_InstancesDoNotShareState(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := newFakeFetcher().doc("https://x/d.md", "![a](a.png)").image("https://x/a.png")
	a := newTestPipeline(t, f)
	b := newTestPipeline(t, f)

	if _, err := a.Render(ctx, "d.md"); err != nil {
		t.Fatal(err)
	}
	if b.ImageState("https://x/a.png") != ImageUnseen {
		t.Error("image resolved in one pipeline leaked into another")
	}
}

// ---------------------------------------------------------------------------
// TestPipeline_Metrics - Prometheus counters
// ---------------------------------------------------------------------------

func TestPipeline_Metrics(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	m := metrics.New(prometheus.NewRegistry())
	f := newFakeFetcher().doc("https://x/d.md", "![a](a.png)").image("https://x/a.png")
	p := newTestPipeline(t, f, WithMetrics(m))

	_, _ = p.Render(ctx, "d.md")
	_, _ = p.Render(ctx, "d.md")

	if got := testutil.ToFloat64(m.TextCache.WithLabelValues("hit")); got != 1 {
		t.Errorf("text cache hits = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ImageResolutions.WithLabelValues(metrics.SourceNetwork)); got != 1 {
		t.Errorf("network resolutions = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ImageResolutions.WithLabelValues(metrics.SourceMemory)); got != 1 {
		t.Errorf("memory resolutions = %v, want 1", got)
	}
}

// ---------------------------------------------------------------------------
// TestPipeline_HTTPFetcher - End to end over HTTP
// ---------------------------------------------------------------------------

func TestPipeline_HTTPFetcher(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/docs/intro.md", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("# Intro\n\n![logo](img/logo.png)"))
	})
	mux.HandleFunc("/docs/img/logo.png", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(testPNG)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	p, err := New(WithBaseURL(srv.URL + "/docs/"))
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	res, err := p.Render(context.Background(), "intro.md")
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if res.Images[0].URL != srv.URL+"/docs/img/logo.png" || res.Images[0].State != ImageResolved {
		t.Errorf("image = %+v", res.Images[0])
	}
}

func TestPipeline_FileBaseConfinesDefaultFetcher(t *testing.T) {
	t.Parallel()

	parent := t.TempDir()
	root := filepath.Join(parent, "site")
	if err := os.MkdirAll(root, 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(parent, "secret.md"), []byte("# secret"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "intro.md"), []byte("# Intro"), 0o600); err != nil {
		t.Fatal(err)
	}
	base, err := fileutil.DirURL(root)
	if err != nil {
		t.Fatal(err)
	}

	p, err := New(WithBaseURL(base), WithLogger(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))))
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	if _, err := p.Render(context.Background(), "intro.md"); err != nil {
		t.Fatalf("Render(intro.md) error = %v", err)
	}
	for _, key := range []string{"../secret.md", filepath.ToSlash(filepath.Join(parent, "secret.md"))} {
		_, err := p.Render(context.Background(), key)
		if !errors.Is(err, ErrFetch) || !errors.Is(err, fetch.ErrOutsideRoot) {
			t.Errorf("Render(%q) error = %v, want ErrFetch and ErrOutsideRoot", key, err)
		}
	}
}

// ---------------------------------------------------------------------------
// TestPipeline_Closed - Operations after Close
// ---------------------------------------------------------------------------

func TestPipeline_Closed(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher().doc("https://x/a.md", "# A")
	p := newTestPipeline(t, f)
	if err := p.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}

	ctx := context.Background()
	page, err := goquery.NewDocumentFromReader(strings.NewReader(`<main id="doc"></main>`))
	if err != nil {
		t.Fatal(err)
	}
	ops := map[string]func() error{
		"LoadText":        func() error { _, err := p.LoadText(ctx, "a.md", ""); return err },
		"Render":          func() error { _, err := p.Render(ctx, "a.md"); return err },
		"RenderString":    func() error { _, err := p.RenderString(ctx, "# x"); return err },
		"RenderGenerated": func() error { _, err := p.RenderGenerated(ctx, "# x"); return err },
		"RenderInto":      func() error { _, err := p.RenderInto(ctx, page, "#doc", "a.md"); return err },
		"Preload":         func() error { return p.Preload(ctx, []string{"a.md"}).Err() },
		"ClearText":       func() error { return p.ClearText(ctx, "a.md") },
		"ClearHTML":       func() error { return p.ClearHTML(ctx, "a.md") },
		"ClearSession":    func() error { return p.ClearSession(ctx) },
		"ClearImages":     func() error { return p.ClearImages(ctx) },
	}
	for name, op := range ops {
		if err := op(); !errors.Is(err, ErrClosed) {
			t.Errorf("%s after Close error = %v, want ErrClosed", name, err)
		}
	}
	if f.total() != 0 {
		t.Errorf("fetches after Close = %d, want 0", f.total())
	}
	if text, err := p.LoadText(ctx, "", "fallback"); err != nil || text != "fallback" {
		t.Errorf("LoadText(empty key) = %q, %v; fallback needs no store", text, err)
	}
}

func TestPreload_CountsDistinctValidImages(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher().
		doc("https://x/d.md", "![a](a.png) ![again](a.png) ![b](b.png)\n\n![bad](<http://[::1>)").
		image("https://x/a.png")
	p := newTestPipeline(t, f)

	report := p.Preload(context.Background(), []string{"d.md"})
	doc := report.Documents[0]
	if doc.Err != nil {
		t.Fatalf("Preload error = %v", doc.Err)
	}
	if doc.Images != 2 || doc.ImageFailures != 1 {
		t.Errorf("Images = %d, ImageFailures = %d; want 2 and 1", doc.Images, doc.ImageFailures)
	}
	if n := f.count("https://x/a.png"); n != 1 {
		t.Errorf("a.png fetched %d times, want 1", n)
	}
}
