package docpipe_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/alnah/go-docpipe"
	"github.com/alnah/go-docpipe/fetch"
	"github.com/alnah/go-docpipe/store"
)

// Example renders an inline Markdown document.
func Example() {
	p, err := docpipe.New()
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	defer p.Close()

	result, err := p.RenderString(context.Background(), "# Hello World\n\nThis is a test.")
	if err != nil {
		fmt.Println("error:", err)
		return
	}

	fmt.Println(strings.Contains(result.HTML, `<h1 id="hello-world">Hello World</h1>`))
	// Output: true
}

// Example_render renders a document fetched relative to a base URL, with its
// image embedded as a data URI.
func Example_render() {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/docs/intro.md":
			fmt.Fprint(w, "# Intro\n\n![dot](dot.gif)")
		case "/docs/dot.gif":
			w.Header().Set("Content-Type", "image/gif")
			fmt.Fprint(w, "GIF89a")
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	p, err := docpipe.New(docpipe.WithBaseURL(srv.URL + "/docs/"))
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	defer p.Close()

	result, err := p.Render(context.Background(), "intro.md")
	if err != nil {
		fmt.Println("error:", err)
		return
	}

	fmt.Println(result.Images[0].State)
	fmt.Println(strings.Contains(result.HTML, `src="data:image/gif;base64,R0lGODlh"`))
	// Output:
	// resolved
	// true
}

// ExamplePipeline_Preload warms the caches for a batch of documents.
func ExamplePipeline_Preload() {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.md" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, "# Page")
	}))
	defer srv.Close()

	p, err := docpipe.New(docpipe.WithBaseURL(srv.URL + "/"))
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	defer p.Close()

	report := p.Preload(context.Background(), []string{"a.md", "missing.md", "b.md"})
	fmt.Println("failed:", report.Failed())
	// Output: failed: 1
}

// Example_sqliteImages persists images in SQLite, so a later Pipeline embeds
// them without fetching again.
func Example_sqliteImages() {
	var imageFetches atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/intro.md":
			fmt.Fprint(w, "![dot](dot.gif)")
		case "/dot.gif":
			imageFetches.Add(1)
			w.Header().Set("Content-Type", "image/gif")
			fmt.Fprint(w, "GIF89a")
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	dir, err := os.MkdirTemp("", "docpipe-example")
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	defer os.RemoveAll(dir)
	dbPath := filepath.Join(dir, "images.db")

	for range 2 {
		images, err := store.OpenSQLite(dbPath, 0)
		if err != nil {
			fmt.Println("error:", err)
			return
		}
		p, err := docpipe.New(
			docpipe.WithBaseURL(srv.URL+"/"),
			docpipe.WithDurableStore(images),
		)
		if err != nil {
			fmt.Println("error:", err)
			return
		}
		result, err := p.Render(context.Background(), "intro.md")
		_ = p.Close()
		if err != nil {
			fmt.Println("error:", err)
			return
		}
		fmt.Println(result.Images[0].State)
	}
	fmt.Println("image fetches:", imageFetches.Load())
	// Output:
	// resolved
	// resolved
	// image fetches: 1
}

// mapFetcher serves documents from memory.
type mapFetcher map[string]string

func (m mapFetcher) Fetch(_ context.Context, rawURL string) fetch.Result {
	body, ok := m[rawURL]
	if !ok {
		return fetch.Result{URL: rawURL, Status: http.StatusNotFound, Err: fetch.ErrStatus}
	}
	return fetch.Result{URL: rawURL, Status: http.StatusOK, Body: []byte(body)}
}

func (m mapFetcher) Head(ctx context.Context, rawURL string) fetch.Result {
	res := m.Fetch(ctx, rawURL)
	res.Body = nil
	return res
}

// Example_customFetcher loads documents through a caller-supplied Fetcher.
func Example_customFetcher() {
	p, err := docpipe.New(
		docpipe.WithBaseURL("https://docs.example/"),
		docpipe.WithFetcher(mapFetcher{"https://docs.example/a.md": "# From memory"}),
	)
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	defer p.Close()

	text, err := p.LoadText(context.Background(), "a.md", "")
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	fmt.Println(text)
	// Output: # From memory
}
