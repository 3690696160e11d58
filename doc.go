// Package docpipe renders documentation pages from Markdown with every
// embedded image resolved to a locally cached data URI.
//
// # Quick Start
//
// Create a pipeline, render a document, and close when done:
//
//	p, err := docpipe.New(docpipe.WithBaseURL("https://docs.example.com/"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer p.Close()
//
//	result, err := p.Render(ctx, "guide/intro.md")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(result.HTML)
//
// # Render Pipeline
//
// Each render follows these stages:
//
//  1. Text lookup in the session store, or a fetch that fills it
//  2. Markdown to HTML via Goldmark, with code highlighted by Chroma; the
//     highlighter loads on first use, once per Pipeline
//  3. Image extraction: every <img src> resolved against the base URL;
//     data: sources are left alone
//  4. Image resolution: memory, then a shared in-flight fetch, then the
//     durable store, then the network; results are persisted as data URIs
//  5. Substitution of the resolved sources into the HTML
//
// Failed images get an empty src and are reported in Result.Images rather
// than failing the render. Failed document fetches return a *FetchError.
//
// # Storage
//
// Document text and rendered HTML live in the session store; images persist
// in the durable store. Both default to memory. The store package provides
// SQLite and Redis implementations for longer-lived caches, and any
// store.Store can be passed to WithSessionStore or WithDurableStore:
//
//	images, err := store.OpenSQLite("cache/images.db", 0)
//	if err != nil {
//	    return err
//	}
//	p, err := docpipe.New(docpipe.WithDurableStore(images))
//
// Fetching goes through a fetch.Fetcher; fetch.NewHTTPFetcher is the default
// and serves file:// URLs only below its WithFileRoot directory.
//
// # Preloading
//
// Preload warms every cache for a list of documents, so later renders do not
// touch the network:
//
//	report := p.Preload(ctx, []string{"a.md", "b.md"})
//	if err := report.Err(); err != nil {
//	    log.Println(err)
//	}
package docpipe
