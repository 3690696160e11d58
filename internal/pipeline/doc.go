// Package pipeline implements the document rendering stages:
//   - Markdown preprocessing (line normalization, ==mark== syntax)
//   - Markdown to HTML fragment conversion via Goldmark
//   - Lazy, once-per-converter syntax highlighting via Chroma
//   - Image reference extraction and substitution, on HTML strings and on
//     goquery documents
//   - Standalone page wrapping with inline stylesheets
//
// Caching and fetching are handled by the root docpipe package; the stages
// here are pure transformations over their inputs.
package pipeline
