package docpipe

import (
	"errors"

	"github.com/alnah/go-docpipe/internal/imagecache"
)

// ImageState is the lifecycle state of an image URL within a Pipeline.
type ImageState = imagecache.State

// Image states. ImageFailed only appears on results; a failed image is
// reported as ImageUnseen by Pipeline.ImageState so the next reference
// retries.
const (
	ImageUnseen   = imagecache.Unseen
	ImagePending  = imagecache.Pending
	ImageResolved = imagecache.Resolved
	ImageFailed   = imagecache.Failed
)

// Result is a rendered document.
type Result struct {
	// Key is the resolved document URL, empty for inline documents.
	Key string
	// HTML is the rendered fragment with image sources substituted.
	HTML string
	// Images lists each distinct image reference in document order.
	Images []ImageResult
}

// ImageResult describes how one image reference was handled.
type ImageResult struct {
	// Raw is the src as written in the document.
	Raw string
	// URL is the absolute image URL; empty when Raw could not be resolved.
	URL    string
	State  ImageState
	Source string
	// Err is set for unresolvable references and failed fetches.
	Err error
	// PersistErr is set when the image could not be persisted. The image
	// is still embedded in HTML.
	PersistErr error
}

// FailedImages returns the images that did not resolve.
func (r *Result) FailedImages() []ImageResult {
	var failed []ImageResult
	for _, img := range r.Images {
		if img.State != ImageResolved {
			failed = append(failed, img)
		}
	}
	return failed
}

// PreloadReport summarizes a Preload batch.
type PreloadReport struct {
	Documents []PreloadDocument
}

// PreloadDocument is the outcome of preloading one document.
type PreloadDocument struct {
	Key string
	URL string
	// Rendered is true when HTML was rendered and stored by this preload,
	// false when a cached render was reused.
	Rendered bool
	Images   int
	// ImageFailures counts images that could not be resolved.
	ImageFailures int
	Err           error
}

// Failed returns the number of documents that could not be preloaded.
func (r *PreloadReport) Failed() int {
	n := 0
	for _, d := range r.Documents {
		if d.Err != nil {
			n++
		}
	}
	return n
}

// Err joins every per-document error, or returns nil.
func (r *PreloadReport) Err() error {
	var errs []error
	for _, d := range r.Documents {
		if d.Err != nil {
			errs = append(errs, d.Err)
		}
	}
	return errors.Join(errs...)
}
