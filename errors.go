package docpipe

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for library operations.
var (
	ErrEmptyKey       = errors.New("document key cannot be empty")
	ErrInvalidKey     = errors.New("invalid document key")
	ErrInvalidBaseURL = errors.New("invalid base URL")
	ErrFetch          = errors.New("document fetch failed")
	ErrRender         = errors.New("document render failed")
	ErrTargetNotFound = errors.New("render target not found")
	ErrClosed         = errors.New("pipeline closed")
)

// FetchError describes a failed document fetch. It matches ErrFetch and the
// underlying transport or status error with errors.Is.
type FetchError struct {
	URL    string
	Status int // 0 for transport failures
	Err    error
	Hint   string
}

func (e *FetchError) Error() string {
	msg := fmt.Sprintf("%v: %s", ErrFetch, e.URL)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (%d %s)", e.Status, http.StatusText(e.Status))
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg + e.Hint
}

func (e *FetchError) Unwrap() []error {
	return []error{ErrFetch, e.Err}
}
