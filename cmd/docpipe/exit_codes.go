package main

import (
	"errors"
	"os"

	docpipe "github.com/alnah/go-docpipe"
	"github.com/alnah/go-docpipe/internal/config"
	"github.com/alnah/go-docpipe/internal/logging"
	"github.com/alnah/go-docpipe/internal/pdfexport"
	"github.com/alnah/go-docpipe/internal/releases"
	"github.com/alnah/go-docpipe/store"
)

// Exit codes for the docpipe CLI.
// Follows Unix conventions: 0=success, 1=general, 2=usage, and custom codes < 126.
const (
	ExitSuccess = 0 // Command completed
	ExitGeneral = 1 // General/unexpected error
	ExitUsage   = 2 // Invalid flags, config, keys or versions
	ExitIO      = 3 // Fetch failures, missing files, write errors
	ExitBrowser = 4 // Browser/Chrome errors
)

// exitCodeFor returns the appropriate exit code for an error.
// It uses errors.Is to check wrapped errors, so callers must use fmt.Errorf("%w", err).
func exitCodeFor(err error) int {
	if err == nil {
		return ExitSuccess
	}

	// Browser errors (exit 4)
	if errors.Is(err, pdfexport.ErrBrowserConnect) ||
		errors.Is(err, pdfexport.ErrPageCreate) ||
		errors.Is(err, pdfexport.ErrPageLoad) ||
		errors.Is(err, pdfexport.ErrPDFGeneration) {
		return ExitBrowser
	}

	// Usage/config/validation errors (exit 2)
	if errors.Is(err, ErrUsage) ||
		errors.Is(err, config.ErrConfigNotFound) ||
		errors.Is(err, config.ErrEmptyConfigName) ||
		errors.Is(err, config.ErrConfigParse) ||
		errors.Is(err, config.ErrFieldTooLong) ||
		errors.Is(err, config.ErrInvalidValue) ||
		errors.Is(err, logging.ErrInvalidLevel) ||
		errors.Is(err, logging.ErrInvalidFormat) ||
		errors.Is(err, docpipe.ErrEmptyKey) ||
		errors.Is(err, docpipe.ErrInvalidKey) ||
		errors.Is(err, docpipe.ErrInvalidBaseURL) ||
		errors.Is(err, releases.ErrVersionNotFound) {
		return ExitUsage
	}

	// I/O errors (exit 3)
	if errors.Is(err, os.ErrNotExist) ||
		errors.Is(err, os.ErrPermission) ||
		errors.Is(err, docpipe.ErrFetch) ||
		errors.Is(err, releases.ErrLoad) ||
		errors.Is(err, store.ErrQuotaExceeded) ||
		errors.Is(err, ErrReadCSS) ||
		errors.Is(err, ErrWriteOutput) ||
		errors.Is(err, ErrManPageNotFound) ||
		errors.Is(err, ErrStoreUnavailable) {
		return ExitIO
	}

	return ExitGeneral
}
