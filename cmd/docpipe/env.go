package main

import (
	"io"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/alnah/go-docpipe/fetch"
	"github.com/alnah/go-docpipe/internal/pdfexport"
)

// Environment holds injectable dependencies for testability.
// Includes I/O, time, process environment, the network and the browser.
type Environment struct {
	Now     func() time.Time
	Stdout  io.Writer
	Stderr  io.Writer
	Getenv  func(string) string
	Environ func() []string

	// Fetcher replaces the HTTP fetcher built from config when set.
	Fetcher fetch.Fetcher
	// NewExporter builds one PDF exporter per pool slot.
	NewExporter func(timeout time.Duration) pdfexport.Exporter
	// Registry receives the pipeline metrics; nil uses a fresh registry.
	Registry *prometheus.Registry
}

// DefaultEnv returns the production environment.
func DefaultEnv() *Environment {
	return &Environment{
		Now:     time.Now,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
		Getenv:  os.Getenv,
		Environ: os.Environ,
		NewExporter: func(timeout time.Duration) pdfexport.Exporter {
			return pdfexport.NewRod(timeout)
		},
	}
}
