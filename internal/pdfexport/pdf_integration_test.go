//go:build integration

package pdfexport

import (
	"bytes"
	"context"
	"testing"
)

func assertValidPDF(t *testing.T, data []byte) {
	t.Helper()
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		t.Errorf("data does not have PDF magic bytes, got prefix: %q", data[:min(10, len(data))])
	}
	if len(data) < 100 {
		t.Errorf("PDF data suspiciously small: %d bytes", len(data))
	}
}

func TestRod_Export_Integration(t *testing.T) {
	r := NewRod(DefaultTimeout)
	t.Cleanup(func() { _ = r.Close() })
	ctx := context.Background()

	page := `<!DOCTYPE html><html><head><title>docpipe(1)</title></head>
<body><main id="main_md"><h1>docpipe</h1><p>Render documentation.</p></main></body></html>`

	t.Run("plain page", func(t *testing.T) {
		data, err := r.Export(ctx, page, nil)
		if err != nil {
			t.Fatalf("Export() error = %v", err)
		}
		assertValidPDF(t, data)
	})

	t.Run("a4 with footer reuses the browser", func(t *testing.T) {
		data, err := r.Export(ctx, page, &Options{Paper: "a4", FooterLeft: "docpipe(1)", PageNumbers: true})
		if err != nil {
			t.Fatalf("Export() error = %v", err)
		}
		assertValidPDF(t, data)
	})
}
