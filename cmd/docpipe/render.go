package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	docpipe "github.com/alnah/go-docpipe"
	"github.com/alnah/go-docpipe/internal/hints"
	"github.com/alnah/go-docpipe/store"
)

// Sentinel errors for CLI I/O.
var (
	ErrReadCSS     = errors.New("failed to read CSS file")
	ErrWriteOutput = errors.New("failed to write output")
)

// runRender renders one document and writes its HTML.
func runRender(ctx context.Context, args []string, env *Environment) error {
	flags, rest, err := parseRenderFlags(args, env.Stderr)
	if err != nil {
		return err
	}
	if len(rest) != 1 {
		return fmt.Errorf("%w: render takes exactly one document key", ErrUsage)
	}
	key := rest[0]

	a, err := setup(ctx, &flags.common, env)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.pipeline.Render(ctx, key)
	if err != nil {
		return err
	}
	logFailedImages(a, res)

	out := res.HTML
	if flags.page {
		css, err := readCSSFiles(flags.css)
		if err != nil {
			return err
		}
		name := flags.name
		if name == "" {
			name = key
		}
		if out, err = a.pipeline.Page(ctx, res, docpipe.PageOptions{Name: name, CSS: css}); err != nil {
			return err
		}
	}
	return writeOutput(env, flags.output, []byte(out))
}

// logFailedImages warns about each image left unresolved in res.
func logFailedImages(a *app, res *docpipe.Result) {
	for _, img := range res.FailedImages() {
		a.logger.Warn("image not embedded", "document", res.Key, "src", img.Raw, "error", img.Err)
	}
	for _, img := range res.Images {
		if img.PersistErr == nil {
			continue
		}
		if store.IsQuotaExceeded(img.PersistErr) {
			a.logger.Warn("image not persisted", "url", img.URL, "error", img.PersistErr.Error()+hints.ForQuota())
			continue
		}
		a.logger.Warn("image not persisted", "url", img.URL, "error", img.PersistErr)
	}
}

// readCSSFiles reads each stylesheet in order.
func readCSSFiles(paths []string) ([]string, error) {
	css := make([]string, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p) // #nosec G304 -- user-provided path
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrReadCSS, err)
		}
		css = append(css, string(data))
	}
	return css, nil
}

// writeOutput writes data to path, or to stdout when path is empty.
func writeOutput(env *Environment, path string, data []byte) error {
	if path == "" {
		if _, err := env.Stdout.Write(data); err != nil {
			return fmt.Errorf("%w: %w", ErrWriteOutput, err)
		}
		return nil
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, dirPermissions); err != nil {
			return fmt.Errorf("%w: %w%s", ErrWriteOutput, err, hints.ForOutputDirectory())
		}
	}
	if err := os.WriteFile(path, data, filePermissions); err != nil {
		return fmt.Errorf("%w: %w", ErrWriteOutput, err)
	}
	return nil
}
