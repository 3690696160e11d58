package main

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	docpipe "github.com/alnah/go-docpipe"
	"github.com/alnah/go-docpipe/internal/fileutil"
)

// runPreload renders and caches a batch of documents. Arguments holding
// glob syntax are expanded against the docs root.
func runPreload(ctx context.Context, args []string, env *Environment) error {
	flags, rest, err := parsePreloadFlags(args, env.Stderr)
	if err != nil {
		return err
	}
	if len(rest) == 0 {
		return fmt.Errorf("%w: preload needs at least one key or pattern", ErrUsage)
	}
	if flags.concurrency < 0 {
		return fmt.Errorf("%w: --concurrency must not be negative", ErrUsage)
	}

	cfg, err := loadConfig(&flags.common, env)
	if err != nil {
		return err
	}
	if flags.concurrency > 0 {
		cfg.Render.Concurrency = flags.concurrency
	}

	keys, err := expandKeys(os.DirFS(cfg.Site.Root), rest)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return fmt.Errorf("no documents match %s under %s", strings.Join(rest, " "), cfg.Site.Root)
	}

	a, err := newApp(ctx, cfg, env)
	if err != nil {
		return err
	}
	defer a.Close()

	report := a.pipeline.Preload(ctx, keys)
	printPreloadReport(env.Stdout, report, flags.common.quiet)

	if n := report.Failed(); n > 0 {
		return fmt.Errorf("%d of %d document(s) failed to preload: %w", n, len(report.Documents), report.Err())
	}
	return nil
}

// expandKeys replaces every glob argument with the slash-separated paths of
// the files it matches under root, in lexical order. URLs and other
// arguments pass through unchanged. Duplicates are dropped.
func expandKeys(root fs.FS, args []string) ([]string, error) {
	seen := make(map[string]bool)
	var keys []string
	add := func(k string) {
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}

	for _, arg := range args {
		if !hasGlobMeta(arg) || fileutil.IsURL(arg) {
			add(arg)
			continue
		}
		pattern := strings.TrimPrefix(filepath.ToSlash(arg), "./")
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("%w: invalid pattern %q", ErrUsage, arg)
		}
		matches, err := doublestar.Glob(root, pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("expanding %q: %w", arg, err)
		}
		sort.Strings(matches)
		for _, m := range matches {
			add(m)
		}
	}
	return keys, nil
}

func hasGlobMeta(s string) bool {
	return strings.ContainsAny(s, "*?[{")
}

func printPreloadReport(w io.Writer, r *docpipe.PreloadReport, quiet bool) {
	if quiet {
		return
	}
	for _, d := range r.Documents {
		switch {
		case d.Err != nil:
			fmt.Fprintf(w, "FAIL    %s: %v\n", d.Key, d.Err)
		case d.Rendered:
			fmt.Fprintf(w, "render  %s (%d images, %d failed)\n", d.Key, d.Images, d.ImageFailures)
		default:
			fmt.Fprintf(w, "cached  %s\n", d.Key)
		}
	}
	fmt.Fprintf(w, "%d document(s), %d failed\n", len(r.Documents), r.Failed())
}
