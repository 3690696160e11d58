package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	docpipe "github.com/alnah/go-docpipe"
	"github.com/alnah/go-docpipe/internal/hints"
	"github.com/alnah/go-docpipe/internal/pdfexport"
)

// pdfJob is one document to export.
type pdfJob struct {
	Key        string
	Name       string
	OutputPath string
}

// ExportResult holds the outcome of a single export.
type ExportResult struct {
	Key        string
	OutputPath string
	Err        error
	Duration   time.Duration
}

// exportParams groups parameters shared across a batch.
type exportParams struct {
	pipeline *docpipe.Pipeline
	css      []string
	options  pdfexport.Options
}

// runPDF renders documents and prints them to PDF through a pool of
// headless browsers.
func runPDF(ctx context.Context, args []string, env *Environment) error {
	flags, rest, err := parsePDFFlags(args, env.Stderr)
	if err != nil {
		return err
	}
	if len(rest) == 0 {
		return fmt.Errorf("%w: pdf needs at least one document key", ErrUsage)
	}
	if flags.workers < 0 {
		return fmt.Errorf("%w: --workers must not be negative", ErrUsage)
	}
	if err := pdfexport.ValidatePaper(flags.paper); err != nil {
		return fmt.Errorf("%w: %w", ErrUsage, err)
	}
	if flags.name != "" && len(rest) > 1 {
		return fmt.Errorf("%w: --name applies to a single key", ErrUsage)
	}

	cfg, err := loadConfig(&flags.common, env)
	if err != nil {
		return err
	}
	if flags.pdfTimeout != "" {
		cfg.PDF.Timeout = flags.pdfTimeout
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	css, err := readCSSFiles(flags.css)
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg, env)
	if err != nil {
		return err
	}
	defer a.Close()

	timeout := cfg.PDFTimeout(pdfexport.DefaultTimeout)
	pool := pdfexport.NewPool(min(pdfexport.ResolvePoolSize(flags.workers), len(rest)), func() pdfexport.Exporter {
		return env.NewExporter(timeout)
	})
	defer pool.Close()
	a.logger.Debug("export pool ready", "size", pool.Size(), "timeout", timeout)

	jobs := make([]pdfJob, len(rest))
	for i, key := range rest {
		jobs[i] = pdfJob{
			Key:        key,
			Name:       flags.name,
			OutputPath: pdfOutputPath(key, flags.output, len(rest) > 1),
		}
	}

	results := exportBatch(ctx, pool, jobs, &exportParams{
		pipeline: a.pipeline,
		css:      css,
		options: pdfexport.Options{
			Paper:       flags.paper,
			Landscape:   flags.landscape,
			PageNumbers: !flags.noPageNumbers,
		},
	})

	if failed, first := printExportResults(results, flags.common.quiet, flags.common.verbose, env); failed > 0 {
		return fmt.Errorf("%d export(s) failed: %w", failed, first)
	}
	return nil
}

// pdfOutputPath names the PDF for key. A single key may be written to an
// explicit .pdf file; otherwise output is a directory (default ".") and the
// file takes the key's base name.
func pdfOutputPath(key, output string, batch bool) string {
	if !batch && strings.EqualFold(filepath.Ext(output), ".pdf") {
		return output
	}
	dir := output
	if dir == "" {
		dir = "."
	}
	base := path.Base(strings.TrimRight(key, "/"))
	if i := strings.IndexAny(base, "?#"); i >= 0 {
		base = base[:i]
	}
	base = strings.TrimSuffix(base, path.Ext(base))
	if base == "" || base == "." || base == "/" {
		base = "index"
	}
	return filepath.Join(dir, base+".pdf")
}

// exportBatch exports jobs concurrently, one worker per pool slot.
func exportBatch(ctx context.Context, pool *pdfexport.Pool, jobs []pdfJob, params *exportParams) []ExportResult {
	if len(jobs) == 0 {
		return nil
	}

	concurrency := min(pool.Size(), len(jobs))
	results := make([]ExportResult, len(jobs))
	queue := make(chan int, len(jobs))
	var wg sync.WaitGroup

	for range concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()

			exp, err := pool.Acquire()
			if err != nil {
				for idx := range queue {
					results[idx] = ExportResult{Key: jobs[idx].Key, Err: err}
				}
				return
			}
			defer pool.Release(exp)

			for idx := range queue {
				if ctx.Err() != nil {
					results[idx] = ExportResult{Key: jobs[idx].Key, Err: ctx.Err()}
					continue
				}
				results[idx] = exportOne(ctx, exp, jobs[idx], params)
			}
		}()
	}

	for i := range jobs {
		queue <- i
	}
	close(queue)

	wg.Wait()
	return results
}

// exportOne renders one document into a page and writes its PDF.
func exportOne(ctx context.Context, exp pdfexport.Exporter, job pdfJob, params *exportParams) ExportResult {
	start := time.Now()
	result := ExportResult{Key: job.Key, OutputPath: job.OutputPath}
	fail := func(err error) ExportResult {
		result.Err = err
		result.Duration = time.Since(start)
		return result
	}

	res, err := params.pipeline.Render(ctx, job.Key)
	if err != nil {
		return fail(err)
	}
	name := job.Name
	if name == "" {
		name = strings.TrimSuffix(path.Base(job.Key), path.Ext(job.Key))
	}
	page, err := params.pipeline.Page(ctx, res, docpipe.PageOptions{Name: name, CSS: params.css})
	if err != nil {
		return fail(err)
	}

	opts := params.options
	opts.FooterLeft = name
	data, err := exp.Export(ctx, page, &opts)
	if err != nil {
		if errors.Is(err, pdfexport.ErrBrowserConnect) {
			err = fmt.Errorf("%w%s", err, hints.ForBrowserConnect())
		}
		return fail(err)
	}

	if err := os.MkdirAll(filepath.Dir(job.OutputPath), dirPermissions); err != nil {
		return fail(fmt.Errorf("%w: %w%s", ErrWriteOutput, err, hints.ForOutputDirectory()))
	}
	// #nosec G306 -- PDFs are meant to be readable
	if err := os.WriteFile(job.OutputPath, data, filePermissions); err != nil {
		return fail(fmt.Errorf("%w: %w", ErrWriteOutput, err))
	}

	result.Duration = time.Since(start)
	return result
}

// printExportResults reports each export and returns the failure count and
// the first error.
func printExportResults(results []ExportResult, quiet, verbose bool, env *Environment) (int, error) {
	failed := 0
	var first error
	for _, r := range results {
		if r.Err != nil {
			failed++
			if first == nil {
				first = r.Err
			}
			fmt.Fprintf(env.Stderr, "FAILED %s: %v\n", r.Key, r.Err)
			continue
		}
		if quiet {
			continue
		}
		if verbose {
			fmt.Fprintf(env.Stdout, "%s -> %s (%v)\n", r.Key, r.OutputPath, r.Duration.Round(time.Millisecond))
		} else {
			fmt.Fprintf(env.Stdout, "Created %s\n", r.OutputPath)
		}
	}

	if !quiet && len(results) > 1 {
		fmt.Fprintf(env.Stdout, "\n%d succeeded, %d failed\n", len(results)-failed, failed)
	}
	return failed, first
}
