package main

import (
	"context"
	"fmt"

	docpipe "github.com/alnah/go-docpipe"
	"github.com/alnah/go-docpipe/internal/releases"
)

// runDownloads prints the release list, or one release when a version
// (or "latest") is given. Markdown by default; --html and --page render it.
func runDownloads(ctx context.Context, args []string, env *Environment) error {
	flags, rest, err := parseDownloadsFlags(args, env.Stderr)
	if err != nil {
		return err
	}
	if len(rest) > 1 {
		return fmt.Errorf("%w: downloads takes at most one version", ErrUsage)
	}
	version := ""
	if len(rest) == 1 {
		version = rest[0]
	}

	a, err := setup(ctx, &flags.common, env)
	if err != nil {
		return err
	}
	defer a.Close()

	src, err := a.releases(flags.live)
	if err != nil {
		return err
	}

	version, md, err := downloadsMarkdown(ctx, src, version)
	if err != nil {
		return err
	}
	if !flags.html && !flags.page {
		return writeOutput(env, flags.output, []byte(md+"\n"))
	}

	res, err := a.pipeline.RenderGenerated(ctx, md)
	if err != nil {
		return err
	}
	out := res.HTML
	if flags.page {
		out, err = a.pipeline.Page(ctx, res, docpipe.PageOptions{
			Title: releases.PageTitle(a.pipeline.SiteName(), version),
		})
		if err != nil {
			return err
		}
	}
	return writeOutput(env, flags.output, []byte(out))
}

// downloadsMarkdown returns the resolved version, empty for the list, and
// its Markdown.
func downloadsMarkdown(ctx context.Context, src *releases.Source, version string) (string, string, error) {
	if version == "" || version == releases.BackAlias {
		md, err := src.VersionListMarkdown(ctx)
		return "", md, err
	}
	resolved, err := src.ResolveVersion(ctx, version)
	if err != nil {
		return "", "", err
	}
	md, err := src.ReleaseMarkdown(ctx, resolved)
	return resolved, md, err
}
