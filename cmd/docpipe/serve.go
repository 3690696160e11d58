package main

import (
	"context"
	"fmt"

	"github.com/alnah/go-docpipe/internal/devserver"
)

// runServe runs the dev server until the context is canceled.
func runServe(ctx context.Context, args []string, env *Environment) error {
	flags, rest, err := parseServeFlags(args, env.Stderr)
	if err != nil {
		return err
	}
	if len(rest) != 0 {
		return fmt.Errorf("%w: serve takes no arguments", ErrUsage)
	}

	a, err := setup(ctx, &flags.common, env)
	if err != nil {
		return err
	}
	defer a.Close()

	srv, err := newServer(a, flags)
	if err != nil {
		return err
	}
	return srv.ListenAndServe(ctx)
}

// newServer builds the dev server for a, with serve flags over config.
func newServer(a *app, flags *serveFlags) (*devserver.Server, error) {
	rel, err := a.releases(flags.live)
	if err != nil {
		return nil, err
	}

	cfg := devserver.Config{
		Addr:         a.cfg.Server.Addr,
		Root:         a.cfg.Site.Root,
		CORSOrigins:  a.cfg.Server.CORSOrigins,
		CacheBytes:   int64(a.cfg.Server.FileCacheMB) << 20,
		MaxFileBytes: int64(a.cfg.Server.FileCacheMaxKB) << 10,
		Watch:        a.cfg.Server.Watch && !flags.noWatch,
	}
	if flags.addr != "" {
		cfg.Addr = flags.addr
	}
	if len(flags.cors) > 0 {
		cfg.CORSOrigins = flags.cors
	}

	return devserver.New(cfg, devserver.Deps{
		Pipeline: a.pipeline,
		Releases: rel,
		Fetcher:  a.fetcher,
		Gatherer: a.registry,
		Logger:   a.logger,
	})
}
