package main

import (
	"context"
	"fmt"
)

// runClear drops cache entries. Session entries only outlive a run with a
// Redis session store; stored images persist in the durable store.
func runClear(ctx context.Context, args []string, env *Environment) error {
	flags, rest, err := parseClearFlags(args, env.Stderr)
	if err != nil {
		return err
	}
	if len(rest) != 0 {
		return fmt.Errorf("%w: clear takes no arguments; use --text or --html for keys", ErrUsage)
	}
	if !flags.all && !flags.session && !flags.images && len(flags.text) == 0 && len(flags.html) == 0 {
		return fmt.Errorf("%w: clear needs --text, --html, --session, --images or --all", ErrUsage)
	}

	a, err := setup(ctx, &flags.common, env)
	if err != nil {
		return err
	}
	defer a.Close()

	report := func(format string, args ...any) {
		if !flags.common.quiet {
			fmt.Fprintf(env.Stdout, format+"\n", args...)
		}
	}

	for _, key := range flags.text {
		if err := a.pipeline.ClearText(ctx, key); err != nil {
			return err
		}
		report("cleared text %s", key)
	}
	for _, key := range flags.html {
		if err := a.pipeline.ClearHTML(ctx, key); err != nil {
			return err
		}
		report("cleared html %s", key)
	}
	if flags.session || flags.all {
		if err := a.pipeline.ClearSession(ctx); err != nil {
			return err
		}
		report("cleared session")
	}
	if flags.images || flags.all {
		if err := a.pipeline.ClearImages(ctx); err != nil {
			return err
		}
		report("cleared images")
	}
	return nil
}
