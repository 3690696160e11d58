package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/alnah/go-docpipe/internal/manpage"
)

// ErrManPageNotFound is returned when a manual page does not exist.
var ErrManPageNotFound = errors.New("manual page not found")

// runMan resolves a manual page name such as "docpipe.1" and confirms the
// page exists below the base URL. It prints the title and site path.
func runMan(ctx context.Context, args []string, env *Environment) error {
	flags, rest, err := parseManFlags(args, env.Stderr)
	if err != nil {
		return err
	}
	if len(rest) != 1 {
		return fmt.Errorf("%w: man takes exactly one page name", ErrUsage)
	}

	page := manpage.Resolve(rest[0], flags.raw)
	if !page.Found() {
		return fmt.Errorf("%w: %q has no section suffix such as .1", ErrUsage, rest[0])
	}

	a, err := setup(ctx, &flags.common, env)
	if err != nil {
		return err
	}
	defer a.Close()

	base, err := url.Parse(a.pipeline.BaseURL())
	if err != nil {
		return err
	}
	page = manpage.Check(ctx, a.fetcher, base, page, a.logger)
	if !page.Found() {
		return fmt.Errorf("%w: %s", ErrManPageNotFound, rest[0])
	}

	fmt.Fprintf(env.Stdout, "%s\t%s\n", page.Title, page.Path)
	return nil
}
