package main

import (
	"fmt"
	"io"
)

// printUsage prints the main usage message.
func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: docpipe <command> [flags] [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  render     Render one document to HTML")
	fmt.Fprintln(w, "  preload    Render and cache documents (keys or globs)")
	fmt.Fprintln(w, "  serve      Run the local dev server")
	fmt.Fprintln(w, "  downloads  Print the release list or one release")
	fmt.Fprintln(w, "  man        Resolve a manual page such as docpipe.1")
	fmt.Fprintln(w, "  pdf        Export documents to PDF")
	fmt.Fprintln(w, "  clear      Drop cached text, HTML or images")
	fmt.Fprintln(w, "  config     Print the effective configuration")
	fmt.Fprintln(w, "  doctor     Check stores, browser and environment")
	fmt.Fprintln(w, "  version    Show version information")
	fmt.Fprintln(w, "  help       Show help for a command")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Run 'docpipe help <command>' for details on a specific command.")
}

// printCommonUsage prints the flags every command accepts.
func printCommonUsage(w io.Writer) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Common:")
	fmt.Fprintln(w, "  -c, --config <name>       Config file name or path")
	fmt.Fprintln(w, "      --base-url <url>      URL document keys resolve against")
	fmt.Fprintln(w, "      --root <dir>          Local docs root (default: .)")
	fmt.Fprintln(w, "  -t, --timeout <d>         Per-request fetch timeout (e.g., 30s)")
	fmt.Fprintln(w, "      --attempts <n>        Fetch attempts for transport failures")
	fmt.Fprintln(w, "  -q, --quiet               Only show errors")
	fmt.Fprintln(w, "  -v, --verbose             Log debug details")
}

// printRenderUsage prints usage for the render command.
func printRenderUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: docpipe render <key> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Render one Markdown document with images embedded as data URIs.")
	fmt.Fprintln(w, "Keys are URLs or paths relative to the base URL.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Output:")
	fmt.Fprintln(w, "  -o, --output <path>       Output file (default: stdout)")
	fmt.Fprintln(w, "      --page                Wrap the fragment in a standalone page")
	fmt.Fprintln(w, "  -n, --name <s>            Page heading (default: the key)")
	fmt.Fprintln(w, "      --css <path>          Extra CSS file for --page (repeatable)")
	printCommonUsage(w)
}

// printPreloadUsage prints usage for the preload command.
func printPreloadUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: docpipe preload <key|pattern>... [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Render and cache documents ahead of use. Patterns such as")
	fmt.Fprintln(w, "'docs/**/*.md' are expanded against the docs root.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Batch:")
	fmt.Fprintln(w, "  -j, --concurrency <n>     Documents rendered in parallel")
	printCommonUsage(w)
}

// printServeUsage prints usage for the serve command.
func printServeUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: docpipe serve [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Serve the docs root with /render, /downloads and /man endpoints.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Server:")
	fmt.Fprintln(w, "  -a, --addr <host:port>    Listen address (default: 127.0.0.1:8080)")
	fmt.Fprintln(w, "      --cors <origin>       Allowed CORS origin (repeatable)")
	fmt.Fprintln(w, "      --no-watch            Do not refresh static files on change")
	fmt.Fprintln(w, "      --live                Bypass the release JSON cache")
	printCommonUsage(w)
}

// printDownloadsUsage prints usage for the downloads command.
func printDownloadsUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: docpipe downloads [version|latest] [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Print the release list, or one release, as Markdown.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Output:")
	fmt.Fprintln(w, "  -o, --output <path>       Output file (default: stdout)")
	fmt.Fprintln(w, "      --html                Output the rendered HTML fragment")
	fmt.Fprintln(w, "      --page                Output a standalone page")
	fmt.Fprintln(w, "      --live                Bypass the release JSON cache")
	printCommonUsage(w)
}

// printManUsage prints usage for the man command.
func printManUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: docpipe man <name.N> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Resolve a manual page to its site path and confirm it exists.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Page:")
	fmt.Fprintln(w, "      --raw                 Resolve the unrendered page, not its PDF")
	printCommonUsage(w)
}

// printPDFUsage prints usage for the pdf command.
func printPDFUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: docpipe pdf <key>... [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Render documents and print them to PDF with headless Chrome.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Output:")
	fmt.Fprintln(w, "  -o, --output <path>       Output .pdf file, or directory for several keys")
	fmt.Fprintln(w, "  -n, --name <s>            Heading and footer title (single key)")
	fmt.Fprintln(w, "  -w, --workers <n>         Parallel browsers (0 = auto)")
	fmt.Fprintln(w, "      --pdf-timeout <d>     PDF generation timeout (e.g., 30s, 2m)")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Page:")
	fmt.Fprintln(w, "  -p, --paper <s>           Paper size: letter, a4, legal")
	fmt.Fprintln(w, "      --landscape           Landscape orientation")
	fmt.Fprintln(w, "      --no-page-numbers     Omit page numbers from the footer")
	fmt.Fprintln(w, "      --css <path>          Extra CSS file (repeatable)")
	printCommonUsage(w)
}

// printClearUsage prints usage for the clear command.
func printClearUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: docpipe clear [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Drop cache entries.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Entries:")
	fmt.Fprintln(w, "      --text <key>          Cached text for a key (repeatable)")
	fmt.Fprintln(w, "      --html <key>          Cached HTML for a key (repeatable)")
	fmt.Fprintln(w, "      --session             All session entries")
	fmt.Fprintln(w, "      --images              All stored images")
	fmt.Fprintln(w, "      --all                 Everything")
	printCommonUsage(w)
}

// printConfigUsage prints usage for the config command.
func printConfigUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: docpipe config [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Print the configuration after merging the config file,")
	fmt.Fprintln(w, "DOCPIPE_* environment variables and flags.")
	printCommonUsage(w)
}

// printDoctorUsage prints usage for the doctor command.
func printDoctorUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: docpipe doctor [--json] [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Check the docs root, cache stores, Chrome and the environment.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "      --json                Output JSON")
	printCommonUsage(w)
}

// commandUsage maps command names to their usage printers.
var commandUsage = map[string]func(io.Writer){
	"render":    printRenderUsage,
	"preload":   printPreloadUsage,
	"serve":     printServeUsage,
	"downloads": printDownloadsUsage,
	"man":       printManUsage,
	"pdf":       printPDFUsage,
	"clear":     printClearUsage,
	"config":    printConfigUsage,
	"doctor":    printDoctorUsage,
}

// runHelp prints help for a specific command.
func runHelp(args []string, env *Environment) error {
	if len(args) == 0 {
		printUsage(env.Stdout)
		return nil
	}

	if usage, ok := commandUsage[args[0]]; ok {
		usage(env.Stdout)
		return nil
	}
	switch args[0] {
	case "version":
		fmt.Fprintln(env.Stdout, "Usage: docpipe version")
		fmt.Fprintln(env.Stdout)
		fmt.Fprintln(env.Stdout, "Show version information.")
	case "help":
		fmt.Fprintln(env.Stdout, "Usage: docpipe help [command]")
		fmt.Fprintln(env.Stdout)
		fmt.Fprintln(env.Stdout, "Show help for a command.")
	default:
		printUsage(env.Stderr)
		return fmt.Errorf("%w: unknown command %q", ErrUsage, args[0])
	}
	return nil
}
