// pyrecon CLI - reconstructs Python source from compiled artifacts
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/pyrecon/config"
	"github.com/chazu/pyrecon/decompiler"
	"github.com/chazu/pyrecon/disasm"
	"github.com/chazu/pyrecon/ledger"
	"github.com/chazu/pyrecon/pyc"
	"github.com/chazu/pyrecon/registry"
	"github.com/chazu/pyrecon/report"
)

// Exit codes.
const (
	exitOK      = 0
	exitError   = 1 // usage or I/O
	exitPartial = 2 // placeholders emitted
	exitFatal   = 3 // malformed artifact or unsupported revision
)

// severity orders exit codes from best to worst.
var severity = map[int]int{exitOK: 0, exitPartial: 1, exitError: 2, exitFatal: 3}

func worse(a, b int) int {
	if severity[b] > severity[a] {
		return b
	}
	return a
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

type cli struct {
	cfg    *config.Config
	stdout io.Writer
	stderr io.Writer
}

func usage(w io.Writer) {
	fmt.Fprintf(w, "Usage: pyrecon [-v] <command> [options]\n\n")
	fmt.Fprintf(w, "Commands:\n")
	fmt.Fprintf(w, "  decompile <artifact>     Reconstruct source for one artifact\n")
	fmt.Fprintf(w, "  disasm <artifact>        Print the instruction listing of every code unit\n")
	fmt.Fprintf(w, "  batch <artifacts...>     Reconstruct many artifacts in parallel\n")
	fmt.Fprintf(w, "  revisions                List supported revisions\n")
	fmt.Fprintf(w, "\nExamples:\n")
	fmt.Fprintf(w, "  pyrecon decompile mod.pyc --out mod.py --report mod.json\n")
	fmt.Fprintf(w, "  pyrecon batch --workers 8 --ledger results.db build/**/*.pyc\n")
	fmt.Fprintf(w, "\nSettings are read from pyrecon.toml in the working directory or above.\n")
}

// run executes one command line and returns the exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("pyrecon", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var verbose verbosity
	fs.Var(&verbose, "v", "Verbose output (repeat for more)")
	configDir := fs.String("config-dir", ".", "Directory to start the pyrecon.toml search from")
	fs.Usage = func() { usage(stderr) }
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitError
	}
	if fs.NArg() == 0 {
		usage(stderr)
		return exitError
	}

	cfg, err := config.FindAndLoad(*configDir)
	if err != nil {
		fmt.Fprintf(stderr, "Error loading configuration: %v\n", err)
		return exitError
	}
	level := cfg.Log.Verbosity + int(verbose)
	if cfg.Log.File != "" {
		commonlog.Configure(level, &cfg.Log.File)
	} else {
		commonlog.Configure(level, nil)
	}

	c := &cli{cfg: cfg, stdout: stdout, stderr: stderr}
	cmd, rest := fs.Arg(0), fs.Args()[1:]
	switch cmd {
	case "decompile":
		return c.decompile(ctx, rest)
	case "disasm":
		return c.disasm(rest)
	case "batch":
		return c.batch(ctx, rest)
	case "revisions":
		return c.revisions()
	case "help":
		usage(stdout)
		return exitOK
	}
	fmt.Fprintf(stderr, "Error: unknown command %q\n", cmd)
	usage(stderr)
	return exitError
}

// verbosity is a repeatable -v flag.
type verbosity int

func (v *verbosity) String() string   { return strconv.Itoa(int(*v)) }
func (v *verbosity) IsBoolFlag() bool { return true }

func (v *verbosity) Set(s string) error {
	if s == "true" {
		*v++
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	*v = verbosity(n)
	return nil
}

// parse lets flags follow positional arguments, as in
// `pyrecon decompile mod.pyc --out mod.py`.
func parse(fs *flag.FlagSet, args []string) ([]string, error) {
	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		rest := fs.Args()
		if n := len(args) - len(rest); n > 0 && args[n-1] == "--" {
			return append(positional, rest...), nil
		}
		if len(rest) == 0 {
			return positional, nil
		}
		positional = append(positional, rest[0])
		args = rest[1:]
	}
}

func (c *cli) options(fs *flag.FlagSet) *decompiler.Options {
	d := c.cfg.Decompile
	opts := &decompiler.Options{Placeholder: d.Placeholder, Indent: d.Indent}
	fs.StringVar(&opts.Revision, "revision", d.Revision, "Revision tag, or auto to detect from the magic")
	fs.BoolVar(&opts.Parallel, "parallel", d.Parallel, "Reconstruct nested code units concurrently")
	return opts
}

func (c *cli) cache() *decompiler.Cache {
	cache, err := decompiler.NewCache(c.cfg.Cache.Size)
	if err != nil {
		fmt.Fprintf(c.stderr, "Warning: cache disabled: %v\n", err)
		return nil
	}
	return cache
}

// failure prints err and maps it to an exit code.
func (c *cli) failure(err error) int {
	fmt.Fprintf(c.stderr, "Error: %v\n", err)
	return exitCode(err)
}

func exitCode(err error) int {
	if errors.Is(err, pyc.ErrMalformedArtifact) || errors.Is(err, registry.ErrUnsupportedRevision) {
		return exitFatal
	}
	return exitError
}

func (c *cli) decompile(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("decompile", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	opts := c.options(fs)
	out := fs.String("out", "", "Write the source here instead of stdout")
	reportPath := fs.String("report", "", "Write a report to this path")
	format := fs.String("report-format", c.cfg.Report.Format, "Report encoding: "+strings.Join(report.Formats, ", "))
	fs.BoolVar(&opts.SelfCheck, "self-check", false, "Render twice and record the comparison in the report")
	paths, err := parse(fs, args)
	if err != nil {
		return exitError
	}
	if len(paths) != 1 {
		fmt.Fprintln(c.stderr, "Error: decompile takes exactly one artifact path")
		return exitError
	}
	opts.Cache = c.cache()

	res, err := decompiler.DecompileFile(ctx, paths[0], *opts)
	if err != nil {
		return c.failure(err)
	}

	if *out == "" {
		fmt.Fprint(c.stdout, res.Source)
	} else if err := os.WriteFile(*out, []byte(res.Source), 0644); err != nil {
		return c.failure(fmt.Errorf("writing %s: %w", *out, err))
	}
	if *reportPath != "" {
		if err := report.WriteFile(*reportPath, report.New(res), *format); err != nil {
			return c.failure(err)
		}
	}
	if sc := res.SelfCheck; sc != nil && !sc.Stable {
		fmt.Fprintln(c.stderr, "Warning: rendering is not stable")
	}
	if n := res.Placeholders(); n > 0 {
		fmt.Fprintf(c.stderr, "%s: %d placeholders\n", paths[0], n)
		return exitPartial
	}
	return exitOK
}

func (c *cli) disasm(args []string) int {
	fs := flag.NewFlagSet("disasm", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	revision := fs.String("revision", c.cfg.Decompile.Revision, "Revision tag, or auto to detect from the magic")
	paths, err := parse(fs, args)
	if err != nil {
		return exitError
	}
	if len(paths) != 1 {
		fmt.Fprintln(c.stderr, "Error: disasm takes exactly one artifact path")
		return exitError
	}

	art, err := pyc.ReadFile(paths[0], *revision)
	if err != nil {
		return c.failure(err)
	}
	bundle, err := registry.Lookup(art.Revision)
	if err != nil {
		return c.failure(err)
	}
	fmt.Fprint(c.stdout, disasm.Listing(art.Code, bundle))
	return exitOK
}

func (c *cli) batch(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("batch", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	base := c.options(fs)
	var opts decompiler.BatchOptions
	fs.IntVar(&opts.Workers, "workers", c.cfg.Batch.Workers, "Artifacts processed at once")
	fs.StringVar(&opts.OutDir, "out-dir", c.cfg.Batch.OutDir, "Directory for the sources (default: next to each artifact)")
	ledgerPath := fs.String("ledger", c.cfg.Ledger.Path, "Record outcomes in this SQLite database")
	paths, err := parse(fs, args)
	if err != nil {
		return exitError
	}
	if len(paths) == 0 {
		fmt.Fprintln(c.stderr, "Error: batch needs at least one artifact path")
		return exitError
	}
	opts.Options = *base
	opts.Cache = c.cache()

	if *ledgerPath != "" {
		l, err := ledger.Open(*ledgerPath)
		if err != nil {
			return c.failure(err)
		}
		defer l.Close()
		opts.Recorder = l
	}

	outcomes, err := decompiler.Batch(ctx, paths, opts)
	if err != nil {
		return c.failure(err)
	}
	code := exitOK
	for _, o := range outcomes {
		switch {
		case o.Err != nil:
			fmt.Fprintf(c.stderr, "FAIL %v\n", o.Err)
			code = worse(code, exitCode(o.Err))
		case o.Result.Placeholders() > 0:
			fmt.Fprintf(c.stdout, "PART %s -> %s (%d placeholders)\n", o.Path, o.Output, o.Result.Placeholders())
			code = worse(code, exitPartial)
		default:
			fmt.Fprintf(c.stdout, "OK   %s -> %s\n", o.Path, o.Output)
		}
	}
	return code
}

func (c *cli) revisions() int {
	for _, rev := range registry.Revisions() {
		fmt.Fprintf(c.stdout, "%-5s magic %d (accepts %d-%d)\n", rev.Tag, rev.Magic, rev.MagicMin, rev.MagicMax)
	}
	return exitOK
}
