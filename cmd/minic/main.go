// Command minic runs a single-file (or #include-linked) program through the
// embeddable interpreter implemented by the minic package.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/embedc/minic"
	"github.com/embedc/minic/internal/logio"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("minic", flag.ContinueOnError)
	trace := fs.Bool("trace", false, "log a trace line with the call depth for each interpreted call to stderr")
	dump := fs.Bool("dump", false, "print an arena/symbol-table summary to stderr after the run")
	heapSize := fs.Int("heap", minic.DefaultHeapSize, "arena size in bytes")
	maxDepth := fs.Int("max-depth", minic.DefaultMaxCallDepth, "maximum interpreted call depth")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: minic [flags] <source-file>")
		return 2
	}
	srcPath := fs.Arg(0)

	src, err := os.ReadFile(srcPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	var logger logio.Logger
	logger.SetOutput(os.Stderr)

	ip := minic.New(
		minic.WithHeapSize(*heapSize),
		minic.WithMaxCallDepth(*maxDepth),
		minic.WithOutput(os.Stdout),
		minic.WithInput(bufio.NewReader(os.Stdin)),
		minic.WithTrace(*trace),
		minic.WithLogf(logger.Leveledf("trace")),
		minic.WithIncludeLoader(diskLoader(filepath.Dir(srcPath))),
		minic.WithIntrinsic("putchar", minic.TypeInt, []minic.BaseType{minic.TypeInt}, intrinsicPutchar, putcharFn),
		minic.WithIntrinsic("getchar", minic.TypeInt, nil, intrinsicGetchar, getcharFn),
		minic.WithIntrinsic("printf", minic.TypeInt, []minic.BaseType{minic.TypeString}, intrinsicPrintf, printfFn),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	runErr := ip.Run(ctx, map[string]string{filepath.Base(srcPath): string(src)})
	if *dump {
		ip.Dump(os.Stderr)
	}
	if runErr != nil {
		logger.Errorf("%v", runErr)
		return logger.ExitCode()
	}
	return 0
}

// diskLoader resolves a #include target relative to dir, the directory
// holding the file that triggered the include -- the host collaborator
// spec.md §1 calls out of scope for the interpreter core itself.
func diskLoader(dir string) minic.SourceLoader {
	return func(name string) (text, displayName string, err error) {
		path := name
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, name)
		}
		b, err := os.ReadFile(path)
		if err != nil {
			return "", "", err
		}
		return string(b), name, nil
	}
}

const (
	intrinsicPutchar = iota
	intrinsicGetchar
	intrinsicPrintf
)
