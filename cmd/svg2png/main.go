package main

import (
	"context"
	"fmt"
	"io"
	"os"

	resvgruntime "github.com/wippyai/resvg-runtime"
	"github.com/wippyai/resvg-runtime/config"
	"github.com/wippyai/resvg-runtime/engine"
	"github.com/wippyai/resvg-runtime/marshal"
	"github.com/wippyai/resvg-runtime/render"
	"go.uber.org/automaxprocs/maxprocs"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	ctx, stop := notifyContext(context.Background())
	code := runMain(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// runMain runs svg2png and returns the process exit code.
func runMain(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	err := run(ctx, args, stdin, stdout, stderr)
	code := exitCodeFor(err)
	if err != nil && code != ExitSuccess {
		fmt.Fprintf(stderr, "svg2png: %v\n", err)
	}
	return code
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	f, inputs, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}
	if f.version {
		fmt.Fprintf(stdout, "svg2png %s\n", Version)
		return nil
	}

	// Error ignored: maxprocs.Set only fails if GOMAXPROCS env is invalid,
	// in which case Go runtime defaults apply.
	if f.verbose {
		_, _ = maxprocs.Set(maxprocs.Logger(func(format string, args ...any) {
			fmt.Fprintf(stderr, format+"\n", args...)
		}))
	} else {
		_, _ = maxprocs.Set(maxprocs.Logger(func(string, ...any) {}))
	}

	file, err := f.loadConfig()
	if err != nil {
		return err
	}

	log, err := newLogger(f, file, stderr)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()
	engine.SetLogger(log.Named("engine"))
	marshal.SetLogger(log.Named("marshal"))
	render.SetLogger(log.Named("render"))

	jobs, err := discoverJobs(inputs, f.output)
	if err != nil {
		return err
	}

	opts, err := f.options(file, os.ReadFile)
	if err != nil {
		return err
	}

	eng, err := openEngine(ctx, f, file)
	if err != nil {
		return err
	}
	defer func() {
		if err := eng.Close(context.WithoutCancel(ctx)); err != nil {
			log.Warn("engine close failed", zap.Error(err))
		}
	}()

	workers := min(engine.ResolvePoolSize(f.workers), len(jobs))
	log.Debug("rendering",
		zap.Int("jobs", len(jobs)),
		zap.Int("workers", workers),
		zap.Bool("native", f.engine.native))

	r := render.New(eng, render.WithLogger(log.Named("render")))
	results := renderJobs(ctx, f, r, jobs, opts, workers, stdioFiles{in: stdin, out: stdout}, stderr)
	return batchError(countResults(results))
}

// renderJobs runs the batch behind the progress display when stderr is a
// terminal, otherwise with one line per file.
func renderJobs(ctx context.Context, f *cliFlags, r Renderer, jobs []Job, opts *resvgruntime.Options, workers int, streams stdioFiles, stderr io.Writer) []Result {
	batch := func(ctx context.Context, progress func(Result)) []Result {
		return renderBatch(ctx, r, jobs, opts, workers, streams, progress)
	}

	if useTUI(f, jobs, stderr) {
		return runWithTUI(ctx, streams.in, stderr, len(jobs), batch)
	}

	var progress func(Result)
	switch {
	case f.quiet:
	case f.verbose || len(jobs) > 1:
		progress = printProgress(stderr)
	}
	return batch(ctx, progress)
}

// useTUI reports whether the progress display can own the terminal. It
// cannot once stdin or stdout carry document data.
func useTUI(f *cliFlags, jobs []Job, stderr io.Writer) bool {
	if f.noTUI || f.quiet || len(jobs) < 2 {
		return false
	}
	for _, j := range jobs {
		if j.InputPath == stdio || j.OutputPath == stdio {
			return false
		}
	}
	file, ok := stderr.(*os.File)
	return ok && term.IsTerminal(int(file.Fd()))
}

// newLogger builds the process logger on stderr. --verbose selects debug
// output, --quiet errors only, otherwise the config's log.level applies.
func newLogger(f *cliFlags, file *config.File, stderr io.Writer) (*zap.Logger, error) {
	level, err := file.Log.ZapLevel()
	if err != nil {
		return nil, err
	}
	switch {
	case f.verbose:
		level = zapcore.DebugLevel
	case f.quiet:
		level = zapcore.ErrorLevel
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	if f.verbose {
		encCfg = zap.NewDevelopmentEncoderConfig()
	}

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.Lock(zapcore.AddSync(stderr)),
		level,
	)
	return zap.New(core), nil
}
