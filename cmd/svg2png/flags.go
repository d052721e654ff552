package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	flag "github.com/spf13/pflag"
	resvgruntime "github.com/wippyai/resvg-runtime"
	"github.com/wippyai/resvg-runtime/config"
	"github.com/wippyai/resvg-runtime/engine"
)

// wasmEnv names the wrapper module when neither --wasm nor the config sets it.
const wasmEnv = "RESVG_WASM"

// ErrUsage marks invalid command lines.
var ErrUsage = errors.New("usage")

// renderFlags holds flags mapped onto resvgruntime.Options.
type renderFlags struct {
	background        string
	exportID          string
	resourcesDir      string
	fontFile          string
	fontDir           string
	serif             string
	sansSerif         string
	cursive           string
	fantasy           string
	monospace         string
	fonts             []string
	zoom              float32
	width             int32
	height            int32
	dpi               int32
	exportAreaPage    bool
	exportAreaDrawing bool
	skipSystemFonts   bool
}

// engineFlags holds engine selection flags.
type engineFlags struct {
	wasm             string
	mounts           []string
	memoryLimitPages uint32
	native           bool
	noWASI           bool
}

// cliFlags holds all parsed flags.
type cliFlags struct {
	fs      *flag.FlagSet
	output  string
	config  string
	render  renderFlags
	engine  engineFlags
	workers int
	verbose bool
	quiet   bool
	noTUI   bool
	version bool
}

func addRenderFlags(fs *flag.FlagSet, f *renderFlags) {
	fs.Int32Var(&f.width, "width", 0, "output width in pixels (aspect ratio kept if height unset)")
	fs.Int32Var(&f.height, "height", 0, "output height in pixels")
	fs.Float32VarP(&f.zoom, "zoom", "z", 0, "zoom factor, overrides width and height")
	fs.Int32Var(&f.dpi, "dpi", resvgruntime.DefaultDPI, "resolution for unit conversion")
	fs.StringVarP(&f.background, "background", "b", "", "background color (e.g. white, #rrggbb)")
	fs.StringVar(&f.exportID, "export-id", "", "render only the element with this id")
	fs.BoolVar(&f.exportAreaPage, "export-area-page", false, "use the page area")
	fs.BoolVar(&f.exportAreaDrawing, "export-area-drawing", true, "use the drawing area")
	fs.StringVar(&f.resourcesDir, "resources-dir", "", "directory for relative image references")
	fs.StringArrayVar(&f.fonts, "font", nil, "font file to load (repeatable)")
	fs.StringVar(&f.fontFile, "font-file", "", "font file for the engine to load by path")
	fs.StringVar(&f.fontDir, "font-dir", "", "font directory for the engine to scan")
	fs.BoolVar(&f.skipSystemFonts, "skip-system-fonts", false, "do not load system fonts")
	fs.StringVar(&f.serif, "serif-family", "", "family used for serif")
	fs.StringVar(&f.sansSerif, "sans-serif-family", "", "family used for sans-serif")
	fs.StringVar(&f.cursive, "cursive-family", "", "family used for cursive")
	fs.StringVar(&f.fantasy, "fantasy-family", "", "family used for fantasy")
	fs.StringVar(&f.monospace, "monospace-family", "", "family used for monospace")
}

func addEngineFlags(fs *flag.FlagSet, f *engineFlags) {
	fs.StringVar(&f.wasm, "wasm", "", "resvg wrapper wasm module (default $"+wasmEnv+")")
	fs.StringArrayVar(&f.mounts, "mount", nil, "expose host dir to the engine as host:guest[:ro] (repeatable)")
	fs.Uint32Var(&f.memoryLimitPages, "memory-limit-pages", 0, "engine memory limit in 64KiB pages (0 = default)")
	fs.BoolVar(&f.native, "native", false, "use the linked native library instead of wasm")
	fs.BoolVar(&f.noWASI, "no-wasi", false, "do not provide WASI to the engine")
}

// parseFlags parses args (without the program name) and returns positional args.
func parseFlags(args []string, stderr io.Writer) (*cliFlags, []string, error) {
	fs := flag.NewFlagSet("svg2png", flag.ContinueOnError)
	fs.SetOutput(stderr)
	f := &cliFlags{fs: fs}

	fs.StringVarP(&f.output, "output", "o", "", "output file or directory (- for stdout)")
	fs.StringVarP(&f.config, "config", "c", "", "YAML config file")
	fs.IntVarP(&f.workers, "workers", "w", 0, "parallel renders (0 = auto)")
	fs.BoolVarP(&f.verbose, "verbose", "v", false, "debug logging")
	fs.BoolVarP(&f.quiet, "quiet", "q", false, "only report errors")
	fs.BoolVar(&f.noTUI, "no-tui", false, "plain progress output even on a terminal")
	fs.BoolVar(&f.version, "version", false, "print version and exit")
	addRenderFlags(fs, &f.render)
	addEngineFlags(fs, &f.engine)

	fs.Usage = func() { printUsage(stderr, fs) }

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("%w: %v", ErrUsage, err)
	}
	if f.verbose && f.quiet {
		return nil, nil, fmt.Errorf("%w: --verbose and --quiet are exclusive", ErrUsage)
	}
	if f.workers < 0 {
		return nil, nil, fmt.Errorf("%w: --workers must not be negative", ErrUsage)
	}
	if f.render.dpi < 0 || f.render.zoom < 0 {
		return nil, nil, fmt.Errorf("%w: --dpi and --zoom must not be negative", ErrUsage)
	}
	return f, fs.Args(), nil
}

func printUsage(w io.Writer, fs *flag.FlagSet) {
	fmt.Fprintln(w, "Usage: svg2png [flags] <input.svg|dir|->...")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Renders SVG documents to PNG with resvg.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprint(w, fs.FlagUsages())
}

// loadConfig reads the config file if one was given.
func (f *cliFlags) loadConfig() (*config.File, error) {
	if f.config == "" {
		return &config.File{}, nil
	}
	return config.Load(f.config)
}

// options builds render options from the config file, then applies every
// flag given on the command line over it.
func (f *cliFlags) options(file *config.File, readFile func(string) ([]byte, error)) (*resvgruntime.Options, error) {
	opts, err := file.Options(readFile)
	if err != nil {
		return nil, err
	}
	fs, r := f.fs, f.render

	if fs.Changed("width") {
		opts.Width = resvgruntime.Ptr(r.width)
	}
	if fs.Changed("height") {
		opts.Height = resvgruntime.Ptr(r.height)
	}
	if fs.Changed("zoom") {
		opts.Zoom = resvgruntime.Ptr(r.zoom)
	}
	if fs.Changed("dpi") {
		opts.DPI = r.dpi
	}
	if fs.Changed("export-area-page") {
		opts.ExportAreaPage = r.exportAreaPage
	}
	if fs.Changed("export-area-drawing") {
		opts.ExportAreaDrawing = resvgruntime.Ptr(r.exportAreaDrawing)
	}
	if fs.Changed("skip-system-fonts") {
		opts.SkipSystemFonts = r.skipSystemFonts
	}

	strs := []struct {
		dst  *string
		val  string
		name string
	}{
		{&opts.Background, r.background, "background"},
		{&opts.ExportID, r.exportID, "export-id"},
		{&opts.ResourcesDir, r.resourcesDir, "resources-dir"},
		{&opts.FontFile, r.fontFile, "font-file"},
		{&opts.FontDir, r.fontDir, "font-dir"},
		{&opts.SerifFamily, r.serif, "serif-family"},
		{&opts.SansSerifFamily, r.sansSerif, "sans-serif-family"},
		{&opts.CursiveFamily, r.cursive, "cursive-family"},
		{&opts.FantasyFamily, r.fantasy, "fantasy-family"},
		{&opts.MonospaceFamily, r.monospace, "monospace-family"},
	}
	for _, s := range strs {
		if fs.Changed(s.name) {
			*s.dst = s.val
		}
	}

	// --font files are appended after the config's files.
	for _, p := range r.fonts {
		data, err := readFile(p)
		if err != nil {
			return nil, fmt.Errorf("%w: font %s: %w", ErrReadInput, p, err)
		}
		opts.Fonts = append(opts.Fonts, data)
	}
	return opts, nil
}

// engineConfig merges the config file's engine section with flags.
func (f *cliFlags) engineConfig(file *config.File) (*engine.Config, error) {
	cfg := file.EngineConfig()
	if f.workers > 0 {
		cfg.PoolSize = f.workers
	}
	if f.fs.Changed("memory-limit-pages") {
		cfg.MemoryLimitPages = f.engine.memoryLimitPages
	}
	if f.engine.noWASI {
		cfg.DisableWASI = true
	}
	for _, m := range f.engine.mounts {
		mount, err := parseMount(m)
		if err != nil {
			return nil, err
		}
		cfg.Mounts = append(cfg.Mounts, mount)
	}
	return cfg, nil
}

// wasmPath picks the module path: flag, then config, then environment.
func (f *cliFlags) wasmPath(file *config.File) string {
	switch {
	case f.engine.wasm != "":
		return f.engine.wasm
	case file.Engine.Wasm != "":
		return file.Engine.Wasm
	default:
		return os.Getenv(wasmEnv)
	}
}

func parseMount(s string) (engine.Mount, error) {
	parts := strings.Split(s, ":")
	switch {
	case len(parts) == 2 && parts[0] != "" && parts[1] != "":
		return engine.Mount{HostDir: parts[0], GuestDir: parts[1]}, nil
	case len(parts) == 3 && parts[0] != "" && parts[1] != "" && parts[2] == "ro":
		return engine.Mount{HostDir: parts[0], GuestDir: parts[1], ReadOnly: true}, nil
	default:
		return engine.Mount{}, fmt.Errorf("%w: --mount %q, want host:guest[:ro]", ErrUsage, s)
	}
}
