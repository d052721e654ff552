package config

import (
	stderrors "errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"
	resvgruntime "github.com/wippyai/resvg-runtime"
	"github.com/wippyai/resvg-runtime/engine"
	"github.com/wippyai/resvg-runtime/errors"
	"go.uber.org/zap/zapcore"
)

// MaxInputSize limits YAML input to prevent memory exhaustion (default 1MB).
var MaxInputSize = 1 << 20

// Field limits.
const (
	MaxStringLength = 4096
	MaxFontFiles    = 256
)

var (
	ErrEmptyConfig   = stderrors.New("config: nil or empty data")
	ErrInputTooLarge = stderrors.New("config: input exceeds maximum size")
)

// File is the svg2png configuration file.
type File struct {
	Render RenderConfig `yaml:"render"`
	Fonts  FontsConfig  `yaml:"fonts"`
	Engine EngineConfig `yaml:"engine"`
	Log    LogConfig    `yaml:"log"`
}

// RenderConfig maps onto resvgruntime.Options.
type RenderConfig struct {
	Width             *int32   `yaml:"width"`
	Height            *int32   `yaml:"height"`
	Zoom              *float32 `yaml:"zoom"`
	ExportAreaDrawing *bool    `yaml:"exportAreaDrawing"` // default true
	Background        string   `yaml:"background"`
	ExportID          string   `yaml:"exportId"`
	ResourcesDir      string   `yaml:"resourcesDir"`
	DPI               int32    `yaml:"dpi"` // 0 = 96
	ExportAreaPage    bool     `yaml:"exportAreaPage"`
}

// FontsConfig selects the fonts available to the engine.
type FontsConfig struct {
	Families FamiliesConfig `yaml:"families"`
	// Files are read and passed to the engine as font buffers, in order.
	Files []string `yaml:"files"`
	// File and Dir are paths the engine resolves itself.
	File       string `yaml:"file"`
	Dir        string `yaml:"dir"`
	SkipSystem bool   `yaml:"skipSystem"`
}

// FamiliesConfig overrides the CSS generic font families.
type FamiliesConfig struct {
	Serif     string `yaml:"serif"`
	SansSerif string `yaml:"sansSerif"`
	Cursive   string `yaml:"cursive"`
	Fantasy   string `yaml:"fantasy"`
	Monospace string `yaml:"monospace"`
}

// EngineConfig selects and sizes the engine.
type EngineConfig struct {
	// Wasm is the path to the wrapper compiled to wasm32.
	Wasm             string        `yaml:"wasm"`
	Mounts           []MountConfig `yaml:"mounts"`
	PoolSize         int           `yaml:"poolSize"`
	MemoryLimitPages uint32        `yaml:"memoryLimitPages"`
	DisableWASI      bool          `yaml:"disableWasi"`
}

// MountConfig exposes a host directory to the guest.
type MountConfig struct {
	Host     string `yaml:"host"`
	Guest    string `yaml:"guest"`
	ReadOnly bool   `yaml:"readOnly"`
}

// LogConfig sets the log level: debug, info, warn or error.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Parse decodes data strictly, rejecting unknown fields, and validates it.
func Parse(data []byte) (*File, error) {
	if len(data) == 0 {
		return nil, errors.Config(nil, "parse", ErrEmptyConfig)
	}
	if len(data) > MaxInputSize {
		return nil, errors.Config(nil, "parse",
			fmt.Errorf("%w: %d bytes (max %d)", ErrInputTooLarge, len(data), MaxInputSize))
	}

	var f File
	if err := yaml.UnmarshalWithOptions(data, &f, yaml.Strict()); err != nil {
		return nil, errors.Config(nil, "parse", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Load reads and parses the file at path. Relative host paths in the file
// are resolved against the file's directory.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- config path is user-provided
	if err != nil {
		return nil, errors.Config(nil, "read "+path, err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, err
	}
	f.resolvePaths(filepath.Dir(path))
	return f, nil
}

func (f *File) resolvePaths(base string) {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(base, p)
	}
	for i, p := range f.Fonts.Files {
		f.Fonts.Files[i] = abs(p)
	}
	f.Engine.Wasm = abs(f.Engine.Wasm)
	for i := range f.Engine.Mounts {
		f.Engine.Mounts[i].Host = abs(f.Engine.Mounts[i].Host)
	}
}

// Validate checks values and lengths. Called by Parse, but available for
// callers that construct a File directly.
func (f *File) Validate() error {
	r := f.Render
	if r.DPI < 0 {
		return errors.Config([]string{"render", "dpi"}, fmt.Sprintf("must not be negative, got %d", r.DPI), nil)
	}
	if r.Zoom != nil && *r.Zoom < 0 {
		return errors.Config([]string{"render", "zoom"}, fmt.Sprintf("must not be negative, got %g", *r.Zoom), nil)
	}

	strs := []struct {
		path  []string
		value string
	}{
		{[]string{"render", "background"}, r.Background},
		{[]string{"render", "exportId"}, r.ExportID},
		{[]string{"render", "resourcesDir"}, r.ResourcesDir},
		{[]string{"fonts", "file"}, f.Fonts.File},
		{[]string{"fonts", "dir"}, f.Fonts.Dir},
		{[]string{"fonts", "families", "serif"}, f.Fonts.Families.Serif},
		{[]string{"fonts", "families", "sansSerif"}, f.Fonts.Families.SansSerif},
		{[]string{"fonts", "families", "cursive"}, f.Fonts.Families.Cursive},
		{[]string{"fonts", "families", "fantasy"}, f.Fonts.Families.Fantasy},
		{[]string{"fonts", "families", "monospace"}, f.Fonts.Families.Monospace},
		{[]string{"engine", "wasm"}, f.Engine.Wasm},
	}
	for _, s := range strs {
		if err := validateString(s.path, s.value); err != nil {
			return err
		}
	}

	if len(f.Fonts.Files) > MaxFontFiles {
		return errors.Config([]string{"fonts", "files"}, fmt.Sprintf("%d files (max %d)", len(f.Fonts.Files), MaxFontFiles), nil)
	}
	for i, p := range f.Fonts.Files {
		where := []string{"fonts", fmt.Sprintf("files[%d]", i)}
		if p == "" {
			return errors.Config(where, "empty path", nil)
		}
		if err := validateString(where, p); err != nil {
			return err
		}
	}

	if f.Engine.PoolSize < 0 {
		return errors.Config([]string{"engine", "poolSize"}, fmt.Sprintf("must not be negative, got %d", f.Engine.PoolSize), nil)
	}
	for i, m := range f.Engine.Mounts {
		where := []string{"engine", fmt.Sprintf("mounts[%d]", i)}
		if m.Host == "" || m.Guest == "" {
			return errors.Config(where, "host and guest are required", nil)
		}
		if !path.IsAbs(m.Guest) {
			return errors.Config(where, fmt.Sprintf("guest path %q must be absolute", m.Guest), nil)
		}
	}

	if _, err := f.Log.ZapLevel(); err != nil {
		return err
	}
	return nil
}

func validateString(where []string, s string) error {
	if len(s) > MaxStringLength {
		return errors.Config(where, fmt.Sprintf("%d bytes (max %d)", len(s), MaxStringLength), nil)
	}
	if strings.IndexByte(s, 0) >= 0 {
		return errors.Config(where, "contains NUL byte", nil)
	}
	return nil
}

// Options builds render options, reading font files with readFile
// (os.ReadFile when nil). Unset fields keep resvgruntime.DefaultOptions.
func (f *File) Options(readFile func(string) ([]byte, error)) (*resvgruntime.Options, error) {
	if readFile == nil {
		readFile = os.ReadFile
	}

	r := f.Render
	opts := resvgruntime.DefaultOptions()
	opts.Width = r.Width
	opts.Height = r.Height
	opts.Zoom = r.Zoom
	if r.DPI != 0 {
		opts.DPI = r.DPI
	}
	opts.ExportAreaDrawing = r.ExportAreaDrawing
	opts.ExportAreaPage = r.ExportAreaPage
	opts.Background = r.Background
	opts.ExportID = r.ExportID
	opts.ResourcesDir = r.ResourcesDir

	opts.SkipSystemFonts = f.Fonts.SkipSystem
	opts.FontFile = f.Fonts.File
	opts.FontDir = f.Fonts.Dir
	opts.SerifFamily = f.Fonts.Families.Serif
	opts.SansSerifFamily = f.Fonts.Families.SansSerif
	opts.CursiveFamily = f.Fonts.Families.Cursive
	opts.FantasyFamily = f.Fonts.Families.Fantasy
	opts.MonospaceFamily = f.Fonts.Families.Monospace

	for i, p := range f.Fonts.Files {
		data, err := readFile(p)
		if err != nil {
			return nil, errors.Config([]string{"fonts", fmt.Sprintf("files[%d]", i)}, "read "+p, err)
		}
		opts.Fonts = append(opts.Fonts, data)
	}
	return opts, nil
}

// EngineConfig returns the wazero engine configuration.
func (f *File) EngineConfig() *engine.Config {
	cfg := engine.DefaultConfig()
	cfg.PoolSize = f.Engine.PoolSize
	cfg.MemoryLimitPages = f.Engine.MemoryLimitPages
	cfg.DisableWASI = f.Engine.DisableWASI
	for _, m := range f.Engine.Mounts {
		cfg.Mounts = append(cfg.Mounts, engine.Mount{HostDir: m.Host, GuestDir: m.Guest, ReadOnly: m.ReadOnly})
	}
	return cfg
}

// ZapLevel parses the level. Empty means warn.
func (l LogConfig) ZapLevel() (zapcore.Level, error) {
	if l.Level == "" {
		return zapcore.WarnLevel, nil
	}
	lvl, err := zapcore.ParseLevel(l.Level)
	if err != nil {
		return zapcore.WarnLevel, errors.Config([]string{"log", "level"}, fmt.Sprintf("invalid level %q", l.Level), err)
	}
	return lvl, nil
}
