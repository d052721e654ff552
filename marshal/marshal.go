package marshal

import (
	"fmt"
	"strings"
	"unicode/utf8"

	resvgruntime "github.com/wippyai/resvg-runtime"
	"github.com/wippyai/resvg-runtime/errors"
	"github.com/wippyai/resvg-runtime/layout"
)

// Safety limits for caller input.
const (
	MaxStringSize   = 1 << 20  // one option string (1 MB)
	MaxDocumentSize = 64 << 20 // one SVG document (64 MB)
	MaxFontSize     = 64 << 20 // one font file (64 MB)
	MaxFontCount    = 4096
)

// Target is the part of an engine instance the Marshaler writes to.
type Target interface {
	Platform() resvgruntime.Platform
	Memory() resvgruntime.Memory
	Allocator() resvgruntime.Allocator
}

// Marshaler writes one render's inputs into engine memory. It is not safe
// for concurrent use; create one per render.
type Marshaler struct {
	mem     Memory
	alloc   Allocator
	layout  *layout.Layout
	tracker *Tracker
	plat    resvgruntime.Platform
}

// New returns a Marshaler that records every allocation in tracker.
func New(target Target, tracker *Tracker) (*Marshaler, error) {
	plat := target.Platform()
	l, err := layout.For(plat)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseMarshal, errors.KindFault, err, "no parameter layout for platform")
	}
	return &Marshaler{
		mem:     target.Memory(),
		alloc:   target.Allocator(),
		layout:  l,
		tracker: tracker,
		plat:    plat,
	}, nil
}

// Layout returns the block layout used for the target platform.
func (m *Marshaler) Layout() *layout.Layout {
	return m.layout
}

// stringField pairs an option string with the block field that receives it.
type stringField struct {
	path  string
	value string
	dst   *uint64
}

func stringFields(opts *resvgruntime.Options, p *layout.Params) []stringField {
	return []stringField{
		{"Background", opts.Background, &p.Background},
		{"ExportID", opts.ExportID, &p.ExportID},
		{"ResourcesDir", opts.ResourcesDir, &p.ResourcesDir},
		{"FontFile", opts.FontFile, &p.FontFile},
		{"FontDir", opts.FontDir, &p.FontDir},
		{"SerifFamily", opts.SerifFamily, &p.SerifFamily},
		{"SansSerifFamily", opts.SansSerifFamily, &p.SansSerifFamily},
		{"CursiveFamily", opts.CursiveFamily, &p.CursiveFamily},
		{"FantasyFamily", opts.FantasyFamily, &p.FantasyFamily},
		{"MonospaceFamily", opts.MonospaceFamily, &p.MonospaceFamily},
	}
}

// Validate checks svg and opts without touching engine memory. A nil opts is
// valid.
func Validate(svg string, opts *resvgruntime.Options) error {
	if svg == "" {
		return errors.InvalidArgument(errors.PhaseValidate, []string{"svg"}, "document cannot be empty")
	}
	if err := checkString("svg", svg, MaxDocumentSize); err != nil {
		return err
	}
	if opts == nil {
		return nil
	}
	return ValidateOptions(opts)
}

// ValidateOptions checks every string option and font buffer.
func ValidateOptions(opts *resvgruntime.Options) error {
	if err := ValidateFonts(opts.Fonts); err != nil {
		return err
	}
	var scratch layout.Params
	for _, f := range stringFields(opts, &scratch) {
		if f.value == "" {
			continue
		}
		if err := checkString(f.path, f.value, MaxStringSize); err != nil {
			return err
		}
	}
	return nil
}

// ValidateFonts checks every font buffer before any of them is copied.
func ValidateFonts(fonts [][]byte) error {
	if len(fonts) > MaxFontCount {
		return errors.FontLoad(errors.PhaseMarshal, []string{"Fonts"},
			fmt.Sprintf("%d fonts exceeds maximum %d", len(fonts), MaxFontCount))
	}
	for i, f := range fonts {
		path := []string{fmt.Sprintf("Fonts[%d]", i)}
		if f == nil {
			return errors.FontLoad(errors.PhaseMarshal, path, "font data cannot be null")
		}
		if len(f) == 0 {
			return errors.FontLoad(errors.PhaseMarshal, path, "font data cannot be empty")
		}
		if len(f) > MaxFontSize {
			return errors.FontLoad(errors.PhaseMarshal, path,
				fmt.Sprintf("font size %d exceeds maximum %d", len(f), MaxFontSize))
		}
	}
	return nil
}

func checkString(path, s string, limit int) error {
	if len(s) > limit {
		return errors.New(errors.PhaseValidate, errors.KindInvalidArgument).
			Path(path).
			Detail("string size %d exceeds maximum %d", len(s), limit).
			Build()
	}
	if !utf8.ValidString(s) {
		return errors.InvalidUTF8(errors.PhaseValidate, []string{path}, []byte(s))
	}
	if i := strings.IndexByte(s, 0); i >= 0 {
		return errors.New(errors.PhaseValidate, errors.KindInvalidArgument).
			Path(path).
			Value(i).
			Detail("contains NUL byte at offset %d", i).
			Build()
	}
	return nil
}

// stringLimit is the size limit for a string written with role.
func stringLimit(role Role) int {
	if role == RoleDocument {
		return MaxDocumentSize
	}
	return MaxStringSize
}

// CString writes s with a NUL terminator into a new region and returns its
// address. The empty string is written as the null pointer. Documents may be
// up to MaxDocumentSize; every other string up to MaxStringSize.
func (m *Marshaler) CString(path, s string, role Role) (uint64, error) {
	if s == "" {
		return 0, nil
	}
	if err := checkString(path, s, stringLimit(role)); err != nil {
		return 0, err
	}
	return m.copyIn(path, append([]byte(s), 0), role)
}

// Document writes the SVG text with a NUL terminator.
func (m *Marshaler) Document(svg string) (uint64, error) {
	if svg == "" {
		return 0, errors.InvalidArgument(errors.PhaseValidate, []string{"svg"}, "document cannot be empty")
	}
	return m.CString("svg", svg, RoleDocument)
}

func (m *Marshaler) copyIn(path string, data []byte, role Role) (uint64, error) {
	size := uint64(len(data))
	addr, err := m.tracker.Alloc(m.alloc, size, 1, role)
	if err != nil {
		return 0, withPath(err, path)
	}
	if err := m.mem.Write(addr, data); err != nil {
		return 0, errors.New(errors.PhaseMarshal, errors.KindOutOfBounds).
			Path(path).
			Cause(err).
			Detail("write %d bytes at %#x", size, addr).
			Build()
	}
	return addr, nil
}

// Fonts copies each buffer into its own region and writes the pointer and
// length arrays in input order. It returns the two array addresses.
func (m *Marshaler) Fonts(fonts [][]byte) (ptrs, lens uint64, err error) {
	if len(fonts) == 0 {
		return 0, 0, nil
	}
	if err := ValidateFonts(fonts); err != nil {
		return 0, 0, err
	}

	addrs := make([]uint64, len(fonts))
	for i, f := range fonts {
		addrs[i], err = m.copyIn(fmt.Sprintf("Fonts[%d]", i), f, RoleFont)
		if err != nil {
			return 0, 0, err
		}
	}

	ptrs, err = m.wordArray("Fonts", m.plat.PointerSize, addrs, RolePointerArray)
	if err != nil {
		return 0, 0, err
	}

	sizes := make([]uint64, len(fonts))
	for i, f := range fonts {
		sizes[i] = uint64(len(f))
	}
	lens, err = m.wordArray("FontLens", m.plat.SizeSize, sizes, RoleLengthArray)
	if err != nil {
		return 0, 0, err
	}
	return ptrs, lens, nil
}

func (m *Marshaler) wordArray(path string, width uint64, words []uint64, role Role) (uint64, error) {
	size, ok := layout.SafeMul(width, uint64(len(words)))
	if !ok {
		return 0, errors.Overflow(errors.PhaseMarshal, []string{path}, len(words), "array size")
	}
	addr, err := m.tracker.Alloc(m.alloc, size, width, role)
	if err != nil {
		return 0, withPath(err, path)
	}
	for i, w := range words {
		if !layout.FitsWord(w, width) {
			return 0, errors.Overflow(errors.PhaseMarshal, []string{fmt.Sprintf("%s[%d]", path, i)}, w,
				fmt.Sprintf("%d-byte word", width))
		}
		if err := layout.WriteWord(m.mem, addr+uint64(i)*width, width, w); err != nil {
			return 0, errors.OutOfBounds(errors.PhaseMarshal, addr+uint64(i)*width, width, err)
		}
	}
	return addr, nil
}

// Params encodes opts into a block record, allocating every string and font
// region it references. opts is not modified.
func (m *Marshaler) Params(opts *resvgruntime.Options) (*layout.Params, error) {
	if opts == nil {
		opts = resvgruntime.DefaultOptions()
	}
	if err := ValidateFonts(opts.Fonts); err != nil {
		return nil, err
	}

	p := layout.NewParams()
	if opts.Width != nil {
		p.Width = *opts.Width
	}
	if opts.Height != nil {
		p.Height = *opts.Height
	}
	if opts.Zoom != nil {
		p.Zoom = *opts.Zoom
	}
	p.DPI = opts.DPI
	if p.DPI == 0 {
		p.DPI = resvgruntime.DefaultDPI
	}
	p.SkipSystemFonts = opts.SkipSystemFonts
	p.ExportAreaPage = opts.ExportAreaPage
	p.ExportAreaDrawing = opts.DrawingArea()

	for _, f := range stringFields(opts, p) {
		addr, err := m.CString(f.path, f.value, RoleString)
		if err != nil {
			return nil, err
		}
		*f.dst = addr
	}

	ptrs, lens, err := m.Fonts(opts.Fonts)
	if err != nil {
		return nil, err
	}
	p.Fonts = ptrs
	p.FontLens = lens
	p.FontCount = uint64(len(opts.Fonts))
	return p, nil
}

// Block allocates a block region and encodes p into it.
func (m *Marshaler) Block(p *layout.Params) (uint64, error) {
	addr, err := m.tracker.Alloc(m.alloc, m.layout.Size, m.layout.Align, RoleBlock)
	if err != nil {
		return 0, withPath(err, "RenderOptions")
	}
	if err := m.layout.Encode(m.mem, addr, p); err != nil {
		return 0, err
	}
	return addr, nil
}

// Options marshals opts and returns the address of its encoded block.
func (m *Marshaler) Options(opts *resvgruntime.Options) (uint64, error) {
	p, err := m.Params(opts)
	if err != nil {
		return 0, err
	}
	return m.Block(p)
}

// OutSlots allocates the zeroed out_buf and out_len slots the engine fills
// on success.
func (m *Marshaler) OutSlots() (bufSlot, lenSlot uint64, err error) {
	ptrW, sizeW := m.plat.PointerSize, m.plat.SizeSize
	lenOff := layout.AlignTo(ptrW, sizeW)
	align := max(ptrW, sizeW)
	size := layout.AlignTo(lenOff+sizeW, align)

	addr, err := m.tracker.Alloc(m.alloc, size, align, RoleOutSlots)
	if err != nil {
		return 0, 0, withPath(err, "out")
	}
	if err := m.mem.Write(addr, make([]byte, size)); err != nil {
		return 0, 0, errors.OutOfBounds(errors.PhaseMarshal, addr, size, err)
	}
	return addr, addr + lenOff, nil
}

func withPath(err error, path string) error {
	if e, ok := err.(*errors.Error); ok && len(e.Path) == 0 {
		e.Path = []string{path}
	}
	return err
}
