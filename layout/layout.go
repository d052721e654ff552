package layout

import (
	"fmt"
	"sync"

	resvgruntime "github.com/wippyai/resvg-runtime"
)

// Kind is the C type of a block field.
type Kind uint8

const (
	KindI32 Kind = iota
	KindF32
	KindBool
	KindPtr
	KindSize
)

func (k Kind) String() string {
	switch k {
	case KindI32:
		return "i32"
	case KindF32:
		return "f32"
	case KindBool:
		return "bool"
	case KindPtr:
		return "ptr"
	case KindSize:
		return "size"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Width returns the field's size on p. Every kind is aligned to its width.
func (k Kind) Width(p resvgruntime.Platform) uint64 {
	switch k {
	case KindI32, KindF32:
		return 4
	case KindBool:
		return 1
	case KindPtr:
		return p.PointerSize
	case KindSize:
		return p.SizeSize
	default:
		return 0
	}
}

// Field is one member of the RenderOptions struct.
type Field struct {
	Name string
	Kind Kind
}

// Field names, in block order.
const (
	FieldWidth             = "width"
	FieldHeight            = "height"
	FieldZoom              = "zoom"
	FieldDPI               = "dpi"
	FieldSkipSystemFonts   = "skip_system_fonts"
	FieldBackground        = "background"
	FieldExportID          = "export_id"
	FieldExportAreaPage    = "export_area_page"
	FieldExportAreaDrawing = "export_area_drawing"
	FieldResourcesDir      = "resources_dir"
	FieldFonts             = "fonts"
	FieldFontLens          = "font_lens"
	FieldFontCount         = "font_count"
	FieldFontFile          = "font_file"
	FieldFontDir           = "font_dir"
	FieldSerifFamily       = "serif_family"
	FieldSansSerifFamily   = "sans_serif_family"
	FieldCursiveFamily     = "cursive_family"
	FieldFantasyFamily     = "fantasy_family"
	FieldMonospaceFamily   = "monospace_family"
)

// Fields is the RenderOptions field sequence. The order is part of the
// engine ABI.
var Fields = [fieldCount]Field{
	{FieldWidth, KindI32},
	{FieldHeight, KindI32},
	{FieldZoom, KindF32},
	{FieldDPI, KindI32},
	{FieldSkipSystemFonts, KindBool},
	{FieldBackground, KindPtr},
	{FieldExportID, KindPtr},
	{FieldExportAreaPage, KindBool},
	{FieldExportAreaDrawing, KindBool},
	{FieldResourcesDir, KindPtr},
	{FieldFonts, KindPtr},
	{FieldFontLens, KindPtr},
	{FieldFontCount, KindSize},
	{FieldFontFile, KindPtr},
	{FieldFontDir, KindPtr},
	{FieldSerifFamily, KindPtr},
	{FieldSansSerifFamily, KindPtr},
	{FieldCursiveFamily, KindPtr},
	{FieldFantasyFamily, KindPtr},
	{FieldMonospaceFamily, KindPtr},
}

const fieldCount = 20

// fieldIndex maps a field name to its position in Fields.
var fieldIndex = func() map[string]int {
	m := make(map[string]int, fieldCount)
	for i, f := range Fields {
		m[f.Name] = i
	}
	return m
}()

// Layout is the RenderOptions layout for one platform.
type Layout struct {
	Platform resvgruntime.Platform
	Size     uint64
	Align    uint64
	offsets  [fieldCount]uint64
}

// Offset returns the byte offset of the named field.
func (l *Layout) Offset(name string) (uint64, bool) {
	i, ok := fieldIndex[name]
	if !ok {
		return 0, false
	}
	return l.offsets[i], true
}

var layoutCache sync.Map // Platform -> *Layout

// For returns the cached layout for p.
func For(p resvgruntime.Platform) (*Layout, error) {
	if cached, ok := layoutCache.Load(p); ok {
		return cached.(*Layout), nil
	}
	l, err := Calculate(p)
	if err != nil {
		return nil, err
	}
	actual, _ := layoutCache.LoadOrStore(p, l)
	return actual.(*Layout), nil
}

// Calculate lays out Fields with C struct rules for p.
func Calculate(p resvgruntime.Platform) (*Layout, error) {
	if err := ValidatePlatform(p); err != nil {
		return nil, err
	}

	l := &Layout{Platform: p}

	maxAlign := uint64(1)
	offset := uint64(0)

	for i, f := range Fields {
		width := f.Kind.Width(p)

		offset = AlignTo(offset, width)
		l.offsets[i] = offset

		if width > maxAlign {
			maxAlign = width
		}

		offset += width
	}

	l.Size = AlignTo(offset, maxAlign)
	l.Align = maxAlign
	return l, nil
}

// ValidatePlatform rejects widths other than 4 and 8 bytes.
func ValidatePlatform(p resvgruntime.Platform) error {
	for _, w := range []uint64{p.PointerSize, p.SizeSize} {
		if w != 4 && w != 8 {
			return fmt.Errorf("platform %q: unsupported word width %d (pointer %d, size %d)",
				p.Name, w, p.PointerSize, p.SizeSize)
		}
	}
	return nil
}
