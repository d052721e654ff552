package resvgruntime

// DefaultDPI is used when Options.DPI is zero.
const DefaultDPI = 96

// Options configures a single render. String fields are optional: the empty
// string means "not specified" and reaches the engine as a null pointer.
type Options struct {
	// Width and Height are the target size in pixels. Nil leaves the
	// engine to derive the size; an explicit 0 is passed through as 0.
	Width  *int32
	Height *int32

	// Zoom scales the document size and takes precedence over Width/Height.
	Zoom *float32

	DPI             int32
	SkipSystemFonts bool

	// Background is a CSS color painted under the document.
	Background string
	ExportID   string

	ExportAreaPage bool
	// ExportAreaDrawing selects the drawing area. Nil means true.
	ExportAreaDrawing *bool

	ResourcesDir string

	// Fonts are raw font files loaded in order. Entries must not be empty.
	Fonts    [][]byte
	FontFile string
	FontDir  string

	// Generic family overrides map CSS generic families to a font family name.
	SerifFamily     string
	SansSerifFamily string
	CursiveFamily   string
	FantasyFamily   string
	MonospaceFamily string
}

// DefaultOptions returns the options used when a render is given nil.
func DefaultOptions() *Options {
	return &Options{DPI: DefaultDPI}
}

// Clone returns a copy that shares no slices with o. Font buffers are
// shared; they are never written.
func (o *Options) Clone() *Options {
	if o == nil {
		return nil
	}
	c := *o
	if o.Width != nil {
		c.Width = Ptr(*o.Width)
	}
	if o.Height != nil {
		c.Height = Ptr(*o.Height)
	}
	if o.Zoom != nil {
		c.Zoom = Ptr(*o.Zoom)
	}
	if o.ExportAreaDrawing != nil {
		c.ExportAreaDrawing = Ptr(*o.ExportAreaDrawing)
	}
	if o.Fonts != nil {
		c.Fonts = append([][]byte(nil), o.Fonts...)
	}
	return &c
}

// DrawingArea reports whether the drawing area is exported.
func (o *Options) DrawingArea() bool {
	return o.ExportAreaDrawing == nil || *o.ExportAreaDrawing
}

// Ptr returns a pointer to v, for the optional numeric fields.
func Ptr[T any](v T) *T {
	return &v
}
