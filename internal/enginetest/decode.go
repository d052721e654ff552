package enginetest

import (
	"fmt"

	resvgruntime "github.com/wippyai/resvg-runtime"
	"github.com/wippyai/resvg-runtime/layout"
)

const maxCString = 64 << 20

// Call is a decoded render request, as the engine sees it.
type Call struct {
	// Strings holds every non-null string field by block field name.
	Strings  map[string]string
	SVG      string
	Fonts    [][]byte
	FontPtrs []uint64
	FontLens []uint64
	Params   layout.Params
}

// String returns the named string field and whether its pointer was non-null.
func (c *Call) String(field string) (string, bool) {
	s, ok := c.Strings[field]
	return s, ok
}

// Decode reads a document and RenderOptions block out of mem the way the
// engine does.
func Decode(mem resvgruntime.Memory, plat resvgruntime.Platform, svgAddr, blockAddr uint64) (*Call, error) {
	l, err := layout.For(plat)
	if err != nil {
		return nil, err
	}
	p, err := l.Decode(mem, blockAddr)
	if err != nil {
		return nil, err
	}

	c := &Call{Params: *p, Strings: make(map[string]string)}

	svg, ok, err := layout.ReadCString(mem, svgAddr, maxCString)
	if err != nil {
		return nil, fmt.Errorf("document: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("document pointer is null")
	}
	c.SVG = svg

	for _, f := range []struct {
		name string
		addr uint64
	}{
		{layout.FieldBackground, p.Background},
		{layout.FieldExportID, p.ExportID},
		{layout.FieldResourcesDir, p.ResourcesDir},
		{layout.FieldFontFile, p.FontFile},
		{layout.FieldFontDir, p.FontDir},
		{layout.FieldSerifFamily, p.SerifFamily},
		{layout.FieldSansSerifFamily, p.SansSerifFamily},
		{layout.FieldCursiveFamily, p.CursiveFamily},
		{layout.FieldFantasyFamily, p.FantasyFamily},
		{layout.FieldMonospaceFamily, p.MonospaceFamily},
	} {
		s, ok, err := layout.ReadCString(mem, f.addr, maxCString)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.name, err)
		}
		if ok {
			c.Strings[f.name] = s
		}
	}

	if p.FontCount > 0 && p.Fonts != 0 && p.FontLens != 0 {
		c.FontPtrs, err = layout.ReadWords(mem, p.Fonts, plat.PointerSize, p.FontCount)
		if err != nil {
			return nil, fmt.Errorf("fonts: %w", err)
		}
		c.FontLens, err = layout.ReadWords(mem, p.FontLens, plat.SizeSize, p.FontCount)
		if err != nil {
			return nil, fmt.Errorf("font_lens: %w", err)
		}
		c.Fonts = make([][]byte, p.FontCount)
		for i := range c.Fonts {
			c.Fonts[i], err = mem.Read(c.FontPtrs[i], c.FontLens[i])
			if err != nil {
				return nil, fmt.Errorf("fonts[%d]: %w", i, err)
			}
			c.Fonts[i] = append([]byte(nil), c.Fonts[i]...)
		}
	}
	return c, nil
}
