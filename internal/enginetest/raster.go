package enginetest

import (
	"bytes"
	"encoding/xml"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/wippyai/resvg-runtime/errors"
	"golang.org/x/image/font"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/font/sfnt"
	"golang.org/x/image/math/fixed"
)

const (
	maxDimension = 16384
	defaultSize  = 100
	defaultFont  = 12
)

// Generic family defaults used when no override is given.
var genericDefaults = map[string]string{
	"serif":      "Times New Roman",
	"sans-serif": "Arial",
	"cursive":    "Comic Sans MS",
	"fantasy":    "Impact",
	"monospace":  "Courier New",
}

type loadedFont struct {
	family string
	font   *opentype.Font
}

// Rasterize renders a decoded call. It understands <rect> and <text>/<tspan>
// with fill, font-family and font-size, which is enough to observe sizing,
// background and font selection.
func Rasterize(c *Call) ([]byte, int32) {
	if !utf8.ValidString(c.SVG) {
		return nil, errors.StatusParse
	}

	fonts, status := loadFonts(c.Fonts)
	if status != errors.StatusOK {
		return nil, status
	}

	doc, err := parseDocument(c.SVG)
	if err != nil {
		return nil, errors.StatusParse
	}

	w, h := targetSize(doc.width, doc.height, c.Params.Width, c.Params.Height, c.Params.Zoom)
	img := image.NewNRGBA(image.Rect(0, 0, int(w), int(h)))

	if bg, ok := c.Strings["background"]; ok {
		if col, ok := ParseColor(bg); ok {
			draw.Draw(img, img.Bounds(), image.NewUniform(col), image.Point{}, draw.Src)
		}
	}

	r := &rasterizer{
		img:       img,
		fonts:     fonts,
		overrides: overridesOf(c.Strings),
		sx:        float64(w) / doc.width,
		sy:        float64(h) / doc.height,
		doc:       doc,
	}
	if err := r.run(c.SVG); err != nil {
		return nil, errors.StatusParse
	}

	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.DefaultCompression}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, errors.StatusRender
	}
	return buf.Bytes(), errors.StatusOK
}

func loadFonts(data [][]byte) ([]loadedFont, int32) {
	fonts := make([]loadedFont, 0, len(data))
	for _, d := range data {
		f, err := opentype.Parse(d)
		if err != nil {
			return nil, errors.StatusFontLoad
		}
		family, err := f.Name(nil, sfnt.NameIDFamily)
		if err != nil {
			return nil, errors.StatusFontLoad
		}
		fonts = append(fonts, loadedFont{family: family, font: f})
	}
	return fonts, errors.StatusOK
}

func overridesOf(strs map[string]string) map[string]string {
	out := make(map[string]string, len(genericDefaults))
	for k, v := range genericDefaults {
		out[k] = v
	}
	for field, generic := range map[string]string{
		"serif_family":      "serif",
		"sans_serif_family": "sans-serif",
		"cursive_family":    "cursive",
		"fantasy_family":    "fantasy",
		"monospace_family":  "monospace",
	} {
		if v, ok := strs[field]; ok {
			out[generic] = v
		}
	}
	return out
}

// targetSize applies the wrapper's sizing rules: a positive zoom scales the
// document size, else positive width and height are used, keeping the aspect
// ratio when only one is given. Both results are clamped to 1..16384.
func targetSize(docW, docH float64, width, height int32, zoom float32) (uint32, uint32) {
	sw, sh := float32(docW), float32(docH)
	tw, th := uint32(sw), uint32(sh)

	switch {
	case zoom > 0:
		tw = uint32(float32(tw) * zoom)
		th = uint32(float32(th) * zoom)
	case width > 0 && height > 0:
		tw, th = uint32(width), uint32(height)
	case width > 0:
		ratio := float32(width) / sw
		tw, th = uint32(width), uint32(sh*ratio)
	case height > 0:
		ratio := float32(height) / sh
		tw, th = uint32(sw*ratio), uint32(height)
	}

	return clamp(tw), clamp(th)
}

func clamp(v uint32) uint32 {
	return min(max(v, 1), maxDimension)
}

// ParseColor accepts the named colors red, green, blue, white and black,
// #rrggbb and #rgb.
func ParseColor(s string) (color.NRGBA, bool) {
	switch s {
	case "red":
		return color.NRGBA{R: 255, A: 255}, true
	case "green":
		return color.NRGBA{G: 255, A: 255}, true
	case "blue":
		return color.NRGBA{B: 255, A: 255}, true
	case "white":
		return color.NRGBA{R: 255, G: 255, B: 255, A: 255}, true
	case "black":
		return color.NRGBA{A: 255}, true
	}
	hex, ok := strings.CutPrefix(s, "#")
	if !ok {
		return color.NRGBA{}, false
	}
	switch len(hex) {
	case 6:
		v, err := strconv.ParseUint(hex, 16, 32)
		if err != nil {
			return color.NRGBA{}, false
		}
		return color.NRGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}, true
	case 3:
		v, err := strconv.ParseUint(hex, 16, 16)
		if err != nil {
			return color.NRGBA{}, false
		}
		return color.NRGBA{
			R: uint8(v>>8&0xf) * 17,
			G: uint8(v>>4&0xf) * 17,
			B: uint8(v&0xf) * 17,
			A: 255,
		}, true
	}
	return color.NRGBA{}, false
}

type document struct {
	width, height float64
	vbX, vbY      float64
	vbSX, vbSY    float64
}

// parseDocument reads the root element's size. It fails on malformed XML or
// a non-svg root.
func parseDocument(src string) (*document, error) {
	dec := xml.NewDecoder(strings.NewReader(src))
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if start.Name.Local != "svg" {
			return nil, errors.New(errors.PhaseCall, errors.KindParse).
				Detail("root element is <%s>", start.Name.Local).
				Build()
		}

		d := &document{vbSX: 1, vbSY: 1}
		vb, hasVB := parseViewBox(attr(start, "viewBox"))
		d.width = length(attr(start, "width"), 0)
		d.height = length(attr(start, "height"), 0)
		if d.width == 0 {
			d.width = defaultSize
			if hasVB {
				d.width = vb[2]
			}
		}
		if d.height == 0 {
			d.height = defaultSize
			if hasVB {
				d.height = vb[3]
			}
		}
		if hasVB {
			d.vbX, d.vbY = vb[0], vb[1]
			d.vbSX, d.vbSY = d.width/vb[2], d.height/vb[3]
		}
		if d.width <= 0 || d.height <= 0 {
			return nil, errors.New(errors.PhaseCall, errors.KindParse).Detail("empty document size").Build()
		}
		return d, nil
	}
}

func parseViewBox(s string) ([4]float64, bool) {
	var vb [4]float64
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == ' ' || r == ',' })
	if len(parts) != 4 {
		return vb, false
	}
	for i, p := range parts {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return vb, false
		}
		vb[i] = v
	}
	return vb, vb[2] > 0 && vb[3] > 0
}

func attr(e xml.StartElement, name string) string {
	for _, a := range e.Attr {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

func length(s string, def float64) float64 {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "px"))
	if s == "" {
		return def
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return def
	}
	return v
}

type style struct {
	family string
	size   float64
	fill   color.NRGBA
	noFill bool
}

type rasterizer struct {
	img       *image.NRGBA
	doc       *document
	overrides map[string]string
	fonts     []loadedFont
	sx, sy    float64
}

func (r *rasterizer) toPixel(x, y float64) (float64, float64) {
	return (x - r.doc.vbX) * r.doc.vbSX * r.sx, (y - r.doc.vbY) * r.doc.vbSY * r.sy
}

func (r *rasterizer) run(src string) error {
	dec := xml.NewDecoder(strings.NewReader(src))
	stack := []style{{family: "Times New Roman", size: defaultFont, fill: color.NRGBA{A: 255}}}
	inText := 0
	var posX, posY float64

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			st := inherit(stack[len(stack)-1], t)
			stack = append(stack, st)

			switch t.Name.Local {
			case "text", "tspan":
				inText++
				if v := attr(t, "x"); v != "" {
					posX = length(v, posX)
				}
				if v := attr(t, "y"); v != "" {
					posY = length(v, posY)
				}
			case "rect":
				r.rect(t, st)
			}

		case xml.EndElement:
			if len(stack) > 1 {
				stack = stack[:len(stack)-1]
			}
			if t.Name.Local == "text" || t.Name.Local == "tspan" {
				inText--
			}

		case xml.CharData:
			if inText == 0 {
				continue
			}
			text := strings.Join(strings.Fields(string(t)), " ")
			if text == "" {
				continue
			}
			posX += r.text(text, posX, posY, stack[len(stack)-1])
		}
	}
}

func inherit(parent style, e xml.StartElement) style {
	st := parent
	if v := attr(e, "font-family"); v != "" {
		st.family = v
	}
	if v := attr(e, "font-size"); v != "" {
		st.size = length(v, st.size)
	}
	if v := attr(e, "fill"); v != "" {
		if v == "none" {
			st.noFill = true
		} else if c, ok := ParseColor(v); ok {
			st.fill, st.noFill = c, false
		}
	}
	return st
}

func (r *rasterizer) rect(e xml.StartElement, st style) {
	if st.noFill {
		return
	}
	x0, y0 := r.toPixel(length(attr(e, "x"), 0), length(attr(e, "y"), 0))
	x1, y1 := r.toPixel(
		length(attr(e, "x"), 0)+length(attr(e, "width"), 0),
		length(attr(e, "y"), 0)+length(attr(e, "height"), 0),
	)
	rect := image.Rect(int(math.Round(x0)), int(math.Round(y0)), int(math.Round(x1)), int(math.Round(y1)))
	draw.Draw(r.img, rect, image.NewUniform(st.fill), image.Point{}, draw.Over)
}

// resolve picks the first loaded font matching the family list, mapping
// generic families through the overrides.
func (r *rasterizer) resolve(families string) *opentype.Font {
	for _, name := range strings.Split(families, ",") {
		name = strings.Trim(strings.TrimSpace(name), `"'`)
		if mapped, ok := r.overrides[strings.ToLower(name)]; ok {
			name = mapped
		}
		for _, f := range r.fonts {
			if strings.EqualFold(f.family, name) {
				return f.font
			}
		}
	}
	return nil
}

// text draws s with its baseline start at (x, y) in user units and returns
// the advance in user units.
func (r *rasterizer) text(s string, x, y float64, st style) float64 {
	f := r.resolve(st.family)
	if f == nil || st.noFill {
		return 0
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    st.size * r.doc.vbSY * r.sy,
		DPI:     72,
		Hinting: font.HintingNone,
	})
	if err != nil {
		return 0
	}
	defer face.Close()

	px, py := r.toPixel(x, y)
	d := &font.Drawer{
		Dst:  r.img,
		Src:  image.NewUniform(st.fill),
		Face: face,
		Dot:  fixed.Point26_6{X: fixed.Int26_6(px * 64), Y: fixed.Int26_6(py * 64)},
	}
	adv := d.MeasureString(s)
	d.DrawString(s)

	scale := r.doc.vbSX * r.sx
	if scale == 0 {
		return 0
	}
	return float64(adv) / 64 / scale
}
