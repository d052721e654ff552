package enginetest

import (
	"bytes"
	"fmt"
	"image/color"
	"image/png"
	"testing"

	"github.com/wippyai/resvg-runtime/errors"
	"golang.org/x/image/font/gofont/goregular"
)

func TestTargetSize(t *testing.T) {
	tests := []struct {
		name          string
		docW, docH    float64
		width, height int32
		zoom          float32
		wantW, wantH  uint32
	}{
		{"document size", 200, 100, -1, -1, 0, 200, 100},
		{"zoom", 200, 100, -1, -1, 2, 400, 200},
		{"zoom wins over size", 200, 100, 50, 50, 0.5, 100, 50},
		{"both dimensions", 200, 100, 30, 40, 0, 30, 40},
		{"width keeps ratio", 200, 100, 100, -1, 0, 100, 50},
		{"height keeps ratio", 200, 100, -1, 300, 0, 600, 300},
		{"explicit zero is unset", 200, 100, 0, 0, 0, 200, 100},
		{"clamp low", 0.2, 0.2, -1, -1, 0, 1, 1},
		{"clamp high", 100, 100, -1, -1, 1000, 16384, 16384},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h := targetSize(tt.docW, tt.docH, tt.width, tt.height, tt.zoom)
			if w != tt.wantW || h != tt.wantH {
				t.Errorf("targetSize = %dx%d, want %dx%d", w, h, tt.wantW, tt.wantH)
			}
		})
	}
}

func TestParseColor(t *testing.T) {
	tests := []struct {
		in   string
		want color.NRGBA
		ok   bool
	}{
		{"red", color.NRGBA{R: 255, A: 255}, true},
		{"white", color.NRGBA{R: 255, G: 255, B: 255, A: 255}, true},
		{"#102030", color.NRGBA{R: 0x10, G: 0x20, B: 0x30, A: 255}, true},
		{"#fa0", color.NRGBA{R: 255, G: 170, B: 0, A: 255}, true},
		{"#12345", color.NRGBA{}, false},
		{"#zzz", color.NRGBA{}, false},
		{"purple", color.NRGBA{}, false},
	}
	for _, tt := range tests {
		got, ok := ParseColor(tt.in)
		if ok != tt.ok || got != tt.want {
			t.Errorf("ParseColor(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestRasterize_Size(t *testing.T) {
	c := &Call{
		SVG:     `<svg xmlns="http://www.w3.org/2000/svg" width="40" height="20"><rect width="40" height="20" fill="#00f"/></svg>`,
		Strings: map[string]string{},
	}
	c.Params.Width, c.Params.Height = -1, -1

	out, status := Rasterize(c)
	if status != errors.StatusOK {
		t.Fatalf("status = %d", status)
	}
	img, err := png.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatal(err)
	}
	if b := img.Bounds(); b.Dx() != 40 || b.Dy() != 20 {
		t.Errorf("size = %v, want 40x20", b)
	}
	if r, g, b, _ := img.At(10, 10).RGBA(); r != 0 || g != 0 || b>>8 != 255 {
		t.Errorf("pixel = %d,%d,%d, want blue", r, g, b)
	}
}

func TestRasterize_Background(t *testing.T) {
	c := &Call{
		SVG:     `<svg xmlns="http://www.w3.org/2000/svg" width="8" height="8"/>`,
		Strings: map[string]string{"background": "red"},
	}
	c.Params.Width, c.Params.Height = -1, -1

	out, status := Rasterize(c)
	if status != errors.StatusOK {
		t.Fatalf("status = %d", status)
	}
	img, _ := png.Decode(bytes.NewReader(out))
	if r, g, _, a := img.At(3, 3).RGBA(); r>>8 != 255 || g != 0 || a>>8 != 255 {
		t.Errorf("background pixel = %d,%d,a=%d, want red", r, g, a)
	}
}

func TestRasterize_Statuses(t *testing.T) {
	tests := []struct {
		name  string
		svg   string
		fonts [][]byte
		want  int32
	}{
		{"malformed", `<svg><text>`, nil, errors.StatusParse},
		{"not svg", `<html/>`, nil, errors.StatusParse},
		{"invalid utf8", "<svg>\xff</svg>", nil, errors.StatusParse},
		{"bad font", `<svg/>`, [][]byte{[]byte("not a font")}, errors.StatusFontLoad},
		{"ok", `<svg/>`, [][]byte{goregular.TTF}, errors.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Call{SVG: tt.svg, Fonts: tt.fonts, Strings: map[string]string{}}
			if _, status := Rasterize(c); status != tt.want {
				t.Errorf("status = %d, want %d", status, tt.want)
			}
		})
	}
}

func TestRasterize_FamilyOverride(t *testing.T) {
	const tmpl = `<svg xmlns="http://www.w3.org/2000/svg" width="120" height="60">` +
		`<text x="4" y="24" font-family="%s" font-size="18">Hello</text>` +
		`<text x="4" y="50" font-family="%s" font-size="18">World</text></svg>`

	render := func(family string, strs map[string]string) []byte {
		t.Helper()
		c := &Call{
			SVG:     fmt.Sprintf(tmpl, family, family),
			Fonts:   [][]byte{goregular.TTF},
			Strings: strs,
		}
		c.Params.Width, c.Params.Height = -1, -1
		out, status := Rasterize(c)
		if status != errors.StatusOK {
			t.Fatalf("status = %d", status)
		}
		return out
	}

	direct := render("Go", map[string]string{})
	mapped := render("sans-serif", map[string]string{"sans_serif_family": "Go"})
	unmapped := render("sans-serif", map[string]string{})

	if !bytes.Equal(direct, mapped) {
		t.Error("sans-serif mapped to Go should render identically to Go")
	}
	if bytes.Equal(direct, unmapped) {
		t.Error("unmapped sans-serif should not find the Go font")
	}
}
