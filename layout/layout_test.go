package layout_test

import (
	"math"
	"testing"

	resvgruntime "github.com/wippyai/resvg-runtime"
	"github.com/wippyai/resvg-runtime/errors"
	"github.com/wippyai/resvg-runtime/internal/enginetest"
	"github.com/wippyai/resvg-runtime/layout"
)

var wide = resvgruntime.Platform{Name: "amd64", PointerSize: 8, SizeSize: 8}

func TestCalculate_Offsets(t *testing.T) {
	tests := []struct {
		field  string
		wasm32 uint64
		wide   uint64
	}{
		{layout.FieldWidth, 0, 0},
		{layout.FieldHeight, 4, 4},
		{layout.FieldZoom, 8, 8},
		{layout.FieldDPI, 12, 12},
		{layout.FieldSkipSystemFonts, 16, 16},
		{layout.FieldBackground, 20, 24},
		{layout.FieldExportID, 24, 32},
		{layout.FieldExportAreaPage, 28, 40},
		{layout.FieldExportAreaDrawing, 29, 41},
		{layout.FieldResourcesDir, 32, 48},
		{layout.FieldFonts, 36, 56},
		{layout.FieldFontLens, 40, 64},
		{layout.FieldFontCount, 44, 72},
		{layout.FieldFontFile, 48, 80},
		{layout.FieldFontDir, 52, 88},
		{layout.FieldSerifFamily, 56, 96},
		{layout.FieldSansSerifFamily, 60, 104},
		{layout.FieldCursiveFamily, 64, 112},
		{layout.FieldFantasyFamily, 68, 120},
		{layout.FieldMonospaceFamily, 72, 128},
	}

	small, err := layout.Calculate(resvgruntime.Wasm32)
	if err != nil {
		t.Fatalf("Calculate(wasm32): %v", err)
	}
	big, err := layout.Calculate(wide)
	if err != nil {
		t.Fatalf("Calculate(amd64): %v", err)
	}

	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			if got, ok := small.Offset(tt.field); !ok || got != tt.wasm32 {
				t.Errorf("wasm32 offset = %d (%v), want %d", got, ok, tt.wasm32)
			}
			if got, ok := big.Offset(tt.field); !ok || got != tt.wide {
				t.Errorf("amd64 offset = %d (%v), want %d", got, ok, tt.wide)
			}
		})
	}

	if small.Size != 76 || small.Align != 4 {
		t.Errorf("wasm32 size/align = %d/%d, want 76/4", small.Size, small.Align)
	}
	if big.Size != 136 || big.Align != 8 {
		t.Errorf("amd64 size/align = %d/%d, want 136/8", big.Size, big.Align)
	}
}

func TestCalculate_MixedWidths(t *testing.T) {
	// 32-bit pointers with a 64-bit size_t moves font_count and everything
	// after it.
	l, err := layout.Calculate(resvgruntime.Platform{Name: "mixed", PointerSize: 4, SizeSize: 8})
	if err != nil {
		t.Fatal(err)
	}
	if off, _ := l.Offset(layout.FieldFontCount); off != 48 {
		t.Errorf("font_count offset = %d, want 48", off)
	}
	if off, _ := l.Offset(layout.FieldFontFile); off != 56 {
		t.Errorf("font_file offset = %d, want 56", off)
	}
	if l.Size != 80 || l.Align != 8 {
		t.Errorf("size/align = %d/%d, want 80/8", l.Size, l.Align)
	}
}

func TestCalculate_RejectsBadWidths(t *testing.T) {
	for _, p := range []resvgruntime.Platform{
		{Name: "zero"},
		{Name: "odd", PointerSize: 2, SizeSize: 4},
		{Name: "huge", PointerSize: 8, SizeSize: 16},
	} {
		if _, err := layout.Calculate(p); err == nil {
			t.Errorf("Calculate(%s) should fail", p.Name)
		}
	}
}

func TestFor_Cached(t *testing.T) {
	a, err := layout.For(resvgruntime.Wasm32)
	if err != nil {
		t.Fatal(err)
	}
	b, err := layout.For(resvgruntime.Wasm32)
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Error("For should return the cached layout")
	}
}

func TestEncodeDecode(t *testing.T) {
	for _, p := range []resvgruntime.Platform{resvgruntime.Wasm32, wide} {
		t.Run(p.Name, func(t *testing.T) {
			l, err := layout.For(p)
			if err != nil {
				t.Fatal(err)
			}
			heap := enginetest.NewHeap(p, 4096)
			addr, err := heap.Alloc(l.Size, l.Align)
			if err != nil {
				t.Fatal(err)
			}

			in := &layout.Params{
				Width:             -1,
				Height:            600,
				Zoom:              1.5,
				DPI:               96,
				SkipSystemFonts:   true,
				Background:        0x100,
				ExportAreaDrawing: true,
				Fonts:             0x200,
				FontLens:          0x240,
				FontCount:         3,
				SansSerifFamily:   0x300,
			}
			if err := l.Encode(heap, addr, in); err != nil {
				t.Fatalf("Encode: %v", err)
			}

			out, err := l.Decode(heap, addr)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if *out != *in {
				t.Errorf("Decode = %+v, want %+v", *out, *in)
			}

			zoomOff, _ := l.Offset(layout.FieldZoom)
			bits, _ := heap.ReadU32(addr + zoomOff)
			if math.Float32frombits(bits) != 1.5 {
				t.Errorf("zoom bits = %#x", bits)
			}
			skipOff, _ := l.Offset(layout.FieldSkipSystemFonts)
			if b, _ := heap.ReadU8(addr + skipOff); b != 1 {
				t.Errorf("skip_system_fonts = %d, want 1", b)
			}
			// Padding after the bool must be zero.
			bgOff, _ := l.Offset(layout.FieldBackground)
			pad, _ := heap.Read(addr+skipOff+1, bgOff-skipOff-1)
			for i, b := range pad {
				if b != 0 {
					t.Errorf("padding byte %d = %#x", i, b)
				}
			}
		})
	}
}

func TestEncode_Overflow(t *testing.T) {
	l, err := layout.For(resvgruntime.Wasm32)
	if err != nil {
		t.Fatal(err)
	}
	heap := enginetest.NewHeap(resvgruntime.Wasm32, 4096)
	addr, _ := heap.Alloc(l.Size, l.Align)

	p := layout.NewParams()
	p.Background = 1 << 33
	err = l.Encode(heap, addr, p)
	if err == nil {
		t.Fatal("expected overflow error")
	}
	if errors.KindOf(err) != errors.KindOverflow {
		t.Errorf("kind = %v, want overflow", errors.KindOf(err))
	}
}

func TestEncode_OutOfBounds(t *testing.T) {
	l, _ := layout.For(resvgruntime.Wasm32)
	heap := enginetest.NewHeap(resvgruntime.Wasm32, 64)

	err := l.Encode(heap, 1<<20, layout.NewParams())
	if !errors.IsFault(err) {
		t.Errorf("Encode past end = %v, want a fault", err)
	}
}

func TestNewParams(t *testing.T) {
	p := layout.NewParams()
	if p.Width != -1 || p.Height != -1 {
		t.Errorf("dimensions = %d/%d, want -1/-1", p.Width, p.Height)
	}
	if p.Zoom != 0 {
		t.Errorf("zoom = %v, want 0", p.Zoom)
	}
}

func TestReadCString(t *testing.T) {
	heap := enginetest.NewHeap(resvgruntime.Wasm32, 4096)
	long := make([]byte, 700)
	for i := range long {
		long[i] = 'a' + byte(i%26)
	}

	tests := []struct {
		name string
		data []byte
		want string
		ok   bool
	}{
		{"empty", []byte{0}, "", true},
		{"short", []byte("Inter\x00"), "Inter", true},
		{"spans chunks", append(append([]byte{}, long...), 0), string(long), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addr, err := heap.Alloc(uint64(len(tt.data)), 1)
			if err != nil {
				t.Fatal(err)
			}
			if err := heap.Write(addr, tt.data); err != nil {
				t.Fatal(err)
			}
			got, ok, err := layout.ReadCString(heap, addr, 1<<16)
			if err != nil {
				t.Fatalf("ReadCString: %v", err)
			}
			if got != tt.want || ok != tt.ok {
				t.Errorf("ReadCString = %q, %v; want %q, %v", got, ok, tt.want, tt.ok)
			}
		})
	}

	t.Run("null", func(t *testing.T) {
		got, ok, err := layout.ReadCString(heap, 0, 16)
		if err != nil || ok || got != "" {
			t.Errorf("ReadCString(0) = %q, %v, %v", got, ok, err)
		}
	})

	t.Run("unterminated", func(t *testing.T) {
		addr, _ := heap.Alloc(8, 1)
		_ = heap.Write(addr, []byte("abcdefgh"))
		if _, _, err := layout.ReadCString(heap, addr, 8); err == nil {
			t.Error("expected error for unterminated string")
		}
	})
}

func TestReadWords(t *testing.T) {
	heap := enginetest.NewHeap(wide, 256)
	addr, _ := heap.Alloc(24, 8)
	for i, v := range []uint64{7, 1 << 40, 9} {
		if err := layout.WriteWord(heap, addr+uint64(i)*8, 8, v); err != nil {
			t.Fatal(err)
		}
	}
	got, err := layout.ReadWords(heap, addr, 8, 3)
	if err != nil {
		t.Fatal(err)
	}
	if got[0] != 7 || got[1] != 1<<40 || got[2] != 9 {
		t.Errorf("ReadWords = %v", got)
	}
}

func TestFitsWord(t *testing.T) {
	tests := []struct {
		v     uint64
		width uint64
		want  bool
	}{
		{0, 1, true},
		{255, 1, true},
		{256, 1, false},
		{math.MaxUint32, 4, true},
		{math.MaxUint32 + 1, 4, false},
		{math.MaxUint64, 8, true},
	}
	for _, tt := range tests {
		if got := layout.FitsWord(tt.v, tt.width); got != tt.want {
			t.Errorf("FitsWord(%d, %d) = %v, want %v", tt.v, tt.width, got, tt.want)
		}
	}
}

func TestOffset_UnknownField(t *testing.T) {
	l, err := layout.For(resvgruntime.Wasm32)
	if err != nil {
		t.Fatal(err)
	}
	if off, ok := l.Offset("stroke_width"); ok || off != 0 {
		t.Errorf("Offset(stroke_width) = %d, %v; want 0, false", off, ok)
	}
	var prev uint64
	for i, f := range layout.Fields {
		off, ok := l.Offset(f.Name)
		if !ok {
			t.Fatalf("Offset(%s) missing", f.Name)
		}
		if i > 0 && off <= prev {
			t.Errorf("%s at %d, not after previous field at %d", f.Name, off, prev)
		}
		prev = off
	}
}
