package resvgruntime

import (
	"math/bits"
	"testing"
)

func TestDefaultOptions(t *testing.T) {
	o := DefaultOptions()
	if o.DPI != DefaultDPI || !o.DrawingArea() {
		t.Errorf("DefaultOptions = %+v", o)
	}
	if o.Width != nil || o.Height != nil || o.Zoom != nil {
		t.Error("sizes should be unset")
	}
	if DefaultOptions() == o {
		t.Error("DefaultOptions must return a fresh value")
	}
}

func TestOptions_Clone(t *testing.T) {
	font := []byte{1, 2, 3}
	o := &Options{
		Width:           Ptr[int32](10),
		Zoom:            Ptr[float32](2),
		Fonts:           [][]byte{font},
		SansSerifFamily: "Inter",
	}
	c := o.Clone()

	*c.Width = 20
	*c.Zoom = 3
	c.Fonts[0] = nil
	c.SansSerifFamily = "Go"

	if *o.Width != 10 || *o.Zoom != 2 {
		t.Errorf("clone shares size pointers: %d %g", *o.Width, *o.Zoom)
	}
	if o.Fonts[0] == nil {
		t.Error("clone shares the font list")
	}
	if o.SansSerifFamily != "Inter" {
		t.Error("clone changed original family")
	}
	if c.Height != nil {
		t.Error("nil Height became set")
	}

	var nilOpts *Options
	if nilOpts.Clone() != nil {
		t.Error("nil Clone should be nil")
	}
}

func TestPtr(t *testing.T) {
	p := Ptr[int32](0)
	if p == nil || *p != 0 {
		t.Errorf("Ptr(0) = %v", p)
	}
	a, b := Ptr(1), Ptr(1)
	if a == b {
		t.Error("Ptr must allocate each call")
	}
}

func TestPlatforms(t *testing.T) {
	if Wasm32.PointerSize != 4 || Wasm32.SizeSize != 4 {
		t.Errorf("Wasm32 = %+v", Wasm32)
	}
	if Host.PointerSize != bits.UintSize/8 {
		t.Errorf("Host = %+v", Host)
	}
}
