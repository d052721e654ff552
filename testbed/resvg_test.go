package testbed

import (
	"bytes"
	"context"
	"errors"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"

	resvgruntime "github.com/wippyai/resvg-runtime"
	"github.com/wippyai/resvg-runtime/engine"
	rterrors "github.com/wippyai/resvg-runtime/errors"
	"github.com/wippyai/resvg-runtime/render"
)

// Environment overrides for the testdata files.
const (
	wasmEnv = "RESVG_WASM"
	fontEnv = "RESVG_TEST_FONT"
)

const squareSVG = `<svg xmlns="http://www.w3.org/2000/svg" width="64" height="32" viewBox="0 0 64 32">
  <rect x="8" y="8" width="48" height="16" fill="#3366ff"/>
</svg>`

func twoLineSVG(family string) string {
	return `<svg xmlns="http://www.w3.org/2000/svg" width="240" height="80" viewBox="0 0 240 80">
  <text x="10" y="30" font-family="` + family + `" font-size="24">Hello, resvg</text>
  <text x="10" y="64" font-family="` + family + `" font-size="24">Second line</text>
</svg>`
}

func testdata(t *testing.T, env, name string) []byte {
	t.Helper()
	path := os.Getenv(env)
	if path == "" {
		path = filepath.Join("testdata", name)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Skipf("%s not found (set $%s): %v", name, env, err)
	}
	return data
}

func newRenderer(t *testing.T, cfg *engine.Config) *render.Renderer {
	t.Helper()
	ctx := context.Background()
	wasm := testdata(t, wasmEnv, "resvg_wrapper.wasm")

	eng, err := engine.NewWazeroEngine(ctx, wasm, cfg)
	if err != nil {
		t.Fatalf("load resvg wrapper: %v", err)
	}
	t.Cleanup(func() {
		if err := eng.Close(ctx); err != nil {
			t.Errorf("close engine: %v", err)
		}
	})
	return render.New(eng)
}

func decodeSize(t *testing.T, data []byte) (int, int) {
	t.Helper()
	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("output is not a PNG: %v", err)
	}
	return cfg.Width, cfg.Height
}

func TestResvg_Deterministic(t *testing.T) {
	r := newRenderer(t, nil)
	ctx := context.Background()

	first, err := r.RenderToPNG(ctx, squareSVG, resvgruntime.DefaultOptions())
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	second, err := r.RenderToPNG(ctx, squareSVG, resvgruntime.DefaultOptions())
	if err != nil {
		t.Fatalf("render again: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Error("same input rendered different bytes")
	}
	if w, h := decodeSize(t, first); w != 64 || h != 32 {
		t.Errorf("size = %dx%d, want 64x32", w, h)
	}
}

func TestResvg_Sizing(t *testing.T) {
	r := newRenderer(t, nil)

	tests := []struct {
		name  string
		opts  func(*resvgruntime.Options)
		wantW int
		wantH int
	}{
		{"width keeps aspect", func(o *resvgruntime.Options) { o.Width = resvgruntime.Ptr[int32](128) }, 128, 64},
		{"height keeps aspect", func(o *resvgruntime.Options) { o.Height = resvgruntime.Ptr[int32](16) }, 32, 16},
		{"zoom", func(o *resvgruntime.Options) { o.Zoom = resvgruntime.Ptr[float32](2) }, 128, 64},
		{"zoom beats width", func(o *resvgruntime.Options) {
			o.Width = resvgruntime.Ptr[int32](500)
			o.Zoom = resvgruntime.Ptr[float32](0.5)
		}, 32, 16},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := resvgruntime.DefaultOptions()
			tt.opts(opts)
			out, err := r.RenderToPNG(context.Background(), squareSVG, opts)
			if err != nil {
				t.Fatalf("render: %v", err)
			}
			if w, h := decodeSize(t, out); w != tt.wantW || h != tt.wantH {
				t.Errorf("size = %dx%d, want %dx%d", w, h, tt.wantW, tt.wantH)
			}
		})
	}
}

func TestResvg_Errors(t *testing.T) {
	r := newRenderer(t, nil)
	ctx := context.Background()

	_, err := r.RenderToPNG(ctx, "<svg", resvgruntime.DefaultOptions())
	if !errors.Is(err, rterrors.ErrParse) {
		t.Errorf("malformed document: err = %v, want ErrParse", err)
	}

	_, err = r.RenderToPNG(ctx, "", resvgruntime.DefaultOptions())
	if !errors.Is(err, rterrors.ErrInvalidArgument) {
		t.Errorf("empty document: err = %v, want ErrInvalidArgument", err)
	}

	opts := resvgruntime.DefaultOptions()
	opts.Fonts = [][]byte{{}}
	_, err = r.RenderToPNG(ctx, squareSVG, opts)
	if !errors.Is(err, rterrors.ErrFontLoad) {
		t.Errorf("empty font: err = %v, want ErrFontLoad", err)
	}

	// The instance survives failed renders.
	if _, err := r.RenderToPNG(ctx, squareSVG, resvgruntime.DefaultOptions()); err != nil {
		t.Errorf("render after failures: %v", err)
	}
}

func TestResvg_FamilyOverride(t *testing.T) {
	r := newRenderer(t, nil)
	inter := testdata(t, fontEnv, "Inter-Regular.ttf")
	ctx := context.Background()

	opts := resvgruntime.DefaultOptions()
	opts.SkipSystemFonts = true
	opts.Fonts = [][]byte{inter}

	direct, err := r.RenderToPNG(ctx, twoLineSVG("Inter"), opts)
	if err != nil {
		t.Fatalf("render Inter: %v", err)
	}

	override := opts.Clone()
	override.SansSerifFamily = "Inter"
	generic, err := r.RenderToPNG(ctx, twoLineSVG("sans-serif"), override)
	if err != nil {
		t.Fatalf("render sans-serif: %v", err)
	}

	if !bytes.Equal(direct, generic) {
		t.Error("sans-serif mapped to Inter differs from Inter used directly")
	}
}

func TestResvg_ResourcesDirMount(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "inner.svg"), []byte(squareSVG), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg := engine.DefaultConfig()
	cfg.Mounts = []engine.Mount{{HostDir: dir, GuestDir: "/res", ReadOnly: true}}
	r := newRenderer(t, cfg)

	doc := `<svg xmlns="http://www.w3.org/2000/svg" xmlns:xlink="http://www.w3.org/1999/xlink" width="64" height="32">
  <image href="inner.svg" width="64" height="32"/>
</svg>`
	opts := resvgruntime.DefaultOptions()
	opts.ResourcesDir = "/res"
	withImage, err := r.RenderToPNG(context.Background(), doc, opts)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	blank, err := r.RenderToPNG(context.Background(), `<svg xmlns="http://www.w3.org/2000/svg" width="64" height="32"/>`, resvgruntime.DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(withImage, blank) {
		t.Error("image from mounted resources dir was not drawn")
	}
}

func TestResvg_Concurrent(t *testing.T) {
	cfg := engine.DefaultConfig()
	cfg.PoolSize = 4
	r := newRenderer(t, cfg)
	ctx := context.Background()

	want, err := r.RenderToPNG(ctx, squareSVG, resvgruntime.DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 32)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := r.RenderToPNG(ctx, squareSVG, resvgruntime.DefaultOptions())
			if err != nil {
				errs <- err
				return
			}
			if !bytes.Equal(got, want) {
				errs <- errors.New("concurrent render differs")
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}
