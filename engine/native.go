//go:build cgo && resvg_native

package engine

/*
#cgo LDFLAGS: -lresvg_wrapper
#cgo linux LDFLAGS: -lm -ldl -lpthread

#include <stdbool.h>
#include <stddef.h>
#include <stdint.h>
#include <stdlib.h>

typedef struct {
	int32_t width;
	int32_t height;
	float zoom;
	int32_t dpi;
	bool skip_system_fonts;
	const char *background;
	const char *export_id;
	bool export_area_page;
	bool export_area_drawing;
	const char *resources_dir;
	const uint8_t *const *fonts;
	const size_t *font_lens;
	size_t font_count;
	const char *font_file;
	const char *font_dir;
	const char *serif_family;
	const char *sans_serif_family;
	const char *cursive_family;
	const char *fantasy_family;
	const char *monospace_family;
} RenderOptions;

int32_t render_svg_to_png_with_options(const char *svg, const RenderOptions *opts, uint8_t **out_buf, size_t *out_len);
void free_png_buffer(uint8_t *buf, size_t len);
*/
import "C"

import (
	"context"
	"fmt"
	"sync"
	"unsafe"

	resvgruntime "github.com/wippyai/resvg-runtime"
	rterrors "github.com/wippyai/resvg-runtime/errors"
	"github.com/wippyai/resvg-runtime/layout"
)

// cOffsets are the RenderOptions offsets as laid out by the C compiler.
var cOffsets = map[string]uintptr{
	layout.FieldWidth:             unsafe.Offsetof(C.RenderOptions{}.width),
	layout.FieldHeight:            unsafe.Offsetof(C.RenderOptions{}.height),
	layout.FieldZoom:              unsafe.Offsetof(C.RenderOptions{}.zoom),
	layout.FieldDPI:               unsafe.Offsetof(C.RenderOptions{}.dpi),
	layout.FieldSkipSystemFonts:   unsafe.Offsetof(C.RenderOptions{}.skip_system_fonts),
	layout.FieldBackground:        unsafe.Offsetof(C.RenderOptions{}.background),
	layout.FieldExportID:          unsafe.Offsetof(C.RenderOptions{}.export_id),
	layout.FieldExportAreaPage:    unsafe.Offsetof(C.RenderOptions{}.export_area_page),
	layout.FieldExportAreaDrawing: unsafe.Offsetof(C.RenderOptions{}.export_area_drawing),
	layout.FieldResourcesDir:      unsafe.Offsetof(C.RenderOptions{}.resources_dir),
	layout.FieldFonts:             unsafe.Offsetof(C.RenderOptions{}.fonts),
	layout.FieldFontLens:          unsafe.Offsetof(C.RenderOptions{}.font_lens),
	layout.FieldFontCount:         unsafe.Offsetof(C.RenderOptions{}.font_count),
	layout.FieldFontFile:          unsafe.Offsetof(C.RenderOptions{}.font_file),
	layout.FieldFontDir:           unsafe.Offsetof(C.RenderOptions{}.font_dir),
	layout.FieldSerifFamily:       unsafe.Offsetof(C.RenderOptions{}.serif_family),
	layout.FieldSansSerifFamily:   unsafe.Offsetof(C.RenderOptions{}.sans_serif_family),
	layout.FieldCursiveFamily:     unsafe.Offsetof(C.RenderOptions{}.cursive_family),
	layout.FieldFantasyFamily:     unsafe.Offsetof(C.RenderOptions{}.fantasy_family),
	layout.FieldMonospaceFamily:   unsafe.Offsetof(C.RenderOptions{}.monospace_family),
}

// CheckNativeLayout compares layout.For(Host) against the C compiler's.
func CheckNativeLayout() error {
	l, err := layout.For(resvgruntime.Host)
	if err != nil {
		return err
	}
	if size := uint64(unsafe.Sizeof(C.RenderOptions{})); size != l.Size {
		return rterrors.Load(fmt.Sprintf("RenderOptions size %d, C has %d", l.Size, size), nil)
	}
	for _, f := range layout.Fields {
		off, _ := l.Offset(f.Name)
		if want := uint64(cOffsets[f.Name]); off != want {
			return rterrors.Load(fmt.Sprintf("RenderOptions.%s at %d, C has %d", f.Name, off, want), nil)
		}
	}
	return nil
}

// NativeEngine calls the wrapper library linked into this process.
// The library holds no per-call state, so one instance serves every caller.
type NativeEngine struct {
	inst   *NativeInstance
	mu     sync.RWMutex
	closed bool
}

// NewNativeEngine verifies the block layout and returns the engine.
func NewNativeEngine() (*NativeEngine, error) {
	if err := CheckNativeLayout(); err != nil {
		return nil, err
	}
	return &NativeEngine{inst: &NativeInstance{}}, nil
}

func (e *NativeEngine) Platform() resvgruntime.Platform {
	return resvgruntime.Host
}

func (e *NativeEngine) Acquire(ctx context.Context) (resvgruntime.Instance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return nil, rterrors.Closed("native engine")
	}
	return e.inst, nil
}

func (e *NativeEngine) Release(resvgruntime.Instance) {}

func (e *NativeEngine) Close(context.Context) error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	return nil
}

// NativeInstance addresses process memory; engine addresses are C pointers.
type NativeInstance struct{}

func (i *NativeInstance) Platform() resvgruntime.Platform {
	return resvgruntime.Host
}

func (i *NativeInstance) Memory() resvgruntime.Memory {
	return nativeMemory{}
}

func (i *NativeInstance) Allocator() resvgruntime.Allocator {
	return nativeAllocator{}
}

func (i *NativeInstance) Render(_ context.Context, svg, opts, outBuf, outLen uint64) (int32, error) {
	status := C.render_svg_to_png_with_options(
		(*C.char)(ptr(svg)),
		(*C.RenderOptions)(ptr(opts)),
		(**C.uint8_t)(ptr(outBuf)),
		(*C.size_t)(ptr(outLen)))
	return int32(status), nil
}

func (i *NativeInstance) FreeOutput(_ context.Context, buf, length uint64) error {
	C.free_png_buffer((*C.uint8_t)(ptr(buf)), C.size_t(length))
	return nil
}

// ptr converts a C address held as an integer. Every address passed here
// comes from C.malloc or the wrapper and is outside the Go heap.
func ptr(addr uint64) unsafe.Pointer {
	return unsafe.Pointer(uintptr(addr)) //nolint:govet
}

type nativeAllocator struct{}

func (nativeAllocator) Alloc(size, _ uint64) (uint64, error) {
	// malloc alignment covers every field of the block.
	p := C.malloc(C.size_t(size))
	if p == nil {
		return 0, fmt.Errorf("malloc(%d) returned NULL", size)
	}
	return uint64(uintptr(p)), nil
}

func (nativeAllocator) Free(addr, _, _ uint64) {
	if addr != 0 {
		C.free(ptr(addr))
	}
}

type nativeMemory struct{}

func (nativeMemory) bytes(addr, length uint64) ([]byte, error) {
	if addr == 0 {
		return nil, fmt.Errorf("memory access at NULL, length=%d", length)
	}
	return unsafe.Slice((*byte)(ptr(addr)), length), nil
}

func (m nativeMemory) Read(addr, length uint64) ([]byte, error) {
	if length == 0 {
		return nil, nil
	}
	return m.bytes(addr, length)
}

func (m nativeMemory) Write(addr uint64, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	dst, err := m.bytes(addr, uint64(len(data)))
	if err != nil {
		return err
	}
	copy(dst, data)
	return nil
}

func (m nativeMemory) ReadU8(addr uint64) (uint8, error) {
	b, err := m.bytes(addr, 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (m nativeMemory) ReadU32(addr uint64) (uint32, error) {
	if _, err := m.bytes(addr, 4); err != nil {
		return 0, err
	}
	return *(*uint32)(ptr(addr)), nil
}

func (m nativeMemory) ReadU64(addr uint64) (uint64, error) {
	if _, err := m.bytes(addr, 8); err != nil {
		return 0, err
	}
	return *(*uint64)(ptr(addr)), nil
}

func (m nativeMemory) WriteU8(addr uint64, value uint8) error {
	b, err := m.bytes(addr, 1)
	if err != nil {
		return err
	}
	b[0] = value
	return nil
}

func (m nativeMemory) WriteU32(addr uint64, value uint32) error {
	if _, err := m.bytes(addr, 4); err != nil {
		return err
	}
	*(*uint32)(ptr(addr)) = value
	return nil
}

func (m nativeMemory) WriteU64(addr uint64, value uint64) error {
	if _, err := m.bytes(addr, 8); err != nil {
		return err
	}
	*(*uint64)(ptr(addr)) = value
	return nil
}
