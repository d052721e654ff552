package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	resvgruntime "github.com/wippyai/resvg-runtime"
	"github.com/wippyai/resvg-runtime/internal/enginetest"
)

// The test guest is a hand-assembled core module. It owns a bump
// allocator over 64 pages of memory and forwards the wrapper exports to
// env.render and env.free_png, which the host implements with the
// reference rasterizer reading and writing guest memory.
//
//	globals: 0 heap top, 1 alloc count, 2 free count, 3 initialized
//	malloc(size) resets the heap top whenever every allocation was freed.
//	cabi_realloc(old, old_size, align, new_size) and allocate(size, align)
//	wrap malloc and free for the other allocator shapes.

const (
	guestHeapBase = 1024
	guestPages    = 64

	i32 = 0x7f
)

// Function indices. Imports come first.
const (
	fnEnvRender = iota
	fnEnvFreePNG
	fnMalloc
	fnFree
	fnRender
	fnFreePNG
	fnAllocCount
	fnFreeCount
	fnInitialize
	fnInitialized
	fnRealloc
	fnAllocate
)

// Allocator export sets for the test guest.
const (
	guestMalloc   = iota // malloc(size) + free(ptr)
	guestRealloc         // cabi_realloc only
	guestAllocate        // allocate(size, align) + free(ptr)
)

type guestOptions struct {
	omit map[string]bool
	// renderIndex overrides the function exported as the render entry point.
	renderIndex int
	allocator   int
}

func uleb(v uint64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			out = append(out, b|0x80)
			continue
		}
		return append(out, b)
	}
}

func sleb(v int64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			return append(out, b)
		}
		out = append(out, b|0x80)
	}
}

func wasmName(s string) []byte {
	return append(uleb(uint64(len(s))), s...)
}

func wasmVec(items ...[]byte) []byte {
	out := uleb(uint64(len(items)))
	for _, it := range items {
		out = append(out, it...)
	}
	return out
}

func wasmSection(id byte, items ...[]byte) []byte {
	body := wasmVec(items...)
	return append(append([]byte{id}, uleb(uint64(len(body)))...), body...)
}

func funcType(params, results int) []byte {
	p := make([][]byte, params)
	for i := range p {
		p[i] = []byte{i32}
	}
	r := make([][]byte, results)
	for i := range r {
		r[i] = []byte{i32}
	}
	return append(append([]byte{0x60}, wasmVec(p...)...), wasmVec(r...)...)
}

func funcBody(code ...byte) []byte {
	body := append([]byte{0x00}, code...) // no locals
	return append(uleb(uint64(len(body))), body...)
}

func cat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func buildGuest(opts guestOptions) []byte {
	types := wasmSection(1,
		funcType(4, 1), // 0 render
		funcType(2, 0), // 1 free_png
		funcType(1, 1), // 2 malloc
		funcType(1, 0), // 3 free
		funcType(0, 1), // 4 getter
		funcType(0, 0), // 5 _initialize
		funcType(2, 1), // 6 allocate
	)
	imports := wasmSection(2,
		cat(wasmName("env"), wasmName("render"), []byte{0x00, 0}),
		cat(wasmName("env"), wasmName("free_png"), []byte{0x00, 1}),
	)
	funcs := wasmSection(3, []byte{2}, []byte{3}, []byte{0}, []byte{1}, []byte{4}, []byte{4}, []byte{5}, []byte{4}, []byte{0}, []byte{6})
	memory := wasmSection(5, cat([]byte{0x00}, uleb(guestPages)))
	global := []byte{i32, 0x01, 0x41, 0x00, 0x0b}
	globals := wasmSection(6, global, global, global, global)

	renderIndex := fnRender
	if opts.renderIndex != 0 {
		renderIndex = opts.renderIndex
	}
	type export struct {
		name string
		kind byte
		idx  int
	}
	var allocExports []export
	switch opts.allocator {
	case guestRealloc:
		allocExports = []export{{CabiRealloc, 0x00, fnRealloc}}
	case guestAllocate:
		allocExports = []export{{legacyAlloc, 0x00, fnAllocate}, {"free", 0x00, fnFree}}
	default:
		allocExports = []export{{"malloc", 0x00, fnMalloc}, {"free", 0x00, fnFree}}
	}
	exportList := append([]export{{"memory", 0x02, 0}}, allocExports...)
	exportList = append(exportList, []export{
		{ExportRender, 0x00, renderIndex},
		{ExportFreeOutput, 0x00, fnFreePNG},
		{"alloc_count", 0x00, fnAllocCount},
		{"free_count", 0x00, fnFreeCount},
		{exportInitialize, 0x00, fnInitialize},
		{"initialized", 0x00, fnInitialized},
	}...)
	var exports [][]byte
	for _, e := range exportList {
		if opts.omit[e.name] {
			continue
		}
		exports = append(exports, cat(wasmName(e.name), []byte{e.kind}, uleb(uint64(e.idx))))
	}

	malloc := cat(
		// if allocs == frees: top = base
		[]byte{0x23, 1, 0x23, 2, 0x46, 0x04, 0x40, 0x41}, sleb(guestHeapBase), []byte{0x24, 0, 0x0b},
		// allocs++
		[]byte{0x23, 1, 0x41, 1, 0x6a, 0x24, 1},
		// result = top; top = (top + size + 7) & -8
		[]byte{0x23, 0, 0x23, 0, 0x20, 0, 0x6a, 0x41, 7, 0x6a, 0x41}, sleb(-8), []byte{0x71, 0x24, 0},
		[]byte{0x0b},
	)
	code := wasmSection(10,
		funcBody(malloc...),
		// free: if ptr != 0 { frees++ }
		funcBody(0x20, 0, 0x04, 0x40, 0x23, 2, 0x41, 1, 0x6a, 0x24, 2, 0x0b, 0x0b),
		funcBody(0x20, 0, 0x20, 1, 0x20, 2, 0x20, 3, 0x10, fnEnvRender, 0x0b),
		funcBody(0x20, 0, 0x20, 1, 0x10, fnEnvFreePNG, 0x0b),
		funcBody(0x23, 1, 0x0b),
		funcBody(0x23, 2, 0x0b),
		funcBody(0x41, 1, 0x24, 3, 0x0b),
		funcBody(0x23, 3, 0x0b),
		// realloc: new_size == 0 frees old; otherwise old must be 0
		funcBody(
			0x20, 3, 0x45, 0x04, i32,
			0x20, 0, 0x10, fnFree, 0x41, 0,
			0x05,
			0x20, 0, 0x04, 0x40, 0x00, 0x0b,
			0x20, 3, 0x10, fnMalloc,
			0x0b,
			0x0b,
		),
		// allocate: traps on a zero align
		funcBody(0x20, 1, 0x45, 0x04, 0x40, 0x00, 0x0b, 0x20, 0, 0x10, fnMalloc, 0x0b),
	)

	return cat(
		[]byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00},
		types, imports, funcs, memory, globals, wasmSection(7, exports...), code,
	)
}

// guestHost implements the env imports of the test guest.
type guestHost struct {
	outputs    map[outputKey]uint32
	calls      []*enginetest.Call
	violations []string
	mu         sync.Mutex
	// Status, when non-zero, is returned after decoding instead of rendering.
	Status  atomic.Int32
	renders atomic.Int64
	frees   atomic.Int64
}

type outputKey struct {
	mod  api.Module
	addr uint32
}

func newGuestHost() *guestHost {
	return &guestHost{outputs: make(map[outputKey]uint32)}
}

func (h *guestHost) module() HostModule {
	return func(ctx context.Context, r wazero.Runtime) error {
		_, err := r.NewHostModuleBuilder("env").
			NewFunctionBuilder().WithFunc(h.render).Export("render").
			NewFunctionBuilder().WithFunc(h.freePNG).Export("free_png").
			Instantiate(ctx)
		return err
	}
}

func (h *guestHost) render(ctx context.Context, mod api.Module, svg, opts, outBuf, outLen uint32) uint32 {
	h.renders.Add(1)
	mem := WrapMemory(mod.Memory())

	call, err := enginetest.Decode(mem, resvgruntime.Wasm32, uint64(svg), uint64(opts))
	if err != nil {
		panic(err)
	}
	if strings.Contains(call.SVG, "<trap/>") {
		panic("guest trap")
	}
	h.mu.Lock()
	h.calls = append(h.calls, call)
	h.mu.Unlock()

	if s := h.Status.Load(); s != 0 {
		return uint32(s)
	}
	png, status := enginetest.Rasterize(call)
	if status != 0 {
		return uint32(status)
	}

	ptr, err := guestAllocator(ctx, mod).Alloc(uint64(len(png)), 1)
	if err != nil {
		panic(err)
	}
	buf := uint32(ptr)
	if err := mem.Write(uint64(buf), png); err != nil {
		panic(err)
	}
	if err := mem.WriteU32(uint64(outBuf), buf); err != nil {
		panic(err)
	}
	if err := mem.WriteU32(uint64(outLen), uint32(len(png))); err != nil {
		panic(err)
	}

	h.mu.Lock()
	h.outputs[outputKey{mod, buf}] = uint32(len(png))
	h.mu.Unlock()
	return 0
}

func (h *guestHost) freePNG(ctx context.Context, mod api.Module, buf, n uint32) {
	h.frees.Add(1)
	if buf == 0 {
		return
	}

	key := outputKey{mod, buf}
	h.mu.Lock()
	want, ok := h.outputs[key]
	delete(h.outputs, key)
	if !ok || want != n {
		h.violations = append(h.violations, fmt.Sprintf("free_png(%#x, %d): returned length %d, known %v", buf, n, want, ok))
	}
	h.mu.Unlock()

	guestAllocator(ctx, mod).Free(uint64(buf), uint64(n), 1)
}

// guestAllocator resolves whichever allocator exports the guest was built
// with, bound to the host call's context.
func guestAllocator(ctx context.Context, mod api.Module) *wazeroAllocator {
	a := resolveAllocator(mod)
	if a == nil {
		panic("guest exports no allocator")
	}
	a.setContext(ctx)
	return a
}

func (h *guestHost) lastCall() *enginetest.Call {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.calls) == 0 {
		return nil
	}
	return h.calls[len(h.calls)-1]
}

func (h *guestHost) problems() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := append([]string(nil), h.violations...)
	for k, n := range h.outputs {
		out = append(out, fmt.Sprintf("output %#x (%d bytes) never freed", k.addr, n))
	}
	return out
}

// guestCounter calls one of the guest's counter exports.
func guestCounter(ctx context.Context, inst *WazeroInstance, name string) uint32 {
	res, err := inst.Module().ExportedFunction(name).Call(ctx)
	if err != nil {
		panic(err)
	}
	return uint32(res[0])
}
