package enginetest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	resvgruntime "github.com/wippyai/resvg-runtime"
	"github.com/wippyai/resvg-runtime/errors"
	"github.com/wippyai/resvg-runtime/layout"
)

// Engine is an in-process engine implementing the native contract in Go.
// All instances share one Heap, like a native library sharing process memory.
type Engine struct {
	heap    *Heap
	outputs map[uint64]uint64
	calls   []*Call
	plat    resvgruntime.Platform

	// Status, when non-zero, is returned by every Render without rendering.
	Status int32
	// CallErr, when set, is returned by every Render as a call fault.
	CallErr error
	// NullOutput makes a successful Render leave the output slots zeroed.
	NullOutput bool
	// OnRender runs with the decoded call before rasterizing.
	OnRender func(*Call)

	acquires    atomic.Int64
	releases    atomic.Int64
	renders     atomic.Int64
	freeOutputs atomic.Int64

	mu     sync.Mutex
	closed bool
}

// New returns an engine for plat with an empty heap.
func New(plat resvgruntime.Platform) *Engine {
	return &Engine{
		heap:    NewHeap(plat, 1<<20),
		outputs: make(map[uint64]uint64),
		plat:    plat,
	}
}

func (e *Engine) Heap() *Heap { return e.heap }

// Acquires returns the number of successful Acquire calls.
func (e *Engine) Acquires() int64 { return e.acquires.Load() }

// Releases returns the number of Release calls.
func (e *Engine) Releases() int64 { return e.releases.Load() }

// Renders returns the number of entry point calls.
func (e *Engine) Renders() int64 { return e.renders.Load() }

// FreeOutputs returns the number of free_png_buffer calls.
func (e *Engine) FreeOutputs() int64 { return e.freeOutputs.Load() }

// Calls returns the decoded requests seen so far.
func (e *Engine) Calls() []*Call {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Call(nil), e.calls...)
}

// LastCall returns the most recent decoded request, or nil.
func (e *Engine) LastCall() *Call {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.calls) == 0 {
		return nil
	}
	return e.calls[len(e.calls)-1]
}

func (e *Engine) Acquire(ctx context.Context) (resvgruntime.Instance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return nil, errors.Closed("reference engine")
	}
	e.acquires.Add(1)
	return &Instance{engine: e}, nil
}

func (e *Engine) Release(inst resvgruntime.Instance) {
	if inst == nil {
		return
	}
	e.releases.Add(1)
}

func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

// AssertBalanced fails t if any allocation is still live, any invalid free
// was seen, any output buffer was not freed, or acquires and releases differ.
func (e *Engine) AssertBalanced(t testing.TB) {
	t.Helper()
	s := e.heap.Stats()
	if s.Allocs != s.Frees || s.Live != 0 {
		t.Errorf("allocator unbalanced: %d allocs, %d frees, %d live (%d bytes)",
			s.Allocs, s.Frees, s.Live, s.LiveBytes)
	}
	for _, v := range e.heap.Violations() {
		t.Errorf("allocator violation: %s", v)
	}
	e.mu.Lock()
	pending := len(e.outputs)
	e.mu.Unlock()
	if pending != 0 {
		t.Errorf("%d output buffers not freed", pending)
	}
	if a, r := e.Acquires(), e.Releases(); a != r {
		t.Errorf("%d acquires, %d releases", a, r)
	}
}

// Instance is a handle on a reference Engine.
type Instance struct {
	engine *Engine
}

func (i *Instance) Platform() resvgruntime.Platform   { return i.engine.plat }
func (i *Instance) Memory() resvgruntime.Memory       { return i.engine.heap }
func (i *Instance) Allocator() resvgruntime.Allocator { return i.engine.heap }

// Render implements render_svg_to_png_with_options.
func (i *Instance) Render(ctx context.Context, svg, opts, outBuf, outLen uint64) (int32, error) {
	e := i.engine
	e.renders.Add(1)

	if e.CallErr != nil {
		return 0, e.CallErr
	}
	if svg == 0 || opts == 0 || outBuf == 0 || outLen == 0 {
		return errors.StatusOutOfMemory, nil
	}

	call, err := Decode(e.heap, e.plat, svg, opts)
	if err != nil {
		return 0, fmt.Errorf("decode request: %w", err)
	}
	e.mu.Lock()
	e.calls = append(e.calls, call)
	e.mu.Unlock()

	if e.OnRender != nil {
		e.OnRender(call)
	}
	if e.Status != 0 {
		return e.Status, nil
	}

	png, status := Rasterize(call)
	if status != errors.StatusOK {
		return status, nil
	}
	if e.NullOutput {
		return errors.StatusOK, nil
	}

	buf, err := e.heap.Alloc(uint64(len(png)), 1)
	if err != nil {
		return errors.StatusOutOfMemory, nil
	}
	if err := e.heap.Write(buf, png); err != nil {
		return 0, err
	}
	e.mu.Lock()
	e.outputs[buf] = uint64(len(png))
	e.mu.Unlock()

	if err := layout.WriteWord(e.heap, outBuf, e.plat.PointerSize, buf); err != nil {
		return 0, err
	}
	if err := layout.WriteWord(e.heap, outLen, e.plat.SizeSize, uint64(len(png))); err != nil {
		return 0, err
	}
	return errors.StatusOK, nil
}

// FreeOutput implements free_png_buffer. It rejects pairs it did not return.
func (i *Instance) FreeOutput(ctx context.Context, buf, length uint64) error {
	e := i.engine
	e.freeOutputs.Add(1)
	if buf == 0 || length == 0 {
		return nil
	}

	e.mu.Lock()
	want, ok := e.outputs[buf]
	if ok && want == length {
		delete(e.outputs, buf)
	}
	e.mu.Unlock()

	if !ok {
		return fmt.Errorf("free_png_buffer: %#x was not returned by render", buf)
	}
	if want != length {
		return fmt.Errorf("free_png_buffer: %#x freed with length %d, returned %d", buf, length, want)
	}
	e.heap.Free(buf, length, 1)
	return nil
}
