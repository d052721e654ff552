package enginetest

import (
	"encoding/binary"
	"fmt"
	"sync"

	resvgruntime "github.com/wippyai/resvg-runtime"
	"github.com/wippyai/resvg-runtime/layout"
)

const (
	heapBase  = 0x10000
	heapLimit = 1 << 30
)

// Heap is a flat simulated address space with an instrumented allocator.
// Address 0 is never valid. Every Alloc and Free is counted, and frees of
// unknown addresses or with a mismatched size are recorded as violations.
type Heap struct {
	data       []byte
	live       map[uint64]uint64
	violations []string
	plat       resvgruntime.Platform
	next       uint64
	allocs     int
	frees      int
	failAt     int
	panicAt    int
	failErr    error
	readFault  func(addr, length uint64) error
	mu         sync.Mutex
}

// NewHeap returns a heap with size bytes of initial memory. Allocations grow
// it as needed.
func NewHeap(plat resvgruntime.Platform, size uint64) *Heap {
	return &Heap{
		data: make([]byte, size),
		live: make(map[uint64]uint64),
		plat: plat,
		next: heapBase,
	}
}

// Stats is a snapshot of allocator activity.
type Stats struct {
	Allocs    int
	Frees     int
	Live      int
	LiveBytes uint64
}

func (h *Heap) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	s := Stats{Allocs: h.allocs, Frees: h.frees, Live: len(h.live)}
	for _, size := range h.live {
		s.LiveBytes += size
	}
	return s
}

// Violations returns the recorded invalid or double frees.
func (h *Heap) Violations() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.violations...)
}

// FailAlloc makes the nth Alloc from now return err.
func (h *Heap) FailAlloc(n int, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failAt = h.allocs + n
	h.failErr = err
}

// PanicAlloc makes the nth Alloc from now panic.
func (h *Heap) PanicAlloc(n int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.panicAt = h.allocs + n
}

// SetReadFault installs a hook called before every Read. A non-nil error is
// returned from Read; the hook may also panic.
func (h *Heap) SetReadFault(fn func(addr, length uint64) error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.readFault = fn
}

// Alloc implements resvgruntime.Allocator.
func (h *Heap) Alloc(size, align uint64) (uint64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.allocs++
	if h.panicAt != 0 && h.allocs == h.panicAt {
		h.panicAt = 0
		h.allocs--
		panic(fmt.Sprintf("enginetest: injected panic in Alloc(%d, %d)", size, align))
	}
	if h.failAt != 0 && h.allocs == h.failAt {
		h.failAt = 0
		h.allocs--
		return 0, h.failErr
	}

	if len(h.live) == 0 {
		h.next = heapBase
	}
	if size == 0 {
		size = 1
	}
	if align == 0 {
		align = 1
	}

	addr := layout.AlignTo(h.next, align)
	end := addr + size
	if end-heapBase > heapLimit {
		h.allocs--
		return 0, fmt.Errorf("enginetest: heap exhausted allocating %d bytes", size)
	}
	if need := end - heapBase; need > uint64(len(h.data)) {
		grown := max(uint64(len(h.data))*2, 4096)
		for grown < need {
			grown *= 2
		}
		data := make([]byte, grown)
		copy(data, h.data)
		h.data = data
	}
	if h.plat.PointerSize == 4 && end > 1<<32 {
		h.allocs--
		return 0, fmt.Errorf("enginetest: address %#x exceeds 32-bit space", end)
	}

	h.next = end
	h.live[addr] = size
	return addr, nil
}

// Free implements resvgruntime.Allocator.
func (h *Heap) Free(addr, size, align uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.frees++
	got, ok := h.live[addr]
	if !ok {
		h.violations = append(h.violations, fmt.Sprintf("free of unallocated address %#x", addr))
		return
	}
	if size == 0 {
		size = 1
	}
	if got != size {
		h.violations = append(h.violations,
			fmt.Sprintf("free of %#x with size %d, allocated %d", addr, size, got))
	}
	delete(h.live, addr)
}

func (h *Heap) span(addr, length uint64) ([]byte, error) {
	if addr < heapBase {
		return nil, fmt.Errorf("address %#x below heap base", addr)
	}
	off := addr - heapBase
	if off > uint64(len(h.data)) || length > uint64(len(h.data))-off {
		return nil, fmt.Errorf("access of %d bytes at %#x out of range", length, addr)
	}
	return h.data[off : off+length], nil
}

// Read implements resvgruntime.Memory. It returns a copy.
func (h *Heap) Read(addr, length uint64) ([]byte, error) {
	h.mu.Lock()
	hook := h.readFault
	h.mu.Unlock()
	if hook != nil {
		if err := hook(addr, length); err != nil {
			return nil, err
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	b, err := h.span(addr, length)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), b...), nil
}

func (h *Heap) Write(addr uint64, data []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	b, err := h.span(addr, uint64(len(data)))
	if err != nil {
		return err
	}
	copy(b, data)
	return nil
}

func (h *Heap) ReadU8(addr uint64) (uint8, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	b, err := h.span(addr, 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (h *Heap) ReadU32(addr uint64) (uint32, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	b, err := h.span(addr, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (h *Heap) ReadU64(addr uint64) (uint64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	b, err := h.span(addr, 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (h *Heap) WriteU8(addr uint64, value uint8) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	b, err := h.span(addr, 1)
	if err != nil {
		return err
	}
	b[0] = value
	return nil
}

func (h *Heap) WriteU32(addr uint64, value uint32) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	b, err := h.span(addr, 4)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(b, value)
	return nil
}

func (h *Heap) WriteU64(addr uint64, value uint64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	b, err := h.span(addr, 8)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(b, value)
	return nil
}
