package resvgruntime

import (
	"context"
	"math/bits"
)

// Memory represents the address space the engine reads its inputs from.
// Addresses are engine addresses: guest offsets for wasm, process
// addresses for native engines.
type Memory interface {
	// Read may return a view into engine memory; copy before the next
	// allocation if the data must outlive it.
	Read(addr uint64, length uint64) ([]byte, error)
	Write(addr uint64, data []byte) error
	ReadU8(addr uint64) (uint8, error)
	ReadU32(addr uint64) (uint32, error)
	ReadU64(addr uint64) (uint64, error)
	WriteU8(addr uint64, value uint8) error
	WriteU32(addr uint64, value uint32) error
	WriteU64(addr uint64, value uint64) error
}

// Allocator allocates memory the engine can address
type Allocator interface {
	Alloc(size, align uint64) (uint64, error)
	Free(addr, size, align uint64)
}

// Platform describes the integer widths the engine was compiled with.
type Platform struct {
	Name string
	// PointerSize is the width of every address field and pointer-array element.
	PointerSize uint64
	// SizeSize is the width of size_t: font_count, length-array elements, out_len.
	SizeSize uint64
}

var (
	// Wasm32 is the platform of engines compiled to wasm32 targets.
	Wasm32 = Platform{Name: "wasm32", PointerSize: 4, SizeSize: 4}

	// Host is the platform of engines loaded into this process.
	Host = Platform{Name: "host", PointerSize: bits.UintSize / 8, SizeSize: bits.UintSize / 8}
)

// Instance is one engine the caller holds exclusively for a single render.
type Instance interface {
	Platform() Platform
	Memory() Memory
	Allocator() Allocator

	// Render calls render_svg_to_png_with_options. svg and opts point at a
	// NUL-terminated document and an encoded parameter block; outBuf and
	// outLen point at the slots the engine fills when it returns 0.
	// A non-nil error means the call itself faulted.
	Render(ctx context.Context, svg, opts, outBuf, outLen uint64) (int32, error)

	// FreeOutput calls free_png_buffer with a pair returned by Render.
	FreeOutput(ctx context.Context, buf, length uint64) error
}

// Engine hands out Instances.
type Engine interface {
	// Acquire blocks until an Instance is available or ctx is done.
	Acquire(ctx context.Context) (Instance, error)
	Release(inst Instance)
	Close(ctx context.Context) error
}
