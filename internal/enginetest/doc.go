// Package enginetest provides test doubles for the engine contract.
//
// Heap is a simulated address space whose allocator counts every Alloc and
// Free, detects invalid frees and can be told to fail or panic on a chosen
// allocation. Engine is a reference engine over a Heap: it decodes the
// RenderOptions block exactly as the native wrapper does, rasterizes a small
// SVG subset with golang.org/x/image fonts and returns a PNG through the same
// out-slot and free_png_buffer protocol.
//
//	eng := enginetest.New(resvgruntime.Wasm32)
//	r := render.New(eng)
//	png, err := r.RenderToPNG(ctx, svg, opts)
//	eng.AssertBalanced(t)
package enginetest
