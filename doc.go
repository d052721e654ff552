// Package resvgruntime renders SVG documents to PNG through the resvg wrapper
// engine reached across a foreign boundary.
//
// The library owns the boundary, not the renderer: it lays out the wrapper's
// RenderOptions block in engine memory, allocates and releases every region
// the block references, calls the entry point, decodes its status and copies
// the engine's PNG buffer into Go memory before asking the engine to free it.
//
// # Architecture Overview
//
//	resvgruntime/        Root package with Memory, Allocator, Engine, Options
//	├── render/          Caller-facing Renderer (RenderToPNG)
//	├── marshal/         Allocation tracker and option marshaler
//	├── layout/          Fixed RenderOptions layout per platform
//	├── engine/          wazero guest engine and cgo native engine
//	├── config/          YAML configuration files
//	├── errors/          Structured error types and status translation
//	└── cmd/svg2png/     Command line renderer
//
// # Quick Start
//
//	eng, err := engine.NewWazeroEngine(ctx, wasmBytes, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer eng.Close(ctx)
//
//	r := render.New(eng)
//	png, err := r.RenderToPNG(ctx, svg, &resvgruntime.Options{
//	    Width:           resvgruntime.Ptr[int32](512),
//	    Fonts:           [][]byte{interBold},
//	    SansSerifFamily: "Inter",
//	})
//
// # Memory Model
//
// Every region written for a call (document, option strings, font buffers,
// the pointer and length arrays, the parameter block and the output slots)
// is recorded before the next step runs and released when the call returns,
// whatever the outcome. The engine's output buffer is released separately,
// right after it has been copied.
//
// # Thread Safety
//
// Renderer is safe for concurrent use. Each call acquires its own engine
// Instance; Instances are never shared between in-flight calls.
package resvgruntime
