// Package render is the caller-facing entry point: SVG text in, PNG bytes out.
//
// A Renderer drives one render per call through four steps, all against a
// single engine Instance:
//
//  1. marshal: the document, every present string option, the font buffers
//     with their pointer and length arrays, the RenderOptions block and the
//     two out slots are written to engine memory, each recorded in a
//     marshal.Tracker as it is allocated.
//  2. call: render_svg_to_png_with_options runs. A non-zero status becomes a
//     typed error via errors.FromStatus and the out slots are not read.
//  3. transfer: on status 0 the output is copied into a Go slice and
//     free_png_buffer is called with the exact address and length returned.
//  4. cleanup: every tracked region is freed exactly once, on every path,
//     including a panic during any earlier step.
//
// Usage:
//
//	eng, err := engine.NewWazeroEngine(ctx, wasmBytes, engine.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	defer eng.Close(ctx)
//
//	r := render.New(eng, render.WithLogger(log))
//	png, err := r.RenderToPNG(ctx, svg, &resvgruntime.Options{
//		Width:           resvgruntime.Ptr[int32](800),
//		Fonts:           [][]byte{interTTF},
//		SansSerifFamily: "Inter",
//	})
//
// Errors match the sentinels in the errors package:
//
//	switch {
//	case errors.Is(err, rterrors.ErrInvalidArgument):
//	case errors.Is(err, rterrors.ErrFontLoad):
//	case errors.Is(err, rterrors.ErrParse):
//	case rterrors.IsFault(err):
//	}
package render
