// Package errors provides structured error types for the resvg runtime.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error
// category). The Error type carries the option path, the engine status code
// and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseMarshal, errors.KindFontLoad).
//		Path("Fonts[2]").
//		Detail("font data cannot be empty").
//		Build()
//
// Engine status codes are translated by FromStatus:
//
//	if status != 0 {
//		return nil, errors.FromStatus(status)
//	}
//
// Match categories with the sentinels, regardless of phase:
//
//	if errors.Is(err, errors.ErrFontLoad) { ... }
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
