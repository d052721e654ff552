package errors

import "fmt"

// Engine status codes returned by render_svg_to_png_with_options.
const (
	StatusOK          int32 = 0
	StatusParse       int32 = 1
	StatusRender      int32 = 2
	StatusFontLoad    int32 = 3
	StatusOutOfMemory int32 = 4
)

// FromStatus translates a non-zero engine status into an error.
// It returns nil for StatusOK.
func FromStatus(code int32) error {
	switch code {
	case StatusOK:
		return nil
	case StatusParse:
		return statusError(code, KindParse, "failed to parse SVG")
	case StatusRender:
		return statusError(code, KindRender, "failed to render PNG")
	case StatusFontLoad:
		return statusError(code, KindFontLoad, "failed to load fonts")
	case StatusOutOfMemory:
		return statusError(code, KindOutOfMemory, "engine memory allocation failed")
	default:
		return statusError(code, KindUnknownStatus, fmt.Sprintf("unknown engine status %d", code))
	}
}

func statusError(code int32, kind Kind, detail string) *Error {
	return &Error{
		Phase:  PhaseCall,
		Kind:   kind,
		Code:   code,
		Detail: detail,
	}
}
