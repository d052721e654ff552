package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseValidate Phase = "validate" // caller input checks
	PhaseMarshal  Phase = "marshal"  // Go to engine memory
	PhaseCall     Phase = "call"     // engine entry point
	PhaseTransfer Phase = "transfer" // engine output to Go
	PhaseCleanup  Phase = "cleanup"  // region release
	PhaseLoad     Phase = "load"     // engine loading
	PhaseConfig   Phase = "config"   // configuration files
)

// Kind categorizes the error
type Kind string

const (
	KindInvalidArgument Kind = "invalid_argument"
	KindFontLoad        Kind = "font_load"
	KindParse           Kind = "parse"
	KindRender          Kind = "render"
	KindOutOfMemory     Kind = "out_of_memory"
	KindUnknownStatus   Kind = "unknown_status"
	KindFault           Kind = "fault"
	KindAllocation      Kind = "allocation"
	KindOutOfBounds     Kind = "out_of_bounds"
	KindOverflow        Kind = "overflow"
	KindNotFound        Kind = "not_found"
	KindClosed          Kind = "closed"
)

// Sentinels for errors.Is. They match any phase.
var (
	ErrInvalidArgument = &Error{Kind: KindInvalidArgument}
	ErrFontLoad        = &Error{Kind: KindFontLoad}
	ErrParse           = &Error{Kind: KindParse}
	ErrRender          = &Error{Kind: KindRender}
	ErrOutOfMemory     = &Error{Kind: KindOutOfMemory}
	ErrUnknownStatus   = &Error{Kind: KindUnknownStatus}
	ErrFault           = &Error{Kind: KindFault}
	ErrAllocation      = &Error{Kind: KindAllocation}
	ErrNotFound        = &Error{Kind: KindNotFound}
	ErrClosed          = &Error{Kind: KindClosed}
)

// Error is the structured error type used throughout the runtime
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Detail string
	Path   []string
	// Code is the engine status for errors reported by the engine, else 0.
	Code int32
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.Code != 0 {
		fmt.Fprintf(&b, " (status %d)", e.Code)
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error. Kinds must be equal; the
// phase is compared only when the target sets one.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Phase == "" || t.Phase == e.Phase
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the option path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// Code sets the engine status code
func (b *Builder) Code(code int32) *Builder {
	b.err.Code = code
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// InvalidArgument creates an error for caller input rejected before any
// engine call.
func InvalidArgument(phase Phase, path []string, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidArgument,
		Path:   path,
		Detail: detail,
	}
}

// InvalidUTF8 creates an invalid UTF-8 argument error
func InvalidUTF8(phase Phase, path []string, data []byte) *Error {
	preview := data
	if len(preview) > 32 {
		preview = preview[:32]
	}
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidArgument,
		Path:   path,
		Detail: fmt.Sprintf("invalid UTF-8 sequence: %x", preview),
	}
}

// FontLoad creates a font loading error detected on the Go side
func FontLoad(phase Phase, path []string, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindFontLoad,
		Path:   path,
		Detail: detail,
	}
}

// AllocationFailed creates an allocation failure error
func AllocationFailed(phase Phase, size, align uint64, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindAllocation,
		Detail: fmt.Sprintf("failed to allocate %d bytes (align %d)", size, align),
		Cause:  cause,
	}
}

// OutOfBounds creates an engine memory access error
func OutOfBounds(phase Phase, addr, length uint64, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Detail: fmt.Sprintf("memory access out of bounds: addr=%#x, length=%d", addr, length),
		Value:  addr,
		Cause:  cause,
	}
}

// Overflow creates an overflow error
func Overflow(phase Phase, path []string, value any, targetType string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOverflow,
		Path:   path,
		Detail: fmt.Sprintf("value %v overflows %s", value, targetType),
		Value:  value,
	}
}

// Fault creates an unclassified failure inside the boundary itself
func Fault(phase Phase, detail string, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindFault,
		Detail: detail,
		Cause:  cause,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// Closed creates an error for use after Close
func Closed(component string) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindClosed,
		Detail: fmt.Sprintf("%s is closed", component),
	}
}

// Load creates an engine loading error
func Load(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindFault,
		Detail: detail,
		Cause:  cause,
	}
}

// Config creates a configuration error
func Config(path []string, detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseConfig,
		Kind:   KindInvalidArgument,
		Path:   path,
		Detail: detail,
		Cause:  cause,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// IsFault reports whether err is an unclassified boundary failure: a fault,
// an allocation failure, an out-of-bounds access or an overflow.
func IsFault(err error) bool {
	var e *Error
	if !stderrors.As(err, &e) {
		return false
	}
	switch e.Kind {
	case KindFault, KindAllocation, KindOutOfBounds, KindOverflow:
		return true
	}
	return false
}

// KindOf returns the Kind of the outermost *Error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return ""
}
