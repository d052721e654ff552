package main

import (
	"errors"
	"os"

	flag "github.com/spf13/pflag"
	rterrors "github.com/wippyai/resvg-runtime/errors"
)

// Exit codes for svg2png.
// Follows Unix conventions: 0=success, 1=general, 2=usage, and custom codes < 126.
const (
	ExitSuccess = 0 // All renders succeeded
	ExitGeneral = 1 // General/unexpected error
	ExitUsage   = 2 // Invalid flags, config or arguments
	ExitIO      = 3 // File not found, permission denied
	ExitEngine  = 4 // Engine load, render or boundary failure
)

// exitCodeFor returns the appropriate exit code for an error.
// It uses errors.Is to check wrapped errors, so callers must use fmt.Errorf("%w", err).
func exitCodeFor(err error) int {
	if err == nil || errors.Is(err, flag.ErrHelp) {
		return ExitSuccess
	}

	// I/O errors (exit 3)
	if errors.Is(err, os.ErrNotExist) ||
		errors.Is(err, os.ErrPermission) ||
		errors.Is(err, ErrNoInput) ||
		errors.Is(err, ErrReadInput) ||
		errors.Is(err, ErrWriteOutput) {
		return ExitIO
	}

	// A module that fails to load is an engine error, even when the
	// failure is an invalid export signature.
	var rerr *rterrors.Error
	if errors.As(err, &rerr) && rerr.Phase == rterrors.PhaseLoad {
		return ExitEngine
	}

	// Usage/config/validation errors (exit 2)
	if errors.Is(err, ErrUsage) ||
		errors.Is(err, ErrNativeUnavailable) ||
		errors.Is(err, ErrNoWasm) ||
		errors.Is(err, rterrors.ErrInvalidArgument) {
		return ExitUsage
	}

	// Engine errors (exit 4)
	if errors.Is(err, rterrors.ErrParse) ||
		errors.Is(err, rterrors.ErrRender) ||
		errors.Is(err, rterrors.ErrFontLoad) ||
		errors.Is(err, rterrors.ErrOutOfMemory) ||
		errors.Is(err, rterrors.ErrUnknownStatus) ||
		errors.Is(err, rterrors.ErrNotFound) ||
		errors.Is(err, rterrors.ErrClosed) ||
		rterrors.IsFault(err) {
		return ExitEngine
	}

	return ExitGeneral
}
