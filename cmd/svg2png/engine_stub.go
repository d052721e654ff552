//go:build !(cgo && resvg_native)

package main

import resvgruntime "github.com/wippyai/resvg-runtime"

func newNativeEngine() (resvgruntime.Engine, error) {
	return nil, ErrNativeUnavailable
}
