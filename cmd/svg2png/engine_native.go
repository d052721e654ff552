//go:build cgo && resvg_native

package main

import (
	resvgruntime "github.com/wippyai/resvg-runtime"
	"github.com/wippyai/resvg-runtime/engine"
)

func newNativeEngine() (resvgruntime.Engine, error) {
	return engine.NewNativeEngine()
}
