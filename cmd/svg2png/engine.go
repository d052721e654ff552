package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	resvgruntime "github.com/wippyai/resvg-runtime"
	"github.com/wippyai/resvg-runtime/config"
	"github.com/wippyai/resvg-runtime/engine"
)

var (
	ErrNoWasm            = errors.New("no wasm module: set --wasm, engine.wasm or $" + wasmEnv)
	ErrNativeUnavailable = errors.New("native engine not built in: rebuild with -tags resvg_native")
)

// openEngine creates the engine the flags and config select.
func openEngine(ctx context.Context, f *cliFlags, file *config.File) (resvgruntime.Engine, error) {
	if f.engine.native {
		return newNativeEngine()
	}

	path := f.wasmPath(file)
	if path == "" {
		return nil, ErrNoWasm
	}
	wasm, err := os.ReadFile(path) // #nosec G304 -- module path is user-provided
	if err != nil {
		return nil, fmt.Errorf("%w: wasm module: %w", ErrReadInput, err)
	}

	cfg, err := f.engineConfig(file)
	if err != nil {
		return nil, err
	}
	return engine.NewWazeroEngine(ctx, wasm, cfg)
}
