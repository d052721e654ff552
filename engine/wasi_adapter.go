package engine

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

const wasiModuleName = "wasi_snapshot_preview1"

// InstantiateWASI instantiates WASI preview1 in r. wasm32-wasip1 builds of
// the wrapper import it for stderr, clocks and random seeding.
func InstantiateWASI(ctx context.Context, r wazero.Runtime) (api.Module, error) {
	builder := r.NewHostModuleBuilder(wasiModuleName)
	wasi_snapshot_preview1.NewFunctionExporter().ExportFunctions(builder)
	return builder.Instantiate(ctx)
}

// InitWASI instantiates the WASI singleton for this engine's runtime.
// Safe for concurrent calls.
func (e *WazeroEngine) InitWASI(ctx context.Context) error {
	if e.wasiInitDone.Load() {
		return nil
	}

	e.wasiInitMu.Lock()
	defer e.wasiInitMu.Unlock()

	if e.wasiInitDone.Load() {
		return nil
	}

	if e.runtime.Module(wasiModuleName) != nil {
		e.wasiInitDone.Store(true)
		return nil
	}

	if _, err := InstantiateWASI(ctx, e.runtime); err != nil {
		if e.runtime.Module(wasiModuleName) == nil {
			return fmt.Errorf("instantiate WASI: %w", err)
		}
	}

	e.wasiInitDone.Store(true)
	return nil
}
