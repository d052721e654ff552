package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	resvgruntime "github.com/wippyai/resvg-runtime"
	rterrors "github.com/wippyai/resvg-runtime/errors"
	"go.uber.org/zap"
)

// Wrapper exports.
const (
	ExportRender     = "render_svg_to_png_with_options"
	ExportFreeOutput = "free_png_buffer"
	exportInitialize = "_initialize"
)

var (
	renderParams = []api.ValueType{api.ValueTypeI32, api.ValueTypeI32, api.ValueTypeI32, api.ValueTypeI32}
	renderResult = []api.ValueType{api.ValueTypeI32}
	freeParams   = []api.ValueType{api.ValueTypeI32, api.ValueTypeI32}
)

// Mount exposes a host directory to the guest through WASI, so that
// ResourcesDir, FontDir and FontFile paths resolve inside it.
type Mount struct {
	HostDir  string
	GuestDir string
	ReadOnly bool
}

// HostModule instantiates additional imports the guest needs into r.
// Host modules are instantiated after WASI and before the guest compiles.
type HostModule func(ctx context.Context, r wazero.Runtime) error

// Config holds engine configuration options
type Config struct {
	// Stdout and Stderr receive guest WASI output. Nil discards it.
	Stdout io.Writer
	Stderr io.Writer

	HostModules []HostModule
	Mounts      []Mount

	// MemoryLimitPages limits guest memory (64KB pages). 0 uses wazero's default.
	MemoryLimitPages uint32

	// PoolSize is the number of guest instances. 0 derives it from GOMAXPROCS.
	PoolSize int

	// DisableWASI skips instantiating wasi_snapshot_preview1.
	DisableWASI bool
}

// DefaultConfig returns the engine defaults: WASI on, pool sized from GOMAXPROCS.
func DefaultConfig() *Config {
	return &Config{}
}

// WazeroEngine runs the resvg wrapper compiled to wasm32 on wazero.
// It is safe for concurrent use; each Acquire hands out a separate
// guest instance.
type WazeroEngine struct {
	runtime      wazero.Runtime
	compiled     wazero.CompiledModule
	pool         *instancePool
	cfg          Config
	wasiInitMu   sync.Mutex
	wasiInitDone atomic.Bool
}

// NewWazeroEngine compiles wasmBytes and prepares an instance pool. Guest
// instances are created lazily on Acquire. A nil cfg uses DefaultConfig.
func NewWazeroEngine(ctx context.Context, wasmBytes []byte, cfg *Config) (*WazeroEngine, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if len(wasmBytes) == 0 {
		return nil, rterrors.Load("empty wasm module", nil)
	}

	runtimeCfg := wazero.NewRuntimeConfig()
	if cfg.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}

	e := &WazeroEngine{
		runtime: wazero.NewRuntimeWithConfig(ctx, runtimeCfg),
		cfg:     *cfg,
	}

	if err := e.setup(ctx, wasmBytes); err != nil {
		_ = e.runtime.Close(ctx)
		return nil, err
	}

	size := ResolvePoolSize(cfg.PoolSize)
	e.pool = newInstancePool(size, e.instantiate)
	Logger().Debug("wazero engine ready",
		zap.Int("pool_size", size),
		zap.Uint32("memory_limit_pages", cfg.MemoryLimitPages),
		zap.Int("mounts", len(cfg.Mounts)))
	return e, nil
}

func (e *WazeroEngine) setup(ctx context.Context, wasmBytes []byte) error {
	if !e.cfg.DisableWASI {
		if err := e.InitWASI(ctx); err != nil {
			return rterrors.Load("init WASI", err)
		}
	}
	for i, hm := range e.cfg.HostModules {
		if err := hm(ctx, e.runtime); err != nil {
			return rterrors.Load(fmt.Sprintf("host module %d", i), err)
		}
	}

	compiled, err := e.runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		return rterrors.Load("compile module", err)
	}
	if err := checkExports(compiled); err != nil {
		return err
	}
	e.compiled = compiled
	return nil
}

// checkExports verifies the wrapper entry points and an allocator exist
// with the expected wasm32 signatures.
func checkExports(compiled wazero.CompiledModule) error {
	fns := compiled.ExportedFunctions()

	if err := checkSignature(fns, ExportRender, renderParams, renderResult); err != nil {
		return err
	}
	if err := checkSignature(fns, ExportFreeOutput, freeParams, nil); err != nil {
		return err
	}

	for _, name := range allocNames {
		if _, ok := fns[name]; ok {
			return nil
		}
	}
	return rterrors.NotFound(rterrors.PhaseLoad, "allocator export", strings.Join(allocNames, "|"))
}

func checkSignature(fns map[string]api.FunctionDefinition, name string, params, results []api.ValueType) error {
	def, ok := fns[name]
	if !ok {
		return rterrors.NotFound(rterrors.PhaseLoad, "export", name)
	}
	if !sameTypes(def.ParamTypes(), params) || !sameTypes(def.ResultTypes(), results) {
		return rterrors.New(rterrors.PhaseLoad, rterrors.KindInvalidArgument).
			Path(name).
			Detail("signature %s, want %s", signature(def.ParamTypes(), def.ResultTypes()), signature(params, results)).
			Build()
	}
	return nil
}

func sameTypes(a, b []api.ValueType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func signature(params, results []api.ValueType) string {
	names := func(ts []api.ValueType) string {
		s := make([]string, len(ts))
		for i, t := range ts {
			s[i] = api.ValueTypeName(t)
		}
		return strings.Join(s, ",")
	}
	return "(" + names(params) + ")->(" + names(results) + ")"
}

// instantiate creates one guest instance from the compiled module.
func (e *WazeroEngine) instantiate(ctx context.Context) (*WazeroInstance, error) {
	modCfg := wazero.NewModuleConfig().
		WithName("").
		WithStartFunctions(exportInitialize)
	if e.cfg.Stdout != nil {
		modCfg = modCfg.WithStdout(e.cfg.Stdout)
	}
	if e.cfg.Stderr != nil {
		modCfg = modCfg.WithStderr(e.cfg.Stderr)
	}
	if len(e.cfg.Mounts) > 0 {
		fsCfg := wazero.NewFSConfig()
		for _, m := range e.cfg.Mounts {
			if m.ReadOnly {
				fsCfg = fsCfg.WithReadOnlyDirMount(m.HostDir, m.GuestDir)
			} else {
				fsCfg = fsCfg.WithDirMount(m.HostDir, m.GuestDir)
			}
		}
		modCfg = modCfg.WithFSConfig(fsCfg)
	}

	mod, err := e.runtime.InstantiateModule(ctx, e.compiled, modCfg)
	if err != nil {
		return nil, rterrors.Load("instantiate module", err)
	}

	inst, err := newWazeroInstance(mod)
	if err != nil {
		_ = mod.Close(ctx)
		return nil, err
	}
	debugf("instantiated guest, memory=%d bytes", inst.memory.Size())
	return inst, nil
}

// Platform returns wasm32; the guest ABI is fixed at compile time.
func (e *WazeroEngine) Platform() resvgruntime.Platform {
	return resvgruntime.Wasm32
}

// Acquire returns an idle guest instance, creating one if the pool has
// room, and otherwise blocks until an instance is released or ctx is done.
func (e *WazeroEngine) Acquire(ctx context.Context) (resvgruntime.Instance, error) {
	inst, err := e.pool.acquire(ctx)
	if err != nil {
		return nil, err
	}
	inst.alloc.setContext(context.WithoutCancel(ctx))
	return inst, nil
}

// Release returns inst to the pool. Instances that trapped are closed.
func (e *WazeroEngine) Release(inst resvgruntime.Instance) {
	wi, ok := inst.(*WazeroInstance)
	if !ok || wi == nil {
		Logger().Warn("Release: instance not from this engine", zap.Any("instance", inst))
		return
	}
	wi.alloc.setContext(nil)
	e.pool.release(context.Background(), wi)
}

// PoolStats reports the number of live and idle guest instances.
func (e *WazeroEngine) PoolStats() (created, idle int) {
	return e.pool.stats()
}

func (e *WazeroEngine) Close(ctx context.Context) error {
	var poolErr error
	if e.pool != nil {
		poolErr = e.pool.close(ctx)
	}
	return errors.Join(poolErr, e.runtime.Close(ctx))
}

// WazeroInstance is one instantiated guest.
// It is NOT safe for concurrent use; the pool hands it to one caller at a time.
type WazeroInstance struct {
	module    api.Module
	memory    *WazeroMemory
	alloc     *wazeroAllocator
	renderFn  api.Function
	freeOutFn api.Function
	stackBuf  []uint64
	// broken is set once a guest call traps; the instance is not reused.
	broken atomic.Bool
}

func newWazeroInstance(mod api.Module) (*WazeroInstance, error) {
	mem := mod.Memory()
	if mem == nil {
		return nil, rterrors.NotFound(rterrors.PhaseLoad, "memory", "memory")
	}
	alloc := resolveAllocator(mod)
	if alloc == nil {
		return nil, rterrors.NotFound(rterrors.PhaseLoad, "allocator export", strings.Join(allocNames, "|"))
	}

	inst := &WazeroInstance{
		module:    mod,
		memory:    WrapMemory(mem),
		alloc:     alloc,
		renderFn:  mod.ExportedFunction(ExportRender),
		freeOutFn: mod.ExportedFunction(ExportFreeOutput),
		stackBuf:  make([]uint64, 4),
	}
	alloc.broken = &inst.broken
	return inst, nil
}

func (i *WazeroInstance) Platform() resvgruntime.Platform {
	return resvgruntime.Wasm32
}

func (i *WazeroInstance) Memory() resvgruntime.Memory {
	return i.memory
}

func (i *WazeroInstance) Allocator() resvgruntime.Allocator {
	return i.alloc
}

// Module returns the underlying wazero module.
func (i *WazeroInstance) Module() api.Module {
	return i.module
}

func (i *WazeroInstance) Render(ctx context.Context, svg, opts, outBuf, outLen uint64) (int32, error) {
	if err := fitsGuest(svg, opts, outBuf, outLen); err != nil {
		return 0, err
	}
	stack := i.stackBuf[:4]
	stack[0], stack[1], stack[2], stack[3] = svg, opts, outBuf, outLen
	if err := i.renderFn.CallWithStack(ctx, stack); err != nil {
		i.broken.Store(true)
		return 0, fmt.Errorf("%s: %w", ExportRender, err)
	}
	return int32(uint32(stack[0])), nil
}

func (i *WazeroInstance) FreeOutput(ctx context.Context, buf, length uint64) error {
	if err := fitsGuest(buf, length); err != nil {
		return err
	}
	stack := i.stackBuf[:2]
	stack[0], stack[1] = buf, length
	if err := i.freeOutFn.CallWithStack(ctx, stack); err != nil {
		i.broken.Store(true)
		return fmt.Errorf("%s: %w", ExportFreeOutput, err)
	}
	return nil
}

func (i *WazeroInstance) Close(ctx context.Context) error {
	if i.module == nil {
		return nil
	}
	err := i.module.Close(ctx)
	i.module = nil
	i.memory = nil
	i.renderFn = nil
	i.freeOutFn = nil
	return err
}

func fitsGuest(values ...uint64) error {
	for _, v := range values {
		if v > math.MaxUint32 {
			return fmt.Errorf("argument %#x exceeds 32-bit guest", v)
		}
	}
	return nil
}
