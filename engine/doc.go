// Package engine provides the engines that execute the resvg wrapper.
//
// WazeroEngine runs the wrapper compiled to wasm32 (wasm32-wasip1 or
// wasm32-unknown-unknown) on wazero. NativeEngine, built with the
// resvg_native tag and cgo, links the wrapper's C library into the process.
// Both implement resvgruntime.Engine.
//
// # Guest Instances
//
// A WazeroEngine compiles the module once and keeps a pool of instances:
//
//	WazeroEngine   - Compiled module, WASI host module, instance pool
//	WazeroInstance - One guest: linear memory, allocator, wrapper exports
//
// Instances are created lazily up to the pool size. Acquire hands an
// instance to one caller; Release returns it. An instance whose guest call
// trapped is closed on release and replaced on the next Acquire.
//
// # Guest ABI
//
// The module must export:
//
//	render_svg_to_png_with_options  (i32 svg, i32 opts, i32 out_buf, i32 out_len) -> i32
//	free_png_buffer                 (i32 buf, i32 len)
//	malloc | alloc | allocate       (i32 size) -> i32
//	cabi_realloc                    (i32 old, i32 old_size, i32 align, i32 new_size) -> i32
//
// One allocator export is required. free, cabi_free, deallocate or dealloc
// is used to release regions when present. Reactor modules exporting
// _initialize have it run before first use.
//
// # WASI
//
// WASI preview1 is instantiated unless Config.DisableWASI is set. Mounts
// expose host directories so path options resolve inside the guest:
//
//	cfg := engine.DefaultConfig()
//	cfg.Mounts = []engine.Mount{{HostDir: "./assets", GuestDir: "/assets", ReadOnly: true}}
//	eng, err := engine.NewWazeroEngine(ctx, wasmBytes, cfg)
package engine
