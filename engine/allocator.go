package engine

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"
)

// Allocator export names, in lookup order.
const (
	CabiRealloc   = "cabi_realloc"
	CabiFree      = "cabi_free"
	legacyRealloc = "canonical_abi_realloc"
	legacyAlloc   = "allocate"
	simpleAlloc   = "alloc"
	mallocAlloc   = "malloc"
	legacyDealloc = "deallocate"
	shortDealloc  = "dealloc"
	simpleFree    = "free"
)

var (
	allocNames = []string{CabiRealloc, legacyRealloc, mallocAlloc, legacyAlloc, simpleAlloc}
	freeNames  = []string{simpleFree, CabiFree, legacyDealloc, shortDealloc}
)

// wazeroAllocator calls the guest's exported allocator.
// The simple form is alloc(size[, align]) / free(ptr[, size[, align]]); the
// realloc form is realloc(old, old_size, align, new_size), freeing with
// new_size 0 when the guest exports no separate free.
type wazeroAllocator struct {
	allocFn       api.Function
	freeFn        api.Function
	currentCtx    context.Context
	broken        *atomic.Bool
	stackBuf      []uint64
	stackMutex    sync.Mutex
	allocParams   int
	freeParams    int
	isSimpleAlloc bool
}

// resolveAllocator finds the guest allocator exports. It returns nil when
// no allocation export exists.
func resolveAllocator(mod api.Module) *wazeroAllocator {
	a := &wazeroAllocator{}
	for _, name := range allocNames {
		if fn := mod.ExportedFunction(name); fn != nil {
			a.allocFn = fn
			a.allocParams = len(fn.Definition().ParamTypes())
			a.isSimpleAlloc = a.allocParams < 4
			break
		}
	}
	if a.allocFn == nil {
		return nil
	}
	for _, name := range freeNames {
		if fn := mod.ExportedFunction(name); fn != nil {
			a.freeFn = fn
			a.freeParams = len(fn.Definition().ParamTypes())
			break
		}
	}
	// CallWithStack needs room for every param and the single result.
	a.stackBuf = make([]uint64, max(4, a.allocParams, a.freeParams))
	return a
}

// fill writes vals into the first n stack slots, zeroing any slot past
// len(vals), and returns that window. n is at least one for the result.
func (a *wazeroAllocator) fill(n int, vals ...uint64) []uint64 {
	stack := a.stackBuf[:max(n, 1)]
	clear(stack)
	copy(stack, vals)
	return stack
}

func (a *wazeroAllocator) setContext(ctx context.Context) {
	a.stackMutex.Lock()
	defer a.stackMutex.Unlock()
	a.currentCtx = ctx
}

func (a *wazeroAllocator) callContext() context.Context {
	if a.currentCtx == nil {
		return context.Background()
	}
	return a.currentCtx
}

// trapped marks the owning instance unusable after a failed guest call.
func (a *wazeroAllocator) trapped(err error) error {
	if a.broken != nil {
		a.broken.Store(true)
	}
	return err
}

func (a *wazeroAllocator) Alloc(size, align uint64) (uint64, error) {
	if a.allocFn == nil {
		return 0, fmt.Errorf("no allocator available")
	}
	if size > math.MaxUint32 || align > math.MaxUint32 {
		return 0, fmt.Errorf("allocation of %d bytes exceeds 32-bit guest", size)
	}

	a.stackMutex.Lock()
	defer a.stackMutex.Unlock()

	ctx := a.callContext()
	if a.isSimpleAlloc {
		stack := a.fill(a.allocParams, size, align)
		if err := a.allocFn.CallWithStack(ctx, stack); err != nil {
			return 0, a.trapped(err)
		}
		ptr := uint64(uint32(stack[0]))
		if ptr%max(align, 1) != 0 {
			return 0, fmt.Errorf("allocator returned %#x, not aligned to %d", ptr, align)
		}
		return ptr, nil
	}
	stack := a.fill(a.allocParams, 0, 0, align, size)
	if err := a.allocFn.CallWithStack(ctx, stack); err != nil {
		return 0, a.trapped(err)
	}
	return uint64(uint32(stack[0])), nil
}

func (a *wazeroAllocator) Free(ptr, size, align uint64) {
	if ptr == 0 {
		return
	}

	a.stackMutex.Lock()
	defer a.stackMutex.Unlock()

	ctx := a.callContext()
	var err error
	switch {
	case a.freeFn != nil:
		err = a.freeFn.CallWithStack(ctx, a.fill(a.freeParams, ptr, size, align))
	case !a.isSimpleAlloc:
		err = a.allocFn.CallWithStack(ctx, a.fill(a.allocParams, ptr, size, align, 0))
	default:
		Logger().Warn("Free: guest exports no deallocator, leaking region",
			zap.Uint64("ptr", ptr),
			zap.Uint64("size", size))
		return
	}
	if err != nil {
		_ = a.trapped(err)
		Logger().Warn("Free: failed to call guest deallocator",
			zap.Uint64("ptr", ptr),
			zap.Uint64("size", size),
			zap.Error(err))
	}
}
