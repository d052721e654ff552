package engine

import (
	"context"
	"errors"
	"runtime"
	"sync"

	rterrors "github.com/wippyai/resvg-runtime/errors"
	"go.uber.org/zap"
)

// Pool sizing constants.
const (
	// MinPoolSize ensures at least one instance is available.
	MinPoolSize = 1

	// MaxPoolSize caps instances; each holds its own linear memory.
	MaxPoolSize = 8

	// cpuDivisor leaves headroom for callers encoding and writing output.
	cpuDivisor = 2
)

// instancePool hands out guest instances for exclusive use.
// Instances are created lazily on first acquire to avoid startup delay.
// An instance marked broken is closed on release and replaced on demand.
type instancePool struct {
	newInstance func(ctx context.Context) (*WazeroInstance, error)
	slots       chan struct{}
	idle        []*WazeroInstance
	size        int
	created     int
	mu          sync.Mutex
	closed      bool
}

func newInstancePool(n int, newInstance func(ctx context.Context) (*WazeroInstance, error)) *instancePool {
	if n < 1 {
		n = 1
	}
	return &instancePool{
		newInstance: newInstance,
		slots:       make(chan struct{}, n),
		idle:        make([]*WazeroInstance, 0, n),
		size:        n,
	}
}

// acquire takes a slot, blocking until one frees or ctx is done, then
// returns an idle instance or creates one.
func (p *instancePool) acquire(ctx context.Context) (*WazeroInstance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.isClosed() {
		return nil, rterrors.Closed("engine")
	}

	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		<-p.slots
		return nil, rterrors.Closed("engine")
	}
	if n := len(p.idle); n > 0 {
		inst := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.mu.Unlock()
		return inst, nil
	}
	p.created++
	p.mu.Unlock()

	// Create new instance outside the lock
	inst, err := p.newInstance(ctx)
	if err != nil {
		p.mu.Lock()
		p.created--
		p.mu.Unlock()
		<-p.slots
		return nil, err
	}
	return inst, nil
}

// release returns inst to the pool, or closes it when broken or when the
// pool is closed.
func (p *instancePool) release(ctx context.Context, inst *WazeroInstance) {
	p.mu.Lock()
	discard := p.closed || inst.broken.Load()
	if discard {
		p.created--
	} else {
		p.idle = append(p.idle, inst)
	}
	p.mu.Unlock()
	<-p.slots

	if discard {
		if err := inst.Close(ctx); err != nil {
			Logger().Warn("close discarded instance", zap.Error(err))
		}
	}
}

// close closes every idle instance. Instances still held are closed when
// released.
func (p *instancePool) close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	idle := p.idle
	p.idle = nil
	p.created -= len(idle)
	p.mu.Unlock()

	var errs []error
	for _, inst := range idle {
		if err := inst.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *instancePool) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// stats returns the number of live and idle instances.
func (p *instancePool) stats() (created, idle int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.created, len(p.idle)
}

// ResolvePoolSize determines the pool size.
// Priority: explicit size > GOMAXPROCS-based calculation.
func ResolvePoolSize(size int) int {
	if size > 0 {
		return size
	}

	// GOMAXPROCS is adjusted by automaxprocs in containers
	n := runtime.GOMAXPROCS(0) / cpuDivisor
	if n < MinPoolSize {
		return MinPoolSize
	}
	if n > MaxPoolSize {
		return MaxPoolSize
	}
	return n
}
