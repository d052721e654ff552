package render

import (
	"context"
	"fmt"

	resvgruntime "github.com/wippyai/resvg-runtime"
	"github.com/wippyai/resvg-runtime/errors"
	"github.com/wippyai/resvg-runtime/marshal"
	"go.uber.org/zap"
)

// DefaultMaxOutput caps the PNG size accepted from the engine.
const DefaultMaxOutput = 1 << 30

// Renderer renders SVG documents through an Engine. It is safe for
// concurrent use; each render holds its own Instance.
type Renderer struct {
	engine    resvgruntime.Engine
	log       *zap.Logger
	maxOutput uint64
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithLogger sets the renderer's logger. Defaults to the package Logger().
func WithLogger(l *zap.Logger) Option {
	return func(r *Renderer) {
		if l != nil {
			r.log = l
		}
	}
}

// WithMaxOutput rejects engine output larger than n bytes.
func WithMaxOutput(n uint64) Option {
	return func(r *Renderer) {
		if n > 0 {
			r.maxOutput = n
		}
	}
}

// New creates a Renderer over engine. The engine stays owned by the caller.
func New(engine resvgruntime.Engine, opts ...Option) *Renderer {
	r := &Renderer{
		engine:    engine,
		log:       Logger(),
		maxOutput: DefaultMaxOutput,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Engine returns the engine the renderer draws instances from.
func (r *Renderer) Engine() resvgruntime.Engine {
	return r.engine
}

// RenderToPNG renders svg with opts and returns the PNG bytes. A nil opts
// uses DefaultOptions. Invalid input is rejected before an engine instance
// is acquired. Every region allocated in engine memory, and the engine's
// output buffer, is released before RenderToPNG returns.
func (r *Renderer) RenderToPNG(ctx context.Context, svg string, opts *resvgruntime.Options) ([]byte, error) {
	if opts == nil {
		opts = resvgruntime.DefaultOptions()
	}
	if err := marshal.Validate(svg, opts); err != nil {
		return nil, err
	}

	inst, err := r.engine.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer r.engine.Release(inst)

	return r.render(ctx, inst, svg, opts)
}

// render runs one call on inst. Cleanup is deferred before the first
// allocation and recovers panics after the regions are freed.
func (r *Renderer) render(ctx context.Context, inst resvgruntime.Instance, svg string, opts *resvgruntime.Options) (out []byte, err error) {
	tracker := marshal.NewTracker()
	phase := errors.PhaseMarshal

	defer func() {
		rec := recover()
		r.cleanup(inst, tracker, phase)
		if rec != nil {
			r.log.Error("render panicked", zap.String("phase", string(phase)), zap.Any("panic", rec))
			out = nil
			if e, ok := rec.(error); ok {
				err = errors.Fault(phase, "render panicked", e)
			} else {
				err = errors.Fault(phase, fmt.Sprintf("render panicked: %v", rec), nil)
			}
		}
	}()

	m, err := marshal.New(inst, tracker)
	if err != nil {
		return nil, err
	}
	doc, err := m.Document(svg)
	if err != nil {
		return nil, err
	}
	block, err := m.Options(opts)
	if err != nil {
		return nil, err
	}
	bufSlot, lenSlot, err := m.OutSlots()
	if err != nil {
		return nil, err
	}

	r.log.Debug("options marshaled",
		zap.String("platform", inst.Platform().Name),
		zap.Int("regions", tracker.Count()),
		zap.Int("fonts", len(opts.Fonts)))

	phase = errors.PhaseCall
	buf, n, err := r.call(ctx, inst, doc, block, bufSlot, lenSlot)
	if err != nil {
		return nil, err
	}

	phase = errors.PhaseTransfer
	out, err = r.transfer(ctx, inst, buf, n)
	if err != nil {
		return nil, err
	}

	r.log.Debug("render complete", zap.Int("bytes", len(out)))
	return out, nil
}
