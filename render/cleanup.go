package render

import (
	resvgruntime "github.com/wippyai/resvg-runtime"
	"github.com/wippyai/resvg-runtime/errors"
	"github.com/wippyai/resvg-runtime/marshal"
	"go.uber.org/zap"
)

// cleanup frees every tracked region and returns the tracker to its pool.
// It never touches the engine's output buffer.
func (r *Renderer) cleanup(inst resvgruntime.Instance, tracker *marshal.Tracker, phase errors.Phase) {
	defer func() {
		if rec := recover(); rec != nil {
			// The allocator failed mid-free; the remaining regions are lost
			// with the instance.
			r.log.Error("region cleanup panicked",
				zap.String("phase", string(phase)),
				zap.Any("panic", rec))
		}
	}()

	n := tracker.Free(inst.Allocator())
	tracker.Release()
	r.log.Debug("regions released", zap.Int("count", n), zap.String("phase", string(phase)))
}
