package render

import (
	"context"

	resvgruntime "github.com/wippyai/resvg-runtime"
	"github.com/wippyai/resvg-runtime/errors"
	"github.com/wippyai/resvg-runtime/layout"
	"go.uber.org/zap"
)

// call invokes the entry point. The out slots are read only on status 0; a
// non-zero status is translated and the slots are ignored.
func (r *Renderer) call(ctx context.Context, inst resvgruntime.Instance, doc, block, bufSlot, lenSlot uint64) (buf, n uint64, err error) {
	status, err := inst.Render(ctx, doc, block, bufSlot, lenSlot)
	if err != nil {
		return 0, 0, errors.Fault(errors.PhaseCall, "engine call failed", err)
	}
	if status != errors.StatusOK {
		r.log.Debug("engine reported failure", zap.Int32("status", status))
		return 0, 0, errors.FromStatus(status)
	}

	plat := inst.Platform()
	mem := inst.Memory()
	buf, err = layout.ReadWord(mem, bufSlot, plat.PointerSize)
	if err != nil {
		return 0, 0, errors.OutOfBounds(errors.PhaseCall, bufSlot, plat.PointerSize, err)
	}
	n, err = layout.ReadWord(mem, lenSlot, plat.SizeSize)
	if err != nil {
		return 0, 0, errors.OutOfBounds(errors.PhaseCall, lenSlot, plat.SizeSize, err)
	}
	return buf, n, nil
}
