package render

import (
	"bytes"
	"context"

	resvgruntime "github.com/wippyai/resvg-runtime"
	"github.com/wippyai/resvg-runtime/errors"
	"go.uber.org/zap"
)

// transfer copies the engine's output into Go memory. free_png_buffer is
// deferred first, so it runs exactly once with the returned pair even when
// the copy fails or panics.
func (r *Renderer) transfer(ctx context.Context, inst resvgruntime.Instance, buf, n uint64) ([]byte, error) {
	defer func() {
		if err := inst.FreeOutput(context.WithoutCancel(ctx), buf, n); err != nil {
			r.log.Warn("failed to free engine output",
				zap.Uint64("buf", buf),
				zap.Uint64("len", n),
				zap.Error(err))
		}
	}()

	if buf == 0 || n == 0 {
		return nil, errors.New(errors.PhaseTransfer, errors.KindRender).
			Detail("engine returned an empty output buffer (addr=%#x, len=%d)", buf, n).
			Build()
	}
	if n > r.maxOutput {
		return nil, errors.New(errors.PhaseTransfer, errors.KindOverflow).
			Value(n).
			Detail("output size %d exceeds maximum %d", n, r.maxOutput).
			Build()
	}

	data, err := inst.Memory().Read(buf, n)
	if err != nil {
		return nil, errors.OutOfBounds(errors.PhaseTransfer, buf, n, err)
	}
	if uint64(len(data)) != n {
		return nil, errors.OutOfBounds(errors.PhaseTransfer, buf, n, nil)
	}
	return bytes.Clone(data), nil
}
