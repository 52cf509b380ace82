package tracing

import (
	"github.com/sarchlab/shadowmem/hooking"
	"github.com/sarchlab/shadowmem/shadow"
	"go.uber.org/zap"
)

// A LogHook writes the activity of a shadow Manager to a zap logger. Page
// allocations are logged at info level and every recorded byte at debug
// level.
type LogHook struct {
	*zap.Logger
}

// NewLogHook creates a LogHook that writes to logger.
func NewLogHook(logger *zap.Logger) *LogHook {
	return &LogHook{Logger: logger.Named("shadow")}
}

// Func logs the hook site.
func (h *LogHook) Func(ctx hooking.HookCtx) {
	switch ctx.Pos {
	case shadow.HookPosPageAlloc:
		alloc := ctx.Item.(shadow.PageAlloc)
		h.Info("page allocated", zap.String("base", hexAddr(alloc.Base)))
	case shadow.HookPosRecord:
		if !h.Core().Enabled(zap.DebugLevel) {
			return
		}

		patch := ctx.Item.(shadow.Patch)
		h.Debug("byte recorded",
			zap.String("address", hexAddr(patch.Address)),
			zap.Uint8("value", patch.Value),
		)
	}
}
