package utils

import (
	"runtime/debug"

	"go.uber.org/zap"
)

// SafeGo starts fn in a goroutine and logs, instead of propagating, any panic.
func SafeGo(log *zap.Logger, name string, fn func()) {
	go func() {
		defer Recover(log, name)
		fn()
	}()
}

// Recover logs a recovered panic with its stack. It must be deferred directly.
func Recover(log *zap.Logger, name string) {
	if r := recover(); r != nil {
		log.Error("goroutine panic recovered",
			zap.String("goroutine", name),
			zap.Any("panic", r),
			zap.ByteString("stack", debug.Stack()),
		)
	}
}
