// safego.go — Panic-recovering goroutine launcher.
package util

import (
	"runtime/debug"

	"go.uber.org/zap"
)

// SafeGo launches fn in a goroutine with deferred panic recovery.
// On panic: logs the value and stack at error level. Does NOT exit; background
// panics should be survivable so the daemon stays up.
func SafeGo(logger *zap.Logger, fn func()) {
	go func() {
		defer Recover(logger, "background goroutine")
		fn()
	}()
}

// Recover logs a recovered panic. Call it deferred.
func Recover(logger *zap.Logger, where string) {
	r := recover()
	if r == nil {
		return
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Error("panic recovered",
		zap.String("where", where),
		zap.Any("panic", r),
		zap.ByteString("stack", debug.Stack()))
}
