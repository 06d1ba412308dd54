package async

import (
	"runtime/debug"

	"cadence/internal/logging"
)

// Go runs fn in a goroutine guarded by panic recovery.
func Go(logger *logging.Logger, name string, fn func()) {
	go func() {
		defer Recover(logger, name)
		fn()
	}()
}

// Recover logs panic details without crashing the process.
func Recover(logger *logging.Logger, name string) {
	if r := recover(); r != nil {
		if logger == nil {
			return
		}
		logger.Error("goroutine panic", "name", name, "panic", r, "stack", string(debug.Stack()))
	}
}

// Invoke calls fn inside a panic guard. Consumer callbacks run through this
// shim so a panicking callback cannot destabilise the calling engine.
func Invoke(logger *logging.Logger, name string, fn func()) {
	if fn == nil {
		return
	}
	defer Recover(logger, name)
	fn()
}
