package observability

import (
	"runtime/debug"
)

// RecoverPanic logs a recovered panic with its stack. It must be deferred
// directly:
//
//	go func() {
//	    defer observability.RecoverPanic(logger, "replica health check")
//	    // ...
//	}()
func RecoverPanic(logger *Logger, where string) {
	if r := recover(); r != nil {
		logPanic(logger, where, r)
	}
}

// RecoverPanicWithCallback is RecoverPanic followed by onPanic, which only
// runs when a panic was recovered.
func RecoverPanicWithCallback(logger *Logger, where string, onPanic func()) {
	if r := recover(); r != nil {
		logPanic(logger, where, r)
		if onPanic != nil {
			onPanic()
		}
	}
}

func logPanic(logger *Logger, where string, value interface{}) {
	logger.WithFields(map[string]interface{}{
		"panic":   value,
		"context": where,
		"stack":   string(debug.Stack()),
	}).Error("PANIC recovered")
}
