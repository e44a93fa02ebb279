package utils

import (
	"runtime/debug"

	"golang-stock-trader/pkg/logger"

	"go.uber.org/zap"
)

// GoSafe runs fn in a goroutine and recovers any panic so it cannot take the process down.
// Recovered panics are logged on log, or on zap's global logger when log is nil.
func GoSafe(log *logger.Logger, fn func()) {
	if log == nil {
		log = &logger.Logger{Logger: zap.L()}
	}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error("Recovered from panic",
					logger.Field("panic", r),
					logger.StringField("stack", string(debug.Stack())),
				)
			}
		}()
		fn()
	}()
}
