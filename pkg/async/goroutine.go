package async

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/platinummonkey/foyer/pkg/observability"
)

// SafeGo runs fn on its own goroutine under a context bounded by timeout.
// A panic in fn is recovered and logged with its stack trace instead of
// crashing the process, and a non-nil error from fn is logged. The task
// name keys the log entries. A nil log falls back to a default logger.
//
// SafeGo is for short fire-and-forget work such as audit writes.
// Long-lived loops should own their goroutines; the timeout would cut
// them off.
func SafeGo(parent context.Context, timeout time.Duration, task string, log *observability.Logger, fn func(context.Context) error) {
	if log == nil {
		log = observability.NewLogger(observability.InfoLevel, nil)
	}
	go func() {
		ctx, cancel := context.WithTimeout(parent, timeout)
		defer cancel()

		defer func() {
			if r := recover(); r != nil {
				log.WithFields(map[string]interface{}{
					"task":  task,
					"panic": fmt.Sprint(r),
					"stack": string(debug.Stack()),
				}).Error("background task panicked")
			}
		}()

		if err := fn(ctx); err != nil {
			log.WithField("task", task).WithError(err).Error("background task failed")
		}
	}()
}
