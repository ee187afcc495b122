package audit

import (
	"context"
	"errors"
	"fmt"
)

// MultiLogger fans one event out to several destinations, typically the
// file trail plus the database. Writes are sequential; the Recorder
// already runs the whole fan-out off the request path, so destinations
// need no goroutines of their own.
type MultiLogger struct {
	loggers []Logger
}

// NewMultiLogger combines destinations into one Logger.
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	return &MultiLogger{loggers: loggers}
}

// Log writes the event to every destination. A failing destination does
// not stop the others; all failures come back joined.
func (m *MultiLogger) Log(ctx context.Context, event *Event) error {
	var errs []error
	for i, logger := range m.loggers {
		if err := logger.Log(ctx, event); err != nil {
			errs = append(errs, fmt.Errorf("destination %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// Close closes every destination and reports all failures.
func (m *MultiLogger) Close() error {
	var errs []error
	for i, logger := range m.loggers {
		if err := logger.Close(); err != nil {
			errs = append(errs, fmt.Errorf("destination %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}
