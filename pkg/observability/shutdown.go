package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// ShutdownFunc closes one subsystem.
type ShutdownFunc func(context.Context) error

type namedShutdown struct {
	name string
	fn   ShutdownFunc
}

// ShutdownManager drains the gateway on SIGINT or SIGTERM: the main
// listener stops accepting first, then registered subsystems close in
// registration order under a shared deadline. Register in dependency
// order; the audit recorder must close before the database it writes to.
type ShutdownManager struct {
	logger  *Logger
	server  *http.Server
	funcs   []namedShutdown
	timeout time.Duration
	mu      sync.Mutex
}

// NewShutdownManager creates a manager draining server and any
// registered subsystems within timeout.
func NewShutdownManager(logger *Logger, server *http.Server, timeout time.Duration) *ShutdownManager {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = NewLogger(InfoLevel, nil)
	}
	return &ShutdownManager{
		logger:  logger,
		server:  server,
		timeout: timeout,
	}
}

// Register adds a subsystem closer under a name used in shutdown logs.
func (sm *ShutdownManager) Register(name string, fn ShutdownFunc) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.funcs = append(sm.funcs, namedShutdown{name: name, fn: fn})
}

// WaitForShutdown blocks until SIGINT or SIGTERM, then drains. Every
// subsystem is attempted even after earlier failures or an exhausted
// deadline; the combined error reports everything that went wrong.
func (sm *ShutdownManager) WaitForShutdown() error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	sm.logger.WithField("signal", sig.String()).Info("starting graceful shutdown")

	return sm.drain()
}

// drain stops the main listener, then closes subsystems in registration
// order under the shared deadline.
func (sm *ShutdownManager) drain() error {
	ctx, cancel := context.WithTimeout(context.Background(), sm.timeout)
	defer cancel()

	var errs []error

	if sm.server != nil {
		if err := sm.server.Shutdown(ctx); err != nil {
			sm.logger.WithError(err).Error("main listener shutdown failed")
			errs = append(errs, fmt.Errorf("main listener: %w", err))
		}
	}

	sm.mu.Lock()
	funcs := sm.funcs
	sm.mu.Unlock()

	deadlineWarned := false
	for _, ns := range funcs {
		if ctx.Err() != nil && !deadlineWarned {
			sm.logger.Warn("shutdown window exhausted, closing remaining subsystems best-effort")
			deadlineWarned = true
		}
		if err := ns.fn(ctx); err != nil {
			sm.logger.WithField("component", ns.name).WithError(err).Error("subsystem shutdown failed")
			errs = append(errs, fmt.Errorf("%s: %w", ns.name, err))
			continue
		}
		sm.logger.WithField("component", ns.name).Debug("subsystem closed")
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	sm.logger.Info("graceful shutdown complete")
	return nil
}
