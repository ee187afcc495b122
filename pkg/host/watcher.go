package host

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/platinummonkey/foyer/pkg/observability"
)

// DefaultDebounce coalesces bursts of file events (editors write several
// times per save) into one reload.
const DefaultDebounce = 500 * time.Millisecond

// Watcher reloads the manifest directory when its files change and hands
// the freshly validated set to a callback. A directory that fails to load
// keeps the previous set in service.
type Watcher struct {
	dir      string
	debounce time.Duration
	logger   *observability.Logger
	onReload func([]*App)

	fsw      *fsnotify.Watcher
	stop     chan struct{}
	stopOnce sync.Once
}

// NewWatcher creates a watcher for dir. onReload is invoked with each
// successfully loaded manifest set.
func NewWatcher(dir string, debounce time.Duration, logger *observability.Logger, onReload func([]*App)) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	return &Watcher{
		dir:      dir,
		debounce: debounce,
		logger:   logger.WithField("component", "host-watcher"),
		onReload: onReload,
		fsw:      fsw,
		stop:     make(chan struct{}),
	}, nil
}

// Start begins watching. The context bounds each reload's manifest
// parsing, not the watch loop; use Close to stop watching.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.fsw.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}

	go w.loop(ctx)
	w.logger.WithField("dir", w.dir).Info("watching application manifests")
	return nil
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	w.stopOnce.Do(func() {
		close(w.stop)
	})
	return w.fsw.Close()
}

func (w *Watcher) loop(ctx context.Context) {
	// The timer starts drained; relevant events re-arm it so a burst of
	// writes produces a single reload.
	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-w.stop:
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !manifestEvent(event) {
				continue
			}
			w.logger.WithFields(map[string]interface{}{
				"file": event.Name,
				"op":   event.Op.String(),
			}).Debug("manifest change detected")
			timer.Reset(w.debounce)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.WithError(err).Warn("manifest watcher error")

		case <-timer.C:
			w.reload(ctx)
		}
	}
}

func (w *Watcher) reload(ctx context.Context) {
	apps, err := LoadDir(ctx, w.dir)
	if err != nil {
		w.logger.WithError(err).Error("manifest reload failed, keeping previous applications")
		return
	}
	w.logger.WithField("apps", len(apps)).Info("reloaded application manifests")
	w.onReload(apps)
}

func manifestEvent(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	name := event.Name
	return strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml")
}
