package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// activeLogName is the file new events append to. Rotation renames it
// aside with a timestamp and starts a fresh one.
const activeLogName = "audit.log"

// rotatedTimeLayout orders rotated files chronologically when sorted by
// name. Nanosecond precision keeps back-to-back rotations from
// colliding on the same name.
const rotatedTimeLayout = "20060102-150405.000000000"

// FileLogger appends audit events to a newline-delimited JSON file and
// rotates it by size. It suits deployments that ship the audit trail
// through a log collector instead of, or alongside, the database store.
type FileLogger struct {
	dir      string
	rotate   bool
	maxSize  int64
	maxFiles int

	mu  sync.Mutex
	out *countingFile
	enc *json.Encoder
}

// countingFile tracks how many bytes the active file holds so the
// rotation check costs no stat call per event.
type countingFile struct {
	f *os.File
	n int64
}

func (c *countingFile) Write(p []byte) (int, error) {
	n, err := c.f.Write(p)
	c.n += int64(n)
	return n, err
}

// FileLoggerConfig configures the file logger
type FileLoggerConfig struct {
	BasePath string // Base directory for audit logs
	Rotate   bool   // Enable log rotation
	MaxSize  int64  // Max file size in bytes (default: 100MB)
	MaxFiles int    // Max number of rotated files to keep (default: 10)
}

// DefaultFileLoggerConfig returns default configuration
func DefaultFileLoggerConfig() FileLoggerConfig {
	return FileLoggerConfig{
		BasePath: "/var/log/foyer/audit",
		Rotate:   true,
		MaxSize:  100 * 1024 * 1024,
		MaxFiles: 10,
	}
}

// NewFileLogger creates a new file-based audit logger
func NewFileLogger(config FileLoggerConfig) (*FileLogger, error) {
	if err := os.MkdirAll(config.BasePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create audit log directory: %w", err)
	}

	logger := &FileLogger{
		dir:      config.BasePath,
		rotate:   config.Rotate,
		maxSize:  config.MaxSize,
		maxFiles: config.MaxFiles,
	}
	if logger.maxSize <= 0 {
		logger.maxSize = 100 * 1024 * 1024
	}
	if logger.maxFiles <= 0 {
		logger.maxFiles = 10
	}

	if err := logger.open(); err != nil {
		return nil, err
	}
	return logger, nil
}

// open attaches the logger to the active file, seeding the byte count
// from its current size. An oversized leftover from a previous run
// rotates on the first write.
func (l *FileLogger) open() error {
	name := filepath.Join(l.dir, activeLogName)
	f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open audit log: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("failed to stat audit log: %w", err)
	}

	l.out = &countingFile{f: f, n: info.Size()}
	l.enc = json.NewEncoder(l.out)
	return nil
}

// rollOver renames the active file aside, prunes stale rotated files,
// and opens a fresh one.
func (l *FileLogger) rollOver() error {
	if l.out != nil {
		l.out.f.Close()
		l.out = nil
		l.enc = nil
	}

	active := filepath.Join(l.dir, activeLogName)
	rotated := filepath.Join(l.dir, "audit-"+time.Now().UTC().Format(rotatedTimeLayout)+".log")
	if err := os.Rename(active, rotated); err != nil {
		return fmt.Errorf("failed to rotate audit log: %w", err)
	}

	l.prune()
	return l.open()
}

// prune deletes the oldest rotated files beyond the retention count.
// The rotated name layout sorts chronologically, so Glob's sorted
// output is oldest-first.
func (l *FileLogger) prune() {
	files, err := filepath.Glob(filepath.Join(l.dir, "audit-*.log"))
	if err != nil || len(files) <= l.maxFiles {
		return
	}
	for _, stale := range files[:len(files)-l.maxFiles] {
		if err := os.Remove(stale); err != nil {
			// Rotation already succeeded; a failed prune only leaves
			// extra history behind.
			fmt.Fprintf(os.Stderr, "failed to remove rotated audit log %s: %v\n", stale, err)
		}
	}
}

// Log appends the event to the active file, rotating first when the
// size limit is reached.
func (l *FileLogger) Log(ctx context.Context, event *Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.out == nil {
		return errors.New("audit log closed")
	}

	if l.rotate && l.out.n >= l.maxSize {
		if err := l.rollOver(); err != nil {
			return err
		}
	}

	if err := l.enc.Encode(event); err != nil {
		return fmt.Errorf("failed to write audit event: %w", err)
	}
	return nil
}

// Close closes the active file. Further Log calls fail.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.out == nil {
		return nil
	}
	err := l.out.f.Close()
	l.out = nil
	l.enc = nil
	return err
}

// ReadLogs reads up to count audit events from the active log file.
// count <= 0 reads everything. Rotated files are not consulted.
func (l *FileLogger) ReadLogs(count int) ([]*Event, error) {
	f, err := os.Open(filepath.Join(l.dir, activeLogName))
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	defer f.Close()

	var events []*Event
	decoder := json.NewDecoder(f)
	for count <= 0 || len(events) < count {
		var event Event
		if err := decoder.Decode(&event); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("failed to decode audit event: %w", err)
		}
		events = append(events, &event)
	}
	return events, nil
}
