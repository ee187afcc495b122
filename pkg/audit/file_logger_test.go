package audit

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileLogger_Basic(t *testing.T) {
	tmpDir := t.TempDir()

	config := FileLoggerConfig{
		BasePath: tmpDir,
		Rotate:   false,
		MaxSize:  1024 * 1024,
		MaxFiles: 5,
	}

	logger, err := NewFileLogger(config)
	require.NoError(t, err)
	defer logger.Close()

	// Log an event
	ctx := context.Background()
	event := &Event{
		Timestamp:  time.Now().UTC(),
		EventType:  EventTypeLoginSuccess,
		Status:     EventStatusSuccess,
		App:        "wiki",
		AuthMethod: "FORM",
		Username:   "alice",
		SessionID:  "sess-1",
		IPAddress:  "192.168.1.1",
		Message:    "form login accepted",
	}

	err = logger.Log(ctx, event)
	require.NoError(t, err)

	// Verify log file was created
	logFile := filepath.Join(tmpDir, "audit.log")
	assert.FileExists(t, logFile)

	// Read and verify content
	events, err := logger.ReadLogs(10)
	require.NoError(t, err)
	assert.Len(t, events, 1)
	assert.Equal(t, EventTypeLoginSuccess, events[0].EventType)
	assert.Equal(t, "alice", events[0].Username)
	assert.Equal(t, "wiki", events[0].App)
}

func TestFileLogger_MultipleEvents(t *testing.T) {
	tmpDir := t.TempDir()

	logger, err := NewFileLogger(FileLoggerConfig{BasePath: tmpDir})
	require.NoError(t, err)
	defer logger.Close()

	ctx := context.Background()
	types := []EventType{
		EventTypeDecisionAnonymous,
		EventTypeLoginSuccess,
		EventTypeSSOEstablish,
		EventTypeDecisionAllow,
	}
	for _, eventType := range types {
		err := logger.Log(ctx, &Event{
			Timestamp: time.Now().UTC(),
			EventType: eventType,
			Status:    EventStatusSuccess,
			Username:  "alice",
		})
		require.NoError(t, err)
	}

	events, err := logger.ReadLogs(0)
	require.NoError(t, err)
	require.Len(t, events, 4)
	for i, eventType := range types {
		assert.Equal(t, eventType, events[i].EventType)
	}
}

func TestFileLogger_ReadLogs_Count(t *testing.T) {
	tmpDir := t.TempDir()

	logger, err := NewFileLogger(FileLoggerConfig{BasePath: tmpDir})
	require.NoError(t, err)
	defer logger.Close()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		err := logger.Log(ctx, &Event{
			Timestamp: time.Now().UTC(),
			EventType: EventTypeDecisionAllow,
			Status:    EventStatusSuccess,
		})
		require.NoError(t, err)
	}

	events, err := logger.ReadLogs(3)
	require.NoError(t, err)
	assert.Len(t, events, 3)
}

func TestFileLogger_MetadataRoundTrip(t *testing.T) {
	tmpDir := t.TempDir()

	logger, err := NewFileLogger(FileLoggerConfig{BasePath: tmpDir})
	require.NoError(t, err)
	defer logger.Close()

	event := &Event{
		Timestamp: time.Now().UTC(),
		EventType: EventTypeDecisionDenied,
		Status:    EventStatusDenied,
		App:       "wiki",
		Metadata: map[string]interface{}{
			"constraint": "wiki-admin",
			"roles":      []interface{}{"users"},
		},
	}

	require.NoError(t, logger.Log(context.Background(), event))

	events, err := logger.ReadLogs(1)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "wiki-admin", events[0].Metadata["constraint"])
}

func TestFileLogger_Rotation(t *testing.T) {
	tmpDir := t.TempDir()

	// Tiny max size so the second write triggers rotation
	config := FileLoggerConfig{
		BasePath: tmpDir,
		Rotate:   true,
		MaxSize:  64,
		MaxFiles: 5,
	}

	logger, err := NewFileLogger(config)
	require.NoError(t, err)
	defer logger.Close()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		err := logger.Log(ctx, &Event{
			Timestamp: time.Now().UTC(),
			EventType: EventTypeDecisionAllow,
			Status:    EventStatusSuccess,
			Username:  "alice",
			Message:   "padding so each record exceeds the rotation threshold",
		})
		require.NoError(t, err)
	}

	// The first write lands in a fresh file; the next two each cross
	// the threshold and rotate before writing.
	rotated, err := filepath.Glob(filepath.Join(tmpDir, "audit-*.log"))
	require.NoError(t, err)
	assert.Len(t, rotated, 2)
	assert.FileExists(t, filepath.Join(tmpDir, "audit.log"))

	// The active file holds only the event written after the last rotation
	events, err := logger.ReadLogs(0)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestFileLogger_PruneKeepsNewest(t *testing.T) {
	tmpDir := t.TempDir()

	logger, err := NewFileLogger(FileLoggerConfig{
		BasePath: tmpDir,
		Rotate:   true,
		MaxSize:  1, // Every write after the first rotates
		MaxFiles: 2,
	})
	require.NoError(t, err)
	defer logger.Close()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, logger.Log(ctx, &Event{
			Timestamp: time.Now().UTC(),
			EventType: EventTypeDecisionAllow,
			Status:    EventStatusSuccess,
			Username:  "alice",
		}))
	}

	rotated, err := filepath.Glob(filepath.Join(tmpDir, "audit-*.log"))
	require.NoError(t, err)
	assert.Len(t, rotated, 2)
	assert.FileExists(t, filepath.Join(tmpDir, "audit.log"))
}

func TestFileLogger_LogAfterClose(t *testing.T) {
	logger, err := NewFileLogger(FileLoggerConfig{BasePath: t.TempDir()})
	require.NoError(t, err)
	require.NoError(t, logger.Close())

	err = logger.Log(context.Background(), &Event{
		Timestamp: time.Now().UTC(),
		EventType: EventTypeLoginSuccess,
		Status:    EventStatusSuccess,
	})
	assert.Error(t, err)
}

func TestFileLogger_ReadLogs_MissingFile(t *testing.T) {
	tmpDir := t.TempDir()

	logger, err := NewFileLogger(FileLoggerConfig{BasePath: tmpDir})
	require.NoError(t, err)
	require.NoError(t, logger.Close())

	require.NoError(t, os.Remove(filepath.Join(tmpDir, "audit.log")))

	events, err := logger.ReadLogs(10)
	assert.Error(t, err)
	assert.Nil(t, events)
}

func TestDefaultFileLoggerConfig(t *testing.T) {
	config := DefaultFileLoggerConfig()

	assert.Equal(t, "/var/log/foyer/audit", config.BasePath)
	assert.True(t, config.Rotate)
	assert.Equal(t, int64(100*1024*1024), config.MaxSize)
	assert.Equal(t, 10, config.MaxFiles)
}
