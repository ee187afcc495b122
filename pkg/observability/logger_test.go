package observability

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
)

// parseLine unmarshals the single JSON log line in buf. slog puts custom
// fields at the top level next to "msg" and "level".
func parseLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	line := map[string]interface{}{}
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("failed to unmarshal log line %q: %v", buf.String(), err)
	}
	return line
}

func TestLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	t.Run("debug suppressed at info level", func(t *testing.T) {
		buf.Reset()
		logger.Debug("debug message")
		if buf.Len() > 0 {
			t.Errorf("debug line emitted at info level: %s", buf.String())
		}
	})

	t.Run("info emitted", func(t *testing.T) {
		buf.Reset()
		logger.Info("info message")

		line := parseLine(t, &buf)
		if line["level"] != "INFO" {
			t.Errorf("level = %v, want INFO", line["level"])
		}
		if line["msg"] != "info message" {
			t.Errorf("msg = %v, want info message", line["msg"])
		}
	})

	t.Run("warn emitted", func(t *testing.T) {
		buf.Reset()
		logger.Warn("warn message")

		line := parseLine(t, &buf)
		if line["level"] != "WARN" {
			t.Errorf("level = %v, want WARN", line["level"])
		}
	})

	t.Run("error emitted", func(t *testing.T) {
		buf.Reset()
		logger.Error("error message")

		line := parseLine(t, &buf)
		if line["level"] != "ERROR" {
			t.Errorf("level = %v, want ERROR", line["level"])
		}
	})
}

func TestLogger_WithField(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	logger.WithField("app", "wiki").Info("routed")

	line := parseLine(t, &buf)
	if line["app"] != "wiki" {
		t.Errorf("app = %v, want wiki", line["app"])
	}
}

func TestLogger_WithFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	logger.WithFields(map[string]interface{}{
		"username": "alice",
		"attempts": 3,
	}).Info("lockout cleared")

	line := parseLine(t, &buf)
	if line["username"] != "alice" {
		t.Errorf("username = %v, want alice", line["username"])
	}
	if line["attempts"] != float64(3) {
		t.Errorf("attempts = %v, want 3", line["attempts"])
	}
}

func TestLogger_WithError(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	logger.WithError(errors.New("connection refused")).Error("probe failed")

	line := parseLine(t, &buf)
	if line["error"] != "connection refused" {
		t.Errorf("error = %v, want connection refused", line["error"])
	}
}

func TestLogger_WithErrorNil(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	logger.WithError(nil).Info("fine")

	line := parseLine(t, &buf)
	if _, exists := line["error"]; exists {
		t.Error("nil error produced an error field")
	}
}

func TestLogger_WithComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	sso := logger.WithComponent("sso")
	sso.Info("entry pruned")

	line := parseLine(t, &buf)
	if line["component"] != "sso" {
		t.Errorf("component = %v, want sso", line["component"])
	}

	// Deriving must not tag the parent.
	buf.Reset()
	logger.Info("plain")
	line = parseLine(t, &buf)
	if _, exists := line["component"]; exists {
		t.Error("parent logger inherited the component field")
	}
}

func TestLogger_Formatters(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(DebugLevel, &buf)

	tests := []struct {
		name string
		log  func()
		want string
	}{
		{"Debugf", func() { logger.Debugf("retry %d of %d", 2, 5) }, "retry 2 of 5"},
		{"Infof", func() { logger.Infof("loaded %d manifests", 4) }, "loaded 4 manifests"},
		{"Warnf", func() { logger.Warnf("slow probe: %s", "redis") }, "slow probe: redis"},
		{"Errorf", func() { logger.Errorf("reload failed: %v", "bad yaml") }, "reload failed: bad yaml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf.Reset()
			tt.log()

			line := parseLine(t, &buf)
			if line["msg"] != tt.want {
				t.Errorf("msg = %v, want %s", line["msg"], tt.want)
			}
		})
	}
}

func TestLogLevel_String(t *testing.T) {
	tests := []struct {
		level LogLevel
		want  string
	}{
		{DebugLevel, "DEBUG"},
		{InfoLevel, "INFO"},
		{WarnLevel, "WARN"},
		{ErrorLevel, "ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.level.String(); got != tt.want {
				t.Errorf("LogLevel.String() = %v, want %v", got, tt.want)
			}
		})
	}
}
