package audit

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/platinummonkey/foyer/pkg/contextkeys"
)

// Logger is the write side of an audit destination. Implementations must
// be safe for concurrent use.
type Logger interface {
	// Log persists one audit event.
	Log(ctx context.Context, event *Event) error

	// Close closes the logger and flushes any buffered events.
	Close() error
}

// NopLogger discards every event. It stands in when auditing is
// disabled so callers never need a nil check.
type NopLogger struct{}

func (NopLogger) Log(ctx context.Context, event *Event) error { return nil }
func (NopLogger) Close() error                                { return nil }

// NewEvent builds an event of the given type with the request context
// fields filled in. r may be nil for events that did not originate from
// an HTTP request.
func NewEvent(r *http.Request, eventType EventType, status EventStatus) *Event {
	event := &Event{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Status:    status,
	}
	if r != nil {
		event.IPAddress = ClientIP(r)
		event.UserAgent = r.UserAgent()
		event.Method = r.Method
		event.Path = r.URL.Path
		event.RequestID = contextkeys.GetRequestID(r.Context())
	}
	return event
}

// ClientIP returns the originating client address, honoring proxy
// headers before falling back to the connection address.
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		// The first entry is the original client.
		if idx := strings.IndexByte(forwarded, ','); idx >= 0 {
			return strings.TrimSpace(forwarded[:idx])
		}
		return strings.TrimSpace(forwarded)
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	return r.RemoteAddr
}
