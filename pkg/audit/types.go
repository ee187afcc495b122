package audit

import (
	"encoding/json"
	"time"
)

// EventType represents the category of audit event
type EventType string

const (
	// Decision events, one per request that reached the pipeline
	EventTypeDecisionAllow     EventType = "decision.allow"
	EventTypeDecisionAnonymous EventType = "decision.anonymous"
	EventTypeDecisionChallenge EventType = "decision.challenge"
	EventTypeDecisionDenied    EventType = "decision.denied"
	EventTypeDecisionError     EventType = "decision.error"

	// Login and logout events
	EventTypeLoginSuccess EventType = "login.success"
	EventTypeLoginFailed  EventType = "login.failed"
	EventTypeLogout       EventType = "logout"

	// Session lifecycle events
	EventTypeSessionCreate  EventType = "session.create"
	EventTypeSessionDestroy EventType = "session.destroy"

	// Single sign-on events
	EventTypeSSOEstablish EventType = "sso.establish"
	EventTypeSSOAssociate EventType = "sso.associate"
	EventTypeSSOSignout   EventType = "sso.signout"

	// Token administration events
	EventTypeTokenCreate EventType = "token.create"
	EventTypeTokenRevoke EventType = "token.revoke"
)

// EventStatus represents the outcome of an event
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
	EventStatusDenied  EventStatus = "denied"
)

// Event represents a single audit log entry
type Event struct {
	// Core fields
	ID        int64       `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	EventType EventType   `json:"event_type"`
	Status    EventStatus `json:"status"`

	// Decision context
	App        string `json:"app,omitempty"`
	AuthMethod string `json:"auth_method,omitempty"`
	Username   string `json:"username,omitempty"`
	SessionID  string `json:"session_id,omitempty"`
	SSOID      string `json:"sso_id,omitempty"`

	// Request context
	IPAddress  string `json:"ip_address,omitempty"`
	UserAgent  string `json:"user_agent,omitempty"`
	RequestID  string `json:"request_id,omitempty"`
	Method     string `json:"method,omitempty"`
	Path       string `json:"path,omitempty"`
	StatusCode int    `json:"status_code,omitempty"`

	// Additional details
	Message      string                 `json:"message,omitempty"`
	ErrorMessage string                 `json:"error_message,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// ToJSON converts the audit event to JSON
func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// FromJSON parses an audit event from JSON
func FromJSON(data []byte) (*Event, error) {
	var event Event
	err := json.Unmarshal(data, &event)
	return &event, err
}

// SearchFilter represents filters for searching audit logs
type SearchFilter struct {
	// Time range
	StartTime *time.Time
	EndTime   *time.Time

	// Actor filters
	Username   string
	App        string
	AuthMethod string
	SSOID      string

	// Event filters
	EventTypes []EventType
	Status     *EventStatus

	// Request context filters
	IPAddress string
	Method    string
	Path      string

	// Pagination
	Limit  int
	Offset int

	// Sorting
	SortBy    string // field name to sort by
	SortOrder string // "asc" or "desc"
}

// ExportFormat represents the format for exporting audit logs
type ExportFormat string

const (
	ExportFormatJSON   ExportFormat = "json"
	ExportFormatCSV    ExportFormat = "csv"
	ExportFormatNDJSON ExportFormat = "ndjson" // Newline-delimited JSON
)

// Stats represents statistics about audit logs
type Stats struct {
	TotalEvents    int64                 `json:"total_events"`
	EventsByType   map[EventType]int64   `json:"events_by_type"`
	EventsByStatus map[EventStatus]int64 `json:"events_by_status"`
	EventsByApp    map[string]int64      `json:"events_by_app"`
	EventsByMethod map[string]int64      `json:"events_by_method"`
	UniqueUsers    int64                 `json:"unique_users"`
	UniqueIPs      int64                 `json:"unique_ips"`
	FailedLogins   int64                 `json:"failed_logins"`
	AccessDenials  int64                 `json:"access_denials"`
	TimeRange      *TimeRange            `json:"time_range,omitempty"`
}

// TimeRange represents a time range for statistics
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// RetentionPolicy defines how long audit logs should be kept
type RetentionPolicy struct {
	// RetentionDays is the number of days to keep audit logs
	RetentionDays int
}

// DefaultRetentionPolicy returns a default retention policy (90 days)
func DefaultRetentionPolicy() RetentionPolicy {
	return RetentionPolicy{
		RetentionDays: 90,
	}
}
