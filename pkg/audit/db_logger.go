package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// DBLogger implements audit logging to PostgreSQL
type DBLogger struct {
	db *sql.DB
}

// NewDBLogger creates a new database-based audit logger
func NewDBLogger(db *sql.DB) (*DBLogger, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	logger := &DBLogger{
		db: db,
	}

	// Ensure the foyer_audit_logs table exists
	if err := logger.ensureTable(); err != nil {
		return nil, fmt.Errorf("failed to ensure foyer_audit_logs table: %w", err)
	}

	return logger, nil
}

// ensureTable creates the foyer_audit_logs table if it doesn't exist
func (l *DBLogger) ensureTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS foyer_audit_logs (
		id BIGSERIAL PRIMARY KEY,
		timestamp TIMESTAMP WITH TIME ZONE NOT NULL,
		event_type VARCHAR(100) NOT NULL,
		status VARCHAR(20) NOT NULL,
		app VARCHAR(255),
		auth_method VARCHAR(20),
		username VARCHAR(255),
		session_id VARCHAR(100),
		sso_id VARCHAR(100),
		ip_address VARCHAR(45),
		user_agent TEXT,
		request_id VARCHAR(100),
		method VARCHAR(10),
		path TEXT,
		status_code INTEGER,
		message TEXT,
		error_message TEXT,
		metadata JSONB,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);

	-- Create indexes for common query patterns
	CREATE INDEX IF NOT EXISTS idx_foyer_audit_logs_timestamp ON foyer_audit_logs(timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_foyer_audit_logs_event_type ON foyer_audit_logs(event_type);
	CREATE INDEX IF NOT EXISTS idx_foyer_audit_logs_username ON foyer_audit_logs(username);
	CREATE INDEX IF NOT EXISTS idx_foyer_audit_logs_app ON foyer_audit_logs(app);
	CREATE INDEX IF NOT EXISTS idx_foyer_audit_logs_sso_id ON foyer_audit_logs(sso_id);
	CREATE INDEX IF NOT EXISTS idx_foyer_audit_logs_status ON foyer_audit_logs(status);
	CREATE INDEX IF NOT EXISTS idx_foyer_audit_logs_ip_address ON foyer_audit_logs(ip_address);
	`

	_, err := l.db.Exec(query)
	return err
}

// Log logs an audit event to the database
func (l *DBLogger) Log(ctx context.Context, event *Event) error {
	var metadataJSON []byte
	var err error

	if event.Metadata != nil {
		metadataJSON, err = json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}

	query := `
		INSERT INTO foyer_audit_logs (
			timestamp, event_type, status,
			app, auth_method, username, session_id, sso_id,
			ip_address, user_agent, request_id,
			method, path, status_code,
			message, error_message, metadata
		) VALUES (
			$1, $2, $3,
			$4, $5, $6, $7, $8,
			$9, $10, $11,
			$12, $13, $14,
			$15, $16, $17
		) RETURNING id
	`

	err = l.db.QueryRowContext(ctx, query,
		event.Timestamp, event.EventType, event.Status,
		event.App, event.AuthMethod, event.Username, event.SessionID, event.SSOID,
		event.IPAddress, event.UserAgent, event.RequestID,
		event.Method, event.Path, event.StatusCode,
		event.Message, event.ErrorMessage, metadataJSON,
	).Scan(&event.ID)

	if err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}

	return nil
}

// Close is a no-op; the caller owns the database handle.
func (l *DBLogger) Close() error {
	return nil
}

// auditColumns is the scan column list shared by Search and Get.
const auditColumns = `
	id, timestamp, event_type, status,
	app, auth_method, username, session_id, sso_id,
	ip_address, user_agent, request_id,
	method, path, status_code,
	message, error_message, metadata
`

// sortableColumns restricts ORDER BY targets to real column names so
// filter input never reaches the SQL text.
var sortableColumns = map[string]bool{
	"timestamp":  true,
	"event_type": true,
	"status":     true,
	"username":   true,
	"app":        true,
}

// Search searches audit logs based on filters
func (l *DBLogger) Search(ctx context.Context, filter SearchFilter) ([]*Event, error) {
	query := `SELECT ` + auditColumns + ` FROM foyer_audit_logs WHERE 1=1`

	args := []interface{}{}
	argCount := 1

	if filter.StartTime != nil {
		query += fmt.Sprintf(" AND timestamp >= $%d", argCount)
		args = append(args, *filter.StartTime)
		argCount++
	}

	if filter.EndTime != nil {
		query += fmt.Sprintf(" AND timestamp <= $%d", argCount)
		args = append(args, *filter.EndTime)
		argCount++
	}

	if filter.Username != "" {
		query += fmt.Sprintf(" AND username = $%d", argCount)
		args = append(args, filter.Username)
		argCount++
	}

	if filter.App != "" {
		query += fmt.Sprintf(" AND app = $%d", argCount)
		args = append(args, filter.App)
		argCount++
	}

	if filter.AuthMethod != "" {
		query += fmt.Sprintf(" AND auth_method = $%d", argCount)
		args = append(args, filter.AuthMethod)
		argCount++
	}

	if filter.SSOID != "" {
		query += fmt.Sprintf(" AND sso_id = $%d", argCount)
		args = append(args, filter.SSOID)
		argCount++
	}

	if len(filter.EventTypes) > 0 {
		query += fmt.Sprintf(" AND event_type = ANY($%d)", argCount)
		eventTypeStrs := make([]string, len(filter.EventTypes))
		for i, et := range filter.EventTypes {
			eventTypeStrs[i] = string(et)
		}
		args = append(args, pq.Array(eventTypeStrs))
		argCount++
	}

	if filter.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argCount)
		args = append(args, string(*filter.Status))
		argCount++
	}

	if filter.IPAddress != "" {
		query += fmt.Sprintf(" AND ip_address = $%d", argCount)
		args = append(args, filter.IPAddress)
		argCount++
	}

	if filter.Method != "" {
		query += fmt.Sprintf(" AND method = $%d", argCount)
		args = append(args, filter.Method)
		argCount++
	}

	if filter.Path != "" {
		query += fmt.Sprintf(" AND path LIKE $%d", argCount)
		args = append(args, "%"+filter.Path+"%")
		argCount++
	}

	// Add sorting
	if sortableColumns[filter.SortBy] {
		order := "DESC"
		if filter.SortOrder == "asc" {
			order = "ASC"
		}
		query += fmt.Sprintf(" ORDER BY %s %s", filter.SortBy, order)
	} else {
		query += " ORDER BY timestamp DESC"
	}

	// Add pagination
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argCount)
		args = append(args, filter.Limit)
		argCount++
	}

	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argCount)
		args = append(args, filter.Offset)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search audit logs: %w", err)
	}
	defer rows.Close()

	events := make([]*Event, 0)
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit logs: %w", err)
	}

	return events, nil
}

// Get retrieves a single audit event by ID. Returns nil when the event
// does not exist.
func (l *DBLogger) Get(ctx context.Context, id int64) (*Event, error) {
	row := l.db.QueryRowContext(ctx,
		`SELECT `+auditColumns+` FROM foyer_audit_logs WHERE id = $1`, id)

	event, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return event, nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEvent(s scanner) (*Event, error) {
	event := &Event{}
	var metadataJSON []byte

	err := s.Scan(
		&event.ID, &event.Timestamp, &event.EventType, &event.Status,
		&event.App, &event.AuthMethod, &event.Username, &event.SessionID, &event.SSOID,
		&event.IPAddress, &event.UserAgent, &event.RequestID,
		&event.Method, &event.Path, &event.StatusCode,
		&event.Message, &event.ErrorMessage, &metadataJSON,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan audit log: %w", err)
	}

	if len(metadataJSON) > 0 {
		event.Metadata = make(map[string]interface{})
		if err := json.Unmarshal(metadataJSON, &event.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	return event, nil
}

// GetStats retrieves audit log statistics
func (l *DBLogger) GetStats(ctx context.Context, startTime, endTime *time.Time) (*Stats, error) {
	stats := &Stats{
		EventsByType:   make(map[EventType]int64),
		EventsByStatus: make(map[EventStatus]int64),
		EventsByApp:    make(map[string]int64),
		EventsByMethod: make(map[string]int64),
	}

	where := " WHERE 1=1"
	args := []interface{}{}
	argCount := 1

	if startTime != nil {
		where += fmt.Sprintf(" AND timestamp >= $%d", argCount)
		args = append(args, *startTime)
		argCount++
	}
	if endTime != nil {
		where += fmt.Sprintf(" AND timestamp <= $%d", argCount)
		args = append(args, *endTime)
		argCount++
	}

	err := l.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
			COUNT(DISTINCT username) FILTER (WHERE username <> ''),
			COUNT(DISTINCT ip_address) FILTER (WHERE ip_address <> ''),
			COUNT(*) FILTER (WHERE event_type = 'login.failed'),
			COUNT(*) FILTER (WHERE status = 'denied')
		FROM foyer_audit_logs`+where, args...).Scan(
		&stats.TotalEvents, &stats.UniqueUsers, &stats.UniqueIPs,
		&stats.FailedLogins, &stats.AccessDenials,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit stats: %w", err)
	}

	rows, err := l.db.QueryContext(ctx,
		`SELECT event_type, status, COALESCE(app, ''), COALESCE(auth_method, ''), COUNT(*)
		FROM foyer_audit_logs`+where+`
		GROUP BY event_type, status, app, auth_method`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit stat groups: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			eventType EventType
			status    EventStatus
			app       string
			method    string
			count     int64
		)
		if err := rows.Scan(&eventType, &status, &app, &method, &count); err != nil {
			return nil, fmt.Errorf("failed to scan audit stat group: %w", err)
		}
		stats.EventsByType[eventType] += count
		stats.EventsByStatus[status] += count
		if app != "" {
			stats.EventsByApp[app] += count
		}
		if method != "" {
			stats.EventsByMethod[method] += count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit stat groups: %w", err)
	}

	if startTime != nil && endTime != nil {
		stats.TimeRange = &TimeRange{Start: *startTime, End: *endTime}
	}

	return stats, nil
}

// Cleanup removes audit logs older than the retention period and
// returns the number of rows deleted.
func (l *DBLogger) Cleanup(ctx context.Context, policy RetentionPolicy) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -policy.RetentionDays)

	result, err := l.db.ExecContext(ctx,
		"DELETE FROM foyer_audit_logs WHERE timestamp < $1", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired audit logs: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted audit logs: %w", err)
	}

	return rowsAffected, nil
}
