package audit

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return db, mock
}

// eventColumns mirrors the scan column order used by Search and Get.
var eventColumns = []string{
	"id", "timestamp", "event_type", "status",
	"app", "auth_method", "username", "session_id", "sso_id",
	"ip_address", "user_agent", "request_id",
	"method", "path", "status_code",
	"message", "error_message", "metadata",
}

func TestNewDBLogger(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		// Expect the table creation query
		mock.ExpectExec("CREATE TABLE IF NOT EXISTS foyer_audit_logs").WillReturnResult(sqlmock.NewResult(0, 0))

		logger, err := NewDBLogger(db)
		require.NoError(t, err)
		assert.NotNil(t, logger)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("nil database", func(t *testing.T) {
		logger, err := NewDBLogger(nil)
		assert.Error(t, err)
		assert.Nil(t, logger)
		assert.Contains(t, err.Error(), "database connection is required")
	})

	t.Run("table creation error", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		// Expect the table creation to fail
		mock.ExpectExec("CREATE TABLE IF NOT EXISTS foyer_audit_logs").WillReturnError(errors.New("table creation failed"))

		logger, err := NewDBLogger(db)
		assert.Error(t, err)
		assert.Nil(t, logger)
		assert.Contains(t, err.Error(), "failed to ensure foyer_audit_logs table")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestDBLogger_ensureTable(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()

	logger := &DBLogger{db: db}

	// Expect the table creation query with indexes
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS foyer_audit_logs").WillReturnResult(sqlmock.NewResult(0, 0))

	err := logger.ensureTable()
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDBLogger_Log(t *testing.T) {
	t.Run("success - basic event", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		logger := &DBLogger{db: db}
		ctx := context.Background()

		event := &Event{
			Timestamp:  time.Now().UTC(),
			EventType:  EventTypeDecisionAllow,
			Status:     EventStatusSuccess,
			App:        "wiki",
			AuthMethod: "FORM",
			Username:   "alice",
			SessionID:  "sess-1",
			SSOID:      "sso-123",
			IPAddress:  "192.168.1.1",
			UserAgent:  "Mozilla/5.0",
			RequestID:  "req-123",
			Method:     "GET",
			Path:       "/wiki/page",
			StatusCode: 200,
			Message:    "authenticated request admitted",
			Metadata:   map[string]interface{}{"constraint": "wiki-users"},
		}

		// Expect the insert query - use sqlmock.AnyArg() for the JSON field
		mock.ExpectQuery("INSERT INTO foyer_audit_logs").
			WithArgs(
				sqlmock.AnyArg(), event.EventType, event.Status,
				event.App, event.AuthMethod, event.Username, event.SessionID, event.SSOID,
				event.IPAddress, event.UserAgent, event.RequestID,
				event.Method, event.Path, event.StatusCode,
				event.Message, event.ErrorMessage, sqlmock.AnyArg(),
			).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))

		err := logger.Log(ctx, event)
		assert.NoError(t, err)
		assert.Equal(t, int64(1), event.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("success - no metadata", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		logger := &DBLogger{db: db}
		ctx := context.Background()

		event := &Event{
			Timestamp: time.Now().UTC(),
			EventType: EventTypeDecisionAnonymous,
			Status:    EventStatusSuccess,
			App:       "docs",
		}

		mock.ExpectQuery("INSERT INTO foyer_audit_logs").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))

		err := logger.Log(ctx, event)
		assert.NoError(t, err)
		assert.Equal(t, int64(7), event.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("metadata marshal error", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		logger := &DBLogger{db: db}
		ctx := context.Background()

		event := &Event{
			Timestamp: time.Now().UTC(),
			EventType: EventTypeDecisionAllow,
			Status:    EventStatusSuccess,
			Metadata: map[string]interface{}{
				"invalid": make(chan int), // channels can't be marshaled to JSON
			},
		}

		err := logger.Log(ctx, event)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to marshal metadata")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("database insert error", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		logger := &DBLogger{db: db}
		ctx := context.Background()

		event := &Event{
			Timestamp: time.Now().UTC(),
			EventType: EventTypeLoginSuccess,
			Status:    EventStatusSuccess,
		}

		mock.ExpectQuery("INSERT INTO foyer_audit_logs").
			WillReturnError(errors.New("database error"))

		err := logger.Log(ctx, event)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to insert audit log")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestDBLogger_Close(t *testing.T) {
	db, _ := setupMockDB(t)
	defer db.Close()

	logger := &DBLogger{db: db}
	assert.NoError(t, logger.Close())
}

func TestDBLogger_Search(t *testing.T) {
	t.Run("no filters", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		logger := &DBLogger{db: db}
		ctx := context.Background()

		rows := sqlmock.NewRows(eventColumns).AddRow(
			1, time.Now(), EventTypeDecisionAllow, EventStatusSuccess,
			"wiki", "FORM", "alice", "sess-1", "sso-123",
			"192.168.1.1", "Mozilla/5.0", "req-123",
			"GET", "/wiki/page", 200,
			"authenticated request admitted", "", []byte(`{"constraint":"wiki-users"}`),
		)

		mock.ExpectQuery("SELECT (.+) FROM foyer_audit_logs WHERE 1=1 ORDER BY timestamp DESC").
			WillReturnRows(rows)

		events, err := logger.Search(ctx, SearchFilter{})
		assert.NoError(t, err)
		assert.Len(t, events, 1)
		assert.Equal(t, int64(1), events[0].ID)
		assert.Equal(t, EventTypeDecisionAllow, events[0].EventType)
		assert.Equal(t, "alice", events[0].Username)
		assert.Equal(t, "wiki-users", events[0].Metadata["constraint"])
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("with time filters", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		logger := &DBLogger{db: db}
		ctx := context.Background()

		startTime := time.Now().Add(-24 * time.Hour)
		endTime := time.Now()

		mock.ExpectQuery("SELECT (.+) FROM foyer_audit_logs WHERE 1=1 AND timestamp >= \\$1 AND timestamp <= \\$2").
			WithArgs(startTime, endTime).
			WillReturnRows(sqlmock.NewRows(eventColumns))

		filter := SearchFilter{
			StartTime: &startTime,
			EndTime:   &endTime,
		}

		events, err := logger.Search(ctx, filter)
		assert.NoError(t, err)
		assert.NotNil(t, events)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("with username filter", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		logger := &DBLogger{db: db}
		ctx := context.Background()

		mock.ExpectQuery("SELECT (.+) FROM foyer_audit_logs WHERE 1=1 AND username = \\$1").
			WithArgs("alice").
			WillReturnRows(sqlmock.NewRows(eventColumns))

		events, err := logger.Search(ctx, SearchFilter{Username: "alice"})
		assert.NoError(t, err)
		assert.NotNil(t, events)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("with app and auth method filters", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		logger := &DBLogger{db: db}
		ctx := context.Background()

		mock.ExpectQuery("SELECT (.+) FROM foyer_audit_logs WHERE 1=1 AND app = \\$1 AND auth_method = \\$2").
			WithArgs("wiki", "FORM").
			WillReturnRows(sqlmock.NewRows(eventColumns))

		events, err := logger.Search(ctx, SearchFilter{App: "wiki", AuthMethod: "FORM"})
		assert.NoError(t, err)
		assert.NotNil(t, events)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("with sso id filter", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		logger := &DBLogger{db: db}
		ctx := context.Background()

		mock.ExpectQuery("SELECT (.+) FROM foyer_audit_logs WHERE 1=1 AND sso_id = \\$1").
			WithArgs("sso-123").
			WillReturnRows(sqlmock.NewRows(eventColumns))

		events, err := logger.Search(ctx, SearchFilter{SSOID: "sso-123"})
		assert.NoError(t, err)
		assert.NotNil(t, events)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("with event types filter", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		logger := &DBLogger{db: db}
		ctx := context.Background()

		eventTypes := []EventType{EventTypeLoginSuccess, EventTypeLoginFailed}

		mock.ExpectQuery("SELECT (.+) FROM foyer_audit_logs WHERE 1=1 AND event_type = ANY\\(\\$1\\)").
			WithArgs(pq.Array([]string{"login.success", "login.failed"})).
			WillReturnRows(sqlmock.NewRows(eventColumns))

		events, err := logger.Search(ctx, SearchFilter{EventTypes: eventTypes})
		assert.NoError(t, err)
		assert.NotNil(t, events)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("with status filter", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		logger := &DBLogger{db: db}
		ctx := context.Background()

		status := EventStatusDenied

		mock.ExpectQuery("SELECT (.+) FROM foyer_audit_logs WHERE 1=1 AND status = \\$1").
			WithArgs("denied").
			WillReturnRows(sqlmock.NewRows(eventColumns))

		events, err := logger.Search(ctx, SearchFilter{Status: &status})
		assert.NoError(t, err)
		assert.NotNil(t, events)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("with path filter uses LIKE", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		logger := &DBLogger{db: db}
		ctx := context.Background()

		mock.ExpectQuery("SELECT (.+) FROM foyer_audit_logs WHERE 1=1 AND path LIKE \\$1").
			WithArgs("%/admin%").
			WillReturnRows(sqlmock.NewRows(eventColumns))

		events, err := logger.Search(ctx, SearchFilter{Path: "/admin"})
		assert.NoError(t, err)
		assert.NotNil(t, events)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("with sorting", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		logger := &DBLogger{db: db}
		ctx := context.Background()

		mock.ExpectQuery("SELECT (.+) FROM foyer_audit_logs WHERE 1=1 ORDER BY username ASC").
			WillReturnRows(sqlmock.NewRows(eventColumns))

		filter := SearchFilter{
			SortBy:    "username",
			SortOrder: "asc",
		}

		events, err := logger.Search(ctx, filter)
		assert.NoError(t, err)
		assert.NotNil(t, events)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown sort column falls back to timestamp", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		logger := &DBLogger{db: db}
		ctx := context.Background()

		mock.ExpectQuery("SELECT (.+) FROM foyer_audit_logs WHERE 1=1 ORDER BY timestamp DESC").
			WillReturnRows(sqlmock.NewRows(eventColumns))

		filter := SearchFilter{
			SortBy: "username; DROP TABLE foyer_audit_logs",
		}

		events, err := logger.Search(ctx, filter)
		assert.NoError(t, err)
		assert.NotNil(t, events)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("with pagination", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		logger := &DBLogger{db: db}
		ctx := context.Background()

		mock.ExpectQuery("SELECT (.+) FROM foyer_audit_logs WHERE 1=1 ORDER BY timestamp DESC LIMIT \\$1 OFFSET \\$2").
			WithArgs(50, 100).
			WillReturnRows(sqlmock.NewRows(eventColumns))

		filter := SearchFilter{
			Limit:  50,
			Offset: 100,
		}

		events, err := logger.Search(ctx, filter)
		assert.NoError(t, err)
		assert.NotNil(t, events)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("query error", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		logger := &DBLogger{db: db}
		ctx := context.Background()

		mock.ExpectQuery("SELECT (.+) FROM foyer_audit_logs").
			WillReturnError(errors.New("connection lost"))

		events, err := logger.Search(ctx, SearchFilter{})
		assert.Error(t, err)
		assert.Nil(t, events)
		assert.Contains(t, err.Error(), "failed to search audit logs")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestDBLogger_Get(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		logger := &DBLogger{db: db}
		ctx := context.Background()

		rows := sqlmock.NewRows(eventColumns).AddRow(
			42, time.Now(), EventTypeSSOEstablish, EventStatusSuccess,
			"wiki", "FORM", "alice", "sess-1", "sso-123",
			"192.168.1.1", "Mozilla/5.0", "req-123",
			"POST", "/auth/login", 303,
			"single sign-on entry established", "", nil,
		)

		mock.ExpectQuery("SELECT (.+) FROM foyer_audit_logs WHERE id = \\$1").
			WithArgs(int64(42)).
			WillReturnRows(rows)

		event, err := logger.Get(ctx, 42)
		assert.NoError(t, err)
		require.NotNil(t, event)
		assert.Equal(t, int64(42), event.ID)
		assert.Equal(t, EventTypeSSOEstablish, event.EventType)
		assert.Equal(t, "sso-123", event.SSOID)
		assert.Nil(t, event.Metadata)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found returns nil", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		logger := &DBLogger{db: db}
		ctx := context.Background()

		mock.ExpectQuery("SELECT (.+) FROM foyer_audit_logs WHERE id = \\$1").
			WithArgs(int64(999)).
			WillReturnError(sql.ErrNoRows)

		event, err := logger.Get(ctx, 999)
		assert.NoError(t, err)
		assert.Nil(t, event)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("query error", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		logger := &DBLogger{db: db}
		ctx := context.Background()

		mock.ExpectQuery("SELECT (.+) FROM foyer_audit_logs WHERE id = \\$1").
			WithArgs(int64(1)).
			WillReturnError(errors.New("connection lost"))

		event, err := logger.Get(ctx, 1)
		assert.Error(t, err)
		assert.Nil(t, event)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestDBLogger_GetStats(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		logger := &DBLogger{db: db}
		ctx := context.Background()

		mock.ExpectQuery("SELECT COUNT").
			WillReturnRows(sqlmock.NewRows([]string{
				"count", "unique_users", "unique_ips", "failed_logins", "access_denials",
			}).AddRow(100, 5, 8, 3, 2))

		mock.ExpectQuery("GROUP BY event_type, status, app, auth_method").
			WillReturnRows(sqlmock.NewRows([]string{
				"event_type", "status", "app", "auth_method", "count",
			}).
				AddRow("decision.allow", "success", "wiki", "FORM", 60).
				AddRow("decision.anonymous", "success", "docs", "NONE", 30).
				AddRow("login.failed", "failure", "wiki", "FORM", 3).
				AddRow("decision.denied", "denied", "wiki", "", 2))

		stats, err := logger.GetStats(ctx, nil, nil)
		require.NoError(t, err)
		assert.Equal(t, int64(100), stats.TotalEvents)
		assert.Equal(t, int64(5), stats.UniqueUsers)
		assert.Equal(t, int64(8), stats.UniqueIPs)
		assert.Equal(t, int64(3), stats.FailedLogins)
		assert.Equal(t, int64(2), stats.AccessDenials)
		assert.Equal(t, int64(60), stats.EventsByType[EventTypeDecisionAllow])
		assert.Equal(t, int64(90), stats.EventsByStatus[EventStatusSuccess])
		assert.Equal(t, int64(65), stats.EventsByApp["wiki"])
		assert.Equal(t, int64(63), stats.EventsByMethod["FORM"])
		assert.Nil(t, stats.TimeRange)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("with time range", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		logger := &DBLogger{db: db}
		ctx := context.Background()

		startTime := time.Now().Add(-24 * time.Hour)
		endTime := time.Now()

		mock.ExpectQuery("SELECT COUNT").
			WithArgs(startTime, endTime).
			WillReturnRows(sqlmock.NewRows([]string{
				"count", "unique_users", "unique_ips", "failed_logins", "access_denials",
			}).AddRow(10, 2, 2, 0, 0))

		mock.ExpectQuery("GROUP BY event_type, status, app, auth_method").
			WithArgs(startTime, endTime).
			WillReturnRows(sqlmock.NewRows([]string{
				"event_type", "status", "app", "auth_method", "count",
			}).AddRow("decision.allow", "success", "wiki", "BASIC", 10))

		stats, err := logger.GetStats(ctx, &startTime, &endTime)
		require.NoError(t, err)
		assert.Equal(t, int64(10), stats.TotalEvents)
		require.NotNil(t, stats.TimeRange)
		assert.Equal(t, startTime, stats.TimeRange.Start)
		assert.Equal(t, endTime, stats.TimeRange.End)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("aggregate query error", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		logger := &DBLogger{db: db}
		ctx := context.Background()

		mock.ExpectQuery("SELECT COUNT").
			WillReturnError(errors.New("connection lost"))

		stats, err := logger.GetStats(ctx, nil, nil)
		assert.Error(t, err)
		assert.Nil(t, stats)
		assert.Contains(t, err.Error(), "failed to query audit stats")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestDBLogger_Cleanup(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		logger := &DBLogger{db: db}
		ctx := context.Background()

		mock.ExpectExec("DELETE FROM foyer_audit_logs WHERE timestamp <").
			WillReturnResult(sqlmock.NewResult(0, 42))

		deleted, err := logger.Cleanup(ctx, RetentionPolicy{RetentionDays: 90})
		assert.NoError(t, err)
		assert.Equal(t, int64(42), deleted)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("delete error", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		logger := &DBLogger{db: db}
		ctx := context.Background()

		mock.ExpectExec("DELETE FROM foyer_audit_logs WHERE timestamp <").
			WillReturnError(errors.New("connection lost"))

		deleted, err := logger.Cleanup(ctx, RetentionPolicy{RetentionDays: 90})
		assert.Error(t, err)
		assert.Zero(t, deleted)
		assert.Contains(t, err.Error(), "failed to delete expired audit logs")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rows affected error", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		logger := &DBLogger{db: db}
		ctx := context.Background()

		mock.ExpectExec("DELETE FROM foyer_audit_logs WHERE timestamp <").
			WillReturnResult(sqlmock.NewErrorResult(errors.New("driver does not report rows")))

		deleted, err := logger.Cleanup(ctx, RetentionPolicy{RetentionDays: 90})
		assert.Error(t, err)
		assert.Zero(t, deleted)
		assert.Contains(t, err.Error(), "failed to count deleted audit logs")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
