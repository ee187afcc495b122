package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

func TestHealthChecker_NoDependencies(t *testing.T) {
	checker := NewHealthChecker(nil, nil)

	status := checker.Check(context.Background())

	if status.Status != StatusHealthy {
		t.Errorf("status = %v, want %v", status.Status, StatusHealthy)
	}
	if len(status.Dependencies) != 0 {
		t.Errorf("dependencies = %v, want none", status.Dependencies)
	}
	if status.Version != Version {
		t.Errorf("version = %v, want %v", status.Version, Version)
	}
	if status.Timestamp.IsZero() {
		t.Error("timestamp not set")
	}
}

func TestHealthChecker_DatabaseHealthy(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectPing()
	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))

	checker := NewHealthChecker(db, nil)
	status := checker.Check(context.Background())

	if status.Status != StatusHealthy {
		t.Errorf("status = %v, want %v", status.Status, StatusHealthy)
	}
	dep, ok := status.Dependencies["database"]
	if !ok {
		t.Fatal("database dependency missing")
	}
	if dep.Status != StatusHealthy {
		t.Errorf("database status = %v, want %v", dep.Status, StatusHealthy)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestHealthChecker_DatabaseDown(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))

	checker := NewHealthChecker(db, nil)
	status := checker.Check(context.Background())

	if status.Status != StatusUnhealthy {
		t.Errorf("status = %v, want %v", status.Status, StatusUnhealthy)
	}
	dep := status.Dependencies["database"]
	if dep.Status != StatusUnhealthy {
		t.Errorf("database status = %v, want %v", dep.Status, StatusUnhealthy)
	}
	if dep.Message != "connection refused" {
		t.Errorf("message = %q, want connection refused", dep.Message)
	}
}

func TestHealthChecker_DatabaseQueryFails(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectPing()
	mock.ExpectQuery("SELECT 1").WillReturnError(errors.New("database is locked"))

	checker := NewHealthChecker(db, nil)
	status := checker.Check(context.Background())

	if status.Status != StatusUnhealthy {
		t.Errorf("status = %v, want %v", status.Status, StatusUnhealthy)
	}
	dep := status.Dependencies["database"]
	if dep.Message != "query failed: database is locked" {
		t.Errorf("message = %q", dep.Message)
	}
}

func TestHealthChecker_PoolExhaustion(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	// One-connection pool: after the probe queries complete, the single
	// open connection equals the cap.
	db.SetMaxOpenConns(1)
	mock.ExpectPing()
	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))

	checker := NewHealthChecker(db, nil)
	status := checker.Check(context.Background())

	if status.Status != StatusDegraded {
		t.Errorf("status = %v, want %v", status.Status, StatusDegraded)
	}
	dep := status.Dependencies["database"]
	if dep.Message != "connection pool exhausted" {
		t.Errorf("message = %q", dep.Message)
	}
}

// An unbounded pool reports zero MaxOpenConnections and must never count
// as exhausted.
func TestHealthChecker_UnboundedPoolHealthy(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectPing()
	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))

	checker := NewHealthChecker(db, nil)
	status := checker.Check(context.Background())

	if dep := status.Dependencies["database"]; dep.Status != StatusHealthy {
		t.Errorf("database status = %v, want %v", dep.Status, StatusHealthy)
	}
}

func TestHealthChecker_RedisHealthy(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	checker := NewHealthChecker(nil, client)
	status := checker.Check(context.Background())

	if status.Status != StatusHealthy {
		t.Errorf("status = %v, want %v", status.Status, StatusHealthy)
	}
	if dep := status.Dependencies["redis"]; dep.Status != StatusHealthy {
		t.Errorf("redis status = %v, want %v", dep.Status, StatusHealthy)
	}
}

// Sessions live in Redis when it is configured, so losing it makes the
// gateway unready, not merely degraded.
func TestHealthChecker_RedisDownIsUnhealthy(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()

	checker := NewHealthChecker(nil, client)
	status := checker.Check(context.Background())

	if status.Status != StatusUnhealthy {
		t.Errorf("status = %v, want %v", status.Status, StatusUnhealthy)
	}
	if dep := status.Dependencies["redis"]; dep.Status != StatusUnhealthy {
		t.Errorf("redis status = %v, want %v", dep.Status, StatusUnhealthy)
	}
}

func TestFold(t *testing.T) {
	tests := []struct {
		name    string
		overall string
		dep     string
		want    string
	}{
		{"healthy stays healthy", StatusHealthy, StatusHealthy, StatusHealthy},
		{"degraded dep lowers", StatusHealthy, StatusDegraded, StatusDegraded},
		{"unhealthy dep sinks", StatusHealthy, StatusUnhealthy, StatusUnhealthy},
		{"unhealthy is sticky", StatusUnhealthy, StatusHealthy, StatusUnhealthy},
		{"degraded does not recover", StatusDegraded, StatusHealthy, StatusDegraded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := fold(tt.overall, tt.dep); got != tt.want {
				t.Errorf("fold(%v, %v) = %v, want %v", tt.overall, tt.dep, got, tt.want)
			}
		})
	}
}

func TestLiveness(t *testing.T) {
	checker := NewHealthChecker(nil, nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)

	checker.Liveness(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("code = %d, want 200", rec.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if body["status"] != StatusHealthy {
		t.Errorf("status = %v, want %v", body["status"], StatusHealthy)
	}
	if body["version"] != Version {
		t.Errorf("version = %v, want %v", body["version"], Version)
	}
}

func TestReadiness_Unhealthy(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()

	checker := NewHealthChecker(nil, client)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)

	checker.Readiness(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("code = %d, want 503", rec.Code)
	}
	var status HealthStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if status.Status != StatusUnhealthy {
		t.Errorf("status = %v, want %v", status.Status, StatusUnhealthy)
	}
}

// Degraded keeps serving: a saturated pool shows in the body, not in the
// status code, so the orchestrator does not pull a working instance.
func TestReadiness_DegradedAnswers200(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	db.SetMaxOpenConns(1)
	mock.ExpectPing()
	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))

	checker := NewHealthChecker(db, nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)

	checker.Readiness(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("code = %d, want 200", rec.Code)
	}
	var status HealthStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if status.Status != StatusDegraded {
		t.Errorf("status = %v, want %v", status.Status, StatusDegraded)
	}
}

func TestRegisterHealthRoutes(t *testing.T) {
	mux := http.NewServeMux()
	RegisterHealthRoutes(mux, NewHealthChecker(nil, nil))

	for _, path := range []string{"/healthz", "/readyz"} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, rec.Code)
		}
	}
}
