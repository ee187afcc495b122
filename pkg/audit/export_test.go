package audit

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportJSON(t *testing.T) {
	events := []*Event{
		{
			ID:        1,
			Timestamp: time.Now().UTC(),
			EventType: EventTypeDecisionAllow,
			Status:    EventStatusSuccess,
			App:       "wiki",
			Username:  "alice",
		},
		{
			ID:        2,
			Timestamp: time.Now().UTC(),
			EventType: EventTypeDecisionAnonymous,
			Status:    EventStatusSuccess,
			App:       "docs",
		},
	}

	data, err := exportJSON(events)
	require.NoError(t, err)

	// Indented array, not a compact blob
	assert.True(t, strings.HasPrefix(string(data), "[\n"))

	var parsed []*Event
	require.NoError(t, json.Unmarshal(data, &parsed))
	assert.Len(t, parsed, 2)
	assert.Equal(t, "alice", parsed[0].Username)
	assert.Equal(t, EventTypeDecisionAnonymous, parsed[1].EventType)
}

func TestExportNDJSON(t *testing.T) {
	events := []*Event{
		{
			ID:        1,
			Timestamp: time.Now().UTC(),
			EventType: EventTypeLoginSuccess,
			Status:    EventStatusSuccess,
			Username:  "alice",
		},
		{
			ID:        2,
			Timestamp: time.Now().UTC(),
			EventType: EventTypeLogout,
			Status:    EventStatusSuccess,
			Username:  "alice",
		},
	}

	data, err := exportNDJSON(events)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	require.Len(t, lines, 2)

	for i, line := range lines {
		var event Event
		require.NoError(t, json.Unmarshal([]byte(line), &event), "line %d", i)
		assert.Equal(t, "alice", event.Username)
		// Each line stands alone with the API's field names
		assert.Contains(t, line, `"event_type"`)
	}
}

func TestExportCSV(t *testing.T) {
	events := []*Event{
		{
			ID:         1,
			Timestamp:  time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
			EventType:  EventTypeLoginSuccess,
			Status:     EventStatusSuccess,
			App:        "wiki",
			AuthMethod: "FORM",
			Username:   "alice",
			SessionID:  "sess-1",
			SSOID:      "sso-123",
			IPAddress:  "192.168.1.1",
			Message:    "form login accepted",
		},
	}

	data, err := exportCSV(events)
	require.NoError(t, err)

	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, csvColumns, records[0])

	row := records[1]
	assert.Equal(t, "1", row[0])
	// RFC 3339, same rendering the JSON exports use
	assert.Equal(t, "2025-06-01T12:00:00Z", row[1])
	assert.Equal(t, "login.success", row[2])
	assert.Equal(t, "alice", row[6])
	assert.Equal(t, "sso-123", row[8])
}

// Every column must name a JSON field of Event, so CSV exports and API
// responses share one vocabulary.
func TestExportCSV_ColumnsMatchJSONTags(t *testing.T) {
	tags := make(map[string]bool)
	typ := reflect.TypeOf(Event{})
	for i := 0; i < typ.NumField(); i++ {
		name := strings.Split(typ.Field(i).Tag.Get("json"), ",")[0]
		tags[name] = true
	}

	for _, col := range csvColumns {
		assert.True(t, tags[col], "column %q has no matching JSON field", col)
	}
}

func TestExportCSV_EmptyEvents(t *testing.T) {
	data, err := exportCSV([]*Event{})
	require.NoError(t, err)

	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 1) // header only
	assert.Equal(t, csvColumns, records[0])
}

func TestExportCSV_QuotedFields(t *testing.T) {
	message := `constraint "wiki-admin" rejected role set`
	events := []*Event{
		{
			ID:        1,
			Timestamp: time.Now().UTC(),
			EventType: EventTypeDecisionDenied,
			Status:    EventStatusDenied,
			Message:   message,
		},
	}

	data, err := exportCSV(events)
	require.NoError(t, err)

	// The embedded quotes must survive a CSV round trip
	assert.Contains(t, string(data), `""wiki-admin""`)

	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, message, records[1][15])
}
