package audit

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// exportJSON renders events as an indented JSON array.
func exportJSON(events []*Event) ([]byte, error) {
	return json.MarshalIndent(events, "", "  ")
}

// exportNDJSON renders one JSON object per line, the shape log shippers
// and jq pipelines expect.
func exportNDJSON(events []*Event) ([]byte, error) {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)

	for _, event := range events {
		if err := encoder.Encode(event); err != nil {
			return nil, fmt.Errorf("failed to encode event: %w", err)
		}
	}

	return buf.Bytes(), nil
}

// csvColumns matches the JSON field names so a CSV export lines up with
// the API's JSON responses. Metadata is the one field left out; it has
// no flat rendering.
var csvColumns = []string{
	"id",
	"timestamp",
	"event_type",
	"status",
	"app",
	"auth_method",
	"username",
	"session_id",
	"sso_id",
	"ip_address",
	"user_agent",
	"request_id",
	"method",
	"path",
	"status_code",
	"message",
	"error_message",
}

// exportCSV renders events as CSV with RFC 3339 timestamps.
func exportCSV(events []*Event) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write(csvColumns); err != nil {
		return nil, fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, event := range events {
		row := []string{
			strconv.FormatInt(event.ID, 10),
			event.Timestamp.Format(time.RFC3339),
			string(event.EventType),
			string(event.Status),
			event.App,
			event.AuthMethod,
			event.Username,
			event.SessionID,
			event.SSOID,
			event.IPAddress,
			event.UserAgent,
			event.RequestID,
			event.Method,
			event.Path,
			strconv.Itoa(event.StatusCode),
			event.Message,
			event.ErrorMessage,
		}

		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}
