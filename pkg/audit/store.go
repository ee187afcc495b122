package audit

import (
	"context"
	"time"
)

// Store is the query side of the audit trail, backing the admin API and
// the retention reaper. The write side is Logger.
type Store interface {
	// Search returns events matching the filter, newest first.
	Search(ctx context.Context, filter SearchFilter) ([]*Event, error)

	// Get returns one event by ID, or nil when it does not exist.
	Get(ctx context.Context, id int64) (*Event, error)

	// GetStats aggregates event counts over the window. A nil bound
	// leaves that side open.
	GetStats(ctx context.Context, startTime, endTime *time.Time) (*Stats, error)

	// Export renders matching events in the given format.
	Export(ctx context.Context, filter SearchFilter, format ExportFormat) ([]byte, error)

	// Cleanup deletes events older than the retention policy allows and
	// reports how many went.
	Cleanup(ctx context.Context, policy RetentionPolicy) (int64, error)
}

// DBStore serves queries from the same table the db audit backend
// writes to.
type DBStore struct {
	logger *DBLogger
}

// NewDBStore wraps the db audit backend for querying.
func NewDBStore(logger *DBLogger) *DBStore {
	return &DBStore{
		logger: logger,
	}
}

func (s *DBStore) Search(ctx context.Context, filter SearchFilter) ([]*Event, error) {
	return s.logger.Search(ctx, filter)
}

func (s *DBStore) Get(ctx context.Context, id int64) (*Event, error) {
	return s.logger.Get(ctx, id)
}

func (s *DBStore) GetStats(ctx context.Context, startTime, endTime *time.Time) (*Stats, error) {
	return s.logger.GetStats(ctx, startTime, endTime)
}

// Export searches with the filter and renders the result. The limit in
// the filter caps export size the same way it caps search pages.
func (s *DBStore) Export(ctx context.Context, filter SearchFilter, format ExportFormat) ([]byte, error) {
	events, err := s.logger.Search(ctx, filter)
	if err != nil {
		return nil, err
	}

	switch format {
	case ExportFormatCSV:
		return exportCSV(events)
	case ExportFormatNDJSON:
		return exportNDJSON(events)
	default:
		return exportJSON(events)
	}
}

func (s *DBStore) Cleanup(ctx context.Context, policy RetentionPolicy) (int64, error) {
	return s.logger.Cleanup(ctx, policy)
}
