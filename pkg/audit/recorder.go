package audit

import (
	"context"
	"time"

	"github.com/platinummonkey/foyer/pkg/async"
	"github.com/platinummonkey/foyer/pkg/observability"
)

// recordTimeout bounds each background audit write.
const recordTimeout = 5 * time.Second

// Recorder is the write front-end the request pipeline uses. It
// decouples request latency from audit storage latency: Record returns
// immediately and the write happens on a background goroutine. Failed
// writes are logged and counted, never surfaced to the request.
type Recorder struct {
	dest    Logger
	log     *observability.Logger
	metrics *observability.Metrics
}

// NewRecorder wraps an audit destination. dest may be nil, in which
// case events are discarded. logger and metrics may each be nil.
func NewRecorder(dest Logger, log *observability.Logger, metrics *observability.Metrics) *Recorder {
	if dest == nil {
		dest = NopLogger{}
	}
	if log == nil {
		log = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &Recorder{
		dest:    dest,
		log:     log,
		metrics: metrics,
	}
}

// Record queues an audit event for persistence. Safe to call on a nil
// receiver. The write runs on a background context so it survives
// cancellation of the request that produced the event.
func (r *Recorder) Record(_ context.Context, event *Event) {
	if r == nil || event == nil {
		return
	}

	if r.metrics != nil {
		r.metrics.AuditEventsTotal.WithLabelValues(string(event.Status)).Inc()
	}

	async.SafeGo(context.Background(), recordTimeout, "audit-write", r.log, func(ctx context.Context) error {
		if err := r.dest.Log(ctx, event); err != nil {
			if r.metrics != nil {
				r.metrics.AuditWriteFailuresTotal.Inc()
			}
			r.log.WithField("event_type", string(event.EventType)).
				WithError(err).
				Error("failed to persist audit event")
		}
		return nil
	})
}

// Close flushes and closes the underlying destination.
func (r *Recorder) Close() error {
	if r == nil {
		return nil
	}
	return r.dest.Close()
}
