package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Sink persists audit entries.
type Sink interface {
	Append(ctx context.Context, e Entry) error
}

// FailureCounter is notified whenever an entry is dropped.
type FailureCounter interface {
	AuditWriteFailed()
}

// Recorder writes entries best-effort: a failed write is logged and counted, never
// returned, so the outcome of the attempt being audited cannot change.
type Recorder struct {
	sink     Sink
	logger   *slog.Logger
	failures FailureCounter
	clock    func() time.Time
}

// NewRecorder builds a Recorder. failures may be nil.
func NewRecorder(sink Sink, logger *slog.Logger, failures FailureCounter) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		sink:     sink,
		logger:   logger,
		failures: failures,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Record stamps and writes one entry.
func (r *Recorder) Record(ctx context.Context, subject string, action Action, success bool, details string) {
	r.Write(ctx, r.stamp(subject, action, success, details))
}

// Write persists a pre-built entry. The write outlives cancellation of ctx because
// the attempt it describes has already happened.
func (r *Recorder) Write(ctx context.Context, e Entry) {
	if err := r.sink.Append(context.WithoutCancel(ctx), e); err != nil {
		r.logger.Error("audit write failed",
			slog.Any("error", err),
			slog.String("entry_id", e.ID.String()),
			slog.String("action", string(e.Action)),
			slog.Bool("success", e.Success),
		)
		if r.failures != nil {
			r.failures.AuditWriteFailed()
		}
	}
}

func (r *Recorder) stamp(subject string, action Action, success bool, details string) Entry {
	return Entry{
		ID:      uuid.New(),
		At:      r.clock(),
		Subject: subject,
		Action:  action,
		Success: success,
		Details: details,
	}
}

// Enqueuer hands an entry to the background worker.
type Enqueuer interface {
	EnqueueAuditEntry(ctx context.Context, e Entry) error
}

// QueueRecorder moves the write off the request path. If the queue rejects the entry
// it is written inline through the fallback Recorder instead.
type QueueRecorder struct {
	queue    Enqueuer
	fallback *Recorder
}

// NewQueueRecorder builds a QueueRecorder.
func NewQueueRecorder(queue Enqueuer, fallback *Recorder) *QueueRecorder {
	return &QueueRecorder{queue: queue, fallback: fallback}
}

// Record stamps the entry and enqueues it.
func (q *QueueRecorder) Record(ctx context.Context, subject string, action Action, success bool, details string) {
	e := q.fallback.stamp(subject, action, success, details)
	if err := q.queue.EnqueueAuditEntry(context.WithoutCancel(ctx), e); err != nil {
		q.fallback.logger.Warn("audit enqueue failed, writing inline",
			slog.Any("error", err),
			slog.String("entry_id", e.ID.String()),
		)
		q.fallback.Write(ctx, e)
	}
}
