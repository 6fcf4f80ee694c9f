package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/berties-books/bookshop/internal/audit"
	jobmetrics "github.com/berties-books/bookshop/internal/jobs"
)

// AuditAppendJob writes queued audit entries to the audit log.
type AuditAppendJob struct {
	Sink    audit.Sink
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewAuditAppendJob wires dependencies for the append handler.
func NewAuditAppendJob(sink audit.Sink, logger *slog.Logger, metrics *jobmetrics.Metrics) *AuditAppendJob {
	return &AuditAppendJob{Sink: sink, Logger: logger, Metrics: metrics}
}

// Handle processes TaskAuditAppend tasks. Storage errors are returned so Asynq
// retries; the append is idempotent on the entry id.
func (j *AuditAppendJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Sink == nil {
		return errors.New("audit append: handler not configured")
	}
	var entry audit.Entry
	if err := json.Unmarshal(t.Payload(), &entry); err != nil || entry.ID == uuid.Nil {
		j.logger().Warn("discard audit task", slog.Any("error", err))
		j.Metrics.Skipped(TaskAuditAppend)
		return fmt.Errorf("audit append: bad payload: %w", asynq.SkipRetry)
	}

	tracker := j.Metrics.Track(TaskAuditAppend)
	if err := j.Sink.Append(ctx, entry); err != nil {
		j.logger().Error("append audit entry",
			slog.String("entry_id", entry.ID.String()),
			slog.Any("error", err),
		)
		return tracker.End(fmt.Errorf("audit append: %w", err))
	}
	return tracker.End(nil)
}

func (j *AuditAppendJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
