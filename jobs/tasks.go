package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/berties-books/bookshop/internal/audit"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskAuditAppend persists one audit entry produced by the web process.
	TaskAuditAppend = "audit:append"

	auditAppendMaxRetry  = 10
	auditAppendRetention = 24 * time.Hour
)

// NewAuditAppendTask constructs an Asynq task carrying entry. The task id is the
// entry id, so enqueuing the same entry twice is rejected by the broker.
func NewAuditAppendTask(entry audit.Entry) (*asynq.Task, error) {
	data, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("jobs: encode audit entry: %w", err)
	}
	return asynq.NewTask(TaskAuditAppend, data,
		asynq.Queue(QueueDefault),
		asynq.TaskID(entry.ID.String()),
		asynq.MaxRetry(auditAppendMaxRetry),
		asynq.Retention(auditAppendRetention),
	), nil
}
