package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskStockReconcile compares aggregate stock with lot totals.
	TaskStockReconcile = "stock:reconcile"
	// TaskNearExpiryScan reports lots expiring soon.
	TaskNearExpiryScan = "stock:near-expiry"
	// TaskIdempotencyCleanup removes old idempotency keys.
	TaskIdempotencyCleanup = "maintenance:idempotency-cleanup"
)

// ReconcilePayload carries scheduling metadata.
type ReconcilePayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NearExpiryPayload sets the scan window.
type NearExpiryPayload struct {
	Days int `json:"days"`
}

// CleanupPayload sets how old a key must be before removal.
type CleanupPayload struct {
	OlderThan time.Duration `json:"older_than"`
}

// NewReconcileTask constructs an Asynq task for stock reconciliation.
func NewReconcileTask(at time.Time) (*asynq.Task, error) {
	return newTask(TaskStockReconcile, ReconcilePayload{ScheduledFor: at}, asynq.MaxRetry(2))
}

// NewNearExpiryTask constructs an Asynq task for the near-expiry scan.
func NewNearExpiryTask(days int) (*asynq.Task, error) {
	return newTask(TaskNearExpiryScan, NearExpiryPayload{Days: days}, asynq.MaxRetry(2))
}

// NewCleanupTask constructs an Asynq task removing idempotency keys older than olderThan.
func NewCleanupTask(olderThan time.Duration) (*asynq.Task, error) {
	return newTask(TaskIdempotencyCleanup, CleanupPayload{OlderThan: olderThan}, asynq.MaxRetry(1))
}

func newTask(typ string, payload any, opts ...asynq.Option) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	opts = append([]asynq.Option{asynq.Queue(QueueDefault)}, opts...)
	return asynq.NewTask(typ, body, opts...), nil
}
