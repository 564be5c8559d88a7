package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/pharmstock/internal/jobs"
	"github.com/odyssey-erp/pharmstock/internal/reports"
)

// DriftSource lists lot-backed products whose stock disagrees with their lots.
type DriftSource interface {
	DriftUncached(ctx context.Context) ([]reports.DriftRow, error)
}

// ReconcileJob logs every product whose aggregate stock drifted from its lots.
// It never corrects stock; drift is for an operator to investigate.
type ReconcileJob struct {
	Source  DriftSource
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewReconcileJob initialises the reconciliation handler.
func NewReconcileJob(source DriftSource, logger *slog.Logger, metrics *jobmetrics.Metrics) *ReconcileJob {
	return &ReconcileJob{Source: source, Logger: logger, Metrics: metrics}
}

// Handle executes the reconciliation.
func (j *ReconcileJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Source == nil {
		return errors.New("reconcile: handler not configured")
	}
	var payload ReconcilePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	tracker := j.Metrics.Track(TaskStockReconcile)
	defer func() { err = tracker.End(err) }()

	start := time.Now()
	logger := loggerOr(j.Logger).With(slog.String("job", TaskStockReconcile))
	rows, err := j.Source.DriftUncached(ctx)
	if err != nil {
		logger.Error("reconciliation failed", slog.Any("error", err))
		return err
	}
	for _, row := range rows {
		logger.Warn("stock drift detected",
			slog.String("product_code", row.ProductCode),
			slog.Int("stock", row.Stock),
			slog.Int("lot_total", row.LotTotal),
			slog.Int("difference", row.Difference),
		)
	}
	j.Metrics.SetDrift(len(rows))
	logger.Info("completed reconciliation", slog.Int("drifting", len(rows)), slog.Duration("duration", time.Since(start)))
	return nil
}

func loggerOr(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}
