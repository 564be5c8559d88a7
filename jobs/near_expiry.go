package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/pharmstock/internal/jobs"
	"github.com/odyssey-erp/pharmstock/internal/reports"
)

// ExpirySource lists lots expiring inside a window.
type ExpirySource interface {
	NearExpiry(ctx context.Context, days int) ([]reports.NearExpiryRow, error)
}

// NearExpiryJob logs lots with stock left that expire within the window.
type NearExpiryJob struct {
	Source      ExpirySource
	Logger      *slog.Logger
	Metrics     *jobmetrics.Metrics
	DefaultDays int
}

// NewNearExpiryJob initialises the near-expiry handler.
func NewNearExpiryJob(source ExpirySource, logger *slog.Logger, metrics *jobmetrics.Metrics, defaultDays int) *NearExpiryJob {
	return &NearExpiryJob{Source: source, Logger: logger, Metrics: metrics, DefaultDays: defaultDays}
}

// Handle executes the scan.
func (j *NearExpiryJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Source == nil {
		return errors.New("near-expiry: handler not configured")
	}
	var payload NearExpiryPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.Days <= 0 {
		payload.Days = j.DefaultDays
	}
	if payload.Days <= 0 {
		payload.Days = reports.DefaultNearExpiryDays
	}
	tracker := j.Metrics.Track(TaskNearExpiryScan)
	defer func() { err = tracker.End(err) }()

	logger := loggerOr(j.Logger).With(slog.String("job", TaskNearExpiryScan), slog.Int("days", payload.Days))
	rows, err := j.Source.NearExpiry(ctx, payload.Days)
	if err != nil {
		logger.Error("near-expiry scan failed", slog.Any("error", err))
		return err
	}
	expired := 0
	for _, row := range rows {
		if row.DaysLeft < 0 {
			expired++
		}
		logger.Info("lot nearing expiry",
			slog.Int64("lot_id", row.LotID),
			slog.String("product_code", row.ProductCode),
			slog.String("batch_number", row.BatchNumber),
			slog.Int("quantity", row.Quantity),
			slog.Int("days_left", row.DaysLeft),
		)
	}
	j.Metrics.SetExpiring(len(rows))
	logger.Info("completed near-expiry scan", slog.Int("lots", len(rows)), slog.Int("expired", expired))
	return nil
}
