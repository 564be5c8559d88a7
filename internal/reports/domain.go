// Package reports serves read-only stock reports over committed data.
package reports

import (
	"context"
	"errors"
	"time"
)

// DefaultNearExpiryDays is the window used when a caller gives none.
const DefaultNearExpiryDays = 90

// ErrInvalidWindow indicates a non-positive near-expiry window.
var ErrInvalidWindow = errors.New("reports: days must be positive")

// LowStockRow lists a product at or below its reorder level.
type LowStockRow struct {
	ProductCode  string `json:"product_code"`
	Name         string `json:"name"`
	Stock        int    `json:"stock"`
	ReorderLevel int    `json:"reorder_level"`
}

// NearExpiryRow lists a lot with stock left that expires inside the window.
type NearExpiryRow struct {
	LotID       int64     `json:"lot_id"`
	ProductCode string    `json:"product_code"`
	Name        string    `json:"name"`
	BatchNumber string    `json:"batch_number"`
	Quantity    int       `json:"quantity"`
	ExpiresAt   time.Time `json:"expires_at"`
	DaysLeft    int       `json:"days_left"`
}

// DriftRow lists a lot-backed product whose aggregate stock disagrees with its lots.
type DriftRow struct {
	ProductCode string `json:"product_code"`
	Name        string `json:"name"`
	Stock       int    `json:"stock"`
	LotTotal    int    `json:"lot_total"`
	Difference  int    `json:"difference"`
}

// Repository exposes the report queries.
type Repository interface {
	LowStock(ctx context.Context) ([]LowStockRow, error)
	NearExpiry(ctx context.Context, asOf, until time.Time) ([]NearExpiryRow, error)
	Drift(ctx context.Context) ([]DriftRow, error)
}
