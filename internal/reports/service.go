package reports

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/odyssey-erp/pharmstock/internal/inventory"
)

// Service coordinates report queries with the cache layer.
type Service struct {
	repo   Repository
	cache  *Cache
	logger *slog.Logger
	now    func() time.Time
}

// NewService wires a Repository with a Cache helper. cache may be nil.
func NewService(repo Repository, cache *Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: cache, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// LowStock returns products at or below their reorder level.
func (s *Service) LowStock(ctx context.Context) ([]LowStockRow, error) {
	var rows []LowStockRow
	err := s.cached(ctx, &rows, func(ctx context.Context) (any, error) {
		return s.repo.LowStock(ctx)
	}, "reports", "low_stock")
	return nonNil(rows), err
}

// NearExpiry returns lots with stock left expiring within days of today.
// Lots already past their expiry date are included with negative DaysLeft.
func (s *Service) NearExpiry(ctx context.Context, days int) ([]NearExpiryRow, error) {
	if days <= 0 {
		return nil, ErrInvalidWindow
	}
	asOf := s.now()
	until := asOf.AddDate(0, 0, days)
	var rows []NearExpiryRow
	err := s.cached(ctx, &rows, func(ctx context.Context) (any, error) {
		return s.repo.NearExpiry(ctx, asOf, until)
	}, "reports", "near_expiry", strconv.Itoa(days), asOf.Format(inventory.DateLayout))
	return nonNil(rows), err
}

// Drift returns lot-backed products whose aggregate stock differs from the
// sum of their lot quantities.
func (s *Service) Drift(ctx context.Context) ([]DriftRow, error) {
	var rows []DriftRow
	err := s.cached(ctx, &rows, func(ctx context.Context) (any, error) {
		return s.repo.Drift(ctx)
	}, "reports", "drift")
	return nonNil(rows), err
}

// DriftUncached bypasses the cache. The reconciliation job uses it.
func (s *Service) DriftUncached(ctx context.Context) ([]DriftRow, error) {
	rows, err := s.repo.Drift(ctx)
	return nonNil(rows), err
}

func (s *Service) cached(ctx context.Context, dest any, loader func(context.Context) (any, error), parts ...string) error {
	key, err := s.cache.BuildKey(ctx, parts...)
	if err != nil {
		s.logger.Warn("report cache unavailable", slog.Any("error", err))
		return (*Cache)(nil).FetchJSON(ctx, "", dest, loader)
	}
	return s.cache.FetchJSON(ctx, key, dest, loader)
}

func nonNil[T any](rows []T) []T {
	if rows == nil {
		return []T{}
	}
	return rows
}
