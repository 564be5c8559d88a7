package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/pharmstock/internal/shared"
)

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service exposes catalog and lot queries plus plan previews.
type Service struct {
	repo      RepositoryPort
	planner   *Planner
	audit     AuditPort
	validator *validator.Validate
	logger    *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, planner: NewPlanner(), audit: audit, validator: validator.New(), logger: logger}
}

// RegisterProduct adds a product to the catalog.
func (s *Service) RegisterProduct(ctx context.Context, input CreateProductInput) (Product, error) {
	input.Code = NormalizeCode(input.Code)
	input.Name = NormalizeText(input.Name)
	if err := s.validator.Struct(input); err != nil {
		return Product{}, fmt.Errorf("%w: %v", ErrInvalidProduct, err)
	}
	if input.UnitPrice.IsNegative() {
		return Product{}, fmt.Errorf("%w: unit price must be >= 0", ErrInvalidProduct)
	}
	var created Product
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		_, err := tx.GetProduct(ctx, input.Code)
		if err == nil {
			return ErrProductExists
		}
		if !errors.Is(err, ErrUnknownProduct) {
			return err
		}
		created, err = tx.InsertProduct(ctx, Product{
			Code:         input.Code,
			Name:         input.Name,
			UnitPrice:    input.UnitPrice.Round(2),
			Stock:        input.OpeningStock,
			ReorderLevel: input.ReorderLevel,
		})
		return err
	})
	if err != nil {
		return Product{}, err
	}
	if s.audit != nil {
		if err := s.audit.Record(ctx, shared.AuditLog{
			Action:   "inventory:product_registered",
			Entity:   "product",
			EntityID: created.Code,
			Meta:     map[string]any{"opening_stock": created.Stock, "unit_price": created.UnitPrice.String()},
		}); err != nil {
			s.logger.Warn("audit product registration", slog.String("code", created.Code), slog.Any("error", err))
		}
	}
	return created, nil
}

// GetProduct returns one product.
func (s *Service) GetProduct(ctx context.Context, code string) (Product, error) {
	code = NormalizeCode(code)
	var product Product
	err := s.repo.ReadOnly(ctx, func(ctx context.Context, r Reader) error {
		var err error
		product, err = r.GetProduct(ctx, code)
		return err
	})
	return product, err
}

// ListLots returns the product's lots in FEFO order.
func (s *Service) ListLots(ctx context.Context, code string, includeEmpty bool) ([]Lot, error) {
	code = NormalizeCode(code)
	if _, err := s.GetProduct(ctx, code); err != nil {
		return nil, err
	}
	return s.repo.ListLots(ctx, code, includeEmpty)
}

// PreviewPlan computes the plan a sale of qty would use right now. Nothing
// is reserved.
func (s *Service) PreviewPlan(ctx context.Context, code string, qty int) (Plan, error) {
	if qty <= 0 {
		return Plan{}, fmt.Errorf("%w: %d requested for %s", ErrInvalidQuantity, qty, code)
	}
	code = NormalizeCode(code)
	var plan Plan
	err := s.repo.ReadOnly(ctx, func(ctx context.Context, r Reader) error {
		var err error
		plan, err = s.planner.Plan(ctx, r, code, qty)
		return err
	})
	return plan, err
}
