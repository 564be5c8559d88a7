package inventory

import (
	"context"
	"fmt"
)

// Planner computes first-expiry-first-out allocation plans. It never mutates state.
type Planner struct{}

// NewPlanner constructs Planner.
func NewPlanner() *Planner {
	return &Planner{}
}

// Plan resolves the product's stock source through r and plans qty units.
// A non-positive qty is rejected before any lookup.
func (p *Planner) Plan(ctx context.Context, r Reader, code string, qty int) (Plan, error) {
	if qty <= 0 {
		return Plan{}, fmt.Errorf("%w: %d requested for %s", ErrInvalidQuantity, qty, code)
	}
	src, err := ResolveSource(ctx, r, code)
	if err != nil {
		return Plan{}, err
	}
	return p.PlanFrom(src, qty)
}

// PlanFrom plans qty units against an already resolved source. Lot-backed
// sources are walked in order, taking min(remaining, lot quantity) from each
// lot; aggregate-only sources yield one aggregate entry.
func (p *Planner) PlanFrom(src StockSource, qty int) (Plan, error) {
	code := src.Product.Code
	if qty <= 0 {
		return Plan{}, fmt.Errorf("%w: %d requested for %s", ErrInvalidQuantity, qty, code)
	}
	plan := Plan{ProductCode: code, Requested: qty, Source: src.Kind}

	if src.Kind == SourceAggregateOnly {
		if src.Product.Stock < qty {
			return Plan{}, &InsufficientStockError{ProductCode: code, Requested: qty, Available: src.Available()}
		}
		plan.Entries = []PlanEntry{{Quantity: qty}}
		return plan, nil
	}

	remaining := qty
	for _, lot := range src.Lots {
		if remaining == 0 {
			break
		}
		if lot.Quantity <= 0 {
			continue
		}
		take := min(remaining, lot.Quantity)
		plan.Entries = append(plan.Entries, PlanEntry{
			LotID:       lot.ID,
			BatchNumber: lot.BatchNumber,
			ExpiresAt:   lot.ExpiresAt,
			Quantity:    take,
		})
		remaining -= take
	}
	if remaining > 0 {
		return Plan{}, &InsufficientStockError{ProductCode: code, Requested: qty, Available: qty - remaining}
	}
	return plan, nil
}
