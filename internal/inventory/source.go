package inventory

import (
	"context"
	"fmt"
)

// ResolveSource decides how a product's availability is read. A product is
// lot-backed as soon as it has any lot row, even when every lot is exhausted.
func ResolveSource(ctx context.Context, r Reader, code string) (StockSource, error) {
	product, err := r.GetProduct(ctx, code)
	if err != nil {
		return StockSource{}, err
	}
	count, err := r.CountLots(ctx, code)
	if err != nil {
		return StockSource{}, fmt.Errorf("inventory: count lots for %s: %w", code, err)
	}
	// Exhausted lots do not fall back to the aggregate counter; lot history keeps the product lot-backed.
	if count == 0 {
		return AggregateOnly(product), nil
	}
	lots, err := r.LotsForProduct(ctx, code)
	if err != nil {
		return StockSource{}, fmt.Errorf("inventory: lots for %s: %w", code, err)
	}
	return LotBacked(product, lots), nil
}

// MigrateLegacyStock gives an aggregate-only product a single undated lot
// holding its current stock. When the product already has lots the existing
// legacy lot is returned, if any. The bool reports whether a legacy lot is
// available to draw from.
func MigrateLegacyStock(ctx context.Context, tx Tx, product Product) (Lot, bool, error) {
	count, err := tx.CountLots(ctx, product.Code)
	if err != nil {
		return Lot{}, false, err
	}
	if count > 0 {
		lots, err := tx.LotsForProduct(ctx, product.Code)
		if err != nil {
			return Lot{}, false, err
		}
		for _, lot := range lots {
			if lot.Legacy() {
				return lot, true, nil
			}
		}
		return Lot{}, false, nil
	}
	if product.Stock <= 0 {
		return Lot{}, false, nil
	}
	lot, err := tx.InsertLot(ctx, Lot{
		ProductCode: product.Code,
		BatchNumber: LegacyBatchNumber,
		Quantity:    product.Stock,
		Received:    product.Stock,
	})
	if err != nil {
		return Lot{}, false, fmt.Errorf("inventory: migrate legacy stock for %s: %w", product.Code, err)
	}
	return lot, true, nil
}
