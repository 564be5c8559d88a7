package inventory

import (
	"context"
	"fmt"
	"log/slog"
)

// Applier performs the stock mutations of a plan inside a transaction.
type Applier struct {
	// MigrateLegacy moves aggregate-only stock into a legacy lot before the
	// first draw, so the product is lot-backed from then on.
	MigrateLegacy bool
	Logger        *slog.Logger
}

// Apply decrements lots and the aggregate counter for plan and returns the
// draws actually made. Lot draws and the counter are two views of the same
// units, so the counter falls once by the plan total.
func (a Applier) Apply(ctx context.Context, tx Tx, plan Plan) ([]PlanEntry, error) {
	ledger := NewLedger(tx)
	catalog := NewCatalog(tx)
	total := plan.Total()
	applied := make([]PlanEntry, 0, len(plan.Entries))

	switch plan.Source {
	case SourceLotBacked:
		for _, entry := range plan.Entries {
			if entry.Aggregate() {
				return nil, fmt.Errorf("inventory: lot-backed plan for %s has an aggregate entry", plan.ProductCode)
			}
			if _, err := ledger.DecrementLot(ctx, entry.LotID, entry.Quantity); err != nil {
				return nil, err
			}
			applied = append(applied, entry)
		}
		if err := a.settleLotBacked(ctx, tx, plan.ProductCode, total); err != nil {
			return nil, err
		}
		return applied, nil
	case SourceAggregateOnly:
		drawn := false
		if a.MigrateLegacy {
			product, err := catalog.Product(ctx, plan.ProductCode)
			if err != nil {
				return nil, err
			}
			lot, ok, err := MigrateLegacyStock(ctx, tx, product)
			if err != nil {
				return nil, err
			}
			if ok {
				if _, err := ledger.DecrementLot(ctx, lot.ID, total); err != nil {
					return nil, err
				}
				applied = append(applied, PlanEntry{LotID: lot.ID, BatchNumber: lot.BatchNumber, Quantity: total})
				drawn = true
			}
		}
		if !drawn {
			applied = append(applied, PlanEntry{Quantity: total})
		}
	default:
		return nil, fmt.Errorf("inventory: unknown stock source %q", plan.Source)
	}

	if _, err := catalog.AdjustStock(ctx, plan.ProductCode, -total); err != nil {
		return nil, err
	}
	return applied, nil
}

// settleLotBacked lowers the aggregate counter after lot draws. When the
// counter has drifted below what the lots just supplied, it is reset to the
// remaining lot total instead of going negative.
func (a Applier) settleLotBacked(ctx context.Context, tx Tx, code string, total int) error {
	catalog := NewCatalog(tx)
	product, err := catalog.Product(ctx, code)
	if err != nil {
		return err
	}
	if product.Stock >= total {
		_, err := catalog.AdjustStock(ctx, code, -total)
		return err
	}
	lots, err := NewLedger(tx).LotsForProduct(ctx, code)
	if err != nil {
		return err
	}
	remaining := 0
	for _, lot := range lots {
		remaining += lot.Quantity
	}
	logger := a.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Warn("aggregate stock drifted below lots, reconciling",
		slog.String("product_code", code),
		slog.Int("stock", product.Stock),
		slog.Int("drawn", total),
		slog.Int("lot_total", remaining),
	)
	return tx.SetProductStock(ctx, code, remaining)
}
