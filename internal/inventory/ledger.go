package inventory

import (
	"context"
	"fmt"
)

// Ledger owns lot quantities inside one transaction.
type Ledger struct {
	tx Tx
}

// NewLedger binds a ledger to tx.
func NewLedger(tx Tx) Ledger {
	return Ledger{tx: tx}
}

// LotsForProduct returns the product's lots with positive quantity in FEFO order.
func (l Ledger) LotsForProduct(ctx context.Context, code string) ([]Lot, error) {
	return l.tx.LotsForProduct(ctx, code)
}

// DecrementLot subtracts amount from a lot and returns the remaining quantity.
// The lot is left untouched when the result would be negative.
func (l Ledger) DecrementLot(ctx context.Context, lotID int64, amount int) (int, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("%w: decrement of %d on lot %d", ErrInvalidQuantity, amount, lotID)
	}
	lot, err := l.tx.GetLot(ctx, lotID)
	if err != nil {
		return 0, err
	}
	remaining := lot.Quantity - amount
	if remaining < 0 {
		return lot.Quantity, fmt.Errorf("%w: lot %d holds %d, cannot take %d", ErrNegativeQuantity, lotID, lot.Quantity, amount)
	}
	if err := l.tx.SetLotQuantity(ctx, lotID, remaining); err != nil {
		return 0, err
	}
	return remaining, nil
}

// CreateLot stores a received lot. Received is set to the initial quantity.
// Only migrated legacy stock may be undated.
func (l Ledger) CreateLot(ctx context.Context, lot Lot) (Lot, error) {
	if lot.ProductCode == "" {
		return Lot{}, fmt.Errorf("%w: product code required", ErrInvalidLot)
	}
	if lot.Quantity <= 0 {
		return Lot{}, fmt.Errorf("%w: lot for %s", ErrInvalidQuantity, lot.ProductCode)
	}
	lot.BatchNumber = NormalizeText(lot.BatchNumber)
	if lot.ExpiresAt == nil {
		return Lot{}, fmt.Errorf("%w: expiry date required for %s", ErrInvalidLot, lot.ProductCode)
	}
	lot.Received = lot.Quantity
	return l.tx.InsertLot(ctx, lot)
}
