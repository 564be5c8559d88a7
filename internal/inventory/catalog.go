package inventory

import (
	"context"
	"fmt"
)

// Catalog reads products and moves the aggregate stock counter.
type Catalog struct {
	tx Tx
}

// NewCatalog binds a catalog to tx.
func NewCatalog(tx Tx) Catalog {
	return Catalog{tx: tx}
}

// Product returns the product or *UnknownProductError.
func (c Catalog) Product(ctx context.Context, code string) (Product, error) {
	return c.tx.GetProduct(ctx, code)
}

// AdjustStock adds delta to the aggregate counter and returns the new value.
func (c Catalog) AdjustStock(ctx context.Context, code string, delta int) (int, error) {
	product, err := c.tx.GetProduct(ctx, code)
	if err != nil {
		return 0, err
	}
	next := product.Stock + delta
	if next < 0 {
		return product.Stock, fmt.Errorf("%w: product %s stock %d, delta %d", ErrNegativeQuantity, code, product.Stock, delta)
	}
	if err := c.tx.SetProductStock(ctx, code, next); err != nil {
		return 0, err
	}
	return next, nil
}
