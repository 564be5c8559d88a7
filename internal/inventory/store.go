package inventory

import "context"

// Reader is the read surface the planner works against. Inside a write
// transaction the rows it returns are locked.
type Reader interface {
	// GetProduct returns *UnknownProductError when the code is not registered.
	GetProduct(ctx context.Context, code string) (Product, error)
	// CountLots counts every lot row of the product, exhausted ones included.
	CountLots(ctx context.Context, code string) (int, error)
	// LotsForProduct returns lots with positive quantity ordered by expiry
	// ascending (no expiry last), then by id.
	LotsForProduct(ctx context.Context, code string) ([]Lot, error)
}

// Tx is the transaction context handed to WithTx callbacks.
type Tx interface {
	Reader
	GetLot(ctx context.Context, id int64) (Lot, error)
	SetLotQuantity(ctx context.Context, id int64, quantity int) error
	InsertLot(ctx context.Context, lot Lot) (Lot, error)
	SetProductStock(ctx context.Context, code string, stock int) error
	InsertProduct(ctx context.Context, product Product) (Product, error)
}

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, Tx) error) error
	ReadOnly(ctx context.Context, fn func(context.Context, Reader) error) error
	ListLots(ctx context.Context, code string, includeEmpty bool) ([]Lot, error)
}
