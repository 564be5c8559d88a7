package sales

import (
	"context"

	"github.com/google/uuid"

	"github.com/odyssey-erp/pharmstock/internal/inventory"
	"github.com/odyssey-erp/pharmstock/internal/shared"
)

// TxRepository exposes the transactional operations a sale needs on top of
// the inventory transaction.
type TxRepository interface {
	inventory.Tx
	// ClaimIdempotencyKey returns shared.ErrIdempotencyConflict when the key
	// was already used.
	ClaimIdempotencyKey(ctx context.Context, key string) error
	InsertSale(ctx context.Context, sale Sale) error
	InsertLine(ctx context.Context, saleID uuid.UUID, line Line) error
	InsertAllocations(ctx context.Context, saleID uuid.UUID, position int, allocations []Allocation) error
}

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetSale(ctx context.Context, id uuid.UUID) (Sale, error)
	FindByIdempotencyKey(ctx context.Context, key string) (Sale, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IntegrationHandler receives sale events after commit.
type IntegrationHandler interface {
	HandleSaleCommitted(ctx context.Context, evt SaleCommittedEvent) error
}

// Invalidator drops cached stock reports.
type Invalidator interface {
	Bump(ctx context.Context) error
}

// Observer records settlement outcomes.
type Observer interface {
	ObserveSale(outcome string, lines int)
}
