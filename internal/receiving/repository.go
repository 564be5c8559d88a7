package receiving

import (
	"context"

	"github.com/google/uuid"

	"github.com/odyssey-erp/pharmstock/internal/inventory"
	"github.com/odyssey-erp/pharmstock/internal/shared"
)

// TxRepository exposes transactional operations used by the service.
type TxRepository interface {
	inventory.Tx
	// InsertDocument returns ErrDuplicateDocument for a reused invoice number.
	InsertDocument(ctx context.Context, doc Document) error
	InsertLine(ctx context.Context, documentID uuid.UUID, line Line) error
}

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetDocument(ctx context.Context, id uuid.UUID) (Document, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IntegrationHandler receives receiving events after commit.
type IntegrationHandler interface {
	HandleDocumentReceived(ctx context.Context, evt DocumentReceivedEvent) error
}

// Invalidator drops cached stock reports.
type Invalidator interface {
	Bump(ctx context.Context) error
}
