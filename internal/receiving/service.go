package receiving

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/odyssey-erp/pharmstock/internal/inventory"
	"github.com/odyssey-erp/pharmstock/internal/shared"
)

var tracer = otel.Tracer("github.com/odyssey-erp/pharmstock/internal/receiving")

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	MaxAttempts   int
	MigrateLegacy bool
}

// Service records purchase documents and turns their lines into lots.
type Service struct {
	repo          RepositoryPort
	audit         AuditPort
	integration   IntegrationHandler
	cache         Invalidator
	validator     *validator.Validate
	logger        *slog.Logger
	maxAttempts   int
	migrateLegacy bool
	now           func() time.Time
}

// NewService builds Service. audit, integration and cache may be nil.
func NewService(repo RepositoryPort, audit AuditPort, integration IntegrationHandler, cache Invalidator, cfg ServiceConfig, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:          repo,
		audit:         audit,
		integration:   integration,
		cache:         cache,
		validator:     validator.New(),
		logger:        logger,
		maxAttempts:   max(cfg.MaxAttempts, 1),
		migrateLegacy: cfg.MigrateLegacy,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Receive records the document and, for every line whose product exists,
// creates a lot and raises aggregate stock by the same quantity. Lines for
// unknown products are stored with LineUnknownProduct, move no stock and are
// returned in Result.Failures; the document still commits.
func (s *Service) Receive(ctx context.Context, input ReceiveInput) (Result, error) {
	ctx, span := tracer.Start(ctx, "receiving.Receive")
	defer span.End()
	span.SetAttributes(attribute.Int("receiving.lines", len(input.Lines)))

	doc, err := s.buildDocument(input)
	if err != nil {
		return Result{}, err
	}
	span.SetAttributes(attribute.String("receiving.invoice", doc.InvoiceNumber))

	var result Result
	err = inventory.Retry(ctx, s.maxAttempts, func(ctx context.Context, attempt int) error {
		if attempt > 1 {
			s.logger.Warn("retrying purchase document", slog.String("invoice", doc.InvoiceNumber), slog.Int("attempt", attempt))
		}
		var err error
		result, err = s.record(ctx, doc)
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "receive failed")
		if !errors.Is(err, ErrDuplicateDocument) {
			s.logger.Error("receive purchase document", slog.String("invoice", doc.InvoiceNumber), slog.Any("error", err))
		}
		return Result{}, err
	}
	for _, f := range result.Failures {
		s.logger.Warn("purchase line skipped", slog.String("invoice", doc.InvoiceNumber), slog.Int("line", f.Position), slog.String("product_code", f.ProductCode))
	}
	s.afterCommit(ctx, result.Document)
	return result, nil
}

// GetDocument returns a recorded purchase document.
func (s *Service) GetDocument(ctx context.Context, id uuid.UUID) (Document, error) {
	return s.repo.GetDocument(ctx, id)
}

func (s *Service) buildDocument(input ReceiveInput) (Document, error) {
	input.InvoiceNumber = inventory.NormalizeText(input.InvoiceNumber)
	if err := s.validator.Struct(input); err != nil {
		return Document{}, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	for name, v := range map[string]decimal.Decimal{
		"discount_percent": input.DiscountPercent,
		"discount_amount":  input.DiscountAmount,
		"tax_percent":      input.TaxPercent,
		"shipping_cost":    input.ShippingCost,
	} {
		if v.IsNegative() {
			return Document{}, fmt.Errorf("%w: %s must be >= 0", ErrInvalidDocument, name)
		}
	}
	if input.DiscountPercent.GreaterThan(hundred) {
		return Document{}, fmt.Errorf("%w: discount_percent must be <= 100", ErrInvalidDocument)
	}
	invoiceDate, err := parseDate(input.InvoiceDate)
	if err != nil {
		return Document{}, fmt.Errorf("%w: invoice_date: %v", ErrInvalidDocument, err)
	}

	doc := Document{
		ID:              uuid.New(),
		InvoiceNumber:   input.InvoiceNumber,
		Supplier:        inventory.NormalizeText(input.Supplier),
		InvoiceDate:     invoiceDate,
		Note:            input.Note,
		DiscountPercent: input.DiscountPercent,
		DiscountAmount:  input.DiscountAmount,
		TaxPercent:      input.TaxPercent,
		ShippingCost:    input.ShippingCost,
		TotalCost:       decimal.Zero,
		CreatedAt:       s.now(),
	}
	for i, in := range input.Lines {
		position := i + 1
		units, ok := in.Units()
		if !ok {
			return Document{}, fmt.Errorf("%w: line %d: quantity exceeds %d units", ErrInvalidDocument, position, MaxLineUnits)
		}
		if units <= 0 {
			return Document{}, fmt.Errorf("%w: line %d: quantity or packages with units_per_package required", ErrInvalidDocument, position)
		}
		if in.UnitCost.IsNegative() {
			return Document{}, fmt.Errorf("%w: line %d: unit_cost must be >= 0", ErrInvalidDocument, position)
		}
		expires, err := parseDate(in.ExpiryDate)
		if err != nil || expires == nil {
			return Document{}, fmt.Errorf("%w: line %d: expiry_date must be YYYY-MM-DD", ErrInvalidDocument, position)
		}
		if invoiceDate != nil && expires.Before(*invoiceDate) {
			s.logger.Warn("received lot already expired", slog.String("invoice", doc.InvoiceNumber), slog.Int("line", position))
		}
		doc.Lines = append(doc.Lines, Line{
			Position:    position,
			ProductCode: inventory.NormalizeCode(in.ProductCode),
			BatchNumber: inventory.NormalizeText(in.BatchNumber),
			ExpiresAt:   *expires,
			Quantity:    units,
			UnitCost:    in.UnitCost,
		})
		doc.TotalCost = doc.TotalCost.Add(in.UnitCost.Mul(decimal.NewFromInt(int64(units))))
	}
	doc.TotalCost = doc.TotalCost.Round(2)
	doc.Payable = ComputePayable(doc.TotalCost, doc.DiscountPercent, doc.DiscountAmount, doc.TaxPercent, doc.ShippingCost)
	return doc, nil
}

// record runs one attempt of the receiving transaction on a copy of doc.
func (s *Service) record(ctx context.Context, doc Document) (Result, error) {
	doc.Lines = append([]Line(nil), doc.Lines...)
	var failures []LineFailure
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.InsertDocument(ctx, doc); err != nil {
			return err
		}
		ledger := inventory.NewLedger(tx)
		catalog := inventory.NewCatalog(tx)
		for i := range doc.Lines {
			line := &doc.Lines[i]
			product, err := catalog.Product(ctx, line.ProductCode)
			if errors.Is(err, inventory.ErrUnknownProduct) {
				line.Status = LineUnknownProduct
				failures = append(failures, LineFailure{Position: line.Position, ProductCode: line.ProductCode, Err: err})
				if err := tx.InsertLine(ctx, doc.ID, *line); err != nil {
					return fmt.Errorf("receiving: insert line %d: %w", line.Position, err)
				}
				continue
			}
			if err != nil {
				return err
			}
			if s.migrateLegacy {
				if _, _, err := inventory.MigrateLegacyStock(ctx, tx, product); err != nil {
					return err
				}
			}
			expires := line.ExpiresAt
			lot, err := ledger.CreateLot(ctx, inventory.Lot{
				ProductCode:    line.ProductCode,
				SourceDocument: doc.ID.String(),
				BatchNumber:    line.BatchNumber,
				Quantity:       line.Quantity,
				ExpiresAt:      &expires,
			})
			if err != nil {
				return fmt.Errorf("receiving: create lot for line %d: %w", line.Position, err)
			}
			if _, err := catalog.AdjustStock(ctx, line.ProductCode, line.Quantity); err != nil {
				return fmt.Errorf("receiving: raise stock for line %d: %w", line.Position, err)
			}
			line.LotID = lot.ID
			line.Status = LineReceived
			if err := tx.InsertLine(ctx, doc.ID, *line); err != nil {
				return fmt.Errorf("receiving: insert line %d: %w", line.Position, err)
			}
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return Result{Document: doc, Failures: failures}, nil
}

func (s *Service) afterCommit(ctx context.Context, doc Document) {
	if s.audit != nil {
		if err := s.audit.Record(ctx, shared.AuditLog{
			Action:   "receiving:recorded",
			Entity:   "purchase_document",
			EntityID: doc.ID.String(),
			Meta: map[string]any{
				"invoice_number": doc.InvoiceNumber,
				"payable":        doc.Payable.StringFixed(2),
				"lines":          len(doc.Lines),
			},
			At: doc.CreatedAt,
		}); err != nil {
			s.logger.Warn("audit purchase document", slog.String("document_id", doc.ID.String()), slog.Any("error", err))
		}
	}
	if s.cache != nil {
		if err := s.cache.Bump(ctx); err != nil {
			s.logger.Warn("invalidate report cache", slog.Any("error", err))
		}
	}
	if s.integration != nil {
		evt := DocumentReceivedEvent{
			DocumentID:    doc.ID,
			InvoiceNumber: doc.InvoiceNumber,
			Supplier:      doc.Supplier,
			Payable:       doc.Payable,
			Lines:         doc.Lines,
			OccurredAt:    doc.CreatedAt,
		}
		if err := s.integration.HandleDocumentReceived(ctx, evt); err != nil {
			s.logger.Warn("publish document received", slog.String("document_id", doc.ID.String()), slog.Any("error", err))
		}
	}
}
