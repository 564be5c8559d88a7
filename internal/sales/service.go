package sales

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

var tracer = otel.Tracer("github.com/odyssey-erp/pharmstock/internal/sales")

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	// MaxAttempts bounds how often a settlement is retried after a transient store failure.
	MaxAttempts int
	// MigrateLegacy converts aggregate-only products to a legacy lot on first sale.
	MigrateLegacy bool
}

// Service settles sales against inventory.
type Service struct {
	repo        RepositoryPort
	planner     *inventory.Planner
	applier     inventory.Applier
	audit       AuditPort
	integration IntegrationHandler
	cache       Invalidator
	observer    Observer
	validator   *validator.Validate
	logger      *slog.Logger
	maxAttempts int
	now         func() time.Time
}

// NewService builds Service. audit, integration, cache and observer may be nil.
func NewService(repo RepositoryPort, audit AuditPort, integration IntegrationHandler, cache Invalidator, observer Observer, cfg ServiceConfig, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return &Service{
		repo:        repo,
		planner:     inventory.NewPlanner(),
		applier:     inventory.Applier{MigrateLegacy: cfg.MigrateLegacy, Logger: logger},
		audit:       audit,
		integration: integration,
		cache:       cache,
		observer:    observer,
		validator:   validator.New(),
		logger:      logger,
		maxAttempts: attempts,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Submit plans every line, and only when all lines can be filled persists
// the sale and applies the plans in one transaction. Line failures are
// returned together as *RejectedError with nothing written.
func (s *Service) Submit(ctx context.Context, input SubmitInput) (Result, error) {
	ctx, span := tracer.Start(ctx, "sales.Submit")
	defer span.End()
	span.SetAttributes(attribute.String("sale.channel", string(input.Channel)), attribute.Int("sale.lines", len(input.Lines)))

	input = normalizeInput(input)
	if err := s.validate(input); err != nil {
		s.observe(outcomeOf(err), len(input.Lines))
		return Result{}, err
	}

	if input.IdempotencyKey != "" {
		existing, err := s.repo.FindByIdempotencyKey(ctx, input.IdempotencyKey)
		switch {
		case err == nil:
			s.observe("duplicate", len(existing.Lines))
			return Result{Sale: existing, Duplicate: true}, nil
		case !errors.Is(err, ErrNotFound):
			return Result{}, err
		}
	}

	var sale Sale
	err := inventory.Retry(ctx, s.maxAttempts, func(ctx context.Context, attempt int) error {
		if attempt > 1 {
			s.logger.Warn("retrying sale settlement", slog.Int("attempt", attempt))
		}
		var err error
		sale, err = s.settle(ctx, input)
		return err
	})
	if err != nil {
		if errors.Is(err, shared.ErrIdempotencyConflict) {
			existing, findErr := s.repo.FindByIdempotencyKey(ctx, input.IdempotencyKey)
			if findErr == nil {
				s.observe("duplicate", len(existing.Lines))
				return Result{Sale: existing, Duplicate: true}, nil
			}
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, outcomeOf(err))
		s.observe(outcomeOf(err), len(input.Lines))
		if !errors.Is(err, ErrRejected) {
			s.logger.Error("sale settlement failed", slog.Any("error", err))
		}
		return Result{}, err
	}

	span.SetAttributes(attribute.String("sale.id", sale.ID.String()))
	s.observe("committed", len(sale.Lines))
	s.afterCommit(ctx, sale)
	return Result{Sale: sale}, nil
}

// GetSale returns a committed sale with its lines and allocations.
func (s *Service) GetSale(ctx context.Context, id uuid.UUID) (Sale, error) {
	return s.repo.GetSale(ctx, id)
}

func (s *Service) validate(input SubmitInput) error {
	if err := s.validator.Struct(input); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSale, err)
	}
	var failures []LineError
	for i, line := range input.Lines {
		if line.Quantity <= 0 {
			failures = append(failures, LineError{
				Position:    i + 1,
				ProductCode: line.ProductCode,
				Err:         fmt.Errorf("%w: %d requested", inventory.ErrInvalidQuantity, line.Quantity),
			})
		}
	}
	if len(failures) > 0 {
		return &RejectedError{Lines: failures}
	}
	return nil
}

// settle runs one attempt of the settlement transaction.
func (s *Service) settle(ctx context.Context, input SubmitInput) (Sale, error) {
	var committed Sale
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		sale, plans, err := s.prepare(ctx, tx, input)
		if err != nil {
			return err
		}
		if sale.IdempotencyKey != "" {
			if err := tx.ClaimIdempotencyKey(ctx, sale.IdempotencyKey); err != nil {
				return err
			}
		}
		if err := tx.InsertSale(ctx, sale); err != nil {
			return fmt.Errorf("sales: insert sale: %w", err)
		}
		for i := range sale.Lines {
			if err := tx.InsertLine(ctx, sale.ID, sale.Lines[i]); err != nil {
				return fmt.Errorf("sales: insert line %d: %w", sale.Lines[i].Position, err)
			}
		}
		for i := range sale.Lines {
			line := &sale.Lines[i]
			applied, err := s.applier.Apply(ctx, tx, plans[i])
			if err != nil {
				return fmt.Errorf("sales: apply line %d (%s): %w", line.Position, line.ProductCode, err)
			}
			line.Allocations = toAllocations(plans[i].Source, applied)
			if err := tx.InsertAllocations(ctx, sale.ID, line.Position, line.Allocations); err != nil {
				return fmt.Errorf("sales: insert allocations for line %d: %w", line.Position, err)
			}
		}
		committed = sale
		return nil
	})
	if err != nil {
		return Sale{}, err
	}
	return committed, nil
}

// prepare is the pre-flight pass: it plans every line and collects every
// failure before anything is written.
func (s *Service) prepare(ctx context.Context, tx TxRepository, input SubmitInput) (Sale, []inventory.Plan, error) {
	sale := Sale{
		ID:                  uuid.New(),
		Channel:             input.Channel,
		PatientName:         input.PatientName,
		PatientNationalCode: input.PatientNationalCode,
		DoctorRef:           input.DoctorRef,
		IdempotencyKey:      input.IdempotencyKey,
		Status:              StatusDraft,
		Total:               decimal.Zero,
		CreatedAt:           s.now(),
	}
	view := newPendingView(tx)
	plans := make([]inventory.Plan, 0, len(input.Lines))
	var failures []LineError

	for i, in := range input.Lines {
		position := i + 1
		src, err := view.source(ctx, in.ProductCode)
		if err == nil {
			var plan inventory.Plan
			plan, err = s.planner.PlanFrom(src, in.Quantity)
			if err == nil {
				view.reserve(plan)
				plans = append(plans, plan)
				price := src.Product.UnitPrice
				lineTotal := price.Mul(decimal.NewFromInt(int64(in.Quantity)))
				sale.Lines = append(sale.Lines, Line{
					Position:    position,
					ProductCode: in.ProductCode,
					Quantity:    in.Quantity,
					UnitPrice:   price,
					LineTotal:   lineTotal,
				})
				sale.Total = sale.Total.Add(lineTotal)
				continue
			}
		}
		if !inventory.IsDomainError(err) {
			return Sale{}, nil, err
		}
		failures = append(failures, LineError{Position: position, ProductCode: in.ProductCode, Err: err})
	}
	if len(failures) > 0 {
		return Sale{}, nil, &RejectedError{Lines: failures}
	}
	sale.Status = StatusCommitted
	return sale, plans, nil
}

func (s *Service) afterCommit(ctx context.Context, sale Sale) {
	if s.audit != nil {
		if err := s.audit.Record(ctx, shared.AuditLog{
			Action:   "sales:committed",
			Entity:   "sale",
			EntityID: sale.ID.String(),
			Meta: map[string]any{
				"channel": string(sale.Channel),
				"total":   sale.Total.StringFixed(2),
				"lines":   len(sale.Lines),
			},
			At: sale.CreatedAt,
		}); err != nil {
			s.logger.Warn("audit sale", slog.String("sale_id", sale.ID.String()), slog.Any("error", err))
		}
	}
	if s.cache != nil {
		if err := s.cache.Bump(ctx); err != nil {
			s.logger.Warn("invalidate report cache", slog.Any("error", err))
		}
	}
	if s.integration != nil {
		evt := SaleCommittedEvent{SaleID: sale.ID, Channel: sale.Channel, Total: sale.Total, Lines: sale.Lines, OccurredAt: sale.CreatedAt}
		if err := s.integration.HandleSaleCommitted(ctx, evt); err != nil {
			s.logger.Warn("publish sale committed", slog.String("sale_id", sale.ID.String()), slog.Any("error", err))
		}
	}
}

func (s *Service) observe(outcome string, lines int) {
	if s.observer != nil {
		s.observer.ObserveSale(outcome, lines)
	}
}

func normalizeInput(input SubmitInput) SubmitInput {
	out := input
	out.PatientName = inventory.NormalizeText(input.PatientName)
	out.PatientNationalCode = inventory.NormalizeText(input.PatientNationalCode)
	out.DoctorRef = inventory.NormalizeText(input.DoctorRef)
	out.IdempotencyKey = inventory.NormalizeText(input.IdempotencyKey)
	out.Lines = make([]LineInput, len(input.Lines))
	for i, line := range input.Lines {
		out.Lines[i] = LineInput{ProductCode: inventory.NormalizeCode(line.ProductCode), Quantity: line.Quantity}
	}
	return out
}

func toAllocations(source inventory.StockSourceKind, entries []inventory.PlanEntry) []Allocation {
	allocations := make([]Allocation, 0, len(entries))
	for _, e := range entries {
		kind := source
		if !e.Aggregate() {
			kind = inventory.SourceLotBacked
		}
		allocations = append(allocations, Allocation{LotID: e.LotID, BatchNumber: e.BatchNumber, Source: kind, Quantity: e.Quantity})
	}
	return allocations
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "committed"
	case errors.Is(err, ErrRejected):
		return "rejected"
	case errors.Is(err, ErrInvalidSale):
		return "invalid"
	case errors.Is(err, inventory.ErrTransientStore):
		return "transient"
	default:
		return "error"
	}
}
